package modbus

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// Engine owns the shared receive path for all handles: per connection
// reader goroutines feed raw bytes into one dispatcher goroutine, which
// drives each handle's frame assembler and state transitions. The engine
// also holds the process wide transaction counter used by the length
// prefixed transport.
type Engine struct {
	logger   io.Writer
	linkDial func() (io.ReadWriteCloser, error)

	events chan readEvent
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	handles map[*Handle]struct{}

	txnCounter uint32
	closeOnce  sync.Once
}

type readEvent struct {
	h    *Handle
	data []byte
	hup  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger routes engine and handle diagnostics to w.
func WithLogger(w io.Writer) Option {
	return func(e *Engine) { e.logger = w }
}

// WithLinkDialer installs the transport used by ConnectRTU to reach the
// intercore peer.
func WithLinkDialer(dial func() (io.ReadWriteCloser, error)) Option {
	return func(e *Engine) { e.linkDial = dial }
}

// NewEngine starts the background receiver and returns the engine. Close
// must be called to release it.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:  NewSimpleLogger(nil, LevelInfo, "modbus"),
		events:  make(chan readEvent, 16),
		done:    make(chan struct{}),
		handles: make(map[*Handle]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.wg.Add(1)
	go e.dispatch()
	return e
}

// Close stops the dispatcher, closes every connection still registered and
// waits for all reader goroutines to exit.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		e.mu.Lock()
		for h := range e.handles {
			h.conn.Close()
		}
		e.mu.Unlock()
	})
	e.wg.Wait()
	return nil
}

// nextTransactionID claims the next id from the shared 16 bit counter.
func (e *Engine) nextTransactionID() uint16 {
	return uint16(atomic.AddUint32(&e.txnCounter, 1) - 1)
}

func (e *Engine) register(h *Handle) {
	e.mu.Lock()
	e.handles[h] = struct{}{}
	e.mu.Unlock()
	e.wg.Add(1)
	go e.readPump(h)
}

func (e *Engine) drop(h *Handle) {
	e.mu.Lock()
	delete(e.handles, h)
	e.mu.Unlock()
}

// readPump pulls available bytes from one connection and forwards them to
// the dispatcher. A read error is reported as a hang up and ends the pump.
func (e *Engine) readPump(h *Handle) {
	defer e.wg.Done()
	defer e.drop(h)
	buf := make([]byte, maxPDULength)
	for {
		n, err := h.conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case e.events <- readEvent{h: h, data: data}:
			case <-e.done:
				return
			}
		}
		if err != nil {
			select {
			case e.events <- readEvent{h: h, hup: true}:
			case <-e.done:
			}
			return
		}
	}
}

func (e *Engine) dispatch() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case ev := <-e.events:
			h := ev.h
			h.mu.Lock()
			if h.state == StateDisconnected {
				// Repeated hang up events are expected on a dead
				// connection; stay quiet.
				h.mu.Unlock()
				continue
			}
			if ev.hup {
				h.state = StateDisconnected
				h.mu.Unlock()
				h.signal()
				fmt.Fprintf(e.logger, "ERROR: %s peer hung up, reconnect required", h.kind)
				continue
			}
			res := h.feed(ev.data)
			switch res {
			case assembleSuccess:
				h.state = StateDataReceived
			case assembleFailure:
				h.state = StateTransactionFailed
			}
			h.mu.Unlock()
			if res != assembleWaiting {
				h.signal()
			}
		}
	}
}
