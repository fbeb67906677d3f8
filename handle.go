package modbus

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
)

// HandleState tracks the per request lifecycle of a handle.
type HandleState int

const (
	StateIdle HandleState = iota
	StateSendingRequest
	StateWaitingForResponse
	StateDataReceived
	StateTransactionFailed
	StateDisconnected
)

func (s HandleState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSendingRequest:
		return "SendingRequest"
	case StateWaitingForResponse:
		return "WaitingForResponse"
	case StateDataReceived:
		return "DataReceived"
	case StateTransactionFailed:
		return "TransactionFailed"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Handle is one logical device connection. A handle carries at most one
// outstanding transaction: operations started while another is in flight
// fail fast with HandleInUse. The engine dispatcher is the only writer of
// the DataReceived/TransactionFailed/Disconnected transitions; the calling
// goroutine owns the others and resets terminal outcomes back to Idle.
type Handle struct {
	engine *Engine
	kind   TransportKind
	conn   io.ReadWriteCloser
	framer framer
	notify chan struct{}

	mu        sync.Mutex
	state     HandleState
	isCFG     bool
	txnID     uint16
	lastTxnID uint16
	rx        frameBuffer
	pdu       [maxPDULength]byte
	pduLen    int
	closed    bool
}

// ConnectTCP opens a length prefixed Modbus TCP connection.
func (e *Engine) ConnectTCP(ip string, port uint16) (*Handle, error) {
	return e.connectStream(TransportTCP, ip, port)
}

// ConnectRTUOverTCP opens a stream connection carrying CRC framed RTU
// messages.
func (e *Engine) ConnectRTUOverTCP(ip string, port uint16) (*Handle, error) {
	return e.connectStream(TransportRTUOverTCP, ip, port)
}

func (e *Engine) connectStream(kind TransportKind, ip string, port uint16) (*Handle, error) {
	addr := net.JoinHostPort(ip, strconv.Itoa(int(port)))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("modbus: connect %s: %w", addr, err)
	}
	return e.newHandle(kind, conn), nil
}

// ConnectRTU opens the intercore link and programs the far end UART with
// the given setup. The handle is usable for data traffic only after the far
// end acknowledges the configuration; timeout bounds that wait.
func (e *Engine) ConnectRTU(setup SerialSetup, timeout time.Duration) (*Handle, error) {
	if e.linkDial == nil {
		return nil, fmt.Errorf("modbus: no link dialer configured")
	}
	conn, err := e.linkDial()
	if err != nil {
		return nil, fmt.Errorf("modbus: open intercore link: %w", err)
	}
	h := e.newHandle(TransportRTU, conn)
	if err := h.writeSerialConfig(setup, timeout); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

func (e *Engine) newHandle(kind TransportKind, conn io.ReadWriteCloser) *Handle {
	h := &Handle{
		engine: e,
		kind:   kind,
		conn:   conn,
		framer: framerFor(kind),
		notify: make(chan struct{}, 1),
		state:  StateIdle,
	}
	e.register(h)
	return h
}

func (h *Handle) writeSerialConfig(setup SerialSetup, timeout time.Duration) error {
	msg := make([]byte, uartConfigMessageLength)
	msg[baudRateOffsetUpper] = byte(setup.BaudRate >> 8)
	msg[baudRateOffsetLower] = byte(setup.BaudRate)
	msg[duplexModeOffset] = setup.DuplexMode
	msg[parityStateOffset] = setup.ParityState
	msg[parityModeOffset] = setup.ParityMode
	msg[stopBitsOffset] = setup.StopBits
	msg[wordLengthOffset] = setup.WordLength

	pdu, err := h.transact(msg, true, timeout)
	if err != nil {
		return fmt.Errorf("modbus: serial configuration: %w", err)
	}
	if len(pdu) < uartConfigResponseLength || pdu[0] != 0 {
		return fmt.Errorf("modbus: serial configuration not acknowledged")
	}
	return nil
}

// Kind returns the transport kind of the handle.
func (h *Handle) Kind() TransportKind { return h.kind }

// State returns the current transaction state.
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Close tears down a TCP family handle. The intercore channel is treated as
// process lifetime: an RTU handle is only dropped from the engine, its
// channel stays open until the engine itself is closed. Closing while a
// request is outstanding is not safe.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.state = StateDisconnected
	h.mu.Unlock()
	if h.kind == TransportRTU {
		return nil
	}
	return h.conn.Close()
}

// transact sends one request PDU and blocks until the matching response, a
// transaction failure, a disconnect, or the timeout. A timeout of zero
// waits forever. The returned slice is a copy of the extracted response
// PDU.
func (h *Handle) transact(pdu []byte, cfg bool, timeout time.Duration) ([]byte, error) {
	if len(pdu) > maxPDULength {
		return nil, localError(ErrCodeMessageSendFail)
	}

	h.mu.Lock()
	if h.state != StateIdle {
		code := ErrCodeHandleInUse
		if h.state == StateDisconnected {
			code = ErrCodeDeviceDisconnected
		}
		state := h.state
		h.mu.Unlock()
		h.logf("WARNING: request while handle not idle (state %s)", state)
		return nil, localError(code)
	}
	h.state = StateSendingRequest
	h.pduLen = 0
	h.isCFG = cfg
	txn := h.engine.nextTransactionID()
	frame := h.framer.wrap(txn, cfg, pdu)
	// The response can land before Write returns, so the handle must
	// already be waiting when the request goes out.
	h.txnID = txn
	h.state = StateWaitingForResponse
	select {
	case <-h.notify:
	default:
	}
	h.mu.Unlock()

	if _, err := h.conn.Write(frame); err != nil {
		h.mu.Lock()
		if h.state == StateWaitingForResponse {
			h.state = StateIdle
		}
		h.mu.Unlock()
		h.logf("ERROR: send failed on %s handle: %v", h.kind, err)
		return nil, localError(ErrCodeMessageSendFail)
	}

	if err := h.waitForData(timeout); err != nil {
		return nil, err
	}

	h.mu.Lock()
	out := make([]byte, h.pduLen)
	copy(out, h.pdu[:h.pduLen])
	h.mu.Unlock()
	return out, nil
}

// waitForData blocks on the notify channel until the dispatcher reports a
// terminal outcome or the timeout elapses. DataReceived and
// TransactionFailed are consumed here and reset the handle to Idle;
// Disconnected is sticky until the handle is recreated.
func (h *Handle) waitForData(timeout time.Duration) error {
	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}
	for {
		h.mu.Lock()
		switch h.state {
		case StateDataReceived:
			h.state = StateIdle
			h.mu.Unlock()
			return nil
		case StateTransactionFailed:
			h.state = StateIdle
			h.mu.Unlock()
			return localError(ErrCodeInvalidResponse)
		case StateDisconnected:
			h.mu.Unlock()
			return localError(ErrCodeDeviceDisconnected)
		}
		h.mu.Unlock()

		select {
		case <-h.notify:
		case <-timeoutC:
			h.mu.Lock()
			defer h.mu.Unlock()
			switch h.state {
			case StateDataReceived:
				h.state = StateIdle
				return nil
			case StateTransactionFailed:
				h.state = StateIdle
				return localError(ErrCodeInvalidResponse)
			case StateDisconnected:
				return localError(ErrCodeDeviceDisconnected)
			}
			h.state = StateIdle
			return localError(ErrCodeTimeout)
		}
	}
}

// signal wakes a caller blocked in waitForData. The channel has capacity
// one, coalescing bursts of transitions.
func (h *Handle) signal() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *Handle) logf(format string, args ...interface{}) {
	if h.engine.logger != nil {
		fmt.Fprintf(h.engine.logger, format, args...)
	}
}
