package modbus

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	serial "github.com/hootrhino/goserial"
)

// fakePort is a loopback serial slave: each CRC framed request written to it
// produces one CRC framed response for the next read.
type fakePort struct {
	respond func(pdu []byte) []byte
	pending []byte
	closed  bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	if !ValidateCRC(b) {
		return 0, fmt.Errorf("request CRC check failed")
	}
	resp := p.respond(b[:len(b)-crcFooterLength])
	if resp != nil {
		p.pending = AddCRC(append([]byte(nil), resp...))
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.pending == nil {
		return 0, io.EOF
	}
	n := copy(b, p.pending)
	p.pending = nil
	return n, nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func bridgeEngine(t *testing.T, respond func(pdu []byte) []byte) (*Engine, *serial.Config) {
	t.Helper()
	bridge := NewSerialBridge("/dev/ttyS1", io.Discard)
	t.Cleanup(func() { bridge.Close() })

	opened := &serial.Config{}
	bridge.openPort = func(cfg *serial.Config) (io.ReadWriteCloser, error) {
		*opened = *cfg
		return &fakePort{respond: respond}, nil
	}

	e := NewEngine(WithLogger(io.Discard), WithLinkDialer(bridge.Dialer()))
	t.Cleanup(func() { e.Close() })
	return e, opened
}

func TestConnectRTUConfiguresPort(t *testing.T) {
	e, opened := bridgeEngine(t, func(pdu []byte) []byte { return nil })
	h, err := e.ConnectRTU(SerialSetup{
		BaudRate:    BaudSet19200,
		DuplexMode:  HalfDuplexMode,
		ParityState: ParityOn,
		ParityMode:  ParityEven,
		StopBits:    1,
		WordLength:  8,
	}, time.Second)
	if err != nil {
		t.Fatalf("ConnectRTU failed: %v", err)
	}
	defer h.Close()

	if opened.Address != "/dev/ttyS1" {
		t.Errorf("port address = %q, want /dev/ttyS1", opened.Address)
	}
	if opened.BaudRate != 19200 {
		t.Errorf("baud rate = %d, want 19200", opened.BaudRate)
	}
	if opened.Parity != "E" {
		t.Errorf("parity = %q, want E", opened.Parity)
	}
	if opened.DataBits != 8 || opened.StopBits != 1 {
		t.Errorf("framing = %d data %d stop, want 8 data 1 stop", opened.DataBits, opened.StopBits)
	}
	if h.Kind() != TransportRTU {
		t.Errorf("kind = %s, want rtu", h.Kind())
	}
}

func TestRTURequestThroughBridge(t *testing.T) {
	e, _ := bridgeEngine(t, func(pdu []byte) []byte {
		assertBytesEqual(t, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, pdu)
		return []byte{0x01, 0x03, 0x02, 0x00, 0x2A}
	})
	h, err := e.ConnectRTU(SerialSetup{BaudRate: BaudSet9600, StopBits: 1, WordLength: 8}, time.Second)
	if err != nil {
		t.Fatalf("ConnectRTU failed: %v", err)
	}
	defer h.Close()

	regs, err := h.ReadHoldingRegisters(1, 0, 1, time.Second)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters failed: %v", err)
	}
	assertUint16Equal(t, []uint16{42}, regs)
}

func TestRTUSlaveSilenceTimesOut(t *testing.T) {
	e, _ := bridgeEngine(t, func(pdu []byte) []byte { return nil })
	h, err := e.ConnectRTU(SerialSetup{BaudRate: BaudSet9600, StopBits: 1, WordLength: 8}, time.Second)
	if err != nil {
		t.Fatalf("ConnectRTU failed: %v", err)
	}
	defer h.Close()

	_, err = h.ReadHoldingRegisters(1, 0, 1, 50*time.Millisecond)
	var mbErr *ModbusError
	if !errors.As(err, &mbErr) || mbErr.ExceptionCode != ErrCodeTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestConnectRTURejectedConfiguration(t *testing.T) {
	bridge := NewSerialBridge("/dev/ttyS1", io.Discard)
	t.Cleanup(func() { bridge.Close() })
	bridge.openPort = func(cfg *serial.Config) (io.ReadWriteCloser, error) {
		return nil, fmt.Errorf("device busy")
	}
	e := NewEngine(WithLogger(io.Discard), WithLinkDialer(bridge.Dialer()))
	t.Cleanup(func() { e.Close() })

	_, err := e.ConnectRTU(SerialSetup{BaudRate: BaudSet9600, StopBits: 1, WordLength: 8}, time.Second)
	if err == nil {
		t.Fatal("ConnectRTU should fail when the port cannot be opened")
	}
}

func TestConnectRTUUnsupportedDivisor(t *testing.T) {
	e, _ := bridgeEngine(t, func(pdu []byte) []byte { return nil })
	_, err := e.ConnectRTU(SerialSetup{BaudRate: 7, StopBits: 1, WordLength: 8}, time.Second)
	if err == nil {
		t.Fatal("ConnectRTU should fail on an unknown baud divisor")
	}
}

func TestConnectRTUWithoutDialer(t *testing.T) {
	e := NewEngine(WithLogger(io.Discard))
	t.Cleanup(func() { e.Close() })
	if _, err := e.ConnectRTU(SerialSetup{BaudRate: BaudSet9600}, time.Second); err == nil {
		t.Fatal("ConnectRTU should fail without a link dialer")
	}
}
