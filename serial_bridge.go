package modbus

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	serial "github.com/hootrhino/goserial"
)

// baudFromDivisor maps the divisor carried in a serial configuration
// message to the real line rate.
var baudFromDivisor = map[uint16]int{
	BaudSet300:    300,
	BaudSet600:    600,
	BaudSet1200:   1200,
	BaudSet2400:   2400,
	BaudSet4800:   4800,
	BaudSet9600:   9600,
	BaudSet14400:  14400,
	BaudSet19200:  19200,
	BaudSet38400:  38400,
	BaudSet57600:  57600,
	BaudSet115200: 115200,
}

// SerialBridge is the far end of the intercore link: it applies serial
// configuration messages to a local UART and relays Modbus data frames,
// appending the CRC on the way out and validating it on the way back. It
// plays the role the secondary core firmware plays on the real device.
type SerialBridge struct {
	logger      io.Writer
	device      string
	readTimeout time.Duration

	mu       sync.Mutex
	port     io.ReadWriteCloser
	openPort func(*serial.Config) (io.ReadWriteCloser, error)
}

// NewSerialBridge creates a bridge driving the named serial device. A nil
// logger defaults to an info level SimpleLogger on stdout.
func NewSerialBridge(device string, logger io.Writer) *SerialBridge {
	if logger == nil {
		logger = NewSimpleLogger(nil, LevelInfo, "bridge")
	}
	return &SerialBridge{
		logger:      logger,
		device:      device,
		readTimeout: time.Second,
		openPort: func(cfg *serial.Config) (io.ReadWriteCloser, error) {
			return serial.Open(cfg)
		},
	}
}

// Dialer returns a link dialer suitable for WithLinkDialer. Each call opens
// a fresh in-process channel served by this bridge; message boundaries are
// preserved per write, like the intercore mailbox.
func (b *SerialBridge) Dialer() func() (io.ReadWriteCloser, error) {
	return func() (io.ReadWriteCloser, error) {
		near, far := net.Pipe()
		go b.serve(far)
		return near, nil
	}
}

// Close releases the serial port if one is open.
func (b *SerialBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

func (b *SerialBridge) serve(link net.Conn) {
	defer link.Close()
	buf := make([]byte, linkHeaderLength+maxPDULength)
	for {
		n, err := link.Read(buf)
		if err != nil {
			return
		}
		msg := buf[:n]
		if len(msg) < linkHeaderLength {
			fmt.Fprintf(b.logger, "WARNING: link message of %d bytes too short, ignored", len(msg))
			continue
		}
		hdrLen := int(msg[linkHeaderLengthOffset])
		if hdrLen < linkHeaderLength || hdrLen > len(msg) {
			fmt.Fprintf(b.logger, "WARNING: bad link header length %d, message ignored", hdrLen)
			continue
		}
		body := msg[hdrLen:]

		switch {
		case msg[linkProtocolOffset] == protocolUART && msg[linkCommandOffset] == commandUARTConfig:
			ack := byte(0)
			if err := b.configurePort(body); err != nil {
				fmt.Fprintf(b.logger, "ERROR: serial configuration failed: %v", err)
				ack = 1
			}
			link.Write([]byte{protocolUART, commandUARTConfigResponse, linkHeaderLength, 0, ack})

		case msg[linkProtocolOffset] == protocolModbus && msg[linkCommandOffset] == commandModbusData:
			resp, err := b.exchange(body)
			if err != nil {
				// No reply; the master's timeout covers it.
				fmt.Fprintf(b.logger, "ERROR: serial exchange failed: %v", err)
				continue
			}
			out := make([]byte, 0, linkHeaderLength+len(resp))
			out = append(out, protocolModbus, commandModbusData, linkHeaderLength, 0)
			out = append(out, resp...)
			link.Write(out)

		default:
			fmt.Fprintf(b.logger, "WARNING: unknown link message protocol %d command %d",
				msg[linkProtocolOffset], msg[linkCommandOffset])
		}
	}
}

// configurePort opens (or reopens) the serial port with the parameters of
// a configuration message.
func (b *SerialBridge) configurePort(cfg []byte) error {
	if len(cfg) < uartConfigMessageLength {
		return fmt.Errorf("configuration message too short: %d bytes", len(cfg))
	}
	divisor := uint16(cfg[baudRateOffsetUpper])<<8 | uint16(cfg[baudRateOffsetLower])
	baud, ok := baudFromDivisor[divisor]
	if !ok {
		return fmt.Errorf("unsupported baud divisor %d", divisor)
	}
	parity := "N"
	if cfg[parityStateOffset] == ParityOn {
		if cfg[parityModeOffset] == ParityEven {
			parity = "E"
		} else {
			parity = "O"
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port != nil {
		b.port.Close()
		b.port = nil
	}
	port, err := b.openPort(&serial.Config{
		Address:  b.device,
		BaudRate: baud,
		DataBits: int(cfg[wordLengthOffset]),
		StopBits: int(cfg[stopBitsOffset]),
		Parity:   parity,
		Timeout:  b.readTimeout,
	})
	if err != nil {
		return err
	}
	b.port = port
	return nil
}

// exchange writes one CRC framed request to the UART and returns the
// response with its CRC stripped.
func (b *SerialBridge) exchange(pdu []byte) ([]byte, error) {
	b.mu.Lock()
	port := b.port
	b.mu.Unlock()
	if port == nil {
		return nil, fmt.Errorf("serial port not configured")
	}

	frame := AddCRC(append([]byte(nil), pdu...))
	if _, err := port.Write(frame); err != nil {
		return nil, err
	}

	resp := make([]byte, maxPDULength+crcFooterLength)
	n, err := port.Read(resp)
	if err != nil {
		return nil, err
	}
	if n <= crcFooterLength {
		return nil, fmt.Errorf("serial response of %d bytes too short", n)
	}
	if !ValidateCRC(resp[:n]) {
		return nil, fmt.Errorf("CRC check failed on serial response")
	}
	return resp[:n-crcFooterLength], nil
}
