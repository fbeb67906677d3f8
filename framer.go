package modbus

import "encoding/binary"

// framer is the closed set of wire encodings. Each implementation knows how
// to wrap an outgoing PDU into its ADU, how many bytes must be buffered
// before the frame length can be evaluated, and where the PDU sits inside a
// complete frame.
type framer interface {
	// wrap builds the ADU for an outgoing PDU. txnID is used only by the
	// length prefixed encoding; cfg selects the serial configuration header
	// on the link encoding.
	wrap(txnID uint16, cfg bool, pdu []byte) []byte
	// minLength is the number of buffered bytes required before pduLength
	// may be called.
	minLength(cfg bool) int
	// pduLength reports the PDU length declared by the buffered frame.
	pduLength(buf []byte, cfg bool) int
	headerLength() int
	footerLength() int
	// matchesTransaction reports whether responses carry a transaction id
	// that must be correlated against the outstanding request.
	matchesTransaction() bool
	// validateFrame is the integrity check over one complete frame.
	validateFrame(frame []byte) bool
}

func framerFor(kind TransportKind) framer {
	switch kind {
	case TransportTCP:
		return tcpFramer{}
	case TransportRTUOverTCP:
		return rtuFramer{}
	default:
		return linkFramer{}
	}
}

// tcpFramer is the length prefixed encoding:
// [txnHi txnLo 0x00 0x00 lenHi lenLo | slave function payload...].
// The length field counts the bytes following it.
type tcpFramer struct{}

func (tcpFramer) wrap(txnID uint16, _ bool, pdu []byte) []byte {
	adu := make([]byte, tcpHeaderLength+len(pdu))
	binary.BigEndian.PutUint16(adu[0:2], txnID)
	binary.BigEndian.PutUint16(adu[4:6], uint16(len(pdu)))
	copy(adu[tcpHeaderLength:], pdu)
	return adu
}

func (tcpFramer) minLength(bool) int { return tcpHeaderLength + pduHeaderLength }

func (tcpFramer) pduLength(buf []byte, _ bool) int {
	return int(binary.BigEndian.Uint16(buf[4:6]))
}

func (tcpFramer) headerLength() int        { return tcpHeaderLength }
func (tcpFramer) footerLength() int        { return 0 }
func (tcpFramer) matchesTransaction() bool { return true }
func (tcpFramer) validateFrame([]byte) bool { return true }

// rtuFramer is the CRC framed encoding: [slave function payload... crcLo
// crcHi]. There is no header, so the frame length comes from the function
// code table.
type rtuFramer struct{}

func (rtuFramer) wrap(_ uint16, _ bool, pdu []byte) []byte {
	adu := make([]byte, len(pdu), len(pdu)+crcFooterLength)
	copy(adu, pdu)
	return AddCRC(adu)
}

func (rtuFramer) minLength(bool) int { return pduHeaderLength + crcFooterLength }

func (rtuFramer) pduLength(buf []byte, _ bool) int {
	return fcodeResponseLength(buf[1], buf[2])
}

func (rtuFramer) headerLength() int        { return 0 }
func (rtuFramer) footerLength() int        { return crcFooterLength }
func (rtuFramer) matchesTransaction() bool { return false }

func (rtuFramer) validateFrame(frame []byte) bool { return ValidateCRC(frame) }

// linkFramer is the intercore encoding: [protocol command headerLen
// reserved | slave function payload...]. The CRC for the physical line is
// owned by the far end. A serial configuration exchange uses the UART
// protocol tag and expects a one byte acknowledgement.
type linkFramer struct{}

func (linkFramer) wrap(_ uint16, cfg bool, pdu []byte) []byte {
	adu := make([]byte, linkHeaderLength+len(pdu))
	if cfg {
		adu[linkProtocolOffset] = protocolUART
		adu[linkCommandOffset] = commandUARTConfig
	} else {
		adu[linkProtocolOffset] = protocolModbus
		adu[linkCommandOffset] = commandModbusData
	}
	adu[linkHeaderLengthOffset] = linkHeaderLength
	copy(adu[linkHeaderLength:], pdu)
	return adu
}

func (linkFramer) minLength(cfg bool) int {
	if cfg {
		return linkHeaderLength + uartConfigResponseLength
	}
	return linkHeaderLength + pduHeaderLength
}

func (linkFramer) pduLength(buf []byte, cfg bool) int {
	if cfg {
		return uartConfigResponseLength
	}
	return fcodeResponseLength(buf[linkHeaderLength+1], buf[linkHeaderLength+2])
}

func (linkFramer) headerLength() int        { return linkHeaderLength }
func (linkFramer) footerLength() int        { return 0 }
func (linkFramer) matchesTransaction() bool { return false }
func (linkFramer) validateFrame([]byte) bool { return true }

// fcodeResponseLength reports the expected response PDU length (slave +
// function + data) for a function code, using the declared byte count where
// the function carries one. Unknown function codes report zero.
func fcodeResponseLength(fcode, byteCount uint8) int {
	if fcode > exceptionBit && fcode <= exceptionBit+exceptionFcodeRange {
		// Exception responses are always three bytes.
		return errorCodeLength
	}
	switch fcode {
	case FuncCodeReadCoils, FuncCodeReadDiscreteInputs,
		FuncCodeReadHoldingRegisters, FuncCodeReadInputRegisters,
		FuncCodeReadFileRecord, FuncCodeWriteFileRecord:
		return pduHeaderLength + int(byteCount)
	case FuncCodeWriteSingleCoil, FuncCodeWriteSingleRegister,
		FuncCodeWriteMultipleCoils, FuncCodeWriteMultipleRegisters:
		return pduHeaderLength + 3
	case FuncCodeReadExceptionStatus:
		return pduHeaderLength
	default:
		return 0
	}
}
