package modbus

// Modbus function codes supported by the engine.
const (
	FuncCodeReadCoils              uint8 = 1
	FuncCodeReadDiscreteInputs     uint8 = 2
	FuncCodeReadHoldingRegisters   uint8 = 3
	FuncCodeReadInputRegisters     uint8 = 4
	FuncCodeWriteSingleCoil        uint8 = 5
	FuncCodeWriteSingleRegister    uint8 = 6
	FuncCodeReadExceptionStatus    uint8 = 7
	FuncCodeWriteMultipleCoils     uint8 = 15
	FuncCodeWriteMultipleRegisters uint8 = 16
	FuncCodeReadFileRecord         uint8 = 20
	FuncCodeWriteFileRecord        uint8 = 21
)

// PDU layout. The PDU carried through this engine keeps the slave address
// in front of the function code, so the three byte header is slave address,
// function code and byte count (or exception code).
const (
	maxPDULength    = 254
	pduHeaderLength = 3
	errorCodeLength = 3
	crcFooterLength = 2

	tcpHeaderLength  = 6
	linkHeaderLength = 4

	exceptionBit        = 0x80
	exceptionFcodeRange = 32
	writeEchoStart      = 2
	writeEchoLength     = 4
)

// Intercore link message header: [protocol, command, headerLength, reserved].
const (
	linkProtocolOffset     = 0
	linkCommandOffset      = 1
	linkHeaderLengthOffset = 2

	protocolUART   uint8 = 1
	protocolModbus uint8 = 2

	commandUARTConfig         uint8 = 1
	commandUARTConfigResponse uint8 = 2
	commandModbusData         uint8 = 1

	uartConfigMessageLength  = 7
	uartConfigResponseLength = 1
)

// Offsets into the serial configuration message body.
const (
	baudRateOffsetUpper = 0
	baudRateOffsetLower = 1
	duplexModeOffset    = 2
	parityStateOffset   = 3
	parityModeOffset    = 4
	stopBitsOffset      = 5
	wordLengthOffset    = 6
)

// Baud rate divisors accepted by the serial configuration message.
const (
	BaudSet300    uint16 = 384
	BaudSet600    uint16 = 192
	BaudSet1200   uint16 = 96
	BaudSet2400   uint16 = 48
	BaudSet4800   uint16 = 24
	BaudSet9600   uint16 = 12
	BaudSet14400  uint16 = 8
	BaudSet19200  uint16 = 6
	BaudSet38400  uint16 = 3
	BaudSet57600  uint16 = 2
	BaudSet115200 uint16 = 1
)

// Line discipline settings for SerialSetup.
const (
	FullDuplexMode uint8 = 0
	HalfDuplexMode uint8 = 1

	ParityOff uint8 = 0
	ParityOn  uint8 = 1

	ParityOdd  uint8 = 0
	ParityEven uint8 = 1
)

// SerialSetup carries the UART parameters transmitted to the far end of the
// intercore link when an RTU handle is opened. BaudRate is a divisor, see
// the BaudSet constants.
type SerialSetup struct {
	BaudRate    uint16
	DuplexMode  uint8
	ParityMode  uint8
	ParityState uint8
	StopBits    uint8
	WordLength  uint8
}

// TransportKind selects the wire encoding used by a handle.
type TransportKind int

const (
	// TransportTCP prefixes each PDU with a 6 byte header carrying the
	// transaction id and payload length.
	TransportTCP TransportKind = iota
	// TransportRTUOverTCP sends CRC framed RTU messages over a stream
	// socket.
	TransportRTUOverTCP
	// TransportRTU sends PDUs over the intercore link behind a 4 byte
	// local header; the far end owns the CRC.
	TransportRTU
)

func (k TransportKind) String() string {
	switch k {
	case TransportTCP:
		return "tcp"
	case TransportRTUOverTCP:
		return "rtu-over-tcp"
	case TransportRTU:
		return "rtu"
	default:
		return "unknown"
	}
}
