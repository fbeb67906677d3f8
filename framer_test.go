package modbus

import "testing"

func TestTCPFramerWrap(t *testing.T) {
	adu := tcpFramer{}.wrap(0x1234, false, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A})
	assertBytesEqual(t, []byte{
		0x12, 0x34, 0x00, 0x00, 0x00, 0x06,
		0x01, 0x03, 0x00, 0x00, 0x00, 0x0A,
	}, adu)
}

func TestTCPFramerPDULength(t *testing.T) {
	f := tcpFramer{}
	buf := f.wrap(7, false, []byte{0x01, 0x03, 0x02, 0xAB, 0xCD})
	if got := f.pduLength(buf, false); got != 5 {
		t.Errorf("pduLength = %d, want 5", got)
	}
	if !f.matchesTransaction() {
		t.Error("length prefixed frames must correlate transaction ids")
	}
}

func TestRTUFramerWrapAppendsCRC(t *testing.T) {
	f := rtuFramer{}
	adu := f.wrap(0, false, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A})
	assertBytesEqual(t, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A, 0xC5, 0xCD}, adu)
	if !f.validateFrame(adu) {
		t.Error("framer rejected its own CRC")
	}
	if f.matchesTransaction() {
		t.Error("CRC framed responses carry no transaction id")
	}
}

func TestRTUFramerPDULengthFromFunctionCode(t *testing.T) {
	f := rtuFramer{}
	// Read response: slave, function, byte count.
	if got := f.pduLength([]byte{0x01, 0x03, 0x04}, false); got != 7 {
		t.Errorf("read response pduLength = %d, want 7", got)
	}
	// Write echo is a fixed six bytes.
	if got := f.pduLength([]byte{0x01, 0x06, 0x00}, false); got != 6 {
		t.Errorf("write echo pduLength = %d, want 6", got)
	}
}

func TestLinkFramerWrapDataAndConfig(t *testing.T) {
	f := linkFramer{}
	data := f.wrap(0, false, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	assertBytesEqual(t, []byte{
		protocolModbus, commandModbusData, linkHeaderLength, 0x00,
		0x01, 0x03, 0x00, 0x00, 0x00, 0x01,
	}, data)

	cfg := f.wrap(0, true, []byte{0x00, 0x0C, HalfDuplexMode, ParityOff, 0x00, 0x01, 0x08})
	assertBytesEqual(t, []byte{
		protocolUART, commandUARTConfig, linkHeaderLength, 0x00,
		0x00, 0x0C, HalfDuplexMode, ParityOff, 0x00, 0x01, 0x08,
	}, cfg)
}

func TestLinkFramerConfigResponseLength(t *testing.T) {
	f := linkFramer{}
	if got := f.minLength(true); got != linkHeaderLength+1 {
		t.Errorf("config minLength = %d, want %d", got, linkHeaderLength+1)
	}
	ack := []byte{protocolUART, commandUARTConfigResponse, linkHeaderLength, 0x00, 0x00}
	if got := f.pduLength(ack, true); got != 1 {
		t.Errorf("config pduLength = %d, want 1", got)
	}
	if got := f.pduLength([]byte{protocolModbus, commandModbusData, 4, 0, 0x01, 0x03, 0x02}, false); got != 5 {
		t.Errorf("data pduLength = %d, want 5", got)
	}
}

func TestFcodeResponseLength(t *testing.T) {
	cases := []struct {
		fcode     uint8
		byteCount uint8
		want      int
	}{
		{FuncCodeReadCoils, 2, 5},
		{FuncCodeReadDiscreteInputs, 1, 4},
		{FuncCodeReadHoldingRegisters, 20, 23},
		{FuncCodeReadInputRegisters, 4, 7},
		{FuncCodeWriteSingleCoil, 0xFF, 6},
		{FuncCodeWriteSingleRegister, 0x00, 6},
		{FuncCodeWriteMultipleCoils, 0x00, 6},
		{FuncCodeWriteMultipleRegisters, 0x00, 6},
		{FuncCodeReadExceptionStatus, 0x55, 3},
		{FuncCodeReadFileRecord, 9, 12},
		{FuncCodeWriteFileRecord, 9, 12},
		// Exception responses are three bytes regardless of the data byte.
		{0x83, 0x02, 3},
		{0x90, 0x04, 3},
		// Unknown function codes have no known length.
		{0x2B, 0x00, 0},
		{0x00, 0x10, 0},
	}
	for _, c := range cases {
		if got := fcodeResponseLength(c.fcode, c.byteCount); got != c.want {
			t.Errorf("fcodeResponseLength(0x%02X, %d) = %d, want %d", c.fcode, c.byteCount, got, c.want)
		}
	}
}

func TestFramerFor(t *testing.T) {
	if _, ok := framerFor(TransportTCP).(tcpFramer); !ok {
		t.Error("TransportTCP should use the length prefixed framer")
	}
	if _, ok := framerFor(TransportRTUOverTCP).(rtuFramer); !ok {
		t.Error("TransportRTUOverTCP should use the CRC framer")
	}
	if _, ok := framerFor(TransportRTU).(linkFramer); !ok {
		t.Error("TransportRTU should use the link framer")
	}
}
