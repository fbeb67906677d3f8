package modbus

import (
	"encoding/binary"
	"time"
)

// request sends slave + function + payload as one PDU and validates the
// response function code. A response with the exception bit set is surfaced
// as a ModbusError carrying the device's exception code; any other function
// code mismatch reports InvalidResponse.
func (h *Handle) request(slaveID, funcCode uint8, payload []byte, timeout time.Duration) ([]byte, error) {
	pdu := make([]byte, 2+len(payload))
	pdu[0] = slaveID
	pdu[1] = funcCode
	copy(pdu[2:], payload)

	resp, err := h.transact(pdu, false, timeout)
	if err != nil {
		return nil, err
	}
	if len(resp) < 2 {
		return nil, &ModbusError{FunctionCode: funcCode, ExceptionCode: ErrCodeInvalidResponse}
	}
	if resp[1]&exceptionBit != 0 {
		var code ErrorCode
		if len(resp) > 2 {
			code = ErrorCode(resp[2])
		}
		return nil, &ModbusError{FunctionCode: resp[1] &^ uint8(exceptionBit), ExceptionCode: code}
	}
	if resp[1] != funcCode {
		h.logf("ERROR: wrong function code returned: want %02X, got %02X", funcCode, resp[1])
		return nil, &ModbusError{FunctionCode: funcCode, ExceptionCode: ErrCodeInvalidResponse}
	}
	return resp, nil
}

func addressQuantity(address, quantity uint16) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:2], address)
	binary.BigEndian.PutUint16(payload[2:4], quantity)
	return payload
}

// dataPayload returns the bytes after the PDU header, warning when the
// declared byte count disagrees with what arrived.
func (h *Handle) dataPayload(resp []byte, expected int) []byte {
	if len(resp) < pduHeaderLength {
		return nil
	}
	data := resp[pduHeaderLength:]
	if len(data) != expected {
		h.logf("WARNING: got %d data bytes when expecting %d", len(data), expected)
	}
	return data
}

func (h *Handle) readBits(funcCode, slaveID uint8, address, quantity uint16, timeout time.Duration) ([]bool, error) {
	resp, err := h.request(slaveID, funcCode, addressQuantity(address, quantity), timeout)
	if err != nil {
		return nil, err
	}
	data := h.dataPayload(resp, (int(quantity)+7)/8)
	bits := make([]bool, quantity)
	for i := range bits {
		byteIndex := i / 8
		if byteIndex < len(data) {
			bits[i] = data[byteIndex]&(1<<uint(i%8)) != 0
		}
	}
	return bits, nil
}

func (h *Handle) readRegisters(funcCode, slaveID uint8, address, quantity uint16, timeout time.Duration) ([]uint16, error) {
	resp, err := h.request(slaveID, funcCode, addressQuantity(address, quantity), timeout)
	if err != nil {
		return nil, err
	}
	data := h.dataPayload(resp, int(quantity)*2)
	count := len(data) / 2
	if count > int(quantity) {
		count = int(quantity)
	}
	registers := make([]uint16, count)
	for i := range registers {
		registers[i] = binary.BigEndian.Uint16(data[2*i : 2*i+2])
	}
	return registers, nil
}

// ReadCoils reads quantity coils starting at address. Bits are decoded LSB
// first: result[0] is the lowest bit of the first data byte.
func (h *Handle) ReadCoils(slaveID uint8, address, quantity uint16, timeout time.Duration) ([]bool, error) {
	return h.readBits(FuncCodeReadCoils, slaveID, address, quantity, timeout)
}

// ReadDiscreteInputs reads quantity discrete inputs starting at address.
func (h *Handle) ReadDiscreteInputs(slaveID uint8, address, quantity uint16, timeout time.Duration) ([]bool, error) {
	return h.readBits(FuncCodeReadDiscreteInputs, slaveID, address, quantity, timeout)
}

// ReadHoldingRegisters reads quantity holding registers starting at
// address, decoded big endian.
func (h *Handle) ReadHoldingRegisters(slaveID uint8, address, quantity uint16, timeout time.Duration) ([]uint16, error) {
	return h.readRegisters(FuncCodeReadHoldingRegisters, slaveID, address, quantity, timeout)
}

// ReadInputRegisters reads quantity input registers starting at address.
func (h *Handle) ReadInputRegisters(slaveID uint8, address, quantity uint16, timeout time.Duration) ([]uint16, error) {
	return h.readRegisters(FuncCodeReadInputRegisters, slaveID, address, quantity, timeout)
}

// checkWriteEcho validates the four echoed bytes of a write response
// against the requested address and value/quantity.
func (h *Handle) checkWriteEcho(funcCode uint8, resp []byte, address, value uint16) error {
	if len(resp) < writeEchoStart+writeEchoLength {
		return &ModbusError{FunctionCode: funcCode, ExceptionCode: ErrCodeInvalidResponse}
	}
	echoAddress := binary.BigEndian.Uint16(resp[writeEchoStart : writeEchoStart+2])
	echoValue := binary.BigEndian.Uint16(resp[writeEchoStart+2 : writeEchoStart+4])
	if echoAddress != address || echoValue != value {
		h.logf("ERROR: write echo mismatch: sent (%d, 0x%04X), got (%d, 0x%04X)",
			address, value, echoAddress, echoValue)
		return &ModbusError{FunctionCode: funcCode, ExceptionCode: ErrCodeInvalidResponse}
	}
	return nil
}

// WriteSingleCoil writes one coil, sending 0xFF00 for on and 0x0000 for
// off, and validates the echoed response.
func (h *Handle) WriteSingleCoil(slaveID uint8, address uint16, value bool, timeout time.Duration) error {
	var v uint16
	if value {
		v = 0xFF00
	}
	resp, err := h.request(slaveID, FuncCodeWriteSingleCoil, addressQuantity(address, v), timeout)
	if err != nil {
		return err
	}
	return h.checkWriteEcho(FuncCodeWriteSingleCoil, resp, address, v)
}

// WriteSingleRegister writes one holding register and validates the echoed
// response.
func (h *Handle) WriteSingleRegister(slaveID uint8, address, value uint16, timeout time.Duration) error {
	resp, err := h.request(slaveID, FuncCodeWriteSingleRegister, addressQuantity(address, value), timeout)
	if err != nil {
		return err
	}
	return h.checkWriteEcho(FuncCodeWriteSingleRegister, resp, address, value)
}

// WriteMultipleCoils writes len(values) coils starting at address, packed
// LSB first.
func (h *Handle) WriteMultipleCoils(slaveID uint8, address uint16, values []bool, timeout time.Duration) error {
	quantity := uint16(len(values))
	byteCount := (len(values) + 7) / 8
	payload := make([]byte, 5+byteCount)
	binary.BigEndian.PutUint16(payload[0:2], address)
	binary.BigEndian.PutUint16(payload[2:4], quantity)
	payload[4] = byte(byteCount)
	for i, v := range values {
		if v {
			payload[5+i/8] |= 1 << uint(i%8)
		}
	}
	resp, err := h.request(slaveID, FuncCodeWriteMultipleCoils, payload, timeout)
	if err != nil {
		return err
	}
	return h.checkWriteEcho(FuncCodeWriteMultipleCoils, resp, address, quantity)
}

// WriteMultipleRegisters writes len(values) holding registers starting at
// address, encoded big endian.
func (h *Handle) WriteMultipleRegisters(slaveID uint8, address uint16, values []uint16, timeout time.Duration) error {
	quantity := uint16(len(values))
	payload := make([]byte, 5+2*len(values))
	binary.BigEndian.PutUint16(payload[0:2], address)
	binary.BigEndian.PutUint16(payload[2:4], quantity)
	payload[4] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(payload[5+2*i:7+2*i], v)
	}
	resp, err := h.request(slaveID, FuncCodeWriteMultipleRegisters, payload, timeout)
	if err != nil {
		return err
	}
	return h.checkWriteEcho(FuncCodeWriteMultipleRegisters, resp, address, quantity)
}

// ReadExceptionStatus reads the device's exception status byte.
func (h *Handle) ReadExceptionStatus(slaveID uint8, timeout time.Duration) (uint8, error) {
	resp, err := h.request(slaveID, FuncCodeReadExceptionStatus, nil, timeout)
	if err != nil {
		return 0, err
	}
	if len(resp) < pduHeaderLength {
		return 0, &ModbusError{FunctionCode: FuncCodeReadExceptionStatus, ExceptionCode: ErrCodeInvalidResponse}
	}
	return resp[2], nil
}
