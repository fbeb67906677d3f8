package modbus

import (
	"encoding/binary"
	"time"
)

// File record sub-requests are 7 bytes each; the reference type is fixed to
// 6 by the Modbus specification.
const (
	fileReferenceType    = 6
	fileSubRequestLength = 7
)

// FileRecord describes one sub-request of a file record operation: a record
// of RecordLength registers starting at RecordNumber within FileNumber.
// Data is used only by WriteFileRecords and must hold RecordLength words.
type FileRecord struct {
	FileNumber   uint16
	RecordNumber uint16
	RecordLength uint8
	Data         []uint16
}

func appendReadFileSubRequest(dst []byte, r FileRecord) []byte {
	return append(dst,
		fileReferenceType,
		byte(r.FileNumber>>8), byte(r.FileNumber),
		byte(r.RecordNumber>>8), byte(r.RecordNumber),
		0, r.RecordLength)
}

func appendWriteFileSubRequest(dst []byte, r FileRecord) []byte {
	dst = appendReadFileSubRequest(dst, r)
	for _, word := range r.Data {
		dst = append(dst, byte(word>>8), byte(word))
	}
	return dst
}

// ReadFileRecords reads one or more file records in a single request and
// returns the register words of each record in request order. The expected
// response length is the sum of the declared record lengths and is used to
// validate the response.
func (h *Handle) ReadFileRecords(slaveID uint8, records []FileRecord, timeout time.Duration) ([][]uint16, error) {
	sub := make([]byte, 0, len(records)*fileSubRequestLength)
	expected := 0
	for _, r := range records {
		sub = appendReadFileSubRequest(sub, r)
		// Each sub-response carries a length byte and the reference type
		// ahead of the record data.
		expected += int(r.RecordLength)*2 + 2
	}
	if len(sub) >= maxPDULength-pduHeaderLength {
		return nil, localError(ErrCodeMessageSendFail)
	}

	payload := make([]byte, 0, 1+len(sub))
	payload = append(payload, byte(len(sub)))
	payload = append(payload, sub...)
	resp, err := h.request(slaveID, FuncCodeReadFileRecord, payload, timeout)
	if err != nil {
		return nil, err
	}

	data := h.dataPayload(resp, expected)
	out := make([][]uint16, 0, len(records))
	idx := 0
	for range records {
		if idx+2 > len(data) {
			return nil, &ModbusError{FunctionCode: FuncCodeReadFileRecord, ExceptionCode: ErrCodeInvalidResponse}
		}
		subLen := int(data[idx])
		if data[idx+1] != fileReferenceType || subLen < 1 || idx+1+subLen > len(data) {
			return nil, &ModbusError{FunctionCode: FuncCodeReadFileRecord, ExceptionCode: ErrCodeInvalidResponse}
		}
		words := make([]uint16, (subLen-1)/2)
		for i := range words {
			words[i] = binary.BigEndian.Uint16(data[idx+2+2*i : idx+4+2*i])
		}
		out = append(out, words)
		idx += 1 + subLen
	}
	return out, nil
}

// WriteFileRecords writes one or more file records in a single request. The
// device echoes the request; a non-exception response with the right
// function code is treated as success.
func (h *Handle) WriteFileRecords(slaveID uint8, records []FileRecord, timeout time.Duration) error {
	sub := make([]byte, 0, len(records)*fileSubRequestLength)
	for _, r := range records {
		if len(r.Data) != int(r.RecordLength) {
			return localError(ErrCodeMessageSendFail)
		}
		sub = appendWriteFileSubRequest(sub, r)
	}
	if len(sub) >= maxPDULength-pduHeaderLength {
		return localError(ErrCodeMessageSendFail)
	}

	payload := make([]byte, 0, 1+len(sub))
	payload = append(payload, byte(len(sub)))
	payload = append(payload, sub...)
	_, err := h.request(slaveID, FuncCodeWriteFileRecord, payload, timeout)
	return err
}
