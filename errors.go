package modbus

import "fmt"

// ErrorCode is a Modbus exception code or one of the implementation
// specific codes this engine reports to callers. Implementation codes are
// never sent on the wire.
type ErrorCode uint8

const (
	ErrCodeIllegalFunction        ErrorCode = 1
	ErrCodeIllegalDataAddress     ErrorCode = 2
	ErrCodeIllegalDataValue       ErrorCode = 3
	ErrCodeSlaveDeviceFailure     ErrorCode = 4
	ErrCodeAcknowledge            ErrorCode = 5
	ErrCodeSlaveDeviceBusy        ErrorCode = 6
	ErrCodeNegativeAcknowledge    ErrorCode = 7
	ErrCodeMemoryParityError      ErrorCode = 8
	ErrCodeGatewayPathUnavailable ErrorCode = 10
	ErrCodeGatewayTargetFailed    ErrorCode = 11
	ErrCodeTimeout                ErrorCode = 20
	ErrCodeMessageSendFail        ErrorCode = 21
	ErrCodeHandleInUse            ErrorCode = 22
	ErrCodeInvalidResponse        ErrorCode = 23
	ErrCodeDeviceDisconnected     ErrorCode = 24
)

// String returns the catalog description for the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeIllegalFunction:
		return "Illegal function"
	case ErrCodeIllegalDataAddress:
		return "Illegal data address"
	case ErrCodeIllegalDataValue:
		return "Illegal data value"
	case ErrCodeSlaveDeviceFailure:
		return "Slave device failure"
	case ErrCodeAcknowledge:
		return "Acknowledge"
	case ErrCodeSlaveDeviceBusy:
		return "Slave device busy"
	case ErrCodeNegativeAcknowledge:
		return "Negative acknowledge"
	case ErrCodeMemoryParityError:
		return "Memory parity error"
	case ErrCodeGatewayPathUnavailable:
		return "Gateway path unavailable"
	case ErrCodeGatewayTargetFailed:
		return "Gateway target device failed to respond"
	case ErrCodeTimeout:
		return "Timeout - slave device failed to respond"
	case ErrCodeMessageSendFail:
		return "Message has failed to send"
	case ErrCodeHandleInUse:
		return "Handle in use"
	case ErrCodeInvalidResponse:
		return "Wrong function code returned from device"
	case ErrCodeDeviceDisconnected:
		return "Device disconnected - reconnect required"
	default:
		return "Unknown exception"
	}
}

// ModbusError is the error type returned by handle operations, covering
// both exceptions reported by the remote device and local failures such as
// timeouts or a busy handle. FunctionCode is zero for failures not tied to
// a specific request.
type ModbusError struct {
	FunctionCode  uint8
	ExceptionCode ErrorCode
}

func (e *ModbusError) Error() string {
	if e.FunctionCode != 0 {
		return fmt.Sprintf("modbus: function %02X: %s (code %d)", e.FunctionCode, e.ExceptionCode, e.ExceptionCode)
	}
	return fmt.Sprintf("modbus: %s (code %d)", e.ExceptionCode, e.ExceptionCode)
}

// IsException reports whether the error carries a standard Modbus exception
// rather than an implementation specific code.
func (e *ModbusError) IsException() bool {
	return e.ExceptionCode >= ErrCodeIllegalFunction && e.ExceptionCode <= ErrCodeGatewayTargetFailed
}

func localError(code ErrorCode) *ModbusError {
	return &ModbusError{ExceptionCode: code}
}
