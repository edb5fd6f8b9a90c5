package pzem

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrShortResponse   = errors.New("response too short or timeout")
	ErrIntegrity       = errors.New("frame integrity check failed")
)

// CRCError reports a checksum mismatch. The frame must be discarded.
type CRCError struct {
	Calculated uint16
	Received   uint16
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("crc check failed: calc 0x%04X, recv 0x%04X", e.Calculated, e.Received)
}

func (e *CRCError) Unwrap() error { return ErrIntegrity }

// HeaderError reports a response header that does not answer our request.
type HeaderError struct {
	Field string
	Got   byte
	Want  byte
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("unexpected %s in response: got 0x%02X, want 0x%02X", e.Field, e.Got, e.Want)
}

func (e *HeaderError) Unwrap() error { return ErrIntegrity }

// ExceptionError is a valid Modbus exception reply from the meter.
type ExceptionError struct {
	Function byte
	Code     byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("device exception: fc=0x%02X code=0x%02X", e.Function, e.Code)
}

func (e *ExceptionError) Unwrap() error { return ErrIntegrity }

// Code is the error value reported to telemetry and callers.
type Code uint16

const (
	CodeOK              Code = 0
	CodeInvalidArgument Code = 1
	CodeTimeout         Code = 2
	CodeIntegrity       Code = 3
	CodeDeviceException Code = 4
	CodeUnknown         Code = 0xFF
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeTimeout:
		return "timeout"
	case CodeIntegrity:
		return "integrity"
	case CodeDeviceException:
		return "device_exception"
	default:
		return "unknown"
	}
}

// ErrorCode maps an error from this package onto its reported Code.
func ErrorCode(err error) Code {
	if err == nil {
		return CodeOK
	}

	var exc *ExceptionError
	switch {
	case errors.As(err, &exc):
		return CodeDeviceException
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrShortResponse):
		return CodeTimeout
	case errors.Is(err, ErrIntegrity):
		return CodeIntegrity
	}
	return CodeUnknown
}
