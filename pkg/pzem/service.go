// Package pzem builds and parses the PZEM-004T measurement frames.
// All functions are pure and safe for concurrent use.
package pzem

import (
	"encoding/binary"
	"fmt"

	"github.com/sigurn/crc16"
)

// Reflected Modbus CRC16: poly 0xA001, init 0xFFFF.
var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// BuildRequest returns the 8 byte "read all measurements" frame for addr.
// The address is not validated here, the config layer rejects 0x00.
func BuildRequest(addr uint8) []byte {
	frame := make([]byte, RequestLength)
	frame[0] = addr
	frame[1] = FuncReadInputRegisters
	binary.BigEndian.PutUint16(frame[2:4], RegisterStart)
	binary.BigEndian.PutUint16(frame[4:6], RegisterCount)

	crc := CRC16(frame[:6])
	frame[6] = byte(crc)      // Low byte
	frame[7] = byte(crc >> 8) // High byte
	return frame
}

// ParseResponse validates length and CRC of raw and decodes the measurement.
// Header bytes are not compared against the request, see ParseResponseFor.
func ParseResponse(raw []byte) (Measurement, error) {
	if len(raw) < ResponseLength {
		return Measurement{}, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(raw))
	}

	if err := checkCRC(raw); err != nil {
		return Measurement{}, err
	}

	// Byte 0: Addr, Byte 1: Func, Byte 2: Count. Data starts at raw[3].
	return DecodeRegisters(raw[3 : 3+DataLength])
}

// ParseResponseFor is ParseResponse plus the checks that the frame answers
// a request sent to addr. Requests to the general address accept any
// responding address.
func ParseResponseFor(addr uint8, raw []byte) (Measurement, error) {
	if err := exceptionReply(raw); err != nil {
		return Measurement{}, err
	}

	m, err := ParseResponse(raw)
	if err != nil {
		return Measurement{}, err
	}

	if raw[1] != FuncReadInputRegisters {
		return Measurement{}, &HeaderError{Field: "function code", Got: raw[1], Want: FuncReadInputRegisters}
	}
	if raw[2] != DataLength {
		return Measurement{}, &HeaderError{Field: "byte count", Got: raw[2], Want: DataLength}
	}
	if addr != GeneralAddress && raw[0] != addr {
		return Measurement{}, &HeaderError{Field: "address", Got: raw[0], Want: addr}
	}
	return m, nil
}

// DecodeRegisters decodes the 20 byte register block (10 input registers).
func DecodeRegisters(data []byte) (Measurement, error) {
	if len(data) < DataLength {
		return Measurement{}, fmt.Errorf("%w: %d data bytes", ErrShortResponse, len(data))
	}

	return Measurement{
		Voltage:     float64(binary.BigEndian.Uint16(data[0:2])) * 0.1,
		Current:     float64(binary.BigEndian.Uint32(data[2:6])) * 0.001,
		Power:       float64(binary.BigEndian.Uint32(data[6:10])) * 0.1,
		Energy:      float64(binary.BigEndian.Uint32(data[10:14])) * 0.001, // Wh counter, reported as kWh
		Frequency:   float64(binary.BigEndian.Uint16(data[14:16])) * 0.1,
		PowerFactor: float64(binary.BigEndian.Uint16(data[16:18])) * 0.01,
		Alarms:      binary.BigEndian.Uint16(data[18:20]),
	}, nil
}

func checkCRC(raw []byte) error {
	n := len(raw)
	calc := CRC16(raw[:n-2])
	recv := uint16(raw[n-2]) | uint16(raw[n-1])<<8
	if calc != recv {
		return &CRCError{Calculated: calc, Received: recv}
	}
	return nil
}

// exceptionReply returns an ExceptionError if raw starts with a valid
// exception frame: addr, fc|0x80, code, crc lo, crc hi.
func exceptionReply(raw []byte) error {
	if len(raw) < exceptionLength || raw[1] != FuncReadInputRegisters|0x80 {
		return nil
	}
	if checkCRC(raw[:exceptionLength]) != nil {
		return nil
	}
	return &ExceptionError{Function: raw[1], Code: raw[2]}
}
