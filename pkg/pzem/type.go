package pzem

import "fmt"

// Protocol constants for the "read all measurements" command.
const (
	FuncReadInputRegisters byte   = 0x04
	RegisterStart          uint16 = 0x0000
	RegisterCount          uint16 = 0x000A

	// Addressing
	DefaultAddress uint8 = 0x01
	GeneralAddress uint8 = 0xF8

	RequestLength   = 8
	ResponseLength  = 25
	DataLength      = 20
	exceptionLength = 5
)

// Measurement is one decoded reading of the meter.
type Measurement struct {
	Voltage     float64 // V
	Current     float64 // A
	Power       float64 // W
	Energy      float64 // kWh
	Frequency   float64 // Hz
	PowerFactor float64
	Alarms      uint16
}

// Same line the meter firmware logs on every successful read.
func (m Measurement) String() string {
	return fmt.Sprintf(
		"V: %.1f V, I: %.3f A, P: %.1f W, E: %.3f kWh, F: %.1f Hz, PF: %.2f",
		m.Voltage, m.Current, m.Power, m.Energy, m.Frequency, m.PowerFactor,
	)
}
