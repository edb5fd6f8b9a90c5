package interpreter

import (
	"encoding/json"
	"time"

	"github.com/NotCoffee418/pzem_monitor/pkg/pzem"
)

// MeterReading is the rolling average as sent to API and websocket clients.
type MeterReading struct {
	Timestamp   string `json:"timestamp"`
	SampleCount int    `json:"sample_count"`

	VoltageV    float64 `json:"voltage_v"`
	CurrentA    float64 `json:"current_a"`
	PowerW      float64 `json:"power_w"`
	EnergyKWH   float64 `json:"energy_kwh"`
	FrequencyHz float64 `json:"frequency_hz"`
	PowerFactor float64 `json:"power_factor"`
	Alarms      uint16  `json:"alarms"`
}

func NewMeterReading(avg pzem.Measurement, sampleCount int, at time.Time) *MeterReading {
	return &MeterReading{
		Timestamp:   at.Format(time.RFC3339),
		SampleCount: sampleCount,
		VoltageV:    avg.Voltage,
		CurrentA:    avg.Current,
		PowerW:      avg.Power,
		EnergyKWH:   avg.Energy,
		FrequencyHz: avg.Frequency,
		PowerFactor: avg.PowerFactor,
		Alarms:      avg.Alarms,
	}
}

func (r *MeterReading) Measurement() pzem.Measurement {
	return pzem.Measurement{
		Voltage:     r.VoltageV,
		Current:     r.CurrentA,
		Power:       r.PowerW,
		Energy:      r.EnergyKWH,
		Frequency:   r.FrequencyHz,
		PowerFactor: r.PowerFactor,
		Alarms:      r.Alarms,
	}
}

func (r *MeterReading) ToJsonBytes() []byte {
	b, _ := json.Marshal(r)
	return b
}

// Returns nil if b is not a MeterReading.
func MeterReadingFromJsonBytes(b []byte) *MeterReading {
	var r MeterReading
	if err := json.Unmarshal(b, &r); err != nil || r.Timestamp == "" {
		return nil
	}
	return &r
}
