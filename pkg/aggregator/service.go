package aggregator

import (
	"fmt"

	"github.com/NotCoffee418/pzem_monitor/pkg/pzem"
)

// New allocates a ring with room for capacity samples.
func New(capacity int) (*Ring, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: sample capacity %d", pzem.ErrInvalidArgument, capacity)
	}
	return &Ring{samples: make([]pzem.Measurement, capacity)}, nil
}

// Push stores m, overwriting the oldest sample once the ring is full.
func (r *Ring) Push(m pzem.Measurement) {
	r.samples[r.cursor] = m
	r.cursor++
	if r.cursor == len(r.samples) {
		r.cursor = 0
		r.full = true
	}
}

func (r *Ring) Capacity() int {
	return len(r.samples)
}

// Count returns the number of populated slots.
func (r *Ring) Count() int {
	if r.full {
		return len(r.samples)
	}
	return r.cursor
}

// Average returns the per-field mean over the populated slots.
// With no samples it returns the zero Measurement; check Count to tell
// "no data yet" apart from a real reading.
// Alarms are OR-ed across the window.
func (r *Ring) Average() pzem.Measurement {
	count := r.Count()

	var sum pzem.Measurement
	for _, s := range r.samples[:count] {
		sum.Voltage += s.Voltage
		sum.Current += s.Current
		sum.Power += s.Power
		sum.Energy += s.Energy
		sum.Frequency += s.Frequency
		sum.PowerFactor += s.PowerFactor
		sum.Alarms |= s.Alarms
	}

	// Avoid division by zero
	n := float64(max(count, 1))
	return pzem.Measurement{
		Voltage:     sum.Voltage / n,
		Current:     sum.Current / n,
		Power:       sum.Power / n,
		Energy:      sum.Energy / n,
		Frequency:   sum.Frequency / n,
		PowerFactor: sum.PowerFactor / n,
		Alarms:      sum.Alarms,
	}
}
