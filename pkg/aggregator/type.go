package aggregator

import "github.com/NotCoffee418/pzem_monitor/pkg/pzem"

// Ring keeps the last N measurements for a rolling average.
// Not safe for concurrent use.
type Ring struct {
	samples []pzem.Measurement
	cursor  int
	full    bool
}
