package port_reader

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/NotCoffee418/pzem_monitor/pkg/aggregator"
	"github.com/NotCoffee418/pzem_monitor/pkg/interpreter"
	"github.com/NotCoffee418/pzem_monitor/pkg/pzem"
)

// Channel is the byte-oriented duplex link to the meter.
type Channel interface {
	Write(b []byte) (int, error)
	// Read returns up to max bytes received before timeout expires.
	Read(max int, timeout time.Duration) ([]byte, error)
	// FlushInput discards bytes left over from a previous cycle.
	FlushInput() error
}

// Meter performs one request/response cycle.
type Meter interface {
	ReadMeasurement(ctx context.Context) (pzem.Measurement, error)
}

// StreamChannel adapts a blocking serial port to Channel.
type StreamChannel struct {
	port    io.ReadWriteCloser
	chunks  chan []byte
	pending []byte
	err     error // set before chunks is closed

	closed    chan struct{}
	closeOnce sync.Once
}

type SerialMeter struct {
	channel Channel
	addr    uint8
	timeout time.Duration
}

type PzemReader struct {
	meter     Meter
	interval  time.Duration
	maxErrors int

	// ring is only touched while holding readingMutex
	ring          *aggregator.Ring
	latestReading *interpreter.MeterReading
	readingMutex  sync.RWMutex

	stop       context.CancelFunc
	done       chan struct{}
	dispatched chan struct{}
}
