package gateway

import (
	"io"
	"sync"
	"time"
)

// registerClient is the part of modbus.Client the meter uses.
type registerClient interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
}

// Meter reads a PZEM-004T sitting behind a Modbus TCP to RTU gateway.
type Meter struct {
	address string
	slaveID byte
	timeout time.Duration

	// Ping the gateway host before (re)connecting
	PingBeforeConnect bool

	mu     sync.Mutex
	client registerClient
	conn   io.Closer

	// swapped in tests
	connect func() (registerClient, io.Closer, error)
	ping    func(host string) (bool, time.Duration, error)
}
