package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/NotCoffee418/pzem_monitor/pkg/pzem"
	"github.com/goburrow/modbus"
	probing "github.com/prometheus-community/pro-bing"
	log "github.com/sirupsen/logrus"
)

var ErrGatewayUnreachable = errors.New("gateway unreachable")

// NewMeter creates a gateway meter for the device at slaveID.
// address is host:port of the gateway. No connection is made until the first read.
func NewMeter(address string, slaveID uint8, timeout time.Duration) *Meter {
	m := &Meter{
		address:           address,
		slaveID:           slaveID,
		timeout:           timeout,
		PingBeforeConnect: true,
		ping:              ping,
	}
	m.connect = m.dial
	return m
}

// ReadMeasurement reads the 10 measurement input registers in one request.
// A failed read drops the connection, the next call reconnects.
func (m *Meter) ReadMeasurement(ctx context.Context) (pzem.Measurement, error) {
	if err := ctx.Err(); err != nil {
		return pzem.Measurement{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		if err := m.open(); err != nil {
			return pzem.Measurement{}, err
		}
	}

	data, err := m.client.ReadInputRegisters(pzem.RegisterStart, pzem.RegisterCount)
	if err != nil {
		m.closeLocked()
		return pzem.Measurement{}, translateError(err)
	}

	return pzem.DecodeRegisters(data)
}

func (m *Meter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *Meter) open() error {
	if m.PingBeforeConnect {
		host, _, err := net.SplitHostPort(m.address)
		if err != nil {
			return fmt.Errorf("%w: gateway address %q: %v", pzem.ErrInvalidArgument, m.address, err)
		}
		if ok, _, err := m.ping(host); !ok || err != nil {
			return fmt.Errorf("%w: ping %s: %v", ErrGatewayUnreachable, host, err)
		}
	}

	client, conn, err := m.connect()
	if err != nil {
		return fmt.Errorf("%w: connect %s: %v", ErrGatewayUnreachable, m.address, err)
	}

	log.Printf("Connected to PZEM gateway %s (slave 0x%02X)", m.address, m.slaveID)
	m.client = client
	m.conn = conn
	return nil
}

func (m *Meter) closeLocked() error {
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.client = nil
	m.conn = nil
	return err
}

func (m *Meter) dial() (registerClient, io.Closer, error) {
	handler := modbus.NewTCPClientHandler(m.address)
	handler.Timeout = m.timeout
	handler.SlaveId = m.slaveID

	if err := handler.Connect(); err != nil {
		handler.Close()
		return nil, nil, err
	}
	return modbus.NewClient(handler), handler, nil
}

// translateError maps gateway failures onto the pzem error taxonomy.
func translateError(err error) error {
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return &pzem.ExceptionError{Function: mbErr.FunctionCode, Code: mbErr.ExceptionCode}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", pzem.ErrShortResponse, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", pzem.ErrShortResponse, err)
	}
	if netErr != nil {
		return err
	}

	// goburrow reports malformed replies as plain errors
	return fmt.Errorf("%w: %v", pzem.ErrIntegrity, err)
}

func ping(host string) (bool, time.Duration, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false, 0, err
	}

	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	pinger.SetPrivileged(false) // UDP-based, no root needed

	err = pinger.Run()
	if err != nil {
		return false, 0, err
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv > 0 {
		return true, stats.AvgRtt, nil
	}

	return false, 0, fmt.Errorf("no response")
}
