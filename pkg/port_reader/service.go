package port_reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NotCoffee418/pzem_monitor/pkg/aggregator"
	"github.com/NotCoffee418/pzem_monitor/pkg/interpreter"
	"github.com/NotCoffee418/pzem_monitor/pkg/pzem"
	"github.com/NotCoffee418/pzem_monitor/pkg/telemetry"
	log "github.com/sirupsen/logrus"
)

// averages waiting for the reading handler
const dispatchQueue = 16

func NewSerialMeter(channel Channel, addr uint8, timeout time.Duration) *SerialMeter {
	return &SerialMeter{
		channel: channel,
		addr:    addr,
		timeout: timeout,
	}
}

// ReadMeasurement runs one flush, request, response cycle.
// There is no retry within a cycle.
func (m *SerialMeter) ReadMeasurement(ctx context.Context) (pzem.Measurement, error) {
	if err := ctx.Err(); err != nil {
		return pzem.Measurement{}, err
	}

	// Drop stray bytes of a previous, timed out cycle
	if err := m.channel.FlushInput(); err != nil {
		return pzem.Measurement{}, fmt.Errorf("flush input: %w", err)
	}

	cmd := pzem.BuildRequest(m.addr)
	txBytes, err := m.channel.Write(cmd)
	if err != nil {
		return pzem.Measurement{}, fmt.Errorf("failed to send command: %w", err)
	}
	if txBytes != len(cmd) {
		return pzem.Measurement{}, fmt.Errorf("failed to send command: wrote %d of %d bytes", txBytes, len(cmd))
	}

	resp, err := m.channel.Read(pzem.ResponseLength, m.timeout)
	if err != nil {
		return pzem.Measurement{}, fmt.Errorf("read response: %w", err)
	}

	return pzem.ParseResponseFor(m.addr, resp)
}

// Initialize a new PzemReader. ring receives every successful measurement.
func NewPzemReader(meter Meter, ring *aggregator.Ring, interval time.Duration, maxErrors int) *PzemReader {
	return &PzemReader{
		meter:     meter,
		ring:      ring,
		interval:  interval,
		maxErrors: maxErrors,
	}
}

// Start polling every interval until ctx is done or StopReading is called.
// handleReading gets the new average after every successful cycle, in poll
// order, on a single goroutine. While it lags more than dispatchQueue
// averages behind, newer averages are dropped so polling keeps its pace.
// handleError gets the last error once maxErrors cycles failed in a row;
// polling continues regardless.
func (p *PzemReader) StartReading(
	ctx context.Context,
	handleReading func(reading *interpreter.MeterReading),
	handleError func(error),
) {
	ctx, p.stop = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.dispatched = make(chan struct{})

	readings := make(chan *interpreter.MeterReading, dispatchQueue)
	go func() {
		defer close(p.dispatched)
		for reading := range readings {
			handleReading(reading)
		}
	}()

	go func() {
		defer close(p.done)
		defer close(readings)

		consecutiveErrors := 0
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			reading, err := p.PollOnce(ctx)
			if errors.Is(err, context.Canceled) {
				return
			}

			if err != nil {
				consecutiveErrors++
				log.WithFields(log.Fields{
					"code":   pzem.ErrorCode(err).String(),
					"streak": consecutiveErrors,
				}).Warnf("Error reading PZEM: %v", err)
				if consecutiveErrors == p.maxErrors {
					handleError(err)
				}
			} else {
				consecutiveErrors = 0
				select {
				case readings <- reading:
				default:
					log.Warnf("Reading handler is behind, dropping average of %d samples", reading.SampleCount)
				}
			}

			select {
			case <-ctx.Done():
				log.Println("Stop signal received, stopping reader")
				return
			case <-ticker.C:
			}
		}
	}()
}

// StopReading cancels polling and waits for the running cycle and the
// queued reading handlers to finish.
func (p *PzemReader) StopReading() {
	if p.stop == nil {
		return
	}
	p.stop()
	<-p.done
	<-p.dispatched
}

// PollOnce reads one measurement and, on success only, pushes it into the
// ring and returns the new average. Failed cycles leave the ring untouched.
func (p *PzemReader) PollOnce(ctx context.Context) (*interpreter.MeterReading, error) {
	m, err := p.meter.ReadMeasurement(ctx)
	if errors.Is(err, context.Canceled) {
		return nil, err
	}
	telemetry.ObservePoll(err)
	if err != nil {
		return nil, err
	}

	log.Debugf("PZEM: %s", m)

	p.readingMutex.Lock()
	p.ring.Push(m)
	avg, count := p.ring.Average(), p.ring.Count()
	reading := interpreter.NewMeterReading(avg, count, time.Now())
	p.latestReading = reading
	p.readingMutex.Unlock()

	telemetry.ObserveAverage(avg, count)
	return reading, nil
}

// GetLatestReading returns nil until the first successful cycle.
func (p *PzemReader) GetLatestReading() *interpreter.MeterReading {
	p.readingMutex.RLock()
	defer p.readingMutex.RUnlock()
	return p.latestReading
}
