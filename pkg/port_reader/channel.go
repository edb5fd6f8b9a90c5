package port_reader

import (
	"fmt"
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"
)

// Open the serial port the meter is wired to. PZEM-004T talks 8N1.
func OpenSerial(port string, baudrate uint) (*StreamChannel, error) {
	options := serial.OpenOptions{
		PortName:        port,
		BaudRate:        baudrate,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	}

	rwc, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	log.Printf("Connected to PZEM on %s (%d baud)", port, baudrate)
	return NewChannel(rwc), nil
}

// NewChannel wraps port and starts draining it in the background.
func NewChannel(port io.ReadWriteCloser) *StreamChannel {
	c := &StreamChannel{
		port:   port,
		chunks: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *StreamChannel) readLoop() {
	defer close(c.chunks)
	for {
		buf := make([]byte, 64)
		n, err := c.port.Read(buf)
		if n > 0 {
			select {
			case c.chunks <- buf[:n]:
			case <-c.closed:
				c.err = io.ErrClosedPipe
				return
			}
		}
		if err != nil {
			c.err = err
			return
		}
	}
}

func (c *StreamChannel) Write(b []byte) (int, error) {
	return c.port.Write(b)
}

func (c *StreamChannel) Read(max int, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for len(c.pending) < max {
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				return c.take(max), c.err
			}
			c.pending = append(c.pending, chunk...)
		case <-timer.C:
			return c.take(max), nil
		}
	}
	return c.take(max), nil
}

func (c *StreamChannel) FlushInput() error {
	c.pending = nil
	for {
		select {
		case _, ok := <-c.chunks:
			if !ok {
				return c.err
			}
		default:
			return nil
		}
	}
}

// Close closes the port and stops the reader goroutine, even when
// nobody drains the queued chunks.
func (c *StreamChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	log.Println("Disconnected from PZEM serial port")
	return c.port.Close()
}

func (c *StreamChannel) take(max int) []byte {
	n := min(max, len(c.pending))
	out := append([]byte(nil), c.pending[:n]...)
	c.pending = c.pending[n:]
	return out
}
