package interpreter

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	maxRetries     = 10
	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 60 * time.Second
)

// pzem_api pings every 10s even while no averages are produced; three
// missed pings mean the connection is dead.
var readTimeout = 30 * time.Second

// ListenerURL builds the websocket URL of a pzem_api host.
func ListenerURL(host string, tls bool) url.URL {
	scheme := "ws"
	if tls {
		scheme = "wss"
	}
	return url.URL{Scheme: scheme, Host: host, Path: "/ws"}
}

// Manage websocket connection and call funcToCall for each reading.
// Returns when ctx is cancelled or after maxRetries failed connects.
func StartListener(ctx context.Context, u url.URL, funcToCall func(reading *MeterReading)) {
	retryCount := 0

	for {
		// Calculate retry delay with exponential backoff
		retryDelay := time.Duration(1<<retryCount) * baseRetryDelay
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}

		if retryCount > 0 {
			log.Printf("Retrying connection in %v... (attempt %d/%d)", retryDelay, retryCount+1, maxRetries)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				log.Println("Interrupt received during retry wait, shutting down...")
				return
			}
		}

		log.Printf("Connecting to %s", u.String())

		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		c, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Connection failed: %v", err)
			retryCount++
			if retryCount >= maxRetries {
				log.Printf("Max retries (%d) reached. Giving up.", maxRetries)
				return
			}
			continue
		}

		log.Println("Connected! Accepting meter readings.")
		retryCount = 0

		connectionBroken := handleConnection(ctx, c, funcToCall)
		c.Close()

		if !connectionBroken {
			// Clean shutdown requested
			return
		}
		log.Println("Connection lost, will retry...")
	}
}

func handleConnection(
	ctx context.Context,
	c *websocket.Conn,
	funcToCall func(reading *MeterReading),
) bool {
	done := make(chan struct{})

	c.SetReadDeadline(time.Now().Add(readTimeout))
	c.SetPingHandler(func(data string) error {
		c.SetReadDeadline(time.Now().Add(readTimeout))
		err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("WebSocket error: %v", err)
				} else {
					log.Printf("Connection closed: %v", err)
				}
				return
			}

			c.SetReadDeadline(time.Now().Add(readTimeout))

			if messageType != websocket.TextMessage {
				log.Printf("Received unexpected message type: %d", messageType)
				continue
			}
			if reading := MeterReadingFromJsonBytes(message); reading != nil {
				funcToCall(reading)
			} else {
				log.Printf("Failed to parse meter reading: %s", string(message))
			}
		}
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		log.Println("Interrupt received, closing connection...")

		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Println("Error sending close message:", err)
		}

		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return false
	}
}
