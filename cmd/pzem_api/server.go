package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/NotCoffee418/pzem_monitor/pkg/interpreter"
	"github.com/NotCoffee418/pzem_monitor/pkg/telemetry"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Dashboards on the LAN connect from anywhere
	},
}

const (
	// Time allowed to write a message to a client
	writeWait = 5 * time.Second

	// Ping interval; clients silent for three intervals are dropped
	pingPeriod = 10 * time.Second
)

type latestReader interface {
	GetLatestReading() *interpreter.MeterReading
}

// wsClient serializes writes to one connection, gorilla allows a
// single concurrent writer.
type wsClient struct {
	conn       *websocket.Conn
	writeMutex sync.Mutex
}

func (c *wsClient) send(msg []byte, wait time.Duration) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// wsHub tracks websocket clients for broadcasting averages.
type wsHub struct {
	clients      map[*websocket.Conn]*wsClient
	clientsMutex sync.RWMutex

	writeWait  time.Duration
	pingPeriod time.Duration
}

func newHub() *wsHub {
	return &wsHub{
		clients:    make(map[*websocket.Conn]*wsClient),
		writeWait:  writeWait,
		pingPeriod: pingPeriod,
	}
}

// Broadcast sends reading to every client in parallel and returns once
// each write finished or hit the write deadline. Failed clients are dropped.
func (h *wsHub) Broadcast(reading *interpreter.MeterReading) {
	h.broadcast(reading.ToJsonBytes())
}

func (h *wsHub) broadcast(msg []byte) {
	h.clientsMutex.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.clientsMutex.RUnlock()

	var wg sync.WaitGroup
	for _, client := range clients {
		client := client
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.send(msg, h.writeWait); err != nil {
				log.Debugf("Dropping websocket client %s: %v", client.conn.RemoteAddr(), err)
				h.Remove(client.conn)
			}
		}()
	}
	wg.Wait()
}

func (h *wsHub) Add(conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn}
	h.clientsMutex.Lock()
	h.clients[conn] = client
	h.clientsMutex.Unlock()
	return client
}

func (h *wsHub) Remove(conn *websocket.Conn) {
	h.clientsMutex.Lock()
	delete(h.clients, conn)
	h.clientsMutex.Unlock()
	conn.Close()
}

func (h *wsHub) Len() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// keepAlive pings conn until done is closed, so listeners see traffic
// while the meter is offline and no averages are broadcast.
func (h *wsHub) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait)); err != nil {
				log.Debugf("Failed to send ping: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}

func newRouter(reader latestReader, hub *wsHub) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		response := map[string]string{
			"message": "PZEM Monitor API",
			"status":  "running",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})

	mux.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		reading := reader.GetLatestReading()
		w.Header().Set("Content-Type", "application/json")
		if reading == nil {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "No readings available yet",
			})
			return
		}

		json.NewEncoder(w).Encode(reading)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}

		client := hub.Add(conn)

		// Send current average immediately if available
		if reading := reader.GetLatestReading(); reading != nil {
			if err := client.send(reading.ToJsonBytes(), hub.writeWait); err != nil {
				hub.Remove(conn)
				return
			}
		}

		done := make(chan struct{})
		defer close(done)
		go hub.keepAlive(conn, done)

		readWait := 3 * hub.pingPeriod
		conn.SetReadDeadline(time.Now().Add(readWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readWait))
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				hub.Remove(conn)
				break
			}
		}
	})

	mux.Handle("/metrics", telemetry.Handler())
	return mux
}
