package mqtt

import (
	"fmt"

	"github.com/NotCoffee418/pzem_monitor/pkg/interpreter"
	mqttlib "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const (
	// milliseconds to wait for in-flight work on disconnect
	quiesce = 250

	queueSize = 16
)

// New creates a handler publishing readings to topic.
func New(topic string) *Handler {
	return &Handler{
		topic:  topic,
		C:      make(chan Message, queueSize),
		served: make(chan struct{}),
	}
}

// Connect connects to the mqtt broker.
// If no broker is defined, no mqtt message are send.
func (m *Handler) Connect(broker, clientID string) error {
	if broker == "" {
		return nil
	}

	opts := mqttlib.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)
	m.client = mqttlib.NewClient(opts)
	if err := m.reconnect(); err != nil {
		return fmt.Errorf("connect to mqtt broker %s: %w", broker, err)
	}

	log.Printf("Connected to MQTT broker %s, publishing to %s", broker, m.topic)
	return nil
}

func (m *Handler) reconnect() error {
	t := m.client.Connect()
	<-t.Done()
	return t.Error()
}

// Enabled reports whether a broker is configured.
func (m *Handler) Enabled() bool {
	return m.client != nil
}

// Disconnect stops Service once the queue is drained and ends the
// connection to the broker. Service must be running when connected.
func (m *Handler) Disconnect() {
	close(m.C)
	if m.client == nil {
		return
	}
	<-m.served
	m.client.Disconnect(quiesce)
}

// PublishReading queues reading for publishing. Readings are dropped
// while the queue is full so a slow broker never stalls polling.
func (m *Handler) PublishReading(reading *interpreter.MeterReading) {
	if m.client == nil {
		return
	}

	msg := Message{
		Topic:    m.topic,
		Payload:  reading.ToJsonBytes(),
		Qos:      0,
		Retained: true,
	}
	select {
	case m.C <- msg:
	default:
		log.Warnf("mqtt queue full, dropping reading of %s", reading.Timestamp)
	}
}

// Service sends every message of C to the broker until C is closed.
// Messages without handler or topic are ignored.
func (m *Handler) Service() {
	defer close(m.served)
	for msg := range m.C {
		if m.client == nil || msg.Topic == "" {
			continue
		}

		if !m.client.IsConnected() {
			log.Debugf("mqtt broker isn't connected, reconnect it")
			if err := m.reconnect(); err != nil {
				log.Errorf("can't reconnect to mqtt broker: %v", err)
				continue
			}
		}

		log.Debugf("publishing %v bytes to topic %v", len(msg.Payload), msg.Topic)
		t := m.client.Publish(msg.Topic, msg.Qos, msg.Retained, msg.Payload)
		<-t.Done()
		if err := t.Error(); err != nil {
			log.Errorf("publishing topic %v: %v", msg.Topic, err)
		}
	}
}
