package mqtt

import mqttlib "github.com/eclipse/paho.mqtt.golang"

// Handler publishes averages to an MQTT broker.
type Handler struct {
	client mqttlib.Client
	topic  string

	// C queues outgoing messages, Service drains it
	C chan Message
	// closed when Service returns
	served chan struct{}
}

// Message contains the properties of the mqtt message.
type Message struct {
	Topic    string
	Payload  []byte
	Qos      byte
	Retained bool
}
