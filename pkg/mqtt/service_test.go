package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NotCoffee418/pzem_monitor/pkg/interpreter"
	"github.com/NotCoffee418/pzem_monitor/pkg/pzem"
	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeClient overrides the calls Handler makes; anything else panics.
type fakeClient struct {
	mqttlib.Client

	mu           sync.Mutex
	connected    bool
	connects     int
	published    []Message
	disconnected bool
	publishErr   error
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Connect() mqttlib.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	f.connected = true
	return doneToken{}
}

func (f *fakeClient) Disconnect(quiesce uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	f.connected = false
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqttlib.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, Message{Topic: topic, Qos: qos, Retained: retained, Payload: payload.([]byte)})
	return doneToken{err: f.publishErr}
}

func TestDisabledWithoutBroker(t *testing.T) {
	h := New("pzem/average")
	require.NoError(t, h.Connect("", "pzem_api"))
	require.False(t, h.Enabled())

	// must not block or panic
	h.PublishReading(interpreter.NewMeterReading(pzem.Measurement{}, 1, time.Now()))
	require.Len(t, h.C, 0)
	h.Disconnect()
}

func TestServicePublishesReadings(t *testing.T) {
	client := &fakeClient{}
	h := New("pzem/average")
	h.client = client

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Service()
	}()

	reading := interpreter.NewMeterReading(pzem.Measurement{Voltage: 230, Power: 100}, 4, time.Unix(0, 0).UTC())
	h.PublishReading(reading)
	h.C <- Message{Payload: []byte("no topic")}
	h.Disconnect()
	<-done

	require.Equal(t, 1, client.connects)
	require.True(t, client.disconnected)
	require.Len(t, client.published, 1)

	msg := client.published[0]
	require.Equal(t, "pzem/average", msg.Topic)
	require.True(t, msg.Retained)
	require.Equal(t, reading, interpreter.MeterReadingFromJsonBytes(msg.Payload))
}

func TestServiceKeepsRunningAfterPublishError(t *testing.T) {
	client := &fakeClient{connected: true, publishErr: errors.New("broker gone")}
	h := New("pzem/average")
	h.client = client

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Service()
	}()

	h.PublishReading(interpreter.NewMeterReading(pzem.Measurement{}, 1, time.Now()))
	h.PublishReading(interpreter.NewMeterReading(pzem.Measurement{}, 2, time.Now()))
	h.Disconnect()
	<-done

	require.Len(t, client.published, 2)
}

func TestPublishReadingDropsWhenFull(t *testing.T) {
	h := New("pzem/average")
	h.client = &fakeClient{connected: true}

	for i := 0; i < queueSize+5; i++ {
		h.PublishReading(interpreter.NewMeterReading(pzem.Measurement{}, i, time.Now()))
	}
	require.Len(t, h.C, queueSize)
}
