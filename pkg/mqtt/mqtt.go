// Package mqtt publishes the messages of the receiver to a mqtt broker
// and passes commands received from the broker to the application.
package mqtt

import (
	"errors"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/womat/debug"
)

// quiesce is the specified number of milliseconds to wait for existing work to be completed.
const (
	quiesce = 250

	connectTimeout = 10 * time.Second
)

var ErrNotConnected = errors.New("no mqtt broker configured")

// Handler contains the handler of the mqtt broker.
type Handler struct {
	handler mqttlib.Client
	// C is the channel to service the mqtt message
	// sending a message to channel C will send the message.
	C chan Message
}

// Message contains the properties of the mqtt message.
type Message struct {
	Topic    string
	Payload  []byte
	Qos      byte
	Retained bool
}

// Will is the message the broker publishes when the connection is lost.
type Will struct {
	Topic    string
	Payload  string
	Retained bool
}

// New generate a new mqtt broker client.
func New() *Handler {
	return &Handler{
		C: make(chan Message, 32),
	}
}

// Connect connects to the mqtt broker.
// If no broker is defined, no mqtt message are send.
func (m *Handler) Connect(broker, clientID string, will *Will) error {
	if broker == "" {
		return nil
	}

	opts := mqttlib.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)
	if will != nil && will.Topic != "" {
		opts.SetWill(will.Topic, will.Payload, 1, will.Retained)
	}

	m.handler = mqttlib.NewClient(opts)
	return m.ReConnect()
}

// ReConnect reconnects to the defined mqtt broker.
func (m *Handler) ReConnect() error {
	t := m.handler.Connect()
	<-t.Done()
	return t.Error()
}

// Subscribe calls fn with the payload of every message received on topic.
// fn runs in the context of the mqtt client and must not block.
func (m *Handler) Subscribe(topic string, fn func(topic string, payload []byte)) error {
	if m.handler == nil {
		return ErrNotConnected
	}

	t := m.handler.Subscribe(topic, 1, func(_ mqttlib.Client, msg mqttlib.Message) {
		debug.DebugLog.Printf("received %v bytes on topic %v", len(msg.Payload()), msg.Topic())
		fn(msg.Topic(), msg.Payload())
	})
	<-t.Done()
	return t.Error()
}

// Publish sends msg and waits until the broker acknowledged it.
func (m *Handler) Publish(msg Message) error {
	if m.handler == nil {
		return ErrNotConnected
	}

	t := m.handler.Publish(msg.Topic, msg.Qos, msg.Retained, msg.Payload)
	<-t.Done()
	return t.Error()
}

// Disconnect will end the connection to the broker.
func (m *Handler) Disconnect() error {
	if m.handler == nil {
		return nil
	}

	m.handler.Disconnect(quiesce)
	return nil
}

// Service listen to a message on the channel C and send the message to mqtt.
// If no handler or topic is defined, the message will be ignored.
func (m *Handler) Service() {
	for d := range m.C {
		if m.handler == nil || d.Topic == "" {
			continue
		}

		if !m.handler.IsConnected() {
			debug.DebugLog.Printf("mqtt broker isn't connected, reconnect it")

			if err := m.ReConnect(); err != nil {
				debug.ErrorLog.Printf("can't reconnect to mqtt broker %v", err)
				continue
			}
		}

		debug.DebugLog.Printf("publishing %v bytes to topic %v", len(d.Payload), d.Topic)
		t := m.handler.Publish(d.Topic, d.Qos, d.Retained, d.Payload)

		go func(topic string) {
			<-t.Done()
			if err := t.Error(); err != nil {
				debug.ErrorLog.Printf("publishing topic %v: %v", topic, err)
			}
		}(d.Topic)
	}
}
