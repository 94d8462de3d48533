package mocks

import (
	"encoding/json"

	"github.com/hausnet/heartbeat-agent/internal/models"
)

// MockMessage is an inbound MQTT message with a fixed topic and payload.
type MockMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func NewMockMessage(topic string, payload []byte) *MockMessage {
	return &MockMessage{topic: topic, payload: payload}
}

// NewPulseMessage encodes evt the way a pulse publisher would.
func NewPulseMessage(topic string, evt models.PulseEvent) *MockMessage {
	payload, err := json.Marshal(evt)
	if err != nil {
		panic(err)
	}
	return NewMockMessage(topic, payload)
}

// AsRetained marks the message as replayed from the broker's retained store.
func (m *MockMessage) AsRetained() *MockMessage {
	m.retained = true
	return m
}

func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return 1 }
func (m *MockMessage) Retained() bool    { return m.retained }
func (m *MockMessage) MessageID() uint16 { return 1 }
func (m *MockMessage) Ack()              {}
