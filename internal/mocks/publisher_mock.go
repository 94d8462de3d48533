package mocks

import (
	"github.com/stretchr/testify/mock"
)

// MockJSONPublisher is a mock implementation of the JSON publisher used by
// services and notifiers
type MockJSONPublisher struct {
	mock.Mock
}

func (m *MockJSONPublisher) PublishJSON(topic string, qos byte, retained bool, v any) error {
	args := m.Called(topic, qos, retained, v)
	return args.Error(0)
}
