package mocks

import (
	"context"

	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockNotifier is a mock implementation of the pulse alert sink
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Alert(ctx context.Context, alert models.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}
