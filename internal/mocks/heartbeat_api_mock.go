package mocks

import (
	"context"

	"github.com/hausnet/heartbeat-agent/pkg/heartbeat"
	"github.com/stretchr/testify/mock"
)

// MockHeartbeatAPI is a mock implementation of the heartbeat.API interface
type MockHeartbeatAPI struct {
	mock.Mock
}

func (m *MockHeartbeatAPI) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockHeartbeatAPI) Connected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockHeartbeatAPI) ListDevices(ctx context.Context) ([]heartbeat.Device, error) {
	args := m.Called(ctx)
	devices, _ := args.Get(0).([]heartbeat.Device)
	return devices, args.Error(1)
}

func (m *MockHeartbeatAPI) GetDevice(ctx context.Context, name string) (*heartbeat.Device, error) {
	args := m.Called(ctx, name)
	device, _ := args.Get(0).(*heartbeat.Device)
	return device, args.Error(1)
}

func (m *MockHeartbeatAPI) GetHeartbeat(ctx context.Context, deviceName string) (*heartbeat.Heartbeat, error) {
	args := m.Called(ctx, deviceName)
	hb, _ := args.Get(0).(*heartbeat.Heartbeat)
	return hb, args.Error(1)
}

func (m *MockHeartbeatAPI) SendHeartbeat(ctx context.Context, heartbeatID int) error {
	args := m.Called(ctx, heartbeatID)
	return args.Error(0)
}
