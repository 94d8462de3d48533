package service_registry

import (
	"errors"
	"testing"
	"time"

	"github.com/hausnet/heartbeat-agent/internal/mocks"
	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/hausnet/heartbeat-agent/internal/services"
	"github.com/hausnet/heartbeat-agent/internal/utils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	name     string
	log      *[]string
	startErr error
	stopErr  error
}

func (f *fakeService) Start() error {
	*f.log = append(*f.log, "start "+f.name)
	return f.startErr
}

func (f *fakeService) Stop() error {
	*f.log = append(*f.log, "stop "+f.name)
	return f.stopErr
}

func TestServiceRegistry_StartAndStopInOrder(t *testing.T) {
	var log []string
	sr := NewServiceRegistry(nil, nil, zerolog.Nop())
	sr.RegisterService("a", &fakeService{name: "a", log: &log})
	sr.RegisterService("b", &fakeService{name: "b", log: &log})
	sr.RegisterService("a", &fakeService{name: "dup", log: &log})

	assert.Equal(t, []string{"a", "b"}, sr.Names())
	require.NoError(t, sr.StartServices())
	require.NoError(t, sr.StopServices())
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}

func TestServiceRegistry_StartFailureRollsBack(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	sr := NewServiceRegistry(nil, nil, zerolog.Nop())
	sr.RegisterService("a", &fakeService{name: "a", log: &log})
	sr.RegisterService("b", &fakeService{name: "b", log: &log})
	sr.RegisterService("c", &fakeService{name: "c", log: &log, startErr: boom})
	sr.RegisterService("d", &fakeService{name: "d", log: &log})

	err := sr.StartServices()
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to start c")
	assert.Equal(t, []string{"start a", "start b", "start c", "stop b", "stop a"}, log)
}

func TestServiceRegistry_StopJoinsErrors(t *testing.T) {
	var log []string
	errA, errB := errors.New("a stuck"), errors.New("b stuck")
	sr := NewServiceRegistry(nil, nil, zerolog.Nop())
	sr.RegisterService("a", &fakeService{name: "a", log: &log, stopErr: errA})
	sr.RegisterService("b", &fakeService{name: "b", log: &log, stopErr: errB})

	err := sr.StopServices()
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func testConfig() *utils.Config {
	config := &utils.Config{}
	config.Identity.DeviceID = "pi-kitchen"
	config.Services.Exporter.Enabled = true
	config.Services.Exporter.Listen = "127.0.0.1:0"
	config.Services.Exporter.Path = "/metrics"
	config.Services.Pulse.Enabled = true
	config.Services.Pulse.AlertTimeout = time.Second
	config.Services.Pulse.Sensors = []utils.PulseSensorConfig{
		{ID: "furnace", RelatedEntityID: "sensor.furnace_temp", PulseMinutes: 10},
	}
	retries := 1
	config.Services.Heartbeat.Enabled = true
	config.Services.Heartbeat.URL = "http://127.0.0.1:1/api"
	config.Services.Heartbeat.APIKey = "secret"
	config.Services.Heartbeat.Device = "kitchen"
	config.Services.Heartbeat.Interval = time.Hour
	config.Services.Heartbeat.RequestTimeout = time.Second
	config.Services.Heartbeat.MaxRetries = &retries
	config.Services.Metrics.Enabled = true
	config.Services.Metrics.Interval = time.Hour
	config.Services.Metrics.Timeout = time.Second
	config.Services.Metrics.Conditions = []models.SensorCondition{{Type: "goroutines"}}
	return config
}

func TestServiceRegistry_RegisterServicesOrder(t *testing.T) {
	sr := NewServiceRegistry(nil, services.NewTelemetry(), zerolog.Nop())
	require.NoError(t, sr.RegisterServices(testConfig()))
	assert.Equal(t, []string{"exporter", "pulse", "heartbeat", "metrics"}, sr.Names())
}

func TestServiceRegistry_RegisterServicesSkipsDisabled(t *testing.T) {
	config := testConfig()
	config.Services.Exporter.Enabled = false
	config.Services.Heartbeat.Enabled = false

	sr := NewServiceRegistry(nil, nil, zerolog.Nop())
	require.NoError(t, sr.RegisterServices(config))
	assert.Equal(t, []string{"pulse", "metrics"}, sr.Names())
}

func TestServiceRegistry_PulseTopicNeedsMQTT(t *testing.T) {
	config := testConfig()
	config.Services.Pulse.PulseTopic = "pulse/in"

	sr := NewServiceRegistry(nil, nil, zerolog.Nop())
	assert.Error(t, sr.RegisterServices(config))

	sr = NewServiceRegistry(new(mocks.MockMQTTClient), nil, zerolog.Nop())
	require.NoError(t, sr.RegisterServices(config))
	assert.Contains(t, sr.Names(), "pulse")
}

func TestServiceRegistry_StartsPulseAndMetrics(t *testing.T) {
	config := testConfig()
	config.Services.Exporter.Enabled = false
	config.Services.Heartbeat.Enabled = false

	sr := NewServiceRegistry(nil, nil, zerolog.Nop())
	require.NoError(t, sr.RegisterServices(config))
	require.NoError(t, sr.StartServices())

	assert.Eventually(t, func() bool {
		_, ok := sr.SensorStore().Get("goroutines")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sr.StopServices())
}
