package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hausnet/heartbeat-agent/internal/metrics_collectors"
	"github.com/hausnet/heartbeat-agent/internal/mocks"
	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/hausnet/heartbeat-agent/internal/notify"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// stubProbe answers the few probe calls these tests configure. Any other
// call panics through the nil embedded interface.
type stubProbe struct {
	metrics_collectors.Probe

	mu        sync.Mutex
	loadCalls int
	block     chan struct{}
	memErr    error
}

func (s *stubProbe) LoadAvg(ctx context.Context) (*load.AvgStat, error) {
	s.mu.Lock()
	s.loadCalls++
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	return &load.AvgStat{Load1: 0.456, Load5: 0.3, Load15: 0.2}, nil
}

func (s *stubProbe) VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	if s.memErr != nil {
		return nil, s.memErr
	}
	return &mem.VirtualMemoryStat{UsedPercent: 42.04}, nil
}

func (s *stubProbe) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadCalls
}

func newTestMetricsService(probe metrics_collectors.Probe, conditions []models.SensorCondition, pub *mocks.MockJSONPublisher, tel *Telemetry) (*MetricsService, *SensorStore) {
	store := NewSensorStore()
	var publisher notify.JSONPublisher
	if pub != nil {
		publisher = pub
	}
	return NewMetricsService("hausnet/sensors", conditions, time.Hour, time.Second, "pi-kitchen", 0,
		probe, publisher, store, tel, zerolog.Nop()), store
}

func TestMetricsService_PollStoresAndPublishesOnce(t *testing.T) {
	probe := &stubProbe{}
	published := make(chan *models.SystemMetrics, 4)
	pub := new(mocks.MockJSONPublisher)
	pub.On("PublishJSON", "hausnet/sensors", byte(0), false, mock.Anything).
		Run(func(args mock.Arguments) { published <- args.Get(3).(*models.SystemMetrics) }).
		Return(nil)

	tel := NewTelemetry()
	svc, store := newTestMetricsService(probe, []models.SensorCondition{
		{Type: "load_1m"},
		{Type: "load_5m"},
		{Type: "memory_use_percent"},
	}, pub, tel)
	require.NoError(t, svc.Start())
	defer func() { _ = svc.Stop() }()

	var metrics *models.SystemMetrics
	select {
	case metrics = <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("no readings published")
	}

	assert.Equal(t, "pi-kitchen", metrics.DeviceID)
	require.Len(t, metrics.Readings, 3)
	assert.Equal(t, "load_1m", metrics.Readings[0].Key)
	assert.Equal(t, 0.46, metrics.Readings[0].Value)
	assert.Equal(t, 42.0, metrics.Readings[2].Value)
	assert.Equal(t, "%", metrics.Readings[2].Unit)

	// Both load sensors share one probe read per poll.
	assert.Equal(t, 1, probe.calls())

	reading, ok := store.Get("memory_use_percent")
	require.True(t, ok)
	assert.True(t, reading.Available())
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, 0.46, testutil.ToFloat64(tel.sensorValue.WithLabelValues("load_1m")))
}

func TestMetricsService_SensorErrorIsIsolated(t *testing.T) {
	probe := &stubProbe{memErr: errors.New("no /proc/meminfo")}
	svc, store := newTestMetricsService(probe, []models.SensorCondition{
		{Type: "memory_use"},
		{Type: "load_15m"},
		{Type: "goroutines"},
	}, nil, nil)
	require.NoError(t, svc.Start())
	defer func() { _ = svc.Stop() }()

	assert.Eventually(t, func() bool { return store.Len() == 3 }, 2*time.Second, 10*time.Millisecond)

	failed, _ := store.Get("memory_use")
	assert.False(t, failed.Available())
	assert.Nil(t, failed.Value)
	assert.Contains(t, failed.LastError, "no /proc/meminfo")

	ok, _ := store.Get("load_15m")
	assert.True(t, ok.Available())
	assert.Equal(t, 0.2, ok.Value)

	goroutines, _ := store.Get("goroutines")
	assert.True(t, goroutines.Available())
}

func TestMetricsService_OverlappingPollIsSkipped(t *testing.T) {
	probe := &stubProbe{block: make(chan struct{})}
	svc, store := newTestMetricsService(probe, []models.SensorCondition{{Type: "load_1m"}}, nil, nil)
	require.NoError(t, svc.Start())

	// The first poll starts on Start and blocks inside the probe.
	require.Eventually(t, func() bool { return probe.calls() == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.False(t, svc.Poll(context.Background()))

	close(probe.block)
	assert.Eventually(t, func() bool { return store.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return svc.Poll(context.Background()) }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, probe.calls())

	require.NoError(t, svc.Stop())
}

func TestMetricsService_InvalidConditionFailsStart(t *testing.T) {
	svc, _ := newTestMetricsService(&stubProbe{}, []models.SensorCondition{{Type: "network_in"}}, nil, nil)
	assert.Error(t, svc.Start())
	assert.Error(t, svc.Stop())

	svc, _ = newTestMetricsService(&stubProbe{}, []models.SensorCondition{{Type: "load_1m"}, {Type: "load_1m"}}, nil, nil)
	assert.ErrorIs(t, svc.Start(), metrics_collectors.ErrDuplicateSensor)

	svc, _ = newTestMetricsService(&stubProbe{}, nil, nil, nil)
	assert.Error(t, svc.Start())
}

func TestMetricsService_PublishFailureKeepsReadings(t *testing.T) {
	pub := new(mocks.MockJSONPublisher)
	pub.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	svc, store := newTestMetricsService(&stubProbe{}, []models.SensorCondition{{Type: "load_5m"}}, pub, nil)
	require.NoError(t, svc.Start())
	defer func() { _ = svc.Stop() }()

	assert.Eventually(t, func() bool { return store.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSensorStore_AllSortedByKey(t *testing.T) {
	store := NewSensorStore()
	store.Put(models.SensorReading{Key: "swap_use"})
	store.Put(models.SensorReading{Key: "disk_free"})
	store.Put(models.SensorReading{Key: "load_1m", Value: 1.0})
	store.Put(models.SensorReading{Key: "load_1m", Value: 2.0})

	all := store.All()
	require.Len(t, all, 3)
	assert.Equal(t, "disk_free", all[0].Key)
	assert.Equal(t, "load_1m", all[1].Key)
	assert.Equal(t, 2.0, all[1].Value)
	assert.Equal(t, "swap_use", all[2].Key)

	_, ok := store.Get("missing")
	assert.False(t, ok)
}
