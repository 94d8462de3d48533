package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hausnet/heartbeat-agent/internal/metrics_collectors"
	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/hausnet/heartbeat-agent/internal/notify"
	"github.com/hausnet/heartbeat-agent/internal/utils"
	"github.com/rs/zerolog"
)

const metricsWorkers = 4

// MetricsService polls the configured system sensors and publishes their
// readings.
type MetricsService struct {
	pubTopic   string
	conditions []models.SensorCondition
	interval   time.Duration
	timeout    time.Duration
	deviceID   string
	qos        int
	probe      *metrics_collectors.CachedProbe
	publisher  notify.JSONPublisher
	store      *SensorStore
	telemetry  *Telemetry
	logger     zerolog.Logger
	registry   *metrics_collectors.MetricsRegistry
	workerPool *utils.WorkerPool

	pollMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMetricsService initializes and returns a new instance of MetricsService.
// publisher may be nil, in which case readings are only stored.
func NewMetricsService(
	pubTopic string,
	conditions []models.SensorCondition,
	interval, timeout time.Duration,
	deviceID string,
	qos int,
	probe metrics_collectors.Probe,
	publisher notify.JSONPublisher,
	store *SensorStore,
	telemetry *Telemetry,
	logger zerolog.Logger,
) *MetricsService {
	return &MetricsService{
		pubTopic:   pubTopic,
		conditions: conditions,
		interval:   interval,
		timeout:    timeout,
		deviceID:   deviceID,
		qos:        qos,
		probe:      metrics_collectors.NewCachedProbe(probe),
		publisher:  publisher,
		store:      store,
		telemetry:  telemetry,
		logger:     logger,
	}
}

// Start builds the sensors and begins polling them.
func (m *MetricsService) Start() error {
	if m.ctx != nil {
		m.logger.Warn().Msg("MetricsService is already running")
		return errors.New("metrics service is already running")
	}

	m.logger.Info().Msg("Starting MetricsService...")

	registry, err := m.buildRegistry()
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to set up system sensors")
		return err
	}
	m.registry = registry
	m.workerPool = utils.NewWorkerPool(metricsWorkers, registry.Len())

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.runMetricsCollectionLoop()

	m.logger.Info().Int("sensors", registry.Len()).Str("topic", m.pubTopic).Msg("MetricsService started successfully")
	return nil
}

func (m *MetricsService) buildRegistry() (*metrics_collectors.MetricsRegistry, error) {
	registry := metrics_collectors.NewMetricsRegistry()
	for _, cond := range m.conditions {
		collector, err := metrics_collectors.NewCollector(cond, m.probe, m.logger)
		if err != nil {
			return nil, fmt.Errorf("invalid sensor %q: %w", cond.Type, err)
		}
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	if registry.Len() == 0 {
		return nil, errors.New("no system sensors configured")
	}
	return registry, nil
}

// runMetricsCollectionLoop polls once immediately and then at the interval.
// Each poll runs in its own goroutine so a slow poll shows up as a skipped
// one rather than a drifting ticker.
func (m *MetricsService) runMetricsCollectionLoop() {
	defer m.wg.Done()

	m.Poll(m.ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				m.Poll(m.ctx)
			}()
		case <-m.ctx.Done():
			m.logger.Info().Msg("Stopping metrics collection")
			return
		}
	}
}

// Poll reads every sensor once, stores the readings and publishes them in a
// single message. It returns false when the previous poll is still running.
func (m *MetricsService) Poll(ctx context.Context) bool {
	if !m.pollMu.TryLock() {
		m.logger.Warn().Msg("Previous sensor update still running, skipping this one")
		return false
	}
	defer m.pollMu.Unlock()

	m.probe.Reset()
	metrics := m.collectMetrics(ctx)

	for _, r := range metrics.Readings {
		m.store.Put(r)
		m.telemetry.SetSensorValue(r.Key, r.Value)
	}

	if err := m.publishMetrics(metrics); err != nil {
		m.logger.Error().Err(err).Msg("Failed to publish metrics")
	}
	return true
}

// collectMetrics reads the sensors concurrently. A failing sensor keeps its
// error in the reading and does not affect the others.
func (m *MetricsService) collectMetrics(ctx context.Context) *models.SystemMetrics {
	now := time.Now().UTC()
	collectors := m.registry.GetCollectors()
	metrics := &models.SystemMetrics{
		Timestamp: now,
		DeviceID:  m.deviceID,
		Readings:  make([]models.SensorReading, len(collectors)),
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for i, collector := range collectors {
		i, collector := i, collector
		wg.Add(1)
		submitted := m.workerPool.Submit(func() {
			defer wg.Done()
			metrics.Readings[i] = m.read(ctx, collector, now)
		})
		if !submitted {
			wg.Done()
			metrics.Readings[i] = m.reading(collector, nil, errors.New("metrics service is stopping"), now)
		}
	}
	wg.Wait()

	m.logger.Debug().Int("sensors", len(collectors)).Msg("Metrics collected successfully")
	return metrics
}

func (m *MetricsService) read(ctx context.Context, collector metrics_collectors.MetricCollector, now time.Time) (r models.SensorReading) {
	defer func() {
		if rec := recover(); rec != nil {
			r = m.reading(collector, nil, fmt.Errorf("sensor panicked: %v", rec), now)
		}
	}()
	value, err := collector.Collect(ctx)
	return m.reading(collector, value, err, now)
}

func (m *MetricsService) reading(collector metrics_collectors.MetricCollector, value any, err error, now time.Time) models.SensorReading {
	r := models.SensorReading{
		Key:       collector.Key(),
		Name:      collector.Name(),
		Type:      collector.Type(),
		Arg:       collector.Arg(),
		Value:     value,
		Unit:      collector.Unit(),
		UpdatedAt: now,
	}
	if err != nil {
		r.Value = nil
		r.LastError = err.Error()
		m.logger.Warn().Err(err).Str("sensor", r.Key).Msg("Failed to read sensor")
	}
	return r
}

// publishMetrics sends the collected readings via MQTT.
func (m *MetricsService) publishMetrics(metrics *models.SystemMetrics) error {
	if m.publisher == nil || m.pubTopic == "" {
		return nil
	}
	if err := m.publisher.PublishJSON(m.pubTopic, byte(m.qos), false, metrics); err != nil {
		return err
	}
	m.logger.Debug().Msg("Metrics published successfully")
	return nil
}

// Stop gracefully stops the metrics service.
func (m *MetricsService) Stop() error {
	if m.ctx == nil {
		m.logger.Warn().Msg("MetricsService is not running")
		return errors.New("metrics service is not running")
	}

	m.logger.Info().Msg("Stopping MetricsService...")
	m.cancel()
	m.wg.Wait()
	m.workerPool.Shutdown()

	m.ctx = nil
	m.cancel = nil
	m.logger.Info().Msg("MetricsService stopped successfully")
	return nil
}
