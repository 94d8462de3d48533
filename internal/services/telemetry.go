package services

import (
	"net/http"

	"github.com/hausnet/heartbeat-agent/internal/metrics_collectors"
	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Beat results counted by Telemetry.
const (
	BeatResultOK     = "ok"
	BeatResultFailed = "failed"
	BeatResultRetry  = "retry"
)

// Telemetry holds the agent's Prometheus metrics. A nil *Telemetry is valid
// and records nothing.
type Telemetry struct {
	registry      *prometheus.Registry
	sourceMissing *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	beats         *prometheus.CounterVec
	sensorValue   *prometheus.GaugeVec
}

// NewTelemetry creates the metrics on a private registry.
func NewTelemetry() *Telemetry {
	t := &Telemetry{
		registry: prometheus.NewRegistry(),
		sourceMissing: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulse_source_missing",
				Help: "1 when the pulse source is missing, 0 when present.",
			},
			[]string{"source"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_transitions_total",
				Help: "Pulse state transitions by kind.",
			},
			[]string{"kind"},
		),
		beats: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heartbeat_beats_total",
				Help: "Heartbeat attempts by result.",
			},
			[]string{"result"},
		),
		sensorValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sensor_value",
				Help: "Latest numeric value of a system sensor.",
			},
			[]string{"sensor"},
		),
	}
	t.registry.MustRegister(
		t.sourceMissing,
		t.transitions,
		t.beats,
		t.sensorValue,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return t
}

// Registry exposes the underlying registry.
func (t *Telemetry) Registry() *prometheus.Registry {
	return t.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry})
}

func (t *Telemetry) SetSourceMissing(source string, missing bool) {
	if t == nil {
		return
	}
	v := 0.0
	if missing {
		v = 1
	}
	t.sourceMissing.WithLabelValues(source).Set(v)
}

func (t *Telemetry) CountTransition(kind models.AlertKind) {
	if t == nil {
		return
	}
	t.transitions.WithLabelValues(string(kind)).Inc()
}

func (t *Telemetry) CountBeat(result string) {
	if t == nil {
		return
	}
	t.beats.WithLabelValues(result).Inc()
}

// SetSensorValue records a reading. Values without a numeric form remove the
// series.
func (t *Telemetry) SetSensorValue(key string, value any) {
	if t == nil {
		return
	}
	v, ok := numeric(value)
	if !ok {
		t.sensorValue.DeleteLabelValues(key)
		return
	}
	t.sensorValue.WithLabelValues(key).Set(v)
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		switch v {
		case metrics_collectors.StateOn:
			return 1, true
		case metrics_collectors.StateOff:
			return 0, true
		}
	}
	return 0, false
}
