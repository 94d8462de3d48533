package services

import (
	"io"
	"net/http"
	"testing"

	"github.com/hausnet/heartbeat-agent/internal/metrics_collectors"
	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporterService_ServesMetrics(t *testing.T) {
	tel := NewTelemetry()
	tel.SetSourceMissing("furnace", true)
	tel.CountTransition(models.AlertMissing)
	tel.CountBeat(BeatResultOK)
	tel.SetSensorValue("disk_use_percent", 51.2)

	svc := NewExporterService("127.0.0.1:0", "/metrics", tel, zerolog.Nop())
	require.NoError(t, svc.Start())
	assert.Error(t, svc.Start())

	resp, err := http.Get("http://" + svc.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	text := string(body)
	assert.Contains(t, text, `pulse_source_missing{source="furnace"} 1`)
	assert.Contains(t, text, `pulse_transitions_total{kind="missing"} 1`)
	assert.Contains(t, text, `heartbeat_beats_total{result="ok"} 1`)
	assert.Contains(t, text, `sensor_value{sensor="disk_use_percent"} 51.2`)

	resp, err = http.Get("http://" + svc.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, svc.Stop())
	assert.Empty(t, svc.Addr())
	assert.Error(t, svc.Stop())
}

func TestExporterService_ListenError(t *testing.T) {
	svc := NewExporterService("256.0.0.1:bad", "/metrics", NewTelemetry(), zerolog.Nop())
	assert.Error(t, svc.Start())
}

func TestTelemetry_SensorValues(t *testing.T) {
	tel := NewTelemetry()

	tel.SetSensorValue("process_mosquitto", metrics_collectors.StateOn)
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.sensorValue.WithLabelValues("process_mosquitto")))

	tel.SetSensorValue("process_mosquitto", metrics_collectors.StateOff)
	assert.Equal(t, 0.0, testutil.ToFloat64(tel.sensorValue.WithLabelValues("process_mosquitto")))

	tel.SetSensorValue("goroutines", 12)
	assert.Equal(t, 12.0, testutil.ToFloat64(tel.sensorValue.WithLabelValues("goroutines")))

	tel.SetSensorValue("last_boot", "2024-01-01T00:00:00Z")
	tel.SetSensorValue("throughput_network_in_eth0", nil)
	assert.Equal(t, 2, testutil.CollectAndCount(tel.sensorValue))
}

func TestTelemetry_NilIsNoop(t *testing.T) {
	var tel *Telemetry
	assert.NotPanics(t, func() {
		tel.SetSourceMissing("x", true)
		tel.CountTransition(models.AlertResumed)
		tel.CountBeat(BeatResultFailed)
		tel.SetSensorValue("x", 1.0)
	})
}
