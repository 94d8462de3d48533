package metrics_collectors

import (
	"context"
	"fmt"
	"math"
)

// CPUMetricCollector reports CPU utilisation across all cores.
type CPUMetricCollector struct {
	sensor
	Probe Probe
}

func (c *CPUMetricCollector) Collect(ctx context.Context) (any, error) {
	percent, err := c.Probe.CPUPercent(ctx)
	if err != nil {
		c.Logger.Error().Err(err).Msg("Failed to get CPU usage")
		return nil, fmt.Errorf("cpu percent: %w", err)
	}

	c.Logger.Debug().Float64("cpu_usage", percent).Msg("CPU usage collected successfully")
	return math.Round(percent), nil
}

// LoadMetricCollector reports the system load average over one window.
type LoadMetricCollector struct {
	sensor
	Probe Probe
}

func (l *LoadMetricCollector) Collect(ctx context.Context) (any, error) {
	avg, err := l.Probe.LoadAvg(ctx)
	if err != nil {
		l.Logger.Error().Err(err).Msg("Failed to get load average")
		return nil, fmt.Errorf("load average: %w", err)
	}

	switch l.typ {
	case "load_1m":
		return round(avg.Load1, 2), nil
	case "load_5m":
		return round(avg.Load5, 2), nil
	case "load_15m":
		return round(avg.Load15, 2), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCondition, l.typ)
}
