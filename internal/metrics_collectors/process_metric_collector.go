package metrics_collectors

import (
	"context"
	"fmt"
)

const (
	StateOn  = "on"
	StateOff = "off"
)

// ProcessMetricCollector reports whether a process with an exact name is running.
type ProcessMetricCollector struct {
	sensor
	Probe Probe
}

func (p *ProcessMetricCollector) Collect(ctx context.Context) (any, error) {
	names, err := p.Probe.ProcessNames(ctx)
	if err != nil {
		p.Logger.Error().Err(err).Msg("Failed to retrieve process list")
		return nil, fmt.Errorf("process list: %w", err)
	}

	for _, name := range names {
		if name == p.arg {
			return StateOn, nil
		}
	}
	return StateOff, nil
}
