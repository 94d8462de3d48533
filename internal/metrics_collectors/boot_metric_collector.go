package metrics_collectors

import (
	"context"
	"fmt"
	"time"
)

// BootTimeMetricCollector reports the host boot time. It is read once and
// then served from memory.
type BootTimeMetricCollector struct {
	sensor
	Probe Probe

	state string
}

func (b *BootTimeMetricCollector) Collect(ctx context.Context) (any, error) {
	if b.state != "" {
		return b.state, nil
	}

	bootTime, err := b.Probe.BootTime(ctx)
	if err != nil {
		b.Logger.Error().Err(err).Msg("Failed to get boot time")
		return nil, fmt.Errorf("boot time: %w", err)
	}
	b.state = time.Unix(int64(bootTime), 0).UTC().Format(time.RFC3339)
	return b.state, nil
}
