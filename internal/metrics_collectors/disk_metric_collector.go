package metrics_collectors

import (
	"context"
	"fmt"
)

// DiskMetricCollector reports usage of the filesystem mounted at a path.
type DiskMetricCollector struct {
	sensor
	Probe Probe
}

func (d *DiskMetricCollector) Collect(ctx context.Context) (any, error) {
	usage, err := d.Probe.DiskUsage(ctx, d.arg)
	if err != nil {
		d.Logger.Error().Err(err).Str("path", d.arg).Msg("Failed to get disk usage")
		return nil, fmt.Errorf("disk usage of %s: %w", d.arg, err)
	}

	switch d.typ {
	case "disk_use_percent":
		return round(usage.UsedPercent, 1), nil
	case "disk_use":
		return round(float64(usage.Used)/gib, 1), nil
	case "disk_free":
		return round(float64(usage.Free)/gib, 1), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCondition, d.typ)
}
