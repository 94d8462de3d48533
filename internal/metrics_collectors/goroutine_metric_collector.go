package metrics_collectors

import (
	"context"
	"runtime"
)

// GoroutineMetricCollector collects the number of active goroutines.
type GoroutineMetricCollector struct {
	sensor
}

// Collect retrieves the number of active goroutines.
func (g *GoroutineMetricCollector) Collect(ctx context.Context) (any, error) {
	n := runtime.NumGoroutine()
	g.Logger.Debug().Int("goroutines", n).Msg("Goroutine count collected")
	return n, nil
}
