package metrics_collectors

import "fmt"

// MetricsRegistry holds the configured collectors in registration order.
type MetricsRegistry struct {
	order      []string
	collectors map[string]MetricCollector
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		collectors: make(map[string]MetricCollector),
	}
}

// Register adds a collector. Sensor keys must be unique.
func (r *MetricsRegistry) Register(collector MetricCollector) error {
	key := collector.Key()
	if _, exists := r.collectors[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSensor, key)
	}
	r.collectors[key] = collector
	r.order = append(r.order, key)
	return nil
}

// GetCollectors returns all registered collectors in registration order.
func (r *MetricsRegistry) GetCollectors() []MetricCollector {
	out := make([]MetricCollector, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.collectors[key])
	}
	return out
}

// Len returns the number of registered collectors.
func (r *MetricsRegistry) Len() int {
	return len(r.order)
}
