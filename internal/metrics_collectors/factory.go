package metrics_collectors

import (
	"fmt"
	"strings"

	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/rs/zerolog"
)

// NewCollector builds the collector for a configured condition. Disk
// conditions default to the root filesystem when no argument is given.
func NewCollector(cond models.SensorCondition, probe Probe, logger zerolog.Logger) (MetricCollector, error) {
	if _, ok := ConditionTypes[cond.Type]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCondition, cond.Type)
	}

	arg := cond.Arg
	if arg == "" && strings.HasPrefix(cond.Type, "disk_") {
		arg = "/"
	}
	if arg == "" && requiresArg(cond.Type) {
		return nil, fmt.Errorf("sensor %s requires an argument", cond.Type)
	}

	s := newSensor(cond.Type, arg, cond.Name, logger)
	switch {
	case strings.HasPrefix(cond.Type, "disk_"):
		return &DiskMetricCollector{sensor: s, Probe: probe}, nil
	case strings.HasPrefix(cond.Type, "memory_"), strings.HasPrefix(cond.Type, "swap_"):
		return &MemoryMetricCollector{sensor: s, Probe: probe}, nil
	case cond.Type == "processor_use":
		return &CPUMetricCollector{sensor: s, Probe: probe}, nil
	case strings.HasPrefix(cond.Type, "load_"):
		return &LoadMetricCollector{sensor: s, Probe: probe}, nil
	case strings.Contains(cond.Type, "network_"), strings.HasPrefix(cond.Type, "packets_"):
		return &NetworkMetricCollector{sensor: s, Probe: probe}, nil
	case cond.Type == "process":
		return &ProcessMetricCollector{sensor: s, Probe: probe}, nil
	case cond.Type == "last_boot":
		return &BootTimeMetricCollector{sensor: s, Probe: probe}, nil
	case cond.Type == "goroutines":
		return &GoroutineMetricCollector{sensor: s}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCondition, cond.Type)
}
