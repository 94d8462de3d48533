package metrics_collectors

import (
	"context"
	"fmt"
)

// MemoryMetricCollector reports virtual memory and swap usage.
type MemoryMetricCollector struct {
	sensor
	Probe Probe
}

func (m *MemoryMetricCollector) Collect(ctx context.Context) (any, error) {
	switch m.typ {
	case "memory_use_percent", "memory_use", "memory_free":
		vm, err := m.Probe.VirtualMemory(ctx)
		if err != nil {
			m.Logger.Error().Err(err).Msg("Failed to retrieve memory statistics")
			return nil, fmt.Errorf("virtual memory: %w", err)
		}
		switch m.typ {
		case "memory_use_percent":
			return round(vm.UsedPercent, 1), nil
		case "memory_use":
			return round(float64(vm.Total-vm.Available)/mib, 1), nil
		default:
			return round(float64(vm.Available)/mib, 1), nil
		}

	case "swap_use_percent", "swap_use", "swap_free":
		swap, err := m.Probe.SwapMemory(ctx)
		if err != nil {
			m.Logger.Error().Err(err).Msg("Failed to retrieve swap statistics")
			return nil, fmt.Errorf("swap memory: %w", err)
		}
		switch m.typ {
		case "swap_use_percent":
			return round(swap.UsedPercent, 1), nil
		case "swap_use":
			return round(float64(swap.Used)/mib, 1), nil
		default:
			return round(float64(swap.Free)/mib, 1), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCondition, m.typ)
}
