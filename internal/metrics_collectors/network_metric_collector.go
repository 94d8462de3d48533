package metrics_collectors

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/net"
)

// NetworkMetricCollector reports byte, packet and throughput counters of one
// network interface. An interface that does not exist reads as unknown.
type NetworkMetricCollector struct {
	sensor
	Probe Probe

	// Now is overridable in tests.
	Now func() time.Time

	// cache previous values for rate calculation
	lastValue uint64
	lastTime  time.Time
}

func (n *NetworkMetricCollector) Collect(ctx context.Context) (any, error) {
	counters, err := n.Probe.NetIOCounters(ctx)
	if err != nil {
		n.Logger.Error().Err(err).Msg("Failed to retrieve network statistics")
		return nil, fmt.Errorf("network counters: %w", err)
	}

	stat, ok := counters[n.arg]
	if !ok {
		n.Logger.Debug().Str("interface", n.arg).Msg("Network interface not found")
		return nil, nil
	}

	switch n.typ {
	case "network_in":
		return round(float64(stat.BytesRecv)/mib, 1), nil
	case "network_out":
		return round(float64(stat.BytesSent)/mib, 1), nil
	case "packets_in":
		return stat.PacketsRecv, nil
	case "packets_out":
		return stat.PacketsSent, nil
	case "throughput_network_in", "throughput_network_out":
		return n.throughput(stat), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCondition, n.typ)
}

// throughput returns MB/s since the previous poll, or nil on the first poll
// and after a counter reset.
func (n *NetworkMetricCollector) throughput(stat net.IOCountersStat) any {
	counter := stat.BytesRecv
	if n.typ == "throughput_network_out" {
		counter = stat.BytesSent
	}

	now := time.Now()
	if n.Now != nil {
		now = n.Now()
	}

	var rate any
	if n.lastValue > 0 && n.lastValue < counter {
		if secs := now.Sub(n.lastTime).Seconds(); secs > 0 {
			rate = round(float64(counter-n.lastValue)/1e6/secs, 3)
		}
	}

	n.lastValue = counter
	n.lastTime = now
	return rate
}
