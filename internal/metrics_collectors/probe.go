package metrics_collectors

import (
	"context"
	"sync"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/net"
	"github.com/shirou/gopsutil/process"
)

// Probe reads raw system statistics.
type Probe interface {
	DiskUsage(ctx context.Context, path string) (*disk.UsageStat, error)
	VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error)
	SwapMemory(ctx context.Context) (*mem.SwapMemoryStat, error)
	CPUPercent(ctx context.Context) (float64, error)
	LoadAvg(ctx context.Context) (*load.AvgStat, error)
	NetIOCounters(ctx context.Context) (map[string]net.IOCountersStat, error)
	ProcessNames(ctx context.Context) ([]string, error)
	BootTime(ctx context.Context) (uint64, error)
}

// SystemProbe reads statistics from the host through gopsutil.
type SystemProbe struct{}

func (SystemProbe) DiskUsage(ctx context.Context, path string) (*disk.UsageStat, error) {
	return disk.UsageWithContext(ctx, path)
}

func (SystemProbe) VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	return mem.VirtualMemoryWithContext(ctx)
}

func (SystemProbe) SwapMemory(ctx context.Context) (*mem.SwapMemoryStat, error) {
	return mem.SwapMemoryWithContext(ctx)
}

func (SystemProbe) CPUPercent(ctx context.Context) (float64, error) {
	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, ErrNoData
	}
	return percentages[0], nil
}

func (SystemProbe) LoadAvg(ctx context.Context) (*load.AvgStat, error) {
	return load.AvgWithContext(ctx)
}

func (SystemProbe) NetIOCounters(ctx context.Context) (map[string]net.IOCountersStat, error) {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]net.IOCountersStat, len(counters))
	for _, c := range counters {
		byName[c.Name] = c
	}
	return byName, nil
}

func (SystemProbe) ProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(procs))
	for _, proc := range procs {
		// Processes can exit between listing and inspection.
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (SystemProbe) BootTime(ctx context.Context) (uint64, error) {
	return host.BootTimeWithContext(ctx)
}

// CachedProbe memoises the shared statistics of a Probe so that several
// sensors reading the same source in one poll hit the system once. Reset
// clears the cache between polls.
type CachedProbe struct {
	inner Probe

	mu       sync.Mutex
	disk     map[string]*disk.UsageStat
	virtual  *mem.VirtualMemoryStat
	swap     *mem.SwapMemoryStat
	loadAvg  *load.AvgStat
	counters map[string]net.IOCountersStat
	procs    []string
}

// NewCachedProbe wraps inner with a per-poll cache.
func NewCachedProbe(inner Probe) *CachedProbe {
	return &CachedProbe{inner: inner, disk: make(map[string]*disk.UsageStat)}
}

// Reset drops every cached value.
func (c *CachedProbe) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disk = make(map[string]*disk.UsageStat)
	c.virtual = nil
	c.swap = nil
	c.loadAvg = nil
	c.counters = nil
	c.procs = nil
}

func (c *CachedProbe) DiskUsage(ctx context.Context, path string) (*disk.UsageStat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.disk[path]; ok {
		return u, nil
	}
	u, err := c.inner.DiskUsage(ctx, path)
	if err != nil {
		return nil, err
	}
	c.disk[path] = u
	return u, nil
}

func (c *CachedProbe) VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.virtual == nil {
		v, err := c.inner.VirtualMemory(ctx)
		if err != nil {
			return nil, err
		}
		c.virtual = v
	}
	return c.virtual, nil
}

func (c *CachedProbe) SwapMemory(ctx context.Context) (*mem.SwapMemoryStat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.swap == nil {
		s, err := c.inner.SwapMemory(ctx)
		if err != nil {
			return nil, err
		}
		c.swap = s
	}
	return c.swap, nil
}

// CPUPercent is never cached, it measures since the previous call.
func (c *CachedProbe) CPUPercent(ctx context.Context) (float64, error) {
	return c.inner.CPUPercent(ctx)
}

func (c *CachedProbe) LoadAvg(ctx context.Context) (*load.AvgStat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadAvg == nil {
		l, err := c.inner.LoadAvg(ctx)
		if err != nil {
			return nil, err
		}
		c.loadAvg = l
	}
	return c.loadAvg, nil
}

func (c *CachedProbe) NetIOCounters(ctx context.Context) (map[string]net.IOCountersStat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counters == nil {
		n, err := c.inner.NetIOCounters(ctx)
		if err != nil {
			return nil, err
		}
		c.counters = n
	}
	return c.counters, nil
}

func (c *CachedProbe) ProcessNames(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.procs == nil {
		p, err := c.inner.ProcessNames(ctx)
		if err != nil {
			return nil, err
		}
		c.procs = p
	}
	return c.procs, nil
}

func (c *CachedProbe) BootTime(ctx context.Context) (uint64, error) {
	return c.inner.BootTime(ctx)
}
