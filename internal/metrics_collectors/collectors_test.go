package metrics_collectors_test

import (
	"context"
	"errors"
	"testing"
	"time"

	mc "github.com/hausnet/heartbeat-agent/internal/metrics_collectors"
	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProbe struct {
	mock.Mock
}

func (m *MockProbe) DiskUsage(ctx context.Context, path string) (*disk.UsageStat, error) {
	args := m.Called(path)
	u, _ := args.Get(0).(*disk.UsageStat)
	return u, args.Error(1)
}

func (m *MockProbe) VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	args := m.Called()
	v, _ := args.Get(0).(*mem.VirtualMemoryStat)
	return v, args.Error(1)
}

func (m *MockProbe) SwapMemory(ctx context.Context) (*mem.SwapMemoryStat, error) {
	args := m.Called()
	s, _ := args.Get(0).(*mem.SwapMemoryStat)
	return s, args.Error(1)
}

func (m *MockProbe) CPUPercent(ctx context.Context) (float64, error) {
	args := m.Called()
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockProbe) LoadAvg(ctx context.Context) (*load.AvgStat, error) {
	args := m.Called()
	l, _ := args.Get(0).(*load.AvgStat)
	return l, args.Error(1)
}

func (m *MockProbe) NetIOCounters(ctx context.Context) (map[string]net.IOCountersStat, error) {
	args := m.Called()
	c, _ := args.Get(0).(map[string]net.IOCountersStat)
	return c, args.Error(1)
}

func (m *MockProbe) ProcessNames(ctx context.Context) ([]string, error) {
	args := m.Called()
	p, _ := args.Get(0).([]string)
	return p, args.Error(1)
}

func (m *MockProbe) BootTime(ctx context.Context) (uint64, error) {
	args := m.Called()
	return args.Get(0).(uint64), args.Error(1)
}

func collect(t *testing.T, probe mc.Probe, cond models.SensorCondition) (any, error) {
	t.Helper()
	c, err := mc.NewCollector(cond, probe, zerolog.Nop())
	require.NoError(t, err)
	return c.Collect(context.Background())
}

func TestNewCollector_UnknownType(t *testing.T) {
	_, err := mc.NewCollector(models.SensorCondition{Type: "processor_temperature"}, &MockProbe{}, zerolog.Nop())
	assert.ErrorIs(t, err, mc.ErrUnknownCondition)
}

func TestNewCollector_RequiresArgument(t *testing.T) {
	for _, typ := range []string{"process", "network_in", "throughput_network_out", "packets_in"} {
		_, err := mc.NewCollector(models.SensorCondition{Type: typ}, &MockProbe{}, zerolog.Nop())
		assert.Error(t, err, typ)
	}
}

func TestNewCollector_Identity(t *testing.T) {
	c, err := mc.NewCollector(models.SensorCondition{Type: "disk_use_percent"}, &MockProbe{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "disk_use_percent", c.Key())
	assert.Equal(t, "Disk use (percent) /", c.Name())
	assert.Equal(t, "%", c.Unit())
	assert.NotEmpty(t, c.Description())

	c, err = mc.NewCollector(models.SensorCondition{Type: "network_in", Arg: "eth0", Name: "Uplink"}, &MockProbe{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "network_in_eth0", c.Key())
	assert.Equal(t, "Uplink", c.Name())
	assert.Equal(t, "network_in", c.Type())
}

func TestNewCollector_EveryConditionType(t *testing.T) {
	for _, typ := range mc.ConditionTypeNames() {
		_, err := mc.NewCollector(models.SensorCondition{Type: typ, Arg: "x"}, &MockProbe{}, zerolog.Nop())
		assert.NoError(t, err, typ)
	}
}

func TestDiskCollector(t *testing.T) {
	probe := &MockProbe{}
	probe.On("DiskUsage", "/").Return(&disk.UsageStat{
		UsedPercent: 42.345,
		Used:        10*1024*1024*1024 + 300*1024*1024,
		Free:        5 * 1024 * 1024 * 1024,
	}, nil)

	v, err := collect(t, probe, models.SensorCondition{Type: "disk_use_percent"})
	require.NoError(t, err)
	assert.Equal(t, 42.3, v)

	v, err = collect(t, probe, models.SensorCondition{Type: "disk_use"})
	require.NoError(t, err)
	assert.Equal(t, 10.3, v)

	v, err = collect(t, probe, models.SensorCondition{Type: "disk_free"})
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)
}

func TestDiskCollector_Error(t *testing.T) {
	probe := &MockProbe{}
	probe.On("DiskUsage", "/data").Return(nil, errors.New("no such mount"))

	_, err := collect(t, probe, models.SensorCondition{Type: "disk_free", Arg: "/data"})
	assert.ErrorContains(t, err, "no such mount")
}

func TestMemoryCollector(t *testing.T) {
	probe := &MockProbe{}
	probe.On("VirtualMemory").Return(&mem.VirtualMemoryStat{
		Total:       4096 * 1024 * 1024,
		Available:   1024 * 1024 * 1024,
		UsedPercent: 75,
	}, nil)
	probe.On("SwapMemory").Return(&mem.SwapMemoryStat{
		Used:        512 * 1024 * 1024,
		Free:        256 * 1024 * 1024,
		UsedPercent: 66.66,
	}, nil)

	cases := map[string]float64{
		"memory_use_percent": 75,
		"memory_use":         3072,
		"memory_free":        1024,
		"swap_use_percent":   66.7,
		"swap_use":           512,
		"swap_free":          256,
	}
	for typ, want := range cases {
		v, err := collect(t, probe, models.SensorCondition{Type: typ})
		require.NoError(t, err, typ)
		assert.Equal(t, want, v, typ)
	}
}

func TestCPUAndLoadCollectors(t *testing.T) {
	probe := &MockProbe{}
	probe.On("CPUPercent").Return(12.6, nil)
	probe.On("LoadAvg").Return(&load.AvgStat{Load1: 0.123, Load5: 1.456, Load15: 2}, nil)

	v, err := collect(t, probe, models.SensorCondition{Type: "processor_use"})
	require.NoError(t, err)
	assert.Equal(t, 13.0, v)

	v, err = collect(t, probe, models.SensorCondition{Type: "load_1m"})
	require.NoError(t, err)
	assert.Equal(t, 0.12, v)

	v, err = collect(t, probe, models.SensorCondition{Type: "load_5m"})
	require.NoError(t, err)
	assert.Equal(t, 1.46, v)

	v, err = collect(t, probe, models.SensorCondition{Type: "load_15m"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
}

func TestNetworkCollector_Counters(t *testing.T) {
	probe := &MockProbe{}
	probe.On("NetIOCounters").Return(map[string]net.IOCountersStat{
		"eth0": {Name: "eth0", BytesRecv: 3 * 1024 * 1024, BytesSent: 1024 * 1024, PacketsRecv: 10, PacketsSent: 7},
	}, nil)

	v, err := collect(t, probe, models.SensorCondition{Type: "network_in", Arg: "eth0"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = collect(t, probe, models.SensorCondition{Type: "network_out", Arg: "eth0"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = collect(t, probe, models.SensorCondition{Type: "packets_in", Arg: "eth0"})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), v)

	v, err = collect(t, probe, models.SensorCondition{Type: "packets_out", Arg: "wlan9"})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestNetworkCollector_Throughput(t *testing.T) {
	probe := &MockProbe{}
	probe.On("NetIOCounters").Return(map[string]net.IOCountersStat{
		"eth0": {Name: "eth0", BytesRecv: 1_000_000},
	}, nil).Once()
	probe.On("NetIOCounters").Return(map[string]net.IOCountersStat{
		"eth0": {Name: "eth0", BytesRecv: 3_000_000},
	}, nil).Once()
	probe.On("NetIOCounters").Return(map[string]net.IOCountersStat{
		"eth0": {Name: "eth0", BytesRecv: 500},
	}, nil).Once()

	c, err := mc.NewCollector(models.SensorCondition{Type: "throughput_network_in", Arg: "eth0"}, probe, zerolog.Nop())
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.(*mc.NetworkMetricCollector).Now = func() time.Time { return now }

	v, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Nil(t, v, "first poll has no rate")

	now = now.Add(2 * time.Second)
	v, err = c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	now = now.Add(2 * time.Second)
	v, err = c.Collect(context.Background())
	require.NoError(t, err)
	assert.Nil(t, v, "counter reset has no rate")
}

func TestProcessCollector(t *testing.T) {
	probe := &MockProbe{}
	probe.On("ProcessNames").Return([]string{"sshd", "mosquitto"}, nil)

	v, err := collect(t, probe, models.SensorCondition{Type: "process", Arg: "mosquitto"})
	require.NoError(t, err)
	assert.Equal(t, mc.StateOn, v)

	v, err = collect(t, probe, models.SensorCondition{Type: "process", Arg: "Mosquitto"})
	require.NoError(t, err)
	assert.Equal(t, mc.StateOff, v)
}

func TestBootTimeCollector_ReadOnce(t *testing.T) {
	probe := &MockProbe{}
	probe.On("BootTime").Return(uint64(1704067200), nil).Once()

	c, err := mc.NewCollector(models.SensorCondition{Type: "last_boot"}, probe, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		v, err := c.Collect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "2024-01-01T00:00:00Z", v)
	}
	probe.AssertNumberOfCalls(t, "BootTime", 1)
}

func TestGoroutineCollector(t *testing.T) {
	v, err := collect(t, nil, models.SensorCondition{Type: "goroutines"})
	require.NoError(t, err)
	assert.Greater(t, v.(int), 0)
}

func TestCachedProbe(t *testing.T) {
	inner := &MockProbe{}
	inner.On("VirtualMemory").Return(&mem.VirtualMemoryStat{UsedPercent: 10}, nil).Twice()
	inner.On("DiskUsage", "/").Return(&disk.UsageStat{}, nil).Twice()
	inner.On("CPUPercent").Return(1.0, nil)

	probe := mc.NewCachedProbe(inner)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := probe.VirtualMemory(ctx)
		require.NoError(t, err)
		_, err = probe.DiskUsage(ctx, "/")
		require.NoError(t, err)
		_, err = probe.CPUPercent(ctx)
		require.NoError(t, err)
	}
	probe.Reset()
	_, err := probe.VirtualMemory(ctx)
	require.NoError(t, err)
	_, err = probe.DiskUsage(ctx, "/")
	require.NoError(t, err)

	inner.AssertNumberOfCalls(t, "VirtualMemory", 2)
	inner.AssertNumberOfCalls(t, "DiskUsage", 2)
	inner.AssertNumberOfCalls(t, "CPUPercent", 3)
}

func TestCachedProbe_ErrorsNotCached(t *testing.T) {
	inner := &MockProbe{}
	inner.On("SwapMemory").Return(nil, errors.New("boom")).Once()
	inner.On("SwapMemory").Return(&mem.SwapMemoryStat{Free: 1}, nil).Once()

	probe := mc.NewCachedProbe(inner)
	_, err := probe.SwapMemory(context.Background())
	assert.Error(t, err)
	s, err := probe.SwapMemory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.Free)
}

func TestMetricsRegistry(t *testing.T) {
	r := mc.NewMetricsRegistry()
	probe := &MockProbe{}

	for _, cond := range []models.SensorCondition{
		{Type: "load_1m"},
		{Type: "disk_use_percent", Arg: "/"},
		{Type: "process", Arg: "sshd"},
	} {
		c, err := mc.NewCollector(cond, probe, zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, r.Register(c))
	}

	dup, err := mc.NewCollector(models.SensorCondition{Type: "disk_use_percent"}, probe, zerolog.Nop())
	require.NoError(t, err)
	assert.ErrorIs(t, r.Register(dup), mc.ErrDuplicateSensor)

	keys := []string{}
	for _, c := range r.GetCollectors() {
		keys = append(keys, c.Key())
	}
	assert.Equal(t, []string{"load_1m", "disk_use_percent", "process_sshd"}, keys)
	assert.Equal(t, 3, r.Len())
}

func TestSensorKey(t *testing.T) {
	assert.Equal(t, "disk_use_percent", mc.SensorKey("disk_use_percent", "/"))
	assert.Equal(t, "disk_free_mnt_data", mc.SensorKey("disk_free", "/mnt/data"))
	assert.Equal(t, "process_home_assistant", mc.SensorKey("process", "Home-Assistant"))
}
