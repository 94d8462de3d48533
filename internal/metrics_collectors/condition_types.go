package metrics_collectors

import (
	"regexp"
	"sort"
	"strings"
)

// ConditionType describes a supported sensor condition.
type ConditionType struct {
	Name        string
	Unit        string
	Icon        string
	Description string
}

// ConditionTypes lists every supported condition type.
var ConditionTypes = map[string]ConditionType{
	"disk_use_percent":       {"Disk use (percent)", "%", "mdi:harddisk", "Percentage of disk space used."},
	"disk_use":               {"Disk use", "GiB", "mdi:harddisk", "Disk space used."},
	"disk_free":              {"Disk free", "GiB", "mdi:harddisk", "Disk space free."},
	"memory_use_percent":     {"Memory use (percent)", "%", "mdi:memory", "Percentage of virtual memory in use."},
	"memory_use":             {"Memory use", "MiB", "mdi:memory", "Virtual memory in use."},
	"memory_free":            {"Memory free", "MiB", "mdi:memory", "Virtual memory available."},
	"swap_use_percent":       {"Swap use (percent)", "%", "mdi:harddisk", "Percentage of swap in use."},
	"swap_use":               {"Swap use", "MiB", "mdi:harddisk", "Swap in use."},
	"swap_free":              {"Swap free", "MiB", "mdi:harddisk", "Swap free."},
	"processor_use":          {"Processor use", "%", "mdi:cpu-64-bit", "Percentage of CPU utilisation across all cores."},
	"load_1m":                {"Load (1m)", "", "mdi:cpu-64-bit", "Load average over one minute."},
	"load_5m":                {"Load (5m)", "", "mdi:cpu-64-bit", "Load average over five minutes."},
	"load_15m":               {"Load (15m)", "", "mdi:cpu-64-bit", "Load average over fifteen minutes."},
	"network_in":             {"Network in", "MiB", "mdi:server-network", "Bytes received on an interface."},
	"network_out":            {"Network out", "MiB", "mdi:server-network", "Bytes sent on an interface."},
	"packets_in":             {"Packets in", "packets", "mdi:server-network", "Packets received on an interface."},
	"packets_out":            {"Packets out", "packets", "mdi:server-network", "Packets sent on an interface."},
	"throughput_network_in":  {"Network throughput in", "MB/s", "mdi:server-network", "Receive rate on an interface."},
	"throughput_network_out": {"Network throughput out", "MB/s", "mdi:server-network", "Send rate on an interface."},
	"process":                {"Process", "", "mdi:memory", "Whether a named process is running."},
	"last_boot":              {"Last boot", "", "mdi:clock", "Time the host last booted."},
	"goroutines":             {"Goroutines", "count", "mdi:counter", "Number of goroutines in the agent."},
}

// ConditionTypeNames returns the supported condition types, sorted.
func ConditionTypeNames() []string {
	names := make([]string, 0, len(ConditionTypes))
	for name := range ConditionTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// SensorKey derives the unique key of a sensor from its type and argument.
func SensorKey(conditionType, arg string) string {
	key := nonSlug.ReplaceAllString(strings.ToLower(conditionType+"_"+arg), "_")
	return strings.Trim(key, "_")
}

// requiresArg reports whether the condition type needs an argument.
func requiresArg(conditionType string) bool {
	switch conditionType {
	case "network_in", "network_out", "packets_in", "packets_out",
		"throughput_network_in", "throughput_network_out", "process":
		return true
	}
	return false
}
