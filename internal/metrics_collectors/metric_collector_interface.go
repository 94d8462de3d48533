package metrics_collectors

import (
	"context"
	"errors"
)

var (
	// ErrNoData is returned when the system reported no value for a sensor.
	ErrNoData = errors.New("no data available")
	// ErrUnknownCondition is returned for an unsupported condition type.
	ErrUnknownCondition = errors.New("unknown sensor condition type")
	// ErrDuplicateSensor is returned when two conditions map to the same sensor key.
	ErrDuplicateSensor = errors.New("duplicate sensor")
)

// MetricCollector defines the interface for reading a single system sensor.
type MetricCollector interface {
	Key() string                              // Unique sensor key, e.g. "disk_use_percent_/"
	Type() string                             // Condition type, e.g. "disk_use_percent"
	Name() string                             // Display name
	Arg() string                              // Path, interface or process name; may be empty
	Collect(ctx context.Context) (any, error) // Current value; nil when unknown
	Unit() string                             // Unit of the value (e.g. "%", "GiB")
	Description() string                      // Description of the sensor
}
