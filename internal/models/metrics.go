package models

import "time"

// SensorCondition configures one system sensor.
type SensorCondition struct {
	Type string `yaml:"type" json:"type"`                     // Condition type, e.g. "disk_use_percent"
	Arg  string `yaml:"arg,omitempty" json:"arg,omitempty"`   // Path, interface or process name
	Name string `yaml:"name,omitempty" json:"name,omitempty"` // Optional display name
}

// SensorReading is the latest state of a system sensor.
type SensorReading struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Arg       string    `json:"arg,omitempty"`
	Value     any       `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Available reports whether the last poll of the sensor succeeded.
func (r SensorReading) Available() bool {
	return r.LastError == ""
}

// SystemMetrics represents the sensor readings collected in one poll.
type SystemMetrics struct {
	Timestamp time.Time       `json:"timestamp"`
	DeviceID  string          `json:"device_id"`
	Readings  []SensorReading `json:"readings"`
}
