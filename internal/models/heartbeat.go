package models

import "time"

const (
	HeartbeatStatusOK     = "ok"
	HeartbeatStatusFailed = "failed"
)

// Heartbeat is the status published after each attempt to beat the remote service.
type Heartbeat struct {
	DeviceID    string    `json:"device_id"`
	HeartbeatID int       `json:"heartbeat_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	Error       string    `json:"error,omitempty"`
}
