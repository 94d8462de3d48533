package models

import "time"

// AlertKind distinguishes the two liveness transitions a source can make.
type AlertKind string

const (
	AlertMissing AlertKind = "missing"
	AlertResumed AlertKind = "resumed"
)

// PulseEvent is a liveness signal for a Home Assistant entity.
type PulseEvent struct {
	RelatedEntityID string    `json:"entity_id"`
	Timestamp       time.Time `json:"timestamp"`
}

// Alert is the user-facing notification raised on a pulse transition.
type Alert struct {
	NotificationID  string    `json:"notification_id"`
	SourceID        string    `json:"source_id"`
	RelatedEntityID string    `json:"related_entity_id"`
	Kind            AlertKind `json:"kind"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
}

// PulseSourceState is the published view of a single monitored source.
type PulseSourceState struct {
	ID              string     `json:"id"`
	Name            string     `json:"name,omitempty"`
	Icon            string     `json:"icon,omitempty"`
	RelatedEntityID string     `json:"related_entity_id"`
	Missing         bool       `json:"missing"`
	Deadline        time.Time  `json:"deadline"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// PulseSnapshot is published whenever at least one source changed state.
type PulseSnapshot struct {
	Timestamp time.Time          `json:"timestamp"`
	Sources   []PulseSourceState `json:"sources"`
}
