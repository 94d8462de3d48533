package pulse

import (
	"fmt"
	"time"
)

// DefaultIcon is used for sources registered without an icon.
const DefaultIcon = "mdi:alarm"

// Source is the liveness state of one monitored entity. Values handed out by
// Registry and Monitor are copies.
type Source struct {
	ID              string
	Name            string
	Icon            string
	RelatedEntityID string
	Period          time.Duration
	Missing         bool
	Deadline        time.Time
	UpdatedAt       time.Time
	LastErr         error
}

// SourceOption customises a source at registration time.
type SourceOption func(*Source)

// WithName sets the display name of a source.
func WithName(name string) SourceOption {
	return func(s *Source) { s.Name = name }
}

// WithIcon sets the display icon of a source.
func WithIcon(icon string) SourceOption {
	return func(s *Source) {
		if icon != "" {
			s.Icon = icon
		}
	}
}

// Registry stores pulse sources keyed by id, in registration order.
// It is not safe for concurrent use; Monitor serialises access to it.
type Registry struct {
	clock   Clock
	order   []string
	sources map[string]*Source
}

// NewRegistry creates an empty registry that timestamps registrations with clock.
func NewRegistry(clock Clock) *Registry {
	return &Registry{
		clock:   clock,
		sources: make(map[string]*Source),
	}
}

// Register adds a source that is present and due one period from now.
func (r *Registry) Register(id string, period time.Duration, relatedEntityID string, opts ...SourceOption) (Source, error) {
	if id == "" {
		return Source{}, fmt.Errorf("%w: empty id", ErrInvalidSource)
	}
	if period <= 0 {
		return Source{}, fmt.Errorf("%w: %s: period must be positive, got %s", ErrInvalidSource, id, period)
	}
	if _, exists := r.sources[id]; exists {
		return Source{}, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	src := &Source{
		ID:              id,
		Name:            id,
		Icon:            DefaultIcon,
		RelatedEntityID: relatedEntityID,
		Period:          period,
		Deadline:        r.clock.Now().Add(period),
	}
	for _, opt := range opts {
		opt(src)
	}

	r.sources[id] = src
	r.order = append(r.order, id)
	return *src, nil
}

// Get returns a copy of the source registered under id.
func (r *Registry) Get(id string) (Source, error) {
	src, ok := r.sources[id]
	if !ok {
		return Source{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *src, nil
}

// Snapshot returns copies of all sources in registration order.
func (r *Registry) Snapshot() []Source {
	out := make([]Source, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.sources[id])
	}
	return out
}

// NearestActiveDeadline returns the earliest deadline among sources that are
// not missing. ok is false when there is no such source.
func (r *Registry) NearestActiveDeadline() (deadline time.Time, ok bool) {
	for _, id := range r.order {
		src := r.sources[id]
		if src.Missing || src.Deadline.IsZero() {
			continue
		}
		if !ok || src.Deadline.Before(deadline) {
			deadline = src.Deadline
			ok = true
		}
	}
	return deadline, ok
}

// MatchRelated returns the ids of sources watching entityID, in registration order.
func (r *Registry) MatchRelated(entityID string) []string {
	var ids []string
	for _, id := range r.order {
		if r.sources[id].RelatedEntityID == entityID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	return len(r.order)
}

func (r *Registry) entry(id string) *Source {
	return r.sources[id]
}
