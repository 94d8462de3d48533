// Package notify delivers pulse alerts to users.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/rs/zerolog"
)

// Notifier delivers an alert through one channel.
type Notifier interface {
	Alert(ctx context.Context, alert models.Alert) error
	// Type returns the channel identifier, e.g. "hass" or "mqtt".
	Type() string
}

// Multi fans an alert out to every notifier. All are attempted; failures are
// joined.
type Multi struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

// NewMulti creates a fan-out notifier. Nil entries are skipped.
func NewMulti(logger zerolog.Logger, notifiers ...Notifier) *Multi {
	m := &Multi{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *Multi) Alert(ctx context.Context, alert models.Alert) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Alert(ctx, alert); err != nil {
			m.logger.Warn().Err(err).
				Str("channel_type", n.Type()).
				Str("notification_id", alert.NotificationID).
				Msg("Notification delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", n.Type(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Type() string { return "multi" }

// Len returns the number of wrapped notifiers.
func (m *Multi) Len() int { return len(m.notifiers) }
