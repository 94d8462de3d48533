package notify

import (
	"context"

	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/rs/zerolog"
)

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Alert(_ context.Context, alert models.Alert) error {
	l.logger.Info().
		Str("source", alert.SourceID).
		Str("kind", string(alert.Kind)).
		Str("title", alert.Title).
		Msg(alert.Message)
	return nil
}

func (l *LogNotifier) Type() string { return "log" }
