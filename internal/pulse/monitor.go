package pulse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/hausnet/heartbeat-agent/internal/utils"
	"github.com/rs/zerolog"
)

const defaultAlertTimeout = 10 * time.Second

// Notifier delivers user-facing alerts. Delivery is best effort.
type Notifier interface {
	Alert(ctx context.Context, alert models.Alert) error
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithNotifier sets the alert sink. Without one, alerts are only logged.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithAlertTimeout bounds a single alert delivery.
func WithAlertTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.alertTimeout = d
		}
	}
}

// Monitor tracks pulse deadlines, flips sources between present and missing
// and tells subscribers when anything changed.
//
// All state transitions happen under a single mutex. Subscriber signalling
// and alert delivery run after the critical section with data captured in it.
type Monitor struct {
	clock        Clock
	registry     *Registry
	scheduler    *Scheduler
	notifier     Notifier
	alertTimeout time.Duration
	alerts       *utils.WorkerPool
	logger       zerolog.Logger

	mu      sync.Mutex
	stopped bool

	subMu     sync.Mutex
	subs      map[int]chan struct{}
	nextSub   int
	subClosed bool
}

// NewMonitor creates a monitor with an empty registry.
func NewMonitor(clock Clock, logger zerolog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		clock:        clock,
		registry:     NewRegistry(clock),
		scheduler:    NewScheduler(clock),
		alertTimeout: defaultAlertTimeout,
		logger:       logger,
		subs:         make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	// One worker keeps alerts for a source in transition order.
	m.alerts = utils.NewWorkerPool(1, 64)
	return m
}

// Register adds a source and makes sure a wake-up covers its deadline.
func (m *Monitor) Register(id string, period time.Duration, relatedEntityID string, opts ...SourceOption) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return Source{}, ErrStopped
	}
	src, err := m.registry.Register(id, period, relatedEntityID, opts...)
	if err != nil {
		return Source{}, err
	}
	m.logger.Debug().
		Str("source", id).
		Str("related_entity_id", relatedEntityID).
		Dur("period", period).
		Time("deadline", src.Deadline).
		Msg("Registered pulse source")

	m.rearmLocked()
	return src, nil
}

// Start restarts every present source's deadline one period from now and arms
// the wake-up. Used once the upstream event feed is live, so time spent
// waiting for it does not count against any source.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	now := m.clock.Now()
	for _, snap := range m.registry.Snapshot() {
		src := m.registry.entry(snap.ID)
		if src.Missing {
			continue
		}
		src.Deadline = now.Add(src.Period)
	}
	// Deadlines only moved later; an armed wake-up would fire early.
	m.scheduler.Cancel()
	m.rearmLocked()
	m.logger.Info().Int("sources", m.registry.Len()).Msg("Pulse monitor started")
	return nil
}

// OnPulseReceived records a pulse for the source with the given id. Unknown
// ids are ignored.
func (m *Monitor) OnPulseReceived(id string, at time.Time) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	src := m.registry.entry(id)
	if src == nil {
		m.mu.Unlock()
		m.logger.Debug().Str("source", id).Msg("Pulse for unknown source ignored")
		return
	}

	var alerts []models.Alert
	if alert, changed := m.applyPulseLocked(src, at); changed {
		alerts = append(alerts, alert)
	}
	m.rearmLocked()
	m.mu.Unlock()

	m.publish(alerts)
}

// PulseEvent delivers a pulse to every source watching the event's entity,
// as one batch. It returns the number of sources that matched.
func (m *Monitor) PulseEvent(evt models.PulseEvent) int {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return 0
	}

	ids := m.registry.MatchRelated(evt.RelatedEntityID)
	if len(ids) == 0 {
		m.mu.Unlock()
		return 0
	}

	var alerts []models.Alert
	for _, id := range ids {
		alert, changed := m.applyPulseLocked(m.registry.entry(id), evt.Timestamp)
		if changed {
			alerts = append(alerts, alert)
		}
		m.logger.Debug().
			Str("source", id).
			Str("related_entity_id", evt.RelatedEntityID).
			Bool("state_changed", changed).
			Msg("Pulse received")
	}
	m.rearmLocked()
	m.mu.Unlock()

	m.publish(alerts)
	return len(ids)
}

// OnDeadlineCheck marks every present source whose deadline has passed as
// missing. It never clears a missing source; only a pulse does that.
func (m *Monitor) OnDeadlineCheck(now time.Time) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}

	// This pass covers anything a pending wake-up up to now would check.
	m.scheduler.Discharge(now)

	var alerts []models.Alert
	for _, snap := range m.registry.Snapshot() {
		changed, err := m.evaluateLocked(snap.ID, now)
		if err != nil {
			if src := m.registry.entry(snap.ID); src != nil {
				src.LastErr = err
			}
			m.logger.Error().Err(err).Str("source", snap.ID).Msg("Failed to evaluate pulse deadline")
			continue
		}
		if !changed {
			continue
		}
		src := m.registry.entry(snap.ID)
		m.logger.Warn().
			Str("source", src.ID).
			Str("related_entity_id", src.RelatedEntityID).
			Time("deadline", src.Deadline).
			Msg("Pulse missing")
		alerts = append(alerts, newAlert(*src, models.AlertMissing, now))
	}
	m.rearmLocked()
	m.mu.Unlock()

	m.publish(alerts)
}

// Subscribe returns a channel that receives a value after every batch of
// transitions. Signals coalesce while the subscriber is not reading. The
// returned func unsubscribes and closes the channel.
func (m *Monitor) Subscribe() (<-chan struct{}, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	ch := make(chan struct{}, 1)
	if m.subClosed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// Sources returns copies of all sources in registration order.
func (m *Monitor) Sources() []Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Snapshot()
}

// Source returns a copy of a single source.
func (m *Monitor) Source(id string) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Get(id)
}

// NextWakeup returns the deadline the pending wake-up is armed for.
func (m *Monitor) NextWakeup() (time.Time, bool) {
	return m.scheduler.Armed()
}

// Stop cancels the pending wake-up, closes subscriber channels and waits for
// queued alerts. The monitor ignores all further events.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.scheduler.CancelAll()
	m.mu.Unlock()

	m.subMu.Lock()
	m.subClosed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.subMu.Unlock()

	m.alerts.Shutdown()
	m.logger.Debug().Msg("Pulse monitor stopped")
}

func (m *Monitor) applyPulseLocked(src *Source, at time.Time) (models.Alert, bool) {
	wasMissing := src.Missing
	src.Missing = false
	src.LastErr = nil
	src.Deadline = at.Add(src.Period)
	if !wasMissing {
		return models.Alert{}, false
	}
	src.UpdatedAt = at
	m.logger.Info().
		Str("source", src.ID).
		Str("related_entity_id", src.RelatedEntityID).
		Msg("Pulse resumed")
	return newAlert(*src, models.AlertResumed, at), true
}

func (m *Monitor) evaluateLocked(id string, now time.Time) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			changed = false
			err = fmt.Errorf("%w: %s: %v", ErrEvaluation, id, r)
		}
	}()

	src := m.registry.entry(id)
	if src == nil {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if src.Missing {
		return false, nil
	}
	if src.Deadline.IsZero() {
		return false, fmt.Errorf("%w: %s: no deadline set", ErrEvaluation, id)
	}
	if now.Before(src.Deadline) {
		return false, nil
	}
	src.Missing = true
	src.UpdatedAt = now
	return true, nil
}

func (m *Monitor) rearmLocked() {
	at, ok := m.registry.NearestActiveDeadline()
	if !ok {
		m.logger.Debug().Msg("No next pulse timeout found")
		return
	}
	if m.scheduler.RequestWakeup(at, m.OnDeadlineCheck) {
		m.logger.Debug().Time("scheduled", at).Msg("Setting next pulse timeout")
	}
}

func (m *Monitor) publish(alerts []models.Alert) {
	if len(alerts) == 0 {
		return
	}

	m.subMu.Lock()
	for _, ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	m.subMu.Unlock()

	for _, alert := range alerts {
		m.dispatch(alert)
	}
}

func (m *Monitor) dispatch(alert models.Alert) {
	if m.notifier == nil {
		return
	}
	ok := m.alerts.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.alertTimeout)
		defer cancel()
		if err := m.notifier.Alert(ctx, alert); err != nil {
			m.logger.Warn().Err(err).
				Str("source", alert.SourceID).
				Str("kind", string(alert.Kind)).
				Msg("Failed to deliver pulse alert")
		}
	})
	if !ok {
		m.logger.Warn().Str("source", alert.SourceID).Msg("Pulse alert dropped, monitor is stopping")
	}
}

func newAlert(src Source, kind models.AlertKind, at time.Time) models.Alert {
	alert := models.Alert{
		NotificationID:  src.ID + "." + uuid.NewString(),
		SourceID:        src.ID,
		RelatedEntityID: src.RelatedEntityID,
		Kind:            kind,
		Timestamp:       at,
	}
	switch kind {
	case models.AlertMissing:
		alert.Title = "Pulse missing: " + src.ID
		alert.Message = fmt.Sprintf("No updates received from '%s' in %s.", src.RelatedEntityID, formatPeriod(src.Period))
	case models.AlertResumed:
		alert.Title = "Pulse resumed: " + src.ID
		alert.Message = fmt.Sprintf("Missing pulse from '%s' resumed.", src.RelatedEntityID)
	}
	return alert
}

func formatPeriod(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		if d == time.Minute {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
