package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/hausnet/heartbeat-agent/internal/notify"
	"github.com/hausnet/heartbeat-agent/internal/pulse"
	"github.com/hausnet/heartbeat-agent/internal/utils"
	"github.com/hausnet/heartbeat-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// EventSource streams pulse events until ctx is cancelled.
type EventSource interface {
	Run(ctx context.Context, handle func(models.PulseEvent)) error
}

// PulseService runs the pulse monitor: it registers the configured sources,
// feeds it events and publishes the source states whenever they change.
type PulseService struct {
	sensors      []utils.PulseSensorConfig
	clock        pulse.Clock
	notifier     pulse.Notifier
	alertTimeout time.Duration
	events       EventSource
	mqttClient   mqtt.MQTTClient
	publisher    notify.JSONPublisher
	pulseTopic   string
	stateTopic   string
	qos          byte
	telemetry    *Telemetry
	Logger       zerolog.Logger

	monitor atomic.Pointer[pulse.Monitor]

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPulseService creates the service. events, mqttClient and publisher may
// be nil; an empty pulseTopic or stateTopic disables that MQTT path.
func NewPulseService(
	sensors []utils.PulseSensorConfig,
	clock pulse.Clock,
	notifier pulse.Notifier,
	alertTimeout time.Duration,
	events EventSource,
	mqttClient mqtt.MQTTClient,
	publisher notify.JSONPublisher,
	pulseTopic, stateTopic string,
	qos int,
	telemetry *Telemetry,
	logger zerolog.Logger,
) *PulseService {
	return &PulseService{
		sensors:      sensors,
		clock:        clock,
		notifier:     notifier,
		alertTimeout: alertTimeout,
		events:       events,
		mqttClient:   mqttClient,
		publisher:    publisher,
		pulseTopic:   pulseTopic,
		stateTopic:   stateTopic,
		qos:          byte(qos),
		telemetry:    telemetry,
		Logger:       logger,
	}
}

// Start registers the sources, connects the event feeds and starts the
// deadline clock.
func (p *PulseService) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		p.Logger.Warn().Msg("PulseService is already running")
		return errors.New("pulse service is already running")
	}

	monitor := pulse.NewMonitor(p.clock, p.Logger,
		pulse.WithNotifier(&countingNotifier{inner: p.notifier, telemetry: p.telemetry}),
		pulse.WithAlertTimeout(p.alertTimeout),
	)
	for _, s := range p.sensors {
		if _, err := monitor.Register(s.ID, s.Period(), s.RelatedEntityID,
			pulse.WithName(s.Name), pulse.WithIcon(s.Icon)); err != nil {
			monitor.Stop()
			return fmt.Errorf("failed to register pulse source %q: %w", s.ID, err)
		}
	}

	p.monitor.Store(monitor)

	if p.mqttClient != nil && p.pulseTopic != "" {
		token := p.mqttClient.Subscribe(p.pulseTopic, p.qos, p.handleMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			monitor.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", p.pulseTopic, err)
		}
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())

	changes, _ := monitor.Subscribe()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for range changes {
			p.publishState()
		}
	}()

	if p.events != nil {
		ctx := p.ctx
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.events.Run(ctx, p.HandleEvent); err != nil {
				p.Logger.Error().Err(err).Msg("Pulse event stream stopped")
			}
		}()
	}

	if err := monitor.Start(); err != nil {
		p.cancel()
		monitor.Stop()
		p.wg.Wait()
		p.ctx, p.cancel = nil, nil
		return err
	}
	p.publishState()

	p.Logger.Info().
		Int("sources", len(p.sensors)).
		Str("pulse_topic", p.pulseTopic).
		Bool("event_stream", p.events != nil).
		Msg("PulseService started successfully")
	return nil
}

// Stop disconnects the event feeds and stops the monitor.
func (p *PulseService) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil {
		p.Logger.Warn().Msg("PulseService is not running")
		return errors.New("pulse service is not running")
	}

	var errs []error
	if p.mqttClient != nil && p.pulseTopic != "" {
		token := p.mqttClient.Unsubscribe(p.pulseTopic)
		token.Wait()
		if err := token.Error(); err != nil {
			errs = append(errs, fmt.Errorf("failed to unsubscribe from %s: %w", p.pulseTopic, err))
		}
	}

	p.cancel()
	p.monitor.Load().Stop()
	p.wg.Wait()

	p.ctx = nil
	p.cancel = nil

	p.Logger.Info().Msg("PulseService stopped successfully")
	return errors.Join(errs...)
}

// HandleEvent feeds one event to the monitor.
func (p *PulseService) HandleEvent(evt models.PulseEvent) {
	monitor := p.monitor.Load()
	if monitor == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = p.clock.Now()
	}
	if n := monitor.PulseEvent(evt); n > 0 {
		p.Logger.Debug().Str("entity_id", evt.RelatedEntityID).Int("sources", n).Msg("Pulse event matched")
	}
}

// Snapshot returns the current state of every source.
func (p *PulseService) Snapshot() models.PulseSnapshot {
	snap := models.PulseSnapshot{Timestamp: p.clock.Now().UTC()}
	monitor := p.monitor.Load()
	if monitor == nil {
		return snap
	}
	for _, src := range monitor.Sources() {
		state := models.PulseSourceState{
			ID:              src.ID,
			Name:            src.Name,
			Icon:            src.Icon,
			RelatedEntityID: src.RelatedEntityID,
			Missing:         src.Missing,
			Deadline:        src.Deadline.UTC(),
		}
		if !src.UpdatedAt.IsZero() {
			updated := src.UpdatedAt.UTC()
			state.UpdatedAt = &updated
		}
		if src.LastErr != nil {
			state.LastError = src.LastErr.Error()
		}
		snap.Sources = append(snap.Sources, state)
	}
	return snap
}

// handleMessage decodes a pulse event published on the pulse topic.
// Retained messages are replays from before this subscription and are
// not pulses.
func (p *PulseService) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	if msg.Retained() {
		p.Logger.Debug().Str("topic", msg.Topic()).Msg("Retained pulse event ignored")
		return
	}
	var evt models.PulseEvent
	if err := json.Unmarshal(msg.Payload(), &evt); err != nil {
		p.Logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Invalid pulse event payload")
		return
	}
	if evt.RelatedEntityID == "" {
		p.Logger.Warn().Str("topic", msg.Topic()).Msg("Pulse event without entity_id ignored")
		return
	}
	p.HandleEvent(evt)
}

func (p *PulseService) publishState() {
	snap := p.Snapshot()
	for _, s := range snap.Sources {
		p.telemetry.SetSourceMissing(s.ID, s.Missing)
	}
	if p.publisher == nil || p.stateTopic == "" {
		return
	}
	if err := p.publisher.PublishJSON(p.stateTopic, p.qos, true, snap); err != nil {
		p.Logger.Error().Err(err).Msg("Failed to publish pulse state")
	}
}

// countingNotifier counts transitions before handing alerts on.
type countingNotifier struct {
	inner     pulse.Notifier
	telemetry *Telemetry
}

func (c *countingNotifier) Alert(ctx context.Context, alert models.Alert) error {
	c.telemetry.CountTransition(alert.Kind)
	if c.inner == nil {
		return nil
	}
	return c.inner.Alert(ctx, alert)
}
