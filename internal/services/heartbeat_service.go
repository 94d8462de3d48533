package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/hausnet/heartbeat-agent/internal/notify"
	"github.com/hausnet/heartbeat-agent/pkg/heartbeat"
	"github.com/rs/zerolog"
)

// HeartbeatService periodically tells the heartbeat service this device is
// alive.
type HeartbeatService struct {
	DeviceName     string
	DeviceID       string
	Interval       time.Duration
	RequestTimeout time.Duration
	MaxRetries     int
	PubTopic       string
	QOS            int
	Logger         zerolog.Logger

	newClient func() heartbeat.API
	client    heartbeat.API
	publisher notify.JSONPublisher
	telemetry *Telemetry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHeartbeatService initializes a new HeartbeatService. newClient is called
// for the first beat and again whenever the client is re-initialised after a
// failure. publisher may be nil, in which case no status is published.
func NewHeartbeatService(deviceName, deviceID string, interval, requestTimeout time.Duration, maxRetries int,
	newClient func() heartbeat.API, publisher notify.JSONPublisher, pubTopic string, qos int,
	telemetry *Telemetry, logger zerolog.Logger) *HeartbeatService {

	return &HeartbeatService{
		DeviceName:     deviceName,
		DeviceID:       deviceID,
		Interval:       interval,
		RequestTimeout: requestTimeout,
		MaxRetries:     maxRetries,
		PubTopic:       pubTopic,
		QOS:            qos,
		Logger:         logger,
		newClient:      newClient,
		publisher:      publisher,
		telemetry:      telemetry,
	}
}

// Start launches the heartbeat loop in a separate goroutine.
func (h *HeartbeatService) Start() error {
	if h.ctx != nil {
		h.Logger.Warn().Msg("HeartbeatService is already running")
		return errors.New("heartbeat service is already running")
	}

	h.ctx, h.cancel = context.WithCancel(context.Background())

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runHeartbeatLoop()
	}()

	h.Logger.Info().
		Str("device", h.DeviceName).
		Dur("interval", h.Interval).
		Msg("HeartbeatService started successfully")
	return nil
}

// Stop gracefully stops the heartbeat service.
func (h *HeartbeatService) Stop() error {
	if h.ctx == nil {
		h.Logger.Warn().Msg("HeartbeatService is not running")
		return errors.New("heartbeat service is not running")
	}

	h.cancel()
	h.wg.Wait()

	h.ctx = nil
	h.cancel = nil

	h.Logger.Info().Msg("HeartbeatService stopped successfully")
	return nil
}

// runHeartbeatLoop beats once immediately and then at the configured interval.
func (h *HeartbeatService) runHeartbeatLoop() {
	h.beatAndPublish(h.ctx)

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.beatAndPublish(h.ctx)
		case <-h.ctx.Done():
			h.Logger.Info().Msg("HeartbeatService stopping gracefully")
			return
		}
	}
}

func (h *HeartbeatService) beatAndPublish(ctx context.Context) {
	status := h.Beat(ctx)
	if h.publisher == nil || h.PubTopic == "" {
		return
	}
	if err := h.publisher.PublishJSON(h.PubTopic, byte(h.QOS), false, status); err != nil {
		h.Logger.Error().Err(err).Msg("Failed to publish heartbeat status")
	}
}

// Beat sends one heartbeat. A failed attempt re-initialises the client and
// retries up to MaxRetries times, except for failures a new client cannot fix.
func (h *HeartbeatService) Beat(ctx context.Context) models.Heartbeat {
	status := models.Heartbeat{
		DeviceID:  h.DeviceID,
		Timestamp: time.Now().UTC(),
		Status:    models.HeartbeatStatusFailed,
	}

	var err error
	for attempt := 0; attempt <= h.MaxRetries; attempt++ {
		if attempt > 0 {
			h.telemetry.CountBeat(BeatResultRetry)
			h.Logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Heartbeat failed, re-initialising client")
			h.client = nil
		}
		status.Attempts = attempt + 1

		var id int
		id, err = h.send(ctx)
		if err == nil {
			status.Status = models.HeartbeatStatusOK
			status.HeartbeatID = id
			h.telemetry.CountBeat(BeatResultOK)
			h.Logger.Debug().Int("heartbeat_id", id).Msg("Heartbeat sent")
			return status
		}
		if !retryable(ctx, err) {
			break
		}
	}

	status.Error = err.Error()
	h.telemetry.CountBeat(BeatResultFailed)
	h.Logger.Error().Err(err).Int("attempts", status.Attempts).Msg("Heartbeat failed, skipping beat")
	return status
}

func (h *HeartbeatService) send(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, h.RequestTimeout)
	defer cancel()

	if h.client == nil {
		h.client = h.newClient()
	}
	if !h.client.Connected() {
		if err := h.client.Connect(ctx); err != nil {
			return 0, err
		}
	}
	hb, err := h.client.GetHeartbeat(ctx, h.DeviceName)
	if err != nil {
		return 0, err
	}
	if err := h.client.SendHeartbeat(ctx, hb.ID); err != nil {
		return hb.ID, err
	}
	return hb.ID, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch {
	case errors.Is(err, heartbeat.ErrAuth),
		errors.Is(err, heartbeat.ErrIncompatibleAPI),
		errors.Is(err, heartbeat.ErrDeviceNotFound),
		errors.Is(err, heartbeat.ErrNoHeartbeat),
		errors.Is(err, heartbeat.ErrRateLimited):
		return false
	}
	return true
}
