package service_registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/hausnet/heartbeat-agent/internal/metrics_collectors"
	"github.com/hausnet/heartbeat-agent/internal/notify"
	"github.com/hausnet/heartbeat-agent/internal/pulse"
	"github.com/hausnet/heartbeat-agent/internal/registry"
	"github.com/hausnet/heartbeat-agent/internal/services"
	"github.com/hausnet/heartbeat-agent/internal/utils"
	"github.com/hausnet/heartbeat-agent/pkg/hass"
	"github.com/hausnet/heartbeat-agent/pkg/heartbeat"
	"github.com/hausnet/heartbeat-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

const publishRetries = 3

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	mqttClient  mqtt.MQTTClient             // nil when MQTT is disabled
	publisher   *mqtt.Publisher
	telemetry   *services.Telemetry
	store       *services.SensorStore
	clock       pulse.Clock
	probe       metrics_collectors.Probe
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
// mqttClient may be nil.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, telemetry *services.Telemetry, logger zerolog.Logger) *ServiceRegistry {
	sr := &ServiceRegistry{
		services:   make(map[string]registry.Service),
		mqttClient: mqttClient,
		telemetry:  telemetry,
		store:      services.NewSensorStore(),
		clock:      pulse.WallClock(),
		probe:      metrics_collectors.SystemProbe{},
		Logger:     logger,
	}
	if mqttClient != nil {
		sr.publisher = mqtt.NewPublisher(mqttClient, publishRetries, time.Second)
	}
	return sr
}

// WithClock replaces the clock used by the pulse monitor.
func (sr *ServiceRegistry) WithClock(clock pulse.Clock) *ServiceRegistry {
	sr.clock = clock
	return sr
}

// WithProbe replaces the system statistics source used by sensors.
func (sr *ServiceRegistry) WithProbe(probe metrics_collectors.Probe) *ServiceRegistry {
	sr.probe = probe
	return sr
}

// SensorStore returns the store holding the latest sensor readings.
func (sr *ServiceRegistry) SensorStore() *services.SensorStore {
	return sr.store
}

// Names returns the registered service names in start order.
func (sr *ServiceRegistry) Names() []string {
	return append([]string(nil), sr.serviceKeys...)
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config) error {
	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (registry.Service, error)
	}{
		{
			name:    "exporter",
			enabled: config.Services.Exporter.Enabled,
			constructor: func() (registry.Service, error) {
				return services.NewExporterService(
					config.Services.Exporter.Listen,
					config.Services.Exporter.Path,
					sr.telemetry,
					sr.Logger.With().Str("service", "exporter").Logger(),
				), nil
			},
		},
		{
			name:    "pulse",
			enabled: config.Services.Pulse.Enabled,
			constructor: func() (registry.Service, error) {
				return sr.newPulseService(config)
			},
		},
		{
			name:    "heartbeat",
			enabled: config.Services.Heartbeat.Enabled,
			constructor: func() (registry.Service, error) {
				hb := config.Services.Heartbeat
				logger := sr.Logger.With().Str("service", "heartbeat").Logger()
				newClient := func() heartbeat.API {
					return heartbeat.NewClient(hb.URL, hb.APIKey, heartbeat.WithLogger(logger))
				}
				return services.NewHeartbeatService(
					hb.Device,
					config.Identity.DeviceID,
					hb.Interval,
					hb.RequestTimeout,
					*hb.MaxRetries,
					newClient,
					sr.jsonPublisher(),
					hb.Topic,
					hb.QOS,
					sr.telemetry,
					logger,
				), nil
			},
		},
		{
			name:    "metrics",
			enabled: config.Services.Metrics.Enabled,
			constructor: func() (registry.Service, error) {
				m := config.Services.Metrics
				return services.NewMetricsService(
					m.Topic,
					m.Conditions,
					m.Interval,
					m.Timeout,
					config.Identity.DeviceID,
					m.QOS,
					sr.probe,
					sr.jsonPublisher(),
					sr.store,
					sr.telemetry,
					sr.Logger.With().Str("service", "metrics").Logger(),
				), nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}

func (sr *ServiceRegistry) newPulseService(config *utils.Config) (registry.Service, error) {
	p := config.Services.Pulse
	ha := config.HomeAssistant
	logger := sr.Logger.With().Str("service", "pulse").Logger()

	var channels []notify.Notifier
	if ha.Notifications {
		channels = append(channels, notify.NewHassNotifier(hass.NewClient(ha.URL, ha.Token, logger)))
	}
	if p.AlertTopic != "" && sr.publisher != nil {
		channels = append(channels, notify.NewMQTTNotifier(sr.publisher, p.AlertTopic, byte(p.QOS)))
	}
	channels = append(channels, notify.NewLogNotifier(logger))
	notifier := notify.NewMulti(logger, channels...)

	var events services.EventSource
	if ha.Events {
		stream, err := hass.NewEventStream(ha.URL, ha.Token, logger,
			hass.WithBackoff(ha.ReconnectMin, ha.ReconnectMax),
			hass.WithNow(sr.clock.Now),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create home assistant event stream: %w", err)
		}
		events = stream
	}

	var client mqtt.MQTTClient
	if p.PulseTopic != "" {
		if sr.mqttClient == nil {
			return nil, errors.New("pulse_topic requires an MQTT connection")
		}
		client = sr.mqttClient
	}

	return services.NewPulseService(
		p.Sensors,
		sr.clock,
		notifier,
		p.AlertTimeout,
		events,
		client,
		sr.jsonPublisher(),
		p.PulseTopic,
		p.StateTopic,
		p.QOS,
		sr.telemetry,
		logger,
	), nil
}

// jsonPublisher returns the shared publisher, or a nil interface when MQTT
// is disabled.
func (sr *ServiceRegistry) jsonPublisher() notify.JSONPublisher {
	if sr.publisher == nil {
		return nil
	}
	return sr.publisher
}
