package utils

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/hausnet/heartbeat-agent/internal/metrics_collectors"
	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/hausnet/heartbeat-agent/pkg/file"
	"github.com/hausnet/heartbeat-agent/pkg/heartbeat"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Environment variables that override heartbeat defaults.
const (
	EnvHeartbeatURL    = "HAUSNET_HEARTBEAT_URL"
	EnvHeartbeatPeriod = "HEARTBEAT_PERIOD"
)

const (
	defaultHeartbeatInterval = 15 * time.Minute
	defaultHeartbeatRetries  = 1
	defaultRequestTimeout    = 10 * time.Second
	defaultMetricsInterval   = time.Minute
	defaultMetricsTimeout    = 10 * time.Second
	defaultAlertTimeout      = 10 * time.Second
	defaultExporterListen    = ":9102"
	defaultExporterPath      = "/metrics"
	defaultReconnectMin      = time.Second
	defaultReconnectMax      = time.Minute
	defaultConnectTimeout    = 10 * time.Second
)

var (
	envVarPattern   = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)
	entityIDPattern = regexp.MustCompile(`^[a-z0-9_]+\.[a-z0-9_]+$`)
)

// PulseSensorConfig configures one monitored pulse source.
type PulseSensorConfig struct {
	ID              string `yaml:"id"`                // Unique source id
	Name            string `yaml:"name"`              // Display name, defaults to the id
	RelatedEntityID string `yaml:"related_entity_id"` // Home Assistant entity whose updates count as pulses
	PulseMinutes    int    `yaml:"pulse_minutes"`     // Minutes without a pulse before the source is missing
	Icon            string `yaml:"icon"`              // Icon shown in Home Assistant
}

// Period returns the pulse period as a duration.
func (s PulseSensorConfig) Period() time.Duration {
	return time.Duration(s.PulseMinutes) * time.Minute
}

// Config represents the structure of the configuration file.
type Config struct {
	Log struct {
		Level  string `yaml:"level"`  // zerolog level name
		Pretty bool   `yaml:"pretty"` // Human readable console output instead of JSON
	} `yaml:"log"`

	Identity struct {
		DeviceID string `yaml:"device_id"` // Id stamped on published payloads, defaults to the hostname
	} `yaml:"identity"`

	MQTT struct {
		Broker             string        `yaml:"broker"`               // MQTT broker address, empty disables MQTT
		ClientID           string        `yaml:"client_id"`            // MQTT client ID prefix
		Username           string        `yaml:"username"`             // Broker username
		Password           string        `yaml:"password"`             // Broker password
		CACertificate      string        `yaml:"ca_certificate"`       // Path to the CA certificate
		InsecureSkipVerify bool          `yaml:"insecure_skip_verify"` // Skip broker certificate verification
		AvailabilityTopic  string        `yaml:"availability_topic"`   // Retained online/offline topic
		ConnectTimeout     time.Duration `yaml:"connect_timeout"`      // Timeout for the initial connect
	} `yaml:"mqtt"`

	HomeAssistant struct {
		URL           string        `yaml:"url"`           // Base URL, e.g. http://homeassistant.local:8123
		Token         string        `yaml:"token"`         // Long-lived access token
		Events        bool          `yaml:"events"`        // Feed state_changed events to the pulse monitor
		Notifications bool          `yaml:"notifications"` // Raise persistent notifications for pulse alerts
		ReconnectMin  time.Duration `yaml:"reconnect_min"` // Initial websocket reconnect backoff
		ReconnectMax  time.Duration `yaml:"reconnect_max"` // Maximum websocket reconnect backoff
	} `yaml:"home_assistant"`

	Services struct {
		Heartbeat struct {
			Enabled        bool          `yaml:"enabled"`         // Enable/disable heartbeat service
			URL            string        `yaml:"url"`             // Heartbeat service API root
			APIKey         string        `yaml:"api_key"`         // Heartbeat service token
			Device         string        `yaml:"device"`          // Device name registered with the service
			Interval       time.Duration `yaml:"interval"`        // Interval between heartbeats
			MaxRetries     *int          `yaml:"max_retries"`     // Retries after re-initialising the client
			RequestTimeout time.Duration `yaml:"request_timeout"` // Timeout for one beat including lookups
			Topic          string        `yaml:"topic"`           // MQTT topic for heartbeat status, optional
			QOS            int           `yaml:"qos"`             // MQTT QoS level for heartbeat status
		} `yaml:"heartbeat"`

		Pulse struct {
			Enabled      bool                `yaml:"enabled"`       // Enable/disable pulse monitor
			PulseTopic   string              `yaml:"pulse_topic"`   // MQTT topic carrying pulse events, optional
			StateTopic   string              `yaml:"state_topic"`   // MQTT topic for retained source snapshots, optional
			AlertTopic   string              `yaml:"alert_topic"`   // MQTT topic for alerts, optional
			QOS          int                 `yaml:"qos"`           // MQTT QoS level for pulse messages
			AlertTimeout time.Duration       `yaml:"alert_timeout"` // Timeout for delivering one alert
			Sensors      []PulseSensorConfig `yaml:"sensors"`       // Monitored sources
		} `yaml:"pulse"`

		Metrics struct {
			Enabled    bool                     `yaml:"enabled"`    // Enable/disable system sensors
			Topic      string                   `yaml:"topic"`      // MQTT topic for sensor readings, optional
			Interval   time.Duration            `yaml:"interval"`   // Interval between polls
			Timeout    time.Duration            `yaml:"timeout"`    // Timeout for one poll
			QOS        int                      `yaml:"qos"`        // MQTT QoS level for sensor readings
			Conditions []models.SensorCondition `yaml:"conditions"` // Configured sensors
		} `yaml:"metrics"`

		Exporter struct {
			Enabled bool   `yaml:"enabled"` // Enable/disable Prometheus exporter
			Listen  string `yaml:"listen"`  // Listen address
			Path    string `yaml:"path"`    // Metrics path
		} `yaml:"exporter"`
	} `yaml:"services"`
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	data, err := fileClient.ReadFileRaw(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig expands environment variables in raw YAML, decodes it, applies
// defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default}. An unset variable
// without a default is an error.
func expandEnvVars(s string) (string, error) {
	var missing []string
	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		name := parts[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if parts[2] != "" {
			return parts[3]
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("environment variable %s not set and no default provided", missing[0])
	}
	return result, nil
}

func (c *Config) applyDefaults() error {
	if c.Log.Level == "" {
		c.Log.Level = zerolog.LevelInfoValue
	}
	if c.Identity.DeviceID == "" {
		if host, err := os.Hostname(); err == nil {
			c.Identity.DeviceID = host
		}
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "heartbeat-agent"
	}
	if c.MQTT.ConnectTimeout == 0 {
		c.MQTT.ConnectTimeout = defaultConnectTimeout
	}
	if c.HomeAssistant.ReconnectMin == 0 {
		c.HomeAssistant.ReconnectMin = defaultReconnectMin
	}
	if c.HomeAssistant.ReconnectMax == 0 {
		c.HomeAssistant.ReconnectMax = defaultReconnectMax
	}

	hb := &c.Services.Heartbeat
	if hb.URL == "" {
		hb.URL = heartbeat.DefaultURL
		if v, ok := os.LookupEnv(EnvHeartbeatURL); ok && v != "" {
			hb.URL = v
		}
	}
	if hb.Interval == 0 {
		hb.Interval = defaultHeartbeatInterval
		if v, ok := os.LookupEnv(EnvHeartbeatPeriod); ok && v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", EnvHeartbeatPeriod, err)
			}
			hb.Interval = time.Duration(seconds) * time.Second
		}
	}
	if hb.MaxRetries == nil {
		retries := defaultHeartbeatRetries
		hb.MaxRetries = &retries
	}
	if hb.RequestTimeout == 0 {
		hb.RequestTimeout = defaultRequestTimeout
	}

	if c.Services.Pulse.AlertTimeout == 0 {
		c.Services.Pulse.AlertTimeout = defaultAlertTimeout
	}

	if c.Services.Metrics.Interval == 0 {
		c.Services.Metrics.Interval = defaultMetricsInterval
	}
	if c.Services.Metrics.Timeout == 0 {
		c.Services.Metrics.Timeout = defaultMetricsTimeout
	}

	if c.Services.Exporter.Listen == "" {
		c.Services.Exporter.Listen = defaultExporterListen
	}
	if c.Services.Exporter.Path == "" {
		c.Services.Exporter.Path = defaultExporterPath
	}
	return nil
}

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %s", field, fmt.Sprintf(format, args...)))
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		add("log.level", "%v", err)
	}

	mqttEnabled := c.MQTT.Broker != ""
	requireMQTT := func(field, topic string) {
		if topic != "" && !mqttEnabled {
			add(field, "requires mqtt.broker")
		}
	}
	checkQOS := func(field string, qos int) {
		if qos < 0 || qos > 2 {
			add(field, "must be 0, 1 or 2, got %d", qos)
		}
	}

	ha := c.HomeAssistant
	if ha.Events || ha.Notifications {
		if err := validateHTTPURL(ha.URL); err != nil {
			add("home_assistant.url", "%v", err)
		}
		if ha.Token == "" {
			add("home_assistant.token", "is required")
		}
	}
	if ha.ReconnectMin > ha.ReconnectMax {
		add("home_assistant.reconnect_min", "must not exceed reconnect_max")
	}

	hb := c.Services.Heartbeat
	if hb.Enabled {
		if err := validateHTTPURL(hb.URL); err != nil {
			add("services.heartbeat.url", "%v", err)
		}
		if hb.APIKey == "" {
			add("services.heartbeat.api_key", "is required")
		}
		if hb.Device == "" {
			add("services.heartbeat.device", "is required")
		}
		if hb.Interval <= 0 {
			add("services.heartbeat.interval", "must be positive")
		}
		if hb.MaxRetries != nil && *hb.MaxRetries < 0 {
			add("services.heartbeat.max_retries", "must not be negative")
		}
		requireMQTT("services.heartbeat.topic", hb.Topic)
		checkQOS("services.heartbeat.qos", hb.QOS)
	}

	pulse := c.Services.Pulse
	if pulse.Enabled {
		if len(pulse.Sensors) == 0 {
			add("services.pulse.sensors", "at least one sensor is required")
		}
		if !ha.Events && pulse.PulseTopic == "" {
			add("services.pulse", "needs home_assistant.events or pulse_topic as an event source")
		}
		seen := make(map[string]struct{}, len(pulse.Sensors))
		for i, s := range pulse.Sensors {
			field := fmt.Sprintf("services.pulse.sensors[%d]", i)
			if s.ID == "" {
				add(field+".id", "is required")
			} else if _, dup := seen[s.ID]; dup {
				add(field+".id", "duplicate id %q", s.ID)
			}
			seen[s.ID] = struct{}{}
			if !entityIDPattern.MatchString(s.RelatedEntityID) {
				add(field+".related_entity_id", "invalid entity id %q", s.RelatedEntityID)
			}
			if s.PulseMinutes <= 0 {
				add(field+".pulse_minutes", "must be positive")
			}
		}
		requireMQTT("services.pulse.pulse_topic", pulse.PulseTopic)
		requireMQTT("services.pulse.state_topic", pulse.StateTopic)
		requireMQTT("services.pulse.alert_topic", pulse.AlertTopic)
		checkQOS("services.pulse.qos", pulse.QOS)
	}

	metrics := c.Services.Metrics
	if metrics.Enabled {
		if len(metrics.Conditions) == 0 {
			add("services.metrics.conditions", "at least one condition is required")
		}
		if metrics.Interval <= 0 {
			add("services.metrics.interval", "must be positive")
		}
		supported := SliceToSet(metrics_collectors.ConditionTypeNames())
		keys := make(map[string]struct{}, len(metrics.Conditions))
		for i, cond := range metrics.Conditions {
			field := fmt.Sprintf("services.metrics.conditions[%d]", i)
			if _, ok := supported[cond.Type]; !ok {
				add(field+".type", "unsupported condition type %q", cond.Type)
				continue
			}
			key := metrics_collectors.SensorKey(cond.Type, cond.Arg)
			if _, dup := keys[key]; dup {
				add(field, "duplicate sensor %q", key)
			}
			keys[key] = struct{}{}
		}
		requireMQTT("services.metrics.topic", metrics.Topic)
		checkQOS("services.metrics.qos", metrics.QOS)
	}

	if c.Services.Exporter.Enabled && c.Services.Exporter.Listen == "" {
		add("services.exporter.listen", "is required")
	}

	return errors.Join(errs...)
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
