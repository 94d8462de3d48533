package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultURL is the public heartbeat service endpoint.
	DefaultURL = "https://app.hausnet.io/heartbeat/api"
	// SupportedAPIVersions is the semver constraint the service API must satisfy.
	SupportedAPIVersions = ">= 1.0.0, < 2.0.0"

	defaultTimeout = 30 * time.Second
)

// API is the set of heartbeat service operations used by the agent.
type API interface {
	Connect(ctx context.Context) error
	Connected() bool
	ListDevices(ctx context.Context) ([]Device, error)
	GetDevice(ctx context.Context, name string) (*Device, error)
	GetHeartbeat(ctx context.Context, deviceName string) (*Heartbeat, error)
	SendHeartbeat(ctx context.Context, heartbeatID int) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithBeatLimit bounds how often SendHeartbeat may be called.
func WithBeatLimit(every time.Duration, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Every(every), burst) }
}

// Client is a thin REST client for the heartbeat service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu         sync.RWMutex
	apiVersion *semver.Version
}

// NewClient creates a client for serviceURL (without a trailing slash)
// authenticating with token. It does not contact the service; call Connect.
func NewClient(serviceURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(serviceURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute), 3),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect loads the service API description and checks its version.
func (c *Client) Connect(ctx context.Context) error {
	var desc apiDescription
	if err := c.do(ctx, http.MethodGet, "/swagger.json", &desc); err != nil {
		c.logger.Error().Err(err).Str("url", c.baseURL).Msg("Failed to connect to heartbeat service")
		return err
	}

	version, err := semver.NewVersion(desc.Info.Version)
	if err != nil {
		return fmt.Errorf("%w: unparsable version %q: %v", ErrIncompatibleAPI, desc.Info.Version, err)
	}
	constraint, err := semver.NewConstraint(SupportedAPIVersions)
	if err != nil {
		return fmt.Errorf("invalid version constraint: %w", err)
	}
	if !constraint.Check(version) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrIncompatibleAPI, version, SupportedAPIVersions)
	}

	c.mu.Lock()
	c.apiVersion = version
	c.mu.Unlock()

	c.logger.Info().Str("url", c.baseURL).Str("api_version", version.String()).Msg("Connected to heartbeat service")
	return nil
}

// Connected reports whether Connect has succeeded.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiVersion != nil
}

// ListDevices returns the devices owned by the token's user.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	if !c.Connected() {
		return nil, ErrNotConnected
	}
	var devices []Device
	if err := c.do(ctx, http.MethodGet, "/devices/", &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// GetDevice finds a device by name.
func (c *Client) GetDevice(ctx context.Context, name string) (*Device, error) {
	devices, err := c.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	// TODO: switch to a by-name endpoint once the service offers one.
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
}

// GetHeartbeat returns the heartbeat definition of the named device.
func (c *Client) GetHeartbeat(ctx context.Context, deviceName string) (*Heartbeat, error) {
	device, err := c.GetDevice(ctx, deviceName)
	if err != nil {
		return nil, err
	}
	if device.HeartbeatID == nil || *device.HeartbeatID == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHeartbeat, deviceName)
	}

	var hb Heartbeat
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/heartbeats/%d/", *device.HeartbeatID), &hb); err != nil {
		return nil, err
	}
	return &hb, nil
}

// SendHeartbeat resets the service's timer for the given heartbeat.
func (c *Client) SendHeartbeat(ctx context.Context, heartbeatID int) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	if !c.limiter.Allow() {
		return fmt.Errorf("%w: heartbeat %d", ErrRateLimited, heartbeatID)
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/heartbeats/%d/beat/", heartbeatID), nil); err != nil {
		return err
	}
	c.logger.Debug().Int("heartbeat_id", heartbeatID).Msg("Heartbeat sent")
	return nil
}

// VerifyConnection checks that the token is accepted and the device exists.
// The returned error wraps ErrAuth, ErrConnect, ErrIncompatibleAPI or
// ErrDeviceNotFound.
func VerifyConnection(ctx context.Context, api API, deviceName string) error {
	if err := api.Connect(ctx); err != nil {
		return err
	}
	_, err := api.GetDevice(ctx, deviceName)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrConnect, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s: status %d", ErrAuth, method, path, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s %s: rejected by service", ErrRateLimited, method, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrConnect, method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode %s: %v", ErrConnect, path, err)
	}
	return nil
}
