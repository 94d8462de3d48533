package hass

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/rs/zerolog"
)

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = time.Minute
	handshakeTimeout  = 10 * time.Second
	subscriptionID    = 1
)

// wsMessage covers every websocket API message the stream reads or writes.
type wsMessage struct {
	ID          int      `json:"id,omitempty"`
	Type        string   `json:"type"`
	AccessToken string   `json:"access_token,omitempty"`
	EventType   string   `json:"event_type,omitempty"`
	Success     *bool    `json:"success,omitempty"`
	Error       *wsError `json:"error,omitempty"`
	Message     string   `json:"message,omitempty"`
	Event       *wsEvent `json:"event,omitempty"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wsEvent struct {
	EventType string `json:"event_type"`
	Data      struct {
		EntityID string `json:"entity_id"`
	} `json:"data"`
	TimeFired time.Time `json:"time_fired"`
}

// EventStream subscribes to state_changed events over the Home Assistant
// websocket API and turns them into pulse events.
type EventStream struct {
	wsURL      string
	token      string
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// StreamOption configures an EventStream.
type StreamOption func(*EventStream)

// WithBackoff sets the reconnect delay bounds.
func WithBackoff(min, max time.Duration) StreamOption {
	return func(s *EventStream) {
		if min > 0 {
			s.minBackoff = min
		}
		if max >= s.minBackoff {
			s.maxBackoff = max
		}
	}
}

// WithNow overrides the receipt clock used to timestamp events.
func WithNow(now func() time.Time) StreamOption {
	return func(s *EventStream) { s.now = now }
}

// NewEventStream creates a stream for the instance at baseURL
// ("http(s)://host:port"); the websocket endpoint is derived from it.
func NewEventStream(baseURL, token string, logger zerolog.Logger, opts ...StreamOption) (*EventStream, error) {
	wsURL, err := websocketURL(baseURL)
	if err != nil {
		return nil, err
	}
	s := &EventStream{
		wsURL:      wsURL,
		token:      token,
		dialer:     &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid home assistant url %q: %w", baseURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid home assistant url %q: unsupported scheme", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/websocket"
	return u.String(), nil
}

// Run streams events to handle until ctx is cancelled, reconnecting with
// exponential backoff. An authentication failure is permanent and ends Run.
func (s *EventStream) Run(ctx context.Context, handle func(models.PulseEvent)) error {
	backoff := s.minBackoff
	for {
		connectedAt := s.now()
		err := s.session(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil || errors.Is(err, ErrAuth) {
			return err
		}

		// A session that lasted a while resets the backoff.
		if s.now().Sub(connectedAt) > s.maxBackoff {
			backoff = s.minBackoff
		}
		s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("Home Assistant event stream disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// session runs one connection: handshake, subscription and read loop.
func (s *EventStream) session(ctx context.Context, handle func(models.PulseEvent)) error {
	conn, _, err := s.dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.wsURL, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	if err := s.authenticate(conn); err != nil {
		return err
	}
	if err := s.subscribe(conn); err != nil {
		return err
	}
	s.logger.Info().Str("url", s.wsURL).Msg("Subscribed to Home Assistant state changes")

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if msg.Type != "event" || msg.ID != subscriptionID || msg.Event == nil {
			continue
		}
		if msg.Event.EventType != "state_changed" || msg.Event.Data.EntityID == "" {
			continue
		}
		handle(models.PulseEvent{
			RelatedEntityID: msg.Event.Data.EntityID,
			Timestamp:       s.now(),
		})
	}
}

func (s *EventStream) authenticate(conn *websocket.Conn) error {
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}
	if msg.Type != "auth_required" {
		return fmt.Errorf("%w: expected auth_required, got %q", ErrProtocol, msg.Type)
	}

	if err := conn.WriteJSON(wsMessage{Type: "auth", AccessToken: s.token}); err != nil {
		return fmt.Errorf("write auth: %w", err)
	}

	msg = wsMessage{}
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("read auth result: %w", err)
	}
	switch msg.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return fmt.Errorf("%w: %s", ErrAuth, msg.Message)
	}
	return fmt.Errorf("%w: unexpected auth reply %q", ErrProtocol, msg.Type)
}

func (s *EventStream) subscribe(conn *websocket.Conn) error {
	req := wsMessage{ID: subscriptionID, Type: "subscribe_events", EventType: "state_changed"}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe_events: %w", err)
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read subscribe result: %w", err)
		}
		if msg.Type != "result" || msg.ID != subscriptionID {
			continue
		}
		if msg.Success == nil || !*msg.Success {
			reason := "unknown"
			if msg.Error != nil {
				reason = msg.Error.Code + ": " + msg.Error.Message
			}
			return fmt.Errorf("%w: subscribe_events rejected: %s", ErrProtocol, reason)
		}
		return nil
	}
}
