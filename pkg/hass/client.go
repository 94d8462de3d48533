package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client calls the Home Assistant REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a REST client for the instance at baseURL, e.g.
// "http://homeassistant.local:8123", using a long-lived access token.
func NewClient(baseURL, token string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// Notification is a persistent notification shown in the Home Assistant UI.
type Notification struct {
	Title          string `json:"title,omitempty"`
	Message        string `json:"message"`
	NotificationID string `json:"notification_id,omitempty"`
}

// CreateNotification shows a persistent notification.
func (c *Client) CreateNotification(ctx context.Context, n Notification) error {
	return c.callService(ctx, "persistent_notification", "create", n)
}

// DismissNotification removes a persistent notification.
func (c *Client) DismissNotification(ctx context.Context, notificationID string) error {
	return c.callService(ctx, "persistent_notification", "dismiss",
		map[string]string{"notification_id": notificationID})
}

func (c *Client) callService(ctx context.Context, domain, service string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialize %s.%s data: %w", domain, service, err)
	}

	url := fmt.Sprintf("%s/api/services/%s/%s", c.baseURL, domain, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s.%s: %v", ErrRequest, domain, service, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s.%s: status %d", ErrRequest, domain, service, resp.StatusCode)
	}

	c.logger.Debug().Str("service", domain+"."+service).Msg("Home Assistant service called")
	return nil
}
