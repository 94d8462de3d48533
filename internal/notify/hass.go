package notify

import (
	"context"

	"github.com/hausnet/heartbeat-agent/internal/models"
	"github.com/hausnet/heartbeat-agent/pkg/hass"
)

// NotificationCreator creates Home Assistant persistent notifications.
type NotificationCreator interface {
	CreateNotification(ctx context.Context, n hass.Notification) error
}

// HassNotifier shows alerts as Home Assistant persistent notifications.
type HassNotifier struct {
	client NotificationCreator
}

func NewHassNotifier(client NotificationCreator) *HassNotifier {
	return &HassNotifier{client: client}
}

func (h *HassNotifier) Alert(ctx context.Context, alert models.Alert) error {
	return h.client.CreateNotification(ctx, hass.Notification{
		Title:          alert.Title,
		Message:        alert.Message,
		NotificationID: alert.NotificationID,
	})
}

func (h *HassNotifier) Type() string { return "hass" }
