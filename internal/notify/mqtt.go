package notify

import (
	"context"

	"github.com/hausnet/heartbeat-agent/internal/models"
)

// JSONPublisher publishes a value as a JSON document.
type JSONPublisher interface {
	PublishJSON(topic string, qos byte, retained bool, v any) error
}

// MQTTNotifier publishes alerts as JSON to a topic.
type MQTTNotifier struct {
	publisher JSONPublisher
	topic     string
	qos       byte
}

func NewMQTTNotifier(publisher JSONPublisher, topic string, qos byte) *MQTTNotifier {
	return &MQTTNotifier{publisher: publisher, topic: topic, qos: qos}
}

func (m *MQTTNotifier) Alert(ctx context.Context, alert models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.publisher.PublishJSON(m.topic, m.qos, false, alert)
}

func (m *MQTTNotifier) Type() string { return "mqtt" }
