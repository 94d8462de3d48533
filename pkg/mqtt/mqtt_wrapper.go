package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Publisher publishes JSON documents with a bounded number of attempts.
type Publisher struct {
	client     MQTTClient
	retries    int
	retryDelay time.Duration
}

// NewPublisher wraps client. retries below one are raised to one; the delay
// before attempt n+1 is n times retryDelay.
func NewPublisher(client MQTTClient, retries int, retryDelay time.Duration) *Publisher {
	if retries < 1 {
		retries = 1
	}
	return &Publisher{client: client, retries: retries, retryDelay: retryDelay}
}

// PublishJSON serialises v and publishes it to topic.
func (p *Publisher) PublishJSON(topic string, qos byte, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize payload for %s: %w", topic, err)
	}

	var lastErr error
	for i := 0; i < p.retries; i++ {
		token := p.client.Publish(topic, qos, retained, payload)
		token.Wait()
		if lastErr = token.Error(); lastErr == nil {
			return nil
		}
		if i < p.retries-1 {
			time.Sleep(time.Duration(i+1) * p.retryDelay)
		}
	}
	return fmt.Errorf("failed to publish to %s after %d attempts: %w", topic, p.retries, lastErr)
}
