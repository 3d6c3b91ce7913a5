// Package notify delivers the side effects of administrative changes: outgoing mail and
// notifications to the subsystems that depend on global settings.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"brokeradmin/core"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// EventMqttAuthSettingsUpdated is published when the MQTT authorization settings change.
	EventMqttAuthSettingsUpdated = "settings:mqttAuthorization"

	// MqttAuthChannel is the Redis channel broker nodes subscribe to.
	MqttAuthChannel = "brokeradmin:settings:mqtt-auth"
)

// Publisher delivers one event to a group of subscribers.
type Publisher interface {
	Publish(ctx context.Context, event string, payload interface{}) error
}

// SystemSettingsNotifier fans settings changes out to every configured publisher.
type SystemSettingsNotifier struct {
	mu         sync.RWMutex
	publishers []Publisher
	logger     *zap.SugaredLogger
}

// NewSystemSettingsNotifier creates a notifier. Nil publishers are skipped.
func NewSystemSettingsNotifier(logger *zap.SugaredLogger, publishers ...Publisher) *SystemSettingsNotifier {
	n := &SystemSettingsNotifier{logger: logger}
	for _, p := range publishers {
		if p != nil {
			n.publishers = append(n.publishers, p)
		}
	}
	return n
}

// AddPublisher registers p for subsequent updates.
func (n *SystemSettingsNotifier) AddPublisher(p Publisher) {
	if p == nil {
		return
	}
	n.mu.Lock()
	n.publishers = append(n.publishers, p)
	n.mu.Unlock()
}

// OnMqttAuthSettingUpdate publishes settings once to each publisher. Every publisher is
// attempted; failures are joined into the returned error.
func (n *SystemSettingsNotifier) OnMqttAuthSettingUpdate(ctx context.Context, settings core.MqttAuthSettings) error {
	n.mu.RLock()
	publishers := n.publishers
	n.mu.RUnlock()

	var errs []error
	for i, p := range publishers {
		if err := p.Publish(ctx, EventMqttAuthSettingsUpdated, settings); err != nil {
			n.logger.Errorw("Failed to publish MQTT auth settings update", "publisher", i, "error", err)
			errs = append(errs, fmt.Errorf("publisher %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	n.logger.Infow("Published MQTT auth settings update", "priorities", settings.Priorities, "publishers", len(publishers))
	return nil
}

// Event is the envelope written to Redis.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// RedisPublisher publishes events on a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher on channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = MqttAuthChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish marshals the event and publishes it.
func (p *RedisPublisher) Publish(ctx context.Context, event string, payload interface{}) error {
	data, err := json.Marshal(Event{Type: event, Payload: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event, err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}
	return nil
}
