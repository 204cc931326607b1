// Package publish pushes analysis results to the home's message bus.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/miradorstack/mirador-synergy/internal/config"
	"github.com/miradorstack/mirador-synergy/internal/metrics"
	"github.com/miradorstack/mirador-synergy/internal/models"
)

const maxPublished = 20

// mqttClient is the subset of mqtt.Client used by the publisher.
type mqttClient interface {
	IsConnected() bool
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Message is the retained payload describing the latest suggestions.
type Message struct {
	RunID       string              `json:"run_id"`
	CreatedAt   time.Time           `json:"created_at"`
	Degraded    []string            `json:"degraded,omitempty"`
	Suggestions []models.Suggestion `json:"suggestions"`
}

// MQTTPublisher publishes the top suggestions of each run as a retained message.
type MQTTPublisher struct {
	mu      sync.Mutex
	client  mqttClient
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewMQTTPublisher configures a publisher for cfg. The connection is opened lazily.
func NewMQTTPublisher(cfg config.MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", slog.Any("error", err))
	})
	return newMQTTPublisher(mqtt.NewClient(opts), cfg.Topic, cfg.Timeout, logger)
}

func newMQTTPublisher(client mqttClient, topic string, timeout time.Duration, logger *slog.Logger) *MQTTPublisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MQTTPublisher{client: client, topic: topic, timeout: timeout, logger: logger}
}

// Publish sends the best suggestions of result. Broker failures are returned so the
// caller can log them; the analysis itself is unaffected.
func (p *MQTTPublisher) Publish(ctx context.Context, result models.AnalysisResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connect(ctx); err != nil {
		metrics.UpstreamFailure("mqtt")
		return err
	}

	suggestions := result.Suggestions
	if len(suggestions) > maxPublished {
		suggestions = suggestions[:maxPublished]
	}
	payload, err := json.Marshal(Message{
		RunID:       result.RunID,
		CreatedAt:   result.CreatedAt,
		Degraded:    result.Degraded,
		Suggestions: suggestions,
	})
	if err != nil {
		return fmt.Errorf("encode suggestions: %w", err)
	}

	token := p.client.Publish(p.topic, 1, true, payload)
	if !token.WaitTimeout(p.timeout) {
		metrics.UpstreamFailure("mqtt")
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		metrics.UpstreamFailure("mqtt")
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	p.logger.Debug("suggestions published", slog.String("topic", p.topic), slog.Int("count", len(suggestions)))
	return nil
}

func (p *MQTTPublisher) connect(ctx context.Context) error {
	if p.client.IsConnected() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	token := p.client.Connect()
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
