package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/miradorstack/mirador-synergy/internal/config"
	"github.com/miradorstack/mirador-synergy/internal/models"
)

// messageReader is the subset of *kafka.Reader used for history replay.
type messageReader interface {
	SetOffsetAt(ctx context.Context, t time.Time) error
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaEventSource replays state changes from a topic, starting at the offset of the
// requested window start.
type KafkaEventSource struct {
	cfg       config.KafkaClientConfig
	log       *slog.Logger
	newReader func() messageReader
}

// NewKafkaEventSource constructs an event source reading cfg.Topic.
func NewKafkaEventSource(cfg config.KafkaClientConfig, log *slog.Logger) *KafkaEventSource {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 2 * time.Second
	}
	s := &KafkaEventSource{cfg: cfg, log: log.With(slog.String("component", "kafka-events"))}
	s.newReader = func() messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:   cfg.Brokers,
			Topic:     cfg.Topic,
			Partition: cfg.Partition,
			MinBytes:  1,
			MaxBytes:  10e6,
			MaxWait:   cfg.MaxWait,
		})
	}
	return s
}

type stateChangeMessage struct {
	EntityID  string    `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state"`
}

// QueryEvents implements the pipeline EventSource. Reading stops at the first message
// past tr.End or once the topic has been idle for twice MaxWait. If ctx ends mid
// replay the events read so far are returned.
func (s *KafkaEventSource) QueryEvents(ctx context.Context, entityIDs []string, tr models.TimeRange) ([]models.StateChangeEvent, error) {
	if len(s.cfg.Brokers) == 0 || s.cfg.Topic == "" {
		return nil, fmt.Errorf("kafka event source not configured")
	}
	wanted := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		wanted[id] = struct{}{}
	}

	reader := s.newReader()
	defer reader.Close()
	if err := reader.SetOffsetAt(ctx, tr.Start); err != nil {
		return nil, fmt.Errorf("seek %s: %w", s.cfg.Topic, err)
	}

	events := make([]models.StateChangeEvent, 0)
	skipped := 0
	for {
		readCtx, cancel := context.WithTimeout(ctx, 2*s.cfg.MaxWait)
		msg, err := reader.ReadMessage(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				if len(events) == 0 {
					return nil, ctx.Err()
				}
				s.log.Warn("replay interrupted, returning partial window",
					slog.Int("events", len(events)), slog.Any("error", ctx.Err()))
				break
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, fmt.Errorf("read %s: %w", s.cfg.Topic, err)
		}

		var change stateChangeMessage
		if err := json.Unmarshal(msg.Value, &change); err != nil || change.EntityID == "" {
			skipped++
			continue
		}
		if change.Timestamp.IsZero() {
			change.Timestamp = msg.Time
		}
		if change.Timestamp.After(tr.End) {
			break
		}
		if change.Timestamp.Before(tr.Start) {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[change.EntityID]; !ok {
				continue
			}
		}
		events = append(events, models.StateChangeEvent{
			EntityID:  change.EntityID,
			Timestamp: change.Timestamp,
			Value:     change.State,
		})
	}

	if skipped > 0 {
		s.log.Warn("skipped malformed state-change messages", slog.Int("count", skipped))
	}
	return events, nil
}
