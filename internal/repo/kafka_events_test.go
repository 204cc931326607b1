package repo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-synergy/internal/config"
	"github.com/miradorstack/mirador-synergy/internal/models"
)

type fakeReader struct {
	messages []kafka.Message
	seekedTo time.Time
	closed   bool
}

func (f *fakeReader) SetOffsetAt(ctx context.Context, t time.Time) error {
	f.seekedTo = t
	return nil
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.messages) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := f.messages[0]
	f.messages = f.messages[1:]
	return msg, nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func stateMessage(t *testing.T, entityID, state string, ts time.Time) kafka.Message {
	t.Helper()
	data, err := json.Marshal(map[string]any{"entity_id": entityID, "state": state, "timestamp": ts})
	require.NoError(t, err)
	return kafka.Message{Value: data, Time: ts}
}

func TestKafkaEventSourceReplaysWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reader := &fakeReader{messages: []kafka.Message{
		stateMessage(t, "light.kitchen", "on", start.Add(-time.Minute)),
		stateMessage(t, "light.kitchen", "on", start.Add(time.Hour)),
		stateMessage(t, "light.hall", "on", start.Add(2*time.Hour)),
		{Value: []byte("not json"), Time: start.Add(3 * time.Hour)},
		stateMessage(t, "light.kitchen", "off", start.Add(4*time.Hour)),
		stateMessage(t, "light.kitchen", "on", start.Add(48*time.Hour)),
		stateMessage(t, "light.kitchen", "off", start.Add(49*time.Hour)),
	}}
	src := NewKafkaEventSource(config.KafkaClientConfig{Brokers: []string{"kafka:9092"}, Topic: "home.state_changes", MaxWait: 10 * time.Millisecond}, nil)
	src.newReader = func() messageReader { return reader }

	events, err := src.QueryEvents(context.Background(), []string{"light.kitchen"},
		models.TimeRange{Start: start, End: start.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "on", events[0].Value)
	assert.Equal(t, "off", events[1].Value)
	assert.True(t, reader.seekedTo.Equal(start))
	assert.True(t, reader.closed)
	assert.Len(t, reader.messages, 1, "reading should stop at the first message past the window")
}

// stallingReader delivers its messages, then cancels the caller and blocks.
type stallingReader struct {
	fakeReader
	cancel context.CancelFunc
}

func (s *stallingReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(s.messages) == 0 {
		s.cancel()
	}
	return s.fakeReader.ReadMessage(ctx)
}

func TestKafkaEventSourceReturnsPartialWindowOnTimeout(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &stallingReader{cancel: cancel, fakeReader: fakeReader{messages: []kafka.Message{
		stateMessage(t, "light.kitchen", "on", start.Add(time.Hour)),
		stateMessage(t, "light.kitchen", "off", start.Add(2*time.Hour)),
	}}}
	src := NewKafkaEventSource(config.KafkaClientConfig{Brokers: []string{"kafka:9092"}, Topic: "t", MaxWait: time.Minute}, nil)
	src.newReader = func() messageReader { return reader }

	events, err := src.QueryEvents(ctx, nil, models.TimeRange{Start: start, End: start.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.True(t, reader.closed)

	empty := &stallingReader{cancel: func() {}}
	src.newReader = func() messageReader { return empty }
	_, err = src.QueryEvents(ctx, nil, models.TimeRange{Start: start, End: start.Add(24 * time.Hour)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKafkaEventSourceIdleTopic(t *testing.T) {
	reader := &fakeReader{}
	src := NewKafkaEventSource(config.KafkaClientConfig{Brokers: []string{"kafka:9092"}, Topic: "t", MaxWait: 5 * time.Millisecond}, nil)
	src.newReader = func() messageReader { return reader }

	events, err := src.QueryEvents(context.Background(), nil, models.TimeRange{End: time.Now()})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestKafkaEventSourceNotConfigured(t *testing.T) {
	src := NewKafkaEventSource(config.KafkaClientConfig{}, nil)
	_, err := src.QueryEvents(context.Background(), nil, models.TimeRange{})
	assert.Error(t, err)
}
