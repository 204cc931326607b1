package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

type fakeToken struct {
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeClient struct {
	connected  bool
	connectErr error
	publishErr error
	topic      string
	retained   bool
	payload    []byte
}

func (f *fakeClient) IsConnected() bool { return f.connected }

func (f *fakeClient) Connect() mqtt.Token {
	if f.connectErr == nil {
		f.connected = true
	}
	return fakeToken{err: f.connectErr}
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.topic = topic
	f.retained = retained
	f.payload = payload.([]byte)
	return fakeToken{err: f.publishErr}
}

func (f *fakeClient) Disconnect(uint) { f.connected = false }

func TestMQTTPublisherPublishesTopSuggestions(t *testing.T) {
	client := &fakeClient{}
	p := newMQTTPublisher(client, "mirador/synergy/suggestions", time.Second, nil)

	result := models.AnalysisResult{RunID: "run-1"}
	for i := 0; i < 25; i++ {
		result.Suggestions = append(result.Suggestions, models.Suggestion{ID: "s", Confidence: 0.5})
	}
	require.NoError(t, p.Publish(context.Background(), result))

	assert.True(t, client.connected)
	assert.True(t, client.retained)
	assert.Equal(t, "mirador/synergy/suggestions", client.topic)
	var msg Message
	require.NoError(t, json.Unmarshal(client.payload, &msg))
	assert.Equal(t, "run-1", msg.RunID)
	assert.Len(t, msg.Suggestions, maxPublished)

	p.Close()
	assert.False(t, client.connected)
}

func TestMQTTPublisherErrors(t *testing.T) {
	p := newMQTTPublisher(&fakeClient{connectErr: errors.New("refused")}, "t", time.Second, nil)
	assert.Error(t, p.Publish(context.Background(), models.AnalysisResult{}))

	p = newMQTTPublisher(&fakeClient{publishErr: errors.New("not authorised")}, "t", time.Second, nil)
	assert.Error(t, p.Publish(context.Background(), models.AnalysisResult{}))
}
