package kafka

import (
	"context"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/config"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) all() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.messages...)
}

func testKafkaConfig() config.KafkaConfig {
	return config.KafkaConfig{
		Brokers:         []string{"localhost:9092"},
		GroupID:         "mrc-pipeline",
		InputTopic:      "mrc.samples.raw",
		OutputTopic:     "mrc.samples.labeled",
		DeadLetterTopic: "mrc.samples.dlq",
	}
}

func TestProducerPublish(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, testKafkaConfig(), nil)

	err := p.Publish(context.Background(), []byte("q1"), []byte(`{"question_id":"q1"}`))
	require.NoError(t, err)

	msgs := w.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "mrc.samples.labeled", msgs[0].Topic)
	assert.Equal(t, []byte("q1"), msgs[0].Key)

	sent, failed, dlq := p.Stats()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(0), failed)
	assert.Equal(t, int64(0), dlq)
}

func TestProducerPublishEmptyValue(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{}, testKafkaConfig(), nil)
	err := p.Publish(context.Background(), []byte("q1"), nil)
	assert.Error(t, err)
}

func TestProducerPublishWriteError(t *testing.T) {
	w := &fakeWriter{err: assert.AnError}
	p := NewProducerWithWriter(w, testKafkaConfig(), nil)

	err := p.Publish(context.Background(), []byte("q1"), []byte("x"))
	require.Error(t, err)

	_, failed, _ := p.Stats()
	assert.Equal(t, int64(1), failed)
}

func TestProducerDeadLetter(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, testKafkaConfig(), nil)

	err := p.PublishDeadLetter(context.Background(), []byte("q2"), []byte("bad"), "json parse failed")
	require.NoError(t, err)

	msgs := w.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "mrc.samples.dlq", msgs[0].Topic)
	require.Len(t, msgs[0].Headers, 1)
	assert.Equal(t, "error_reason", msgs[0].Headers[0].Key)
	assert.Equal(t, []byte("json parse failed"), msgs[0].Headers[0].Value)
}

func TestProducerDeadLetterNoTopic(t *testing.T) {
	cfg := testKafkaConfig()
	cfg.DeadLetterTopic = ""
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, cfg, nil)

	err := p.PublishDeadLetter(context.Background(), nil, []byte("bad"), "oops")
	require.NoError(t, err)
	assert.Empty(t, w.all())
}

func TestProducerClose(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, testKafkaConfig(), nil)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)

	err := p.Publish(context.Background(), nil, []byte("x"))
	assert.ErrorIs(t, err, ErrProducerClosed)

	// second close is a no-op
	require.NoError(t, p.Close())
}
