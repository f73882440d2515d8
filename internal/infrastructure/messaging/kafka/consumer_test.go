package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guhaifudeng/les-military-mrc-rank7/pkg/errors"
)

// fakeReader serves a fixed queue of messages, then cancels the run context
// so Run returns cleanly.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	cancel    context.CancelFunc
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		if r.cancel != nil {
			r.cancel()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func rawMessage(key, value string, offset int64) kafka.Message {
	return kafka.Message{
		Topic:  "mrc.samples.raw",
		Key:    []byte(key),
		Value:  []byte(value),
		Offset: offset,
	}
}

func TestConsumerRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		queue: []kafka.Message{
			rawMessage("q1", `{"question_id":"q1"}`, 0),
			rawMessage("q2", `{"question_id":"q2"}`, 1),
		},
		cancel: cancel,
	}
	c := NewConsumerWithReader(r, nil, nil)

	var mu sync.Mutex
	var seen []string
	err := c.Run(ctx, func(_ context.Context, key, _ []byte) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(key))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"q1", "q2"}, seen)
	assert.Len(t, r.committed, 2)

	processed, poisoned := c.Stats()
	assert.Equal(t, int64(2), processed)
	assert.Equal(t, int64(0), poisoned)
}

func TestConsumerRoutesPoisonToDeadLetter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		queue:  []kafka.Message{rawMessage("q1", "not json", 0)},
		cancel: cancel,
	}
	w := &fakeWriter{}
	dlq := NewProducerWithWriter(w, testKafkaConfig(), nil)

	c := NewConsumerWithReader(r, dlq, nil)
	c.backoff = time.Millisecond

	var attempts int
	err := c.Run(ctx, func(_ context.Context, _, _ []byte) error {
		attempts++
		return errors.New(errors.ErrCodeInvalidInput, "parse failed")
	})
	require.NoError(t, err)

	// initial attempt plus the retries
	assert.Equal(t, 1+c.maxRetries, attempts)

	msgs := w.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "mrc.samples.dlq", msgs[0].Topic)
	assert.Equal(t, []byte("not json"), msgs[0].Value)

	// the poison record is still committed so the group moves on
	assert.Len(t, r.committed, 1)

	_, poisoned := c.Stats()
	assert.Equal(t, int64(1), poisoned)
}

func TestConsumerRetrySucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		queue:  []kafka.Message{rawMessage("q1", "{}", 0)},
		cancel: cancel,
	}
	c := NewConsumerWithReader(r, nil, nil)
	c.backoff = time.Millisecond

	var attempts int
	err := c.Run(ctx, func(_ context.Context, _, _ []byte) error {
		attempts++
		if attempts == 1 {
			return errors.New(errors.CodeInternal, "transient")
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, attempts)
	processed, poisoned := c.Stats()
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(0), poisoned)
}

func TestConsumerNilHandler(t *testing.T) {
	c := NewConsumerWithReader(&fakeReader{}, nil, nil)
	err := c.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestConsumerClose(t *testing.T) {
	r := &fakeReader{}
	c := NewConsumerWithReader(r, nil, nil)

	require.NoError(t, c.Close())
	assert.True(t, r.closed)

	err := c.Run(context.Background(), func(context.Context, []byte, []byte) error { return nil })
	assert.ErrorIs(t, err, ErrConsumerClosed)
}
