package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/config"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/logging"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/prometheus"
	"github.com/Guhaifudeng/les-military-mrc-rank7/pkg/errors"
)

var ErrConsumerClosed = errors.New(errors.ErrCodeMessagingError, "consumer closed")

// Handler processes one raw sample record.  A non-nil error marks the record
// as poison; the consumer retries it and finally routes it to the DLQ.
type Handler func(ctx context.Context, key, value []byte) error

// messageReader abstracts kafka.Reader for testing.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads raw sample records from the input topic and hands them to a
// Handler.  Offsets are committed only after the handler returns, so a crash
// replays unprocessed records rather than losing them.
type Consumer struct {
	reader     messageReader
	deadLetter *Producer
	logger     logging.Logger
	metrics    *prometheus.PipelineMetrics
	maxRetries int
	backoff    time.Duration

	closed    atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	processed atomic.Int64
	poisoned  atomic.Int64
}

// NewConsumer builds a Consumer from the Kafka settings.  deadLetter may be
// nil, in which case poison records are dropped after the retries.
func NewConsumer(cfg config.KafkaConfig, deadLetter *Producer, log logging.Logger) *Consumer {
	if log == nil {
		log = logging.NewNopLogger()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.InputTopic,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		CommitInterval: cfg.CommitInterval,
		StartOffset:    kafka.FirstOffset,
	})

	return newConsumer(reader, deadLetter, log)
}

// NewConsumerWithReader injects a reader; tests use it with a fake.
func NewConsumerWithReader(r messageReader, deadLetter *Producer, log logging.Logger) *Consumer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return newConsumer(r, deadLetter, log)
}

func newConsumer(r messageReader, deadLetter *Producer, log logging.Logger) *Consumer {
	return &Consumer{
		reader:     r,
		deadLetter: deadLetter,
		logger:     log.Named("kafka.consumer"),
		maxRetries: 2,
		backoff:    200 * time.Millisecond,
	}
}

// SetMetrics attaches message counters; safe to leave unset.
func (c *Consumer) SetMetrics(m *prometheus.PipelineMetrics) { c.metrics = m }

func (c *Consumer) recordMessage(topic, result string) {
	if c.metrics != nil {
		c.metrics.RecordMessage(topic, result)
	}
}

// Run consumes until ctx is canceled or the consumer is closed.  It blocks.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	if c.closed.Load() {
		return ErrConsumerClosed
	}
	if handler == nil {
		return errors.New(errors.ErrCodeInvalidInput, "nil handler")
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || c.closed.Load() {
				return nil
			}
			return errors.Wrap(err, errors.ErrCodeMessagingError, "fetch failed")
		}

		if err := c.process(ctx, msg, handler); err != nil {
			// DLQ publish failed; do not commit so the record replays.
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, errors.ErrCodeMessagingError, "commit failed")
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message, handler Handler) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
		if lastErr = handler(ctx, msg.Key, msg.Value); lastErr == nil {
			c.processed.Add(1)
			c.recordMessage(msg.Topic, "consumed")
			return nil
		}
	}

	c.poisoned.Add(1)
	c.recordMessage(msg.Topic, "poisoned")
	c.logger.Error("record failed after retries",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Err(lastErr))

	if c.deadLetter == nil {
		return nil
	}
	return c.deadLetter.PublishDeadLetter(ctx, msg.Key, msg.Value, lastErr.Error())
}

// Stats returns the record counters.
func (c *Consumer) Stats() (processed, poisoned int64) {
	return c.processed.Load(), c.poisoned.Load()
}

func (c *Consumer) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	err := c.reader.Close()
	c.logger.Info("kafka consumer closed",
		logging.Int64("processed", c.processed.Load()),
		logging.Int64("poisoned", c.poisoned.Load()))
	return err
}
