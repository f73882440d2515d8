// Package kafka moves sample records through Kafka so the pipeline can run
// as a continuous worker: raw samples in, labeled samples out, poison
// records to a dead letter topic.
package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/config"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/logging"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/prometheus"
	"github.com/Guhaifudeng/les-military-mrc-rank7/pkg/errors"
)

var ErrProducerClosed = errors.New(errors.ErrCodeMessagingError, "producer closed")

// messageWriter abstracts kafka.Writer for testing.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes processed sample lines to the output topic and poison
// records to the dead letter topic.
type Producer struct {
	writer      messageWriter
	outputTopic string
	dlqTopic    string
	logger      logging.Logger
	metrics     *prometheus.PipelineMetrics
	closed      atomic.Bool

	sent        atomic.Int64
	failed      atomic.Int64
	deadLetters atomic.Int64
}

// NewProducer builds a Producer from the Kafka settings.
func NewProducer(cfg config.KafkaConfig, log logging.Logger) *Producer {
	if log == nil {
		log = logging.NewNopLogger()
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = 100 * time.Millisecond
	}
	retries := cfg.ProducerRetries
	if retries == 0 {
		retries = 3
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  retries + 1,
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
	}

	return newProducer(writer, cfg, log)
}

// NewProducerWithWriter injects a writer; tests use it with a fake.
func NewProducerWithWriter(w messageWriter, cfg config.KafkaConfig, log logging.Logger) *Producer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return newProducer(w, cfg, log)
}

func newProducer(w messageWriter, cfg config.KafkaConfig, log logging.Logger) *Producer {
	return &Producer{
		writer:      w,
		outputTopic: cfg.OutputTopic,
		dlqTopic:    cfg.DeadLetterTopic,
		logger:      log.Named("kafka.producer"),
	}
}

// SetMetrics attaches message counters; safe to leave unset.
func (p *Producer) SetMetrics(m *prometheus.PipelineMetrics) { p.metrics = m }

func (p *Producer) recordMessage(topic, result string) {
	if p.metrics != nil {
		p.metrics.RecordMessage(topic, result)
	}
}

// Publish sends one processed sample line, keyed by question id so a
// sample's revisions land in one partition.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(value) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "empty message value")
	}

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.outputTopic,
		Key:   key,
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		p.failed.Add(1)
		p.recordMessage(p.outputTopic, "error")
		return errors.Wrap(err, errors.ErrCodeMessagingError, "publish failed")
	}
	p.sent.Add(1)
	p.recordMessage(p.outputTopic, "produced")
	return nil
}

// PublishDeadLetter routes a record that could not be processed to the DLQ,
// annotated with the failure reason.  A missing DLQ topic drops the record
// with a log line.
func (p *Producer) PublishDeadLetter(ctx context.Context, key, value []byte, reason string) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if p.dlqTopic == "" {
		p.logger.Warn("no dead letter topic configured, dropping record",
			logging.String("reason", reason))
		return nil
	}

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.dlqTopic,
		Key:   key,
		Value: value,
		Headers: []kafka.Header{
			{Key: "error_reason", Value: []byte(reason)},
		},
		Time: time.Now(),
	})
	if err != nil {
		p.failed.Add(1)
		p.recordMessage(p.dlqTopic, "error")
		return errors.Wrap(err, errors.ErrCodeMessagingError, "dead letter publish failed")
	}
	p.deadLetters.Add(1)
	p.recordMessage(p.dlqTopic, "dead_letter")
	return nil
}

// Stats returns the message counters.
func (p *Producer) Stats() (sent, failed, deadLetters int64) {
	return p.sent.Load(), p.failed.Load(), p.deadLetters.Load()
}

func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("kafka producer closed", logging.Int64("sent", p.sent.Load()))
	return err
}
