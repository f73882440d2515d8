package config

import (
	"runtime"
	"time"
)

const (
	DefaultMaxDocLen       = 1024
	DefaultSplitter        = "<splitter>"
	DefaultFilterThreshold = 0.1
	DefaultMaxLineBytes    = 16 * 1024 * 1024

	DefaultRedisAddr = "localhost:6379"
	DefaultRedisTTL  = 24 * time.Hour
	DefaultKeyPrefix = "lesmrc"

	DefaultKafkaBroker     = "localhost:9092"
	DefaultKafkaGroupID    = "lesmrc-preprocess"
	DefaultInputTopic      = "mrc.samples.raw"
	DefaultOutputTopic     = "mrc.samples.labeled"
	DefaultDeadLetterTopic = "mrc.samples.dlq"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultBucket        = "lesmrc-corpus"

	DefaultMetricsAddr = ":9090"
	DefaultMetricsPath = "/metrics"
)

// ApplyDefaults fills every zero-value field in cfg with the pipeline
// default.  Fields already set by the caller are left unchanged so explicit
// configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Pipeline.MaxDocLen == 0 {
		cfg.Pipeline.MaxDocLen = DefaultMaxDocLen
	}
	if cfg.Pipeline.Splitter == "" {
		cfg.Pipeline.Splitter = DefaultSplitter
	}
	if cfg.Pipeline.FilterThreshold == 0 {
		cfg.Pipeline.FilterThreshold = DefaultFilterThreshold
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = runtime.NumCPU()
	}
	if cfg.Pipeline.MaxLineBytes == 0 {
		cfg.Pipeline.MaxLineBytes = DefaultMaxLineBytes
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultKeyPrefix
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.InputTopic == "" {
		cfg.Kafka.InputTopic = DefaultInputTopic
	}
	if cfg.Kafka.OutputTopic == "" {
		cfg.Kafka.OutputTopic = DefaultOutputTopic
	}
	if cfg.Kafka.DeadLetterTopic == "" {
		cfg.Kafka.DeadLetterTopic = DefaultDeadLetterTopic
	}
	if cfg.Kafka.CommitInterval == 0 {
		cfg.Kafka.CommitInterval = time.Second
	}
	if cfg.Kafka.ProducerRetries == 0 {
		cfg.Kafka.ProducerRetries = 3
	}

	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultBucket
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
