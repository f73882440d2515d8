// Package config defines the configuration structures of the preprocessing
// pipeline.  No I/O or parsing logic lives here, only plain data types and
// validation.
package config

import (
	"fmt"
	"time"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/logging"
)

// PipelineConfig holds the knobs of the preprocessing stages themselves.
type PipelineConfig struct {
	// MaxDocLen is the passage token budget per document, title included.
	MaxDocLen int `mapstructure:"max_doc_len"`

	// Splitter is the separator token inserted between passage segments.
	Splitter string `mapstructure:"splitter"`

	// FilterThreshold drops paragraphs scoring at or below it.
	FilterThreshold float64 `mapstructure:"filter_threshold"`

	// Workers is the number of concurrent stream workers.
	Workers int `mapstructure:"workers"`

	// MaxLineBytes bounds a single NDJSON line; longer lines are skipped.
	MaxLineBytes int `mapstructure:"max_line_bytes"`

	// Stages lists which stages the `run` pipeline executes, in order.
	// Empty means all of them.
	Stages []string `mapstructure:"stages"`
}

// RedisConfig holds Redis connection parameters for the span cache and
// processed-ID dedupe set.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`

	// Enabled gates the cache entirely; the pipeline runs uncached when
	// false.
	Enabled bool `mapstructure:"enabled"`
}

// KafkaConfig holds producer/consumer parameters for the streaming worker
// mode.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	InputTopic      string        `mapstructure:"input_topic"`
	OutputTopic     string        `mapstructure:"output_topic"`
	DeadLetterTopic string        `mapstructure:"dead_letter_topic"`
	MinBytes        int           `mapstructure:"min_bytes"`
	MaxBytes        int           `mapstructure:"max_bytes"`
	CommitInterval  time.Duration `mapstructure:"commit_interval"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	ProducerRetries int           `mapstructure:"producer_retries"`
}

// MinIOConfig holds object-storage parameters for corpus shards.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// MetricsConfig holds the Prometheus exposition parameters of the worker.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// Config is the root configuration of the pipeline binaries.
type Config struct {
	Pipeline PipelineConfig    `mapstructure:"pipeline"`
	Redis    RedisConfig       `mapstructure:"redis"`
	Kafka    KafkaConfig       `mapstructure:"kafka"`
	MinIO    MinIOConfig       `mapstructure:"minio"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	Log      logging.LogConfig `mapstructure:"log"`
}

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; any error is fatal at startup.
func (c *Config) Validate() error {
	if c.Pipeline.MaxDocLen < 1 {
		return fmt.Errorf("config: pipeline.max_doc_len must be >= 1, got %d", c.Pipeline.MaxDocLen)
	}
	if c.Pipeline.Splitter == "" {
		return fmt.Errorf("config: pipeline.splitter is required")
	}
	if c.Pipeline.FilterThreshold < 0 || c.Pipeline.FilterThreshold >= 1 {
		return fmt.Errorf("config: pipeline.filter_threshold %g is out of range [0, 1)", c.Pipeline.FilterThreshold)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("config: pipeline.workers must be >= 1, got %d", c.Pipeline.Workers)
	}
	for _, stage := range c.Pipeline.Stages {
		if !knownStage(stage) {
			return fmt.Errorf("config: pipeline.stages contains unknown stage %q", stage)
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: redis.addr is required when redis is enabled")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
		}
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}

	return nil
}

// ValidateWorker applies the extra requirements of the Kafka worker mode on
// top of Validate.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("config: kafka.group_id is required")
	}
	if c.Kafka.InputTopic == "" || c.Kafka.OutputTopic == "" {
		return fmt.Errorf("config: kafka.input_topic and kafka.output_topic are required")
	}
	return nil
}

// StageNames are the valid entries of pipeline.stages, in default execution
// order.
var StageNames = []string{"clean", "filter", "rank", "labels", "features"}

func knownStage(name string) bool {
	for _, s := range StageNames {
		if s == name {
			return true
		}
	}
	return false
}
