package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix of all pipeline settings.
const envPrefix = "LESMRC"

// boundKeys lists every config key the loader binds to the environment.
// Unmarshal only sees keys viper knows about, so env-only settings must be
// bound explicitly.
var boundKeys = []string{
	"pipeline.max_doc_len", "pipeline.splitter", "pipeline.filter_threshold",
	"pipeline.workers", "pipeline.max_line_bytes", "pipeline.stages",
	"redis.enabled", "redis.addr", "redis.password", "redis.db",
	"redis.pool_size", "redis.min_idle_conns", "redis.dial_timeout",
	"redis.read_timeout", "redis.write_timeout", "redis.default_ttl",
	"redis.key_prefix",
	"kafka.brokers", "kafka.group_id", "kafka.input_topic",
	"kafka.output_topic", "kafka.dead_letter_topic", "kafka.min_bytes",
	"kafka.max_bytes", "kafka.commit_interval", "kafka.batch_timeout",
	"kafka.producer_retries",
	"minio.endpoint", "minio.access_key", "minio.secret_key",
	"minio.bucket", "minio.use_ssl",
	"metrics.enabled", "metrics.addr", "metrics.path",
	"log.level", "log.format", "log.output_paths", "log.error_output_paths",
}

// newViper builds a pre-configured Viper instance: YAML file type, LESMRC_
// env prefix, env binding for every known key, and a key replacer mapping
// "." to "_" so nested keys like "redis.addr" resolve to
// "LESMRC_REDIS_ADDR".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range boundKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the YAML file at configPath, merges LESMRC_* environment
// overrides, applies defaults for unset fields and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from LESMRC_* environment variables
// and defaults, with no config file required.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the newly parsed
// Config whenever the file changes on disk.  Intended for hot-reloading
// non-critical settings such as the log level; a change that fails to parse
// or validate is dropped without invoking the callback.
//
// Watch is non-blocking; viper manages the background goroutine.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Initial read establishes the watch baseline; callers load separately.
	_ = v.ReadInConfig()

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
}
