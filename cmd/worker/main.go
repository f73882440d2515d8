// The worker runs the preprocessing pipeline as a continuous Kafka consumer:
// raw samples in from the input topic, labeled samples out to the output
// topic, poison records to the DLQ.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/config"
	redisinfra "github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/database/redis"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/messaging/kafka"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/logging"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/prometheus"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/sample"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/span"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/pipeline"
	"github.com/Guhaifudeng/les-military-mrc-rank7/pkg/errors"
)

const metricsNamespace = "lesmrc"

func main() {
	configPath := flag.String("config", "", "config file path (default: environment)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateWorker(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid worker configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	log := logger.With(logging.String("run_id", uuid.NewString()))

	// Hot-reload the log level on config file edits; everything else needs a
	// restart.
	if *configPath != "" {
		config.Watch(*configPath, func(newCfg *config.Config) {
			if ls, ok := logger.(logging.LevelSetter); ok {
				ls.SetLevel(newCfg.Log.Level)
			}
			log.Info("config reloaded", logging.String("log_level", newCfg.Log.Level))
		})
	}

	var (
		metrics    *prometheus.PipelineMetrics
		metricsSrv *http.Server
	)
	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            metricsNamespace,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger)
		if err != nil {
			log.Fatal("metrics collector setup failed", logging.Err(err))
		}
		metrics = prometheus.NewPipelineMetrics(collector)

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, collector.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			log.Info("metrics listening",
				logging.String("addr", cfg.Metrics.Addr),
				logging.String("path", cfg.Metrics.Path))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", logging.Err(err))
			}
		}()
	}

	collab := pipeline.Collaborators{}
	var processed redisinfra.Cache
	if cfg.Redis.Enabled {
		client, err := redisinfra.NewClient(cfg.Redis, logger)
		if err != nil {
			log.Warn("redis unavailable, continuing uncached", logging.Err(err))
		} else {
			defer client.Close()
			cache := redisinfra.NewCache(client, logger,
				redisinfra.WithPrefix(cfg.Redis.KeyPrefix),
				redisinfra.WithDefaultTTL(cfg.Redis.DefaultTTL))
			collab.Locator = redisinfra.NewSpanCache(cache, span.NewLocator(), cfg.Redis.DefaultTTL, metrics)
			processed = cache
		}
	}

	stages, err := pipeline.BuildStages(cfg.Pipeline, collab, metrics, logger)
	if err != nil {
		log.Fatal("stage build failed", logging.Err(err))
	}
	proc := pipeline.New(stages,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics))

	producer := kafka.NewProducer(cfg.Kafka, logger)
	producer.SetMetrics(metrics)
	defer producer.Close()
	consumer := kafka.NewConsumer(cfg.Kafka, producer, logger)
	consumer.SetMetrics(metrics)
	defer consumer.Close()

	handler := func(ctx context.Context, _, value []byte) error {
		smp, err := sample.Parse(value)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeRecordParse, "record parse failed")
		}

		if processed != nil && smp.QuestionID != "" {
			seen, err := processed.MarkProcessed(ctx, smp.QuestionID, cfg.Redis.DefaultTTL)
			if err == nil && seen {
				log.Debug("duplicate record skipped",
					logging.String("question_id", smp.QuestionID))
				return nil
			}
		}

		if err := proc.Process(ctx, smp); err != nil {
			return err
		}
		encoded, err := smp.Encode()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "record encode failed")
		}
		return producer.Publish(ctx, []byte(smp.QuestionID), encoded)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("worker started",
		logging.String("input_topic", cfg.Kafka.InputTopic),
		logging.String("output_topic", cfg.Kafka.OutputTopic),
		logging.String("group_id", cfg.Kafka.GroupID))

	runErr := consumer.Run(ctx, handler)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}

	procCount, poisoned := consumer.Stats()
	log.Info("worker stopped",
		logging.Int64("processed", procCount),
		logging.Int64("poisoned", poisoned))
	if runErr != nil {
		log.Error("worker exited with error", logging.Err(runErr))
		os.Exit(1)
	}
}
