// Package pipeline composes the preprocessing stages and runs them over
// NDJSON sample streams.
package pipeline

import (
	"context"
	"time"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/logging"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/prometheus"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/sample"
	"github.com/Guhaifudeng/les-military-mrc-rank7/pkg/errors"
)

// Stage transforms one sample in place.  Stages must tolerate samples that
// earlier stages left partially populated.
type Stage interface {
	Name() string
	Process(ctx context.Context, s *sample.Sample) error
}

// Pipeline runs stages sequentially over one sample.
type Pipeline struct {
	stages  []Stage
	logger  logging.Logger
	metrics *prometheus.PipelineMetrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(log logging.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.logger = log.Named("pipeline")
		}
	}
}

// WithMetrics attaches stage metrics.
func WithMetrics(m *prometheus.PipelineMetrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New composes the stages into a Pipeline.
func New(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages: stages,
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, st := range p.stages {
		names[i] = st.Name()
	}
	return names
}

// Process runs every stage over the sample.  The first stage error aborts
// the remaining stages; the sample keeps whatever the completed stages set.
func (p *Pipeline) Process(ctx context.Context, s *sample.Sample) error {
	for _, st := range p.stages {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := st.Process(ctx, s)
		if p.metrics != nil {
			p.metrics.RecordStage(st.Name(), time.Since(start), err)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeStageFailed, "stage "+st.Name()+" failed")
		}
	}
	return nil
}
