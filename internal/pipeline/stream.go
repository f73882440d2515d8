package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/logging"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/prometheus"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/sample"
	"github.com/Guhaifudeng/les-military-mrc-rank7/pkg/errors"
)

// Stats counts the outcome of one stream run.
type Stats struct {
	Read      int64 // lines read
	Skipped   int64 // non-JSON or unparseable lines dropped
	Processed int64 // samples emitted after a clean pipeline pass
	Failed    int64 // samples emitted despite a stage failure
}

// PipelineFactory builds one Pipeline per worker, so collaborator handles
// that are not safe for concurrent use stay worker-local.
type PipelineFactory func() *Pipeline

// Stream runs a pipeline over an NDJSON sample stream.  Output order across
// samples follows completion, not input order.
type Stream struct {
	factory      PipelineFactory
	workers      int
	maxLineBytes int
	logger       logging.Logger
	metrics      *prometheus.PipelineMetrics
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithStreamLogger sets the stream logger.
func WithStreamLogger(log logging.Logger) StreamOption {
	return func(s *Stream) {
		if log != nil {
			s.logger = log.Named("stream")
		}
	}
}

// WithStreamMetrics attaches sample metrics.
func WithStreamMetrics(m *prometheus.PipelineMetrics) StreamOption {
	return func(s *Stream) { s.metrics = m }
}

// NewStream builds a Stream running workers parallel pipelines, each line
// bounded by maxLineBytes.
func NewStream(factory PipelineFactory, workers, maxLineBytes int, opts ...StreamOption) *Stream {
	if workers < 1 {
		workers = 1
	}
	if maxLineBytes < bufio.MaxScanTokenSize {
		maxLineBytes = bufio.MaxScanTokenSize
	}
	s := &Stream{
		factory:      factory,
		workers:      workers,
		maxLineBytes: maxLineBytes,
		logger:       logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run streams r through the pipeline into w: one output line per parseable
// input line.  Lines not starting with '{' are skipped silently; lines that
// fail to parse or exceed the line-size bound are skipped with a warning.
// A stage failure on one sample logs and emits the sample as far as it got;
// only stream-level I/O aborts the run.
func (s *Stream) Run(ctx context.Context, r io.Reader, w io.Writer) (Stats, error) {
	runID := uuid.NewString()
	log := s.logger.With(logging.String("run_id", runID))

	var read, skipped, processed, failed atomic.Int64

	lines := make(chan []byte, s.workers)
	out := make(chan []byte, s.workers)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(lines)
		br := bufio.NewReaderSize(r, 64*1024)
		for {
			line, tooLong, err := readLine(br, s.maxLineBytes)
			if err != nil && err != io.EOF {
				return errors.Wrap(err, errors.ErrCodeStreamIO, "stream read failed")
			}
			atEOF := err == io.EOF
			if atEOF && len(line) == 0 && !tooLong {
				return nil
			}
			read.Add(1)
			if tooLong {
				log.Warn("skipping oversized line",
					logging.Int("max_line_bytes", s.maxLineBytes))
				s.recordParseSkip("oversize")
				skipped.Add(1)
			} else if len(bytes.TrimSpace(line)) == 0 || line[0] != '{' {
				skipped.Add(1)
			} else {
				select {
				case lines <- line:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if atEOF {
				return nil
			}
		}
	})

	var workers sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			if s.metrics != nil {
				s.metrics.WorkerStarted()
				defer s.metrics.WorkerStopped()
			}
			p := s.factory()
			for line := range lines {
				encoded, outcome := s.processLine(gctx, p, line, log)
				switch outcome {
				case outcomeSkipped:
					skipped.Add(1)
					continue
				case outcomeFailed:
					failed.Add(1)
				default:
					processed.Add(1)
				}
				select {
				case out <- encoded:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(out)
	}()

	writeErr := make(chan error, 1)
	go func() {
		bw := bufio.NewWriter(w)
		for line := range out {
			if _, err := bw.Write(line); err != nil {
				writeErr <- errors.Wrap(err, errors.ErrCodeStreamIO, "stream write failed")
				// drain so workers never block on a dead writer
				for range out {
				}
				return
			}
			if err := bw.WriteByte('\n'); err != nil {
				writeErr <- errors.Wrap(err, errors.ErrCodeStreamIO, "stream write failed")
				for range out {
				}
				return
			}
		}
		writeErr <- bw.Flush()
	}()

	runErr := g.Wait()
	if err := <-writeErr; err != nil && runErr == nil {
		runErr = err
	}

	stats := Stats{
		Read:      read.Load(),
		Skipped:   skipped.Load(),
		Processed: processed.Load(),
		Failed:    failed.Load(),
	}
	log.Info("stream finished",
		logging.Int64("read", stats.Read),
		logging.Int64("skipped", stats.Skipped),
		logging.Int64("processed", stats.Processed),
		logging.Int64("failed", stats.Failed))
	return stats, runErr
}

// readLine reads one newline-terminated line, accumulating at most max
// bytes.  A longer line is reported tooLong and its remainder is consumed
// and discarded, so one oversized record never ends the stream.  The
// returned slice is freshly allocated and safe to hand to another
// goroutine.
func readLine(br *bufio.Reader, max int) (line []byte, tooLong bool, err error) {
	for {
		frag, ferr := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(frag) > max {
				tooLong = true
				line = nil
			} else {
				line = append(line, frag...)
			}
		}
		if ferr == bufio.ErrBufferFull {
			continue
		}
		line = bytes.TrimRight(line, "\r\n")
		return line, tooLong, ferr
	}
}

type lineOutcome int

const (
	outcomeOK lineOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// processLine runs one line through the pipeline.  A sample whose stage
// failed is still emitted with whatever fields resolved before the failure.
func (s *Stream) processLine(ctx context.Context, p *Pipeline, line []byte, log logging.Logger) ([]byte, lineOutcome) {
	if s.metrics != nil {
		s.metrics.SampleStarted()
		defer s.metrics.SampleFinished()
	}

	smp, err := sample.Parse(line)
	if err != nil {
		log.Warn("skipping unparseable line", logging.Err(err))
		s.recordParseSkip("parse")
		s.recordSample("", "parse_skip")
		return nil, outcomeSkipped
	}

	mode := "infer"
	if smp.IsTraining() {
		mode = "train"
	}

	outcome := outcomeOK
	if err := p.Process(ctx, smp); err != nil {
		log.Error("sample failed, emitting partial result",
			logging.String("question_id", smp.QuestionID),
			logging.Err(err))
		s.recordSample(mode, "failed")
		outcome = outcomeFailed
	} else {
		s.recordSample(mode, "ok")
	}

	encoded, err := smp.Encode()
	if err != nil {
		log.Error("sample did not re-encode, dropping",
			logging.String("question_id", smp.QuestionID),
			logging.Err(err))
		s.recordParseSkip("encode")
		s.recordSample(mode, "encode_skip")
		return nil, outcomeSkipped
	}
	return encoded, outcome
}

func (s *Stream) recordSample(mode, status string) {
	if s.metrics != nil {
		s.metrics.RecordSample(mode, status)
	}
}

func (s *Stream) recordParseSkip(reason string) {
	if s.metrics != nil {
		s.metrics.RecordParseSkip(reason)
	}
}
