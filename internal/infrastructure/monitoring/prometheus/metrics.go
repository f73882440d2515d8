package prometheus

import "time"

// PipelineMetrics holds every instrument of the preprocessing pipeline.
// Locate strategies are labeled with the strategy names the span locator
// reports ("exact", "strip_stop", "strip_space", "fuzzy", "miss").
type PipelineMetrics struct {
	SamplesTotal    CounterVec
	ParseSkipsTotal CounterVec
	StageDuration   HistogramVec
	StageErrors     CounterVec

	SpanLocateTotal    CounterVec
	SpanLocateDuration HistogramVec

	CeilRougeL    HistogramVec
	PassageLength HistogramVec
	AnswerLabels  HistogramVec

	CacheHitsTotal   CounterVec
	CacheMissesTotal CounterVec

	MessagesTotal   CounterVec
	ActiveWorkers   GaugeVec
	RecordsInFlight GaugeVec
}

var (
	// StageDurationBuckets fits per-sample stage latencies: fuzzy span
	// search over long documents can run into seconds.
	StageDurationBuckets = []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 10}

	// RatioBuckets covers scores bounded to [0,1].
	RatioBuckets = []float64{0, .1, .2, .3, .4, .5, .6, .7, .8, .9, .95, 1}

	// LengthBuckets covers passage token counts.
	LengthBuckets = []float64{64, 128, 256, 512, 768, 1024, 1536, 2048}

	// CountBuckets covers small per-sample cardinalities.
	CountBuckets = []float64{0, 1, 2, 3, 5, 8, 13, 21}
)

// NewPipelineMetrics registers all pipeline instruments on the collector.
func NewPipelineMetrics(collector MetricsCollector) *PipelineMetrics {
	m := &PipelineMetrics{}

	m.SamplesTotal = collector.RegisterCounter("samples_total", "Samples processed", "mode", "status")
	m.ParseSkipsTotal = collector.RegisterCounter("parse_skips_total", "Input lines skipped before processing", "reason")
	m.StageDuration = collector.RegisterHistogram("stage_duration_seconds", "Per-sample stage duration", StageDurationBuckets, "stage")
	m.StageErrors = collector.RegisterCounter("stage_errors_total", "Stage failures", "stage")

	m.SpanLocateTotal = collector.RegisterCounter("span_locate_total", "Span locate calls by resolution strategy", "strategy")
	m.SpanLocateDuration = collector.RegisterHistogram("span_locate_duration_seconds", "Span locate duration", StageDurationBuckets, "strategy")

	m.CeilRougeL = collector.RegisterHistogram("ceil_rougel", "Achievability ceiling of resolved samples", RatioBuckets, "mode")
	m.PassageLength = collector.RegisterHistogram("passage_length_tokens", "Selected passage length", LengthBuckets)
	m.AnswerLabels = collector.RegisterHistogram("answer_labels_per_sample", "Resolved answer labels per sample", CountBuckets)

	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")

	m.MessagesTotal = collector.RegisterCounter("messages_total", "Kafka messages by topic and result", "topic", "result")
	m.ActiveWorkers = collector.RegisterGauge("active_workers", "Stream workers currently running")
	m.RecordsInFlight = collector.RegisterGauge("records_in_flight", "Samples being processed right now")

	return m
}

// RecordSample counts one finished sample.
func (m *PipelineMetrics) RecordSample(mode, status string) {
	m.SamplesTotal.WithLabelValues(mode, status).Inc()
}

// RecordStage observes one stage execution.
func (m *PipelineMetrics) RecordStage(stage string, d time.Duration, err error) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		m.StageErrors.WithLabelValues(stage).Inc()
	}
}

// RecordSpanLocate counts one locate call under its winning strategy.
func (m *PipelineMetrics) RecordSpanLocate(strategy string, d time.Duration) {
	m.SpanLocateTotal.WithLabelValues(strategy).Inc()
	m.SpanLocateDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// RecordResolution observes the supervision quality of one training sample.
func (m *PipelineMetrics) RecordResolution(mode string, ceilRougeL float64, labelCount int) {
	m.CeilRougeL.WithLabelValues(mode).Observe(ceilRougeL)
	m.AnswerLabels.WithLabelValues().Observe(float64(labelCount))
}

// RecordCacheAccess counts a hit or miss on the named cache.
func (m *PipelineMetrics) RecordCacheAccess(cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

// RecordParseSkip counts one input line dropped before the pipeline ran.
func (m *PipelineMetrics) RecordParseSkip(reason string) {
	m.ParseSkipsTotal.WithLabelValues(reason).Inc()
}

// RecordPassageLength observes the token length of one selected passage.
func (m *PipelineMetrics) RecordPassageLength(tokens int) {
	m.PassageLength.WithLabelValues().Observe(float64(tokens))
}

// RecordMessage counts one broker message by topic and result.
func (m *PipelineMetrics) RecordMessage(topic, result string) {
	m.MessagesTotal.WithLabelValues(topic, result).Inc()
}

// WorkerStarted and WorkerStopped track the live worker-pool size.
func (m *PipelineMetrics) WorkerStarted() { m.ActiveWorkers.WithLabelValues().Inc() }

func (m *PipelineMetrics) WorkerStopped() { m.ActiveWorkers.WithLabelValues().Dec() }

// SampleStarted and SampleFinished track samples currently inside a
// pipeline pass.
func (m *PipelineMetrics) SampleStarted() { m.RecordsInFlight.WithLabelValues().Inc() }

func (m *PipelineMetrics) SampleFinished() { m.RecordsInFlight.WithLabelValues().Dec() }
