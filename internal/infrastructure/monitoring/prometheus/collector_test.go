package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) MetricsCollector {
	t.Helper()
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "lesmrc"}, nil)
	require.NoError(t, err)
	return c
}

func TestNewMetricsCollector_RequiresNamespace(t *testing.T) {
	_, err := NewMetricsCollector(CollectorConfig{}, nil)
	assert.Error(t, err)
}

func TestRegisterCounter(t *testing.T) {
	c := newTestCollector(t)
	counter := c.RegisterCounter("test_total", "test counter", "label")
	counter.WithLabelValues("a").Inc()
	counter.WithLabelValues("a").Add(2)

	body := scrape(t, c)
	assert.Contains(t, body, `lesmrc_test_total{label="a"} 3`)
}

func TestRegisterGauge(t *testing.T) {
	c := newTestCollector(t)
	gauge := c.RegisterGauge("test_gauge", "test gauge")
	gauge.WithLabelValues().Set(5)
	gauge.WithLabelValues().Dec()

	body := scrape(t, c)
	assert.Contains(t, body, "lesmrc_test_gauge 4")
}

func TestRegisterHistogram(t *testing.T) {
	c := newTestCollector(t)
	hist := c.RegisterHistogram("test_seconds", "test histogram", []float64{1, 10}, "stage")
	hist.WithLabelValues("clean").Observe(0.5)

	body := scrape(t, c)
	assert.Contains(t, body, `lesmrc_test_seconds_count{stage="clean"} 1`)
}

func TestRegister_DuplicateReturnsSameInstrument(t *testing.T) {
	c := newTestCollector(t)
	first := c.RegisterCounter("dup_total", "dup", "l")
	second := c.RegisterCounter("dup_total", "dup", "l")

	first.WithLabelValues("x").Inc()
	second.WithLabelValues("x").Inc()

	body := scrape(t, c)
	assert.Contains(t, body, `lesmrc_dup_total{l="x"} 2`)
}

func TestRegister_ConflictFallsBackToNoop(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("mixed", "as counter")
	// Same name, different type: the registry rejects it and the caller
	// gets a working no-op instead of a panic.
	hist := c.RegisterHistogram("mixed", "as histogram", nil)
	assert.NotPanics(t, func() { hist.WithLabelValues().Observe(1) })
}

func TestTimer(t *testing.T) {
	c := newTestCollector(t)
	hist := c.RegisterHistogram("timed_seconds", "timer test", []float64{10})

	timer := NewTimer(hist.WithLabelValues())
	time.Sleep(time.Millisecond)
	timer.ObserveDuration()

	body := scrape(t, c)
	assert.Contains(t, body, "lesmrc_timed_seconds_count 1")

	assert.NotPanics(t, func() { (&Timer{}).ObserveDuration() })
}

func scrape(t *testing.T, c MetricsCollector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestPipelineMetrics(t *testing.T) {
	c := newTestCollector(t)
	m := NewPipelineMetrics(c)

	m.RecordSample("train", "ok")
	m.RecordSample("train", "ok")
	m.RecordSample("infer", "skipped")
	m.RecordStage("rank", 50*time.Millisecond, nil)
	m.RecordStage("labels", time.Millisecond, assert.AnError)
	m.RecordSpanLocate("exact", time.Microsecond)
	m.RecordSpanLocate("fuzzy", time.Millisecond)
	m.RecordResolution("train", 0.92, 2)
	m.RecordCacheAccess("span", true)
	m.RecordCacheAccess("span", false)
	m.RecordParseSkip("oversize")
	m.RecordPassageLength(512)
	m.RecordMessage("mrc.samples.labeled", "produced")
	m.WorkerStarted()
	m.WorkerStarted()
	m.WorkerStopped()
	m.SampleStarted()
	m.SampleFinished()

	body := scrape(t, c)
	assert.Contains(t, body, `lesmrc_samples_total{mode="train",status="ok"} 2`)
	assert.Contains(t, body, `lesmrc_samples_total{mode="infer",status="skipped"} 1`)
	assert.Contains(t, body, `lesmrc_stage_errors_total{stage="labels"} 1`)
	assert.Contains(t, body, `lesmrc_span_locate_total{strategy="exact"} 1`)
	assert.Contains(t, body, `lesmrc_cache_hits_total{cache="span"} 1`)
	assert.Contains(t, body, `lesmrc_cache_misses_total{cache="span"} 1`)
	assert.Contains(t, body, `lesmrc_parse_skips_total{reason="oversize"} 1`)
	assert.Contains(t, body, `lesmrc_messages_total{result="produced",topic="mrc.samples.labeled"} 1`)
	assert.Contains(t, body, "lesmrc_passage_length_tokens_count 1")
	assert.Contains(t, body, "lesmrc_active_workers 1")
	assert.Contains(t, body, "lesmrc_records_in_flight 0")
	assert.True(t, strings.Contains(body, "lesmrc_ceil_rougel_count") ||
		strings.Contains(body, `lesmrc_ceil_rougel_count{mode="train"}`))
}
