package redis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/prometheus"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/span"
)

// SpanCache memoizes span resolution.  Identical fragment/container pairs
// recur across dataset shards, and the fuzzy fallback is the most expensive
// step of the pipeline, so repeated locates are worth a round trip.
type SpanCache struct {
	cache   Cache
	locator *span.Locator
	ttl     time.Duration
	metrics *prometheus.PipelineMetrics
}

// NewSpanCache wraps locator with cached lookups.  metrics may be nil.
func NewSpanCache(cache Cache, locator *span.Locator, ttl time.Duration, metrics *prometheus.PipelineMetrics) *SpanCache {
	return &SpanCache{cache: cache, locator: locator, ttl: ttl, metrics: metrics}
}

// Locate returns the cached match for the pair, computing and storing it on
// a miss.  Cache failures fall back to direct computation.  The signature
// matches span.Locator so a SpanCache can stand in wherever a locator is
// expected.
func (s *SpanCache) Locate(fragment, container string) span.Match {
	ctx := context.Background()
	key := spanKey(fragment, container)

	var match span.Match
	missed := false
	err := s.cache.GetOrSet(ctx, key, &match, s.ttl, func(context.Context) (interface{}, error) {
		missed = true
		return s.locator.Locate(fragment, container), nil
	})
	if err != nil {
		return s.locator.Locate(fragment, container)
	}
	s.recordAccess(!missed)
	return match
}

// LocateRunes delegates to the wrapped locator uncached: the rune form is
// used to anchor fragments in full documents, whose containers rarely repeat
// across samples.
func (s *SpanCache) LocateRunes(fragment, container []rune) span.Match {
	return s.locator.LocateRunes(fragment, container)
}

func (s *SpanCache) recordAccess(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheAccess("span", hit)
	}
}

// spanKey hashes the pair; raw documents are far too long to be keys.
func spanKey(fragment, container string) string {
	h := sha1.New()
	h.Write([]byte(fragment))
	h.Write([]byte{0})
	h.Write([]byte(container))
	return "span:" + hex.EncodeToString(h.Sum(nil))
}
