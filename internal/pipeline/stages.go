package pipeline

import (
	"context"
	"time"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/config"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/logging"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/prometheus"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/cleaning"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/features"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/ranker"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/resolver"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/sample"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/similarity"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/span"
	"github.com/Guhaifudeng/les-military-mrc-rank7/pkg/errors"
)

// SpanResolver is what the label stage needs from the resolver.  *resolver.Resolver
// satisfies it; a cache-backed variant may wrap it.
type SpanResolver interface {
	Resolve(s *sample.Sample)
}

// Collaborators are the per-worker analysis handles injected into stages.
// Segmenter falls back to rune tokens when nil; Tagger may stay nil.
// Locator overrides the label stage's span locator, e.g. with the
// cache-backed one.
type Collaborators struct {
	Segmenter features.Segmenter
	Tagger    features.EntityTagger
	Locator   resolver.Locator
}

// CleanStage normalizes every text field of the sample.
type CleanStage struct {
	cleaner *cleaning.Cleaner
}

func NewCleanStage() *CleanStage {
	return &CleanStage{cleaner: cleaning.New()}
}

func (st *CleanStage) Name() string { return "clean" }

func (st *CleanStage) Process(_ context.Context, s *sample.Sample) error {
	st.cleaner.Sample(s)
	return nil
}

// FilterStage drops paragraphs with low relevance to question plus keyword.
// Documents arriving without precomputed scores get char-recall scores first.
type FilterStage struct {
	filter *ranker.Filter
}

func NewFilterStage(threshold float64) *FilterStage {
	return &FilterStage{filter: ranker.NewFilter(threshold)}
}

func (st *FilterStage) Name() string { return "filter" }

func (st *FilterStage) Process(_ context.Context, s *sample.Sample) error {
	query := s.Question + s.Keyword
	for _, doc := range s.Documents {
		if len(doc.ParaMatchScores) == len(doc.Paragraphs) && len(doc.Paragraphs) > 0 {
			continue
		}
		scores := make([]float64, len(doc.Paragraphs))
		for i, para := range doc.Paragraphs {
			scores[i] = similarity.CharRecall(para, query)
		}
		doc.ParaMatchScores = scores
	}
	st.filter.Apply(s)
	return nil
}

// RankStage trims every document to the passage budget.  Content is
// materialized first so later stages keep a stable text to offset into.
type RankStage struct {
	ranker  *ranker.Ranker
	maxLen  int
	metrics *prometheus.PipelineMetrics
}

func NewRankStage(splitter string, maxLen int, m *prometheus.PipelineMetrics) *RankStage {
	return &RankStage{ranker: ranker.NewWithSplitter(splitter), maxLen: maxLen, metrics: m}
}

func (st *RankStage) Name() string { return "rank" }

func (st *RankStage) Process(_ context.Context, s *sample.Sample) error {
	for _, doc := range s.Documents {
		doc.ConcatParagraphs()
	}
	st.ranker.SelectAll(s, queryTokens(s), st.maxLen)
	if st.metrics != nil {
		for _, doc := range s.Documents {
			st.metrics.RecordPassageLength(len(doc.SegmentedPassage))
		}
	}
	return nil
}

// queryTokens builds the match targets: the segmented question, plus each
// answer fragment's chars on training samples.
func queryTokens(s *sample.Sample) [][]string {
	question := s.SegmentedQuestion
	if len(question) == 0 {
		question = charTokens(s.Question)
	}
	truths := [][]string{question}
	if s.IsTraining() {
		for _, frag := range resolver.ParseMarked(s.Answer) {
			truths = append(truths, charTokens(frag.Text))
		}
	}
	return truths
}

func charTokens(text string) []string {
	runes := []rune(text)
	tokens := make([]string, len(runes))
	for i, r := range runes {
		tokens[i] = string(r)
	}
	return tokens
}

// LabelStage resolves marker-annotated answers into offset labels.
type LabelStage struct {
	resolver SpanResolver
	metrics  *prometheus.PipelineMetrics
}

func NewLabelStage(r SpanResolver, m *prometheus.PipelineMetrics) *LabelStage {
	return &LabelStage{resolver: r, metrics: m}
}

func (st *LabelStage) Name() string { return "labels" }

func (st *LabelStage) Process(_ context.Context, s *sample.Sample) error {
	for _, doc := range s.Documents {
		doc.ConcatParagraphs()
	}
	st.resolver.Resolve(s)
	if st.metrics != nil && s.IsTraining() {
		st.metrics.RecordResolution("train", s.CeilRougeL, len(s.AnswerLabels))
	}
	return nil
}

// meteredLocator records every locate call under the winning strategy.
type meteredLocator struct {
	inner   resolver.Locator
	metrics *prometheus.PipelineMetrics
}

func (ml meteredLocator) Locate(fragment, container string) span.Match {
	start := time.Now()
	m := ml.inner.Locate(fragment, container)
	ml.metrics.RecordSpanLocate(m.Strategy, time.Since(start))
	return m
}

func (ml meteredLocator) LocateRunes(fragment, container []rune) span.Match {
	start := time.Now()
	m := ml.inner.LocateRunes(fragment, container)
	ml.metrics.RecordSpanLocate(m.Strategy, time.Since(start))
	return m
}

// FeatureStage projects token-level features to char level and adds the
// sentence distance features.
type FeatureStage struct {
	aligner *features.Aligner
}

func NewFeatureStage(collab Collaborators, log logging.Logger) *FeatureStage {
	seg := collab.Segmenter
	if seg == nil {
		seg = features.CharSegmenter{}
	}
	return &FeatureStage{aligner: features.New(seg, collab.Tagger, log)}
}

func (st *FeatureStage) Name() string { return "features" }

func (st *FeatureStage) Process(_ context.Context, s *sample.Sample) error {
	return st.aligner.Annotate(s)
}

// BuildStages maps the configured stage names to stage implementations in
// the configured order.
func BuildStages(cfg config.PipelineConfig, collab Collaborators, m *prometheus.PipelineMetrics, log logging.Logger) ([]Stage, error) {
	names := cfg.Stages
	if len(names) == 0 {
		names = config.StageNames
	}

	stages := make([]Stage, 0, len(names))
	for _, name := range names {
		switch name {
		case "clean":
			stages = append(stages, NewCleanStage())
		case "filter":
			stages = append(stages, NewFilterStage(cfg.FilterThreshold))
		case "rank":
			stages = append(stages, NewRankStage(cfg.Splitter, cfg.MaxDocLen, m))
		case "labels":
			loc := collab.Locator
			if loc == nil {
				loc = span.NewLocator()
			}
			if m != nil {
				loc = meteredLocator{inner: loc, metrics: m}
			}
			stages = append(stages, NewLabelStage(resolver.NewWithLocator(loc, log), m))
		case "features":
			stages = append(stages, NewFeatureStage(collab, log))
		default:
			return nil, errors.New(errors.ErrCodeConfigInvalid, "unknown stage "+name)
		}
	}
	return stages, nil
}
