package resolver

import (
	"strings"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/logging"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/sample"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/similarity"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/span"
)

// SupportedParagraph is one located supporting fragment: the text the
// locator matched inside the document plus its absolute rune offsets.
// Exists only during resolution, never persisted.
type SupportedParagraph struct {
	Text  string
	Start int
	End   int
}

// Locator anchors a fragment inside a container.  *span.Locator is the
// direct implementation; a cache-backed one may wrap it.
type Locator interface {
	Locate(fragment, container string) span.Match
	LocateRunes(fragment, container []rune) span.Match
}

// Resolver turns a sample's marker-annotated answer into AnswerLabel
// triples.  Answers are annotated as substrings of the supporting
// paragraph, which is itself an imprecise substring of the document, so
// resolution is a two-phase locate-within-locate: first anchor every
// supporting fragment in its document, then anchor each answer fragment
// inside the best-matching supporting fragment and shift by its offset.
type Resolver struct {
	locator Locator
	rouge   *similarity.RougeL
	logger  logging.Logger
}

// New returns a Resolver with default locator and scorer.
func New(logger logging.Logger) *Resolver {
	return NewWithLocator(span.NewLocator(), logger)
}

// NewWithLocator returns a Resolver using a custom locator.
func NewWithLocator(loc Locator, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Resolver{
		locator: loc,
		rouge:   similarity.NewRougeL(),
		logger:  logger.Named("resolver"),
	}
}

// Resolve populates AnswerLabels, FakeAnswers and CeilRougeL on a training
// sample.  Inference samples (no answer) are left untouched.  Every failure
// mode is soft: unresolvable fragments are dropped, unknown document ids
// are skipped, and a sample where nothing resolves ends with empty labels
// and a ceiling of 0, a valid if unusable training record.
func (r *Resolver) Resolve(s *sample.Sample) {
	if !s.IsTraining() {
		return
	}

	supported := r.locateSupportingParagraphs(s)

	var (
		labels      []sample.AnswerLabel
		answerTexts []string
		fakeTexts   []string
	)

	for _, frag := range ParseMarked(s.Answer) {
		doc := s.Document(frag.DocID - 1)
		if doc == nil {
			r.logger.Warn("answer references unknown document",
				logging.String("question_id", s.QuestionID),
				logging.Int("doc_id", frag.DocID))
			continue
		}
		answerTexts = append(answerTexts, frag.Text)

		paras := supported[frag.DocID]
		if len(paras) == 0 {
			// No supporting paragraph resolved in this document; the
			// fragment has nothing to anchor against.
			continue
		}

		best := span.NoMatch
		bestPara := -1
		for i, sp := range paras {
			m := r.locator.Locate(frag.Text, sp.Text)
			if m.Confidence > best.Confidence {
				best = m
				bestPara = i
			}
		}
		if !best.Found() {
			continue
		}

		start := best.Start + paras[bestPara].Start
		end := start + (best.End - best.Start)
		labels = append(labels, sample.AnswerLabel{
			DocIndex: frag.DocID - 1,
			Start:    start,
			End:      end,
		})

		content := doc.ContentRunes()
		if end < len(content) {
			fakeTexts = append(fakeTexts, string(content[start:end+1]))
		}
	}

	s.AnswerLabels = labels
	s.FakeAnswers = fakeTexts

	if len(fakeTexts) == 0 {
		s.CeilRougeL = 0
		return
	}
	s.CeilRougeL = r.rouge.Score(strings.Join(fakeTexts, ""), strings.Join(answerTexts, ""))
}

// locateSupportingParagraphs anchors every supporting fragment in its
// document's content.  A fragment the locator cannot place contributes
// nothing.
func (r *Resolver) locateSupportingParagraphs(s *sample.Sample) map[int][]SupportedParagraph {
	supported := make(map[int][]SupportedParagraph)
	for _, frag := range ParseMarked(s.SupportingParagraph) {
		doc := s.Document(frag.DocID - 1)
		if doc == nil {
			r.logger.Warn("supporting paragraph references unknown document",
				logging.String("question_id", s.QuestionID),
				logging.Int("doc_id", frag.DocID))
			continue
		}
		content := doc.ContentRunes()
		m := r.locator.LocateRunes([]rune(frag.Text), content)
		if !m.Found() {
			r.logger.Debug("supporting fragment did not resolve",
				logging.String("question_id", s.QuestionID),
				logging.Int("doc_id", frag.DocID))
			continue
		}
		supported[frag.DocID] = append(supported[frag.DocID], SupportedParagraph{
			Text:  string(content[m.Start : m.End+1]),
			Start: m.Start,
			End:   m.End,
		})
	}
	return supported
}
