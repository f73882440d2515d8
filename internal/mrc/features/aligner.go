// Package features projects token-level annotations down to char level and
// attaches sentence-vs-question distance features, producing the per-char
// arrays the downstream reader consumes.
package features

import (
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/monitoring/logging"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/sample"
)

// Segmenter tokenizes Chinese text.  The three returned slices are aligned:
// tokens, their POS tags, and 0/1 keyword flags.  Implementations are
// typically expensive to construct and are injected once per worker.
type Segmenter interface {
	Segment(text string) (tokens []string, pos []string, keyword []int, err error)
}

// Entity is one named entity found in a text, located by rune offset.
type Entity struct {
	Start int
	Text  string
	Tag   string
}

// EntityTagger recognizes named entities in Chinese text.
type EntityTagger interface {
	Entities(text string) ([]Entity, error)
}

// entityAbbrev maps recognizer tag names to the single-letter codes used in
// the char_entity arrays.  Unlisted tags pass through unchanged.
var entityAbbrev = map[string]string{
	"time":     "T",
	"location": "L",
	"org":      "O",
	"job":      "J",
	"person":   "P",
	"company":  "C",
}

// Aligner annotates samples with char-level feature arrays.  Not safe for
// concurrent use when its collaborators are not; the worker pool gives each
// worker its own instance.
type Aligner struct {
	seg Segmenter
	ner EntityTagger
	log logging.Logger
}

// New returns an Aligner over the given collaborators.  ner may be nil, in
// which case entity arrays are filled with empty tags.
func New(seg Segmenter, ner EntityTagger, log logging.Logger) *Aligner {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Aligner{seg: seg, ner: ner, log: log.Named("features")}
}

// Annotate fills the question's and every document's char-level arrays and
// the per-char distance features.  Document text is Content; documents still
// holding raw paragraphs are concatenated first.
func (a *Aligner) Annotate(s *sample.Sample) error {
	quePos, queKw, queInQue, queTokens, err := a.charProject(s.Question, nil)
	if err != nil {
		return err
	}
	s.QuesCharPos = quePos
	s.QuesCharKw = queKw
	s.QuesCharInQue = queInQue
	s.QuesCharEntity, err = a.charEntities(s.Question)
	if err != nil {
		return err
	}

	queSet := make(map[string]struct{}, len(queTokens))
	for _, tok := range queTokens {
		queSet[tok] = struct{}{}
	}

	for _, doc := range s.Documents {
		doc.ConcatParagraphs()
		doc.CharPos, doc.CharKw, doc.CharInQue, _, err = a.charProject(doc.Content, queSet)
		if err != nil {
			return err
		}
		doc.CharEntity, err = a.charEntities(doc.Content)
		if err != nil {
			return err
		}
		annotateDistances(doc, s.Question)
	}
	return nil
}

// charProject segments text and replicates each token's POS, keyword flag
// and in-question flag across the token's runes.  queSet nil means the
// in-question flags are all zero.
func (a *Aligner) charProject(text string, queSet map[string]struct{}) (pos []string, kw, inQue []int, tokens []string, err error) {
	tokens, tokPos, tokKw, err := a.seg.Segment(text)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	for i, tok := range tokens {
		n := len([]rune(tok))
		flag := 0
		if queSet != nil {
			if _, ok := queSet[tok]; ok {
				flag = 1
			}
		}
		for j := 0; j < n; j++ {
			pos = append(pos, tokPos[i])
			kw = append(kw, tokKw[i])
			inQue = append(inQue, flag)
		}
	}
	return pos, kw, inQue, tokens, nil
}

// charEntities builds the per-char entity tag array.  Chars outside any
// entity carry the empty tag.
func (a *Aligner) charEntities(text string) ([]string, error) {
	runes := []rune(text)
	tags := make([]string, len(runes))
	if a.ner == nil {
		return tags, nil
	}
	entities, err := a.ner.Entities(text)
	if err != nil {
		return nil, err
	}
	for _, ent := range entities {
		tag := ent.Tag
		if abbrev, ok := entityAbbrev[tag]; ok {
			tag = abbrev
		}
		end := ent.Start + len([]rune(ent.Text))
		for i := ent.Start; i < end && i < len(runes); i++ {
			if i >= 0 {
				tags[i] = tag
			}
		}
	}
	return tags, nil
}

// sentenceDelims are the clause boundaries the distance features split on.
func isSentenceDelim(r rune) bool {
	return r == '，' || r == '。' || r == '！'
}

// segment is one clause of a document plus the number of chars it covers in
// the per-char arrays (its runes plus the trailing delimiter, if any).
type segment struct {
	text string
	span int
}

// splitSentences cuts text on clause delimiters.  Spans sum exactly to the
// rune length of text, so the expanded arrays align with content.
func splitSentences(text string) []segment {
	var segs []segment
	var buf []rune
	for _, r := range text {
		if isSentenceDelim(r) {
			segs = append(segs, segment{text: string(buf), span: len(buf) + 1})
			buf = buf[:0]
			continue
		}
		buf = append(buf, r)
	}
	if len(buf) > 0 {
		segs = append(segs, segment{text: string(buf), span: len(buf)})
	}
	return segs
}

// annotateDistances expands sentence-level distance features to char level:
// every char of a clause, including its trailing delimiter, carries the
// clause's value.
func annotateDistances(doc *sample.Document, question string) {
	segs := splitSentences(doc.Content)

	total := 0
	for _, seg := range segs {
		total += seg.span
	}
	doc.LevenshteinDist = make([]float64, 0, total)
	doc.LongestMatchSize = make([]int, 0, total)
	doc.LongestMatchRatio = make([]float64, 0, total)
	doc.JaccardCoef = make([]float64, 0, total)
	doc.DiceDist = make([]float64, 0, total)
	doc.F1Score = make([]float64, 0, total)

	for _, seg := range segs {
		leve := Levenshtein(seg.text, question)
		matchSize := LongestMatchSize(seg.text, question)
		matchRatio := LongestMatchRatio(seg.text, question)
		jaccard := JaccardCoef(seg.text, question)
		dice := DiceDist(seg.text, question)
		f1 := CharF1(seg.text, question)
		for i := 0; i < seg.span; i++ {
			doc.LevenshteinDist = append(doc.LevenshteinDist, leve)
			doc.LongestMatchSize = append(doc.LongestMatchSize, matchSize)
			doc.LongestMatchRatio = append(doc.LongestMatchRatio, matchRatio)
			doc.JaccardCoef = append(doc.JaccardCoef, jaccard)
			doc.DiceDist = append(doc.DiceDist, dice)
			doc.F1Score = append(doc.F1Score, f1)
		}
	}
}

// CharSegmenter is a degenerate Segmenter treating every rune as a token
// with a fixed POS tag and no keywords.  It keeps the pipeline runnable
// when no real segmenter is wired in.
type CharSegmenter struct{}

// Segment implements Segmenter.
func (CharSegmenter) Segment(text string) ([]string, []string, []int, error) {
	runes := []rune(text)
	tokens := make([]string, len(runes))
	pos := make([]string, len(runes))
	kw := make([]int, len(runes))
	for i, r := range runes {
		tokens[i] = string(r)
		pos[i] = "x"
	}
	return tokens, pos, kw, nil
}
