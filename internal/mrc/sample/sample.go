// Package sample defines the wire-level data model of the MRC preprocessing
// pipeline: one QA sample per NDJSON line, holding the question, the
// retrieved documents and, for training data, the marker-annotated answer
// and supporting paragraph plus every derived field the pipeline stages add.
package sample

import (
	"encoding/json"
	"fmt"
)

// Document is one retrieved document of a sample.  Before paragraph
// selection it carries Title/Paragraphs plus the token-level views produced
// by segmentation; after selection those collapse into the passage fields
// and the raw fields are released.
type Document struct {
	Title      string   `json:"title,omitempty"`
	Paragraphs []string `json:"paragraphs,omitempty"`

	// Content is the concatenation of all paragraphs, derived once by
	// ConcatParagraphs.  All answer-label offsets are rune offsets into it.
	Content string `json:"content,omitempty"`

	// Token-level views aligned with Paragraphs, produced upstream by the
	// segmenter.  Keyword and word-in-question flags are 0/1 ints.
	SegmentedTitle           []string   `json:"segmented_title,omitempty"`
	SegmentedParagraphs      [][]string `json:"segmented_paragraphs,omitempty"`
	PosTitle                 []string   `json:"pos_title,omitempty"`
	PosParagraphs            [][]string `json:"pos_paragraphs,omitempty"`
	KeywordTitle             []int      `json:"keyword_title,omitempty"`
	KeywordParagraphs        [][]int    `json:"keyword_paragraphs,omitempty"`
	TitleWordInQuestion      []int      `json:"title_word_in_question,omitempty"`
	ParagraphsWordInQuestion [][]int    `json:"paragraphs_word_in_question,omitempty"`

	// Per-paragraph relevance scores set by the match stage and consumed by
	// the low-relevance filter.
	ParaMatchScores []float64 `json:"para_match_scores,omitempty"`

	// SupportedParaIDs are the paragraph indices that the supporting
	// paragraph annotation resolves to, set by the filter stage.
	SupportedParaIDs []int `json:"supported_para_ids,omitempty"`

	// Passage fields derived by paragraph selection.  MostRelatedParaID
	// indexes the final passage segments (0 is the title).
	MostRelatedParaID     int       `json:"most_related_para_id"`
	SegmentedPassage      []string  `json:"segmented_passage,omitempty"`
	PosPassage            []string  `json:"pos_passage,omitempty"`
	KeywordPassage        []int     `json:"keyword_passage,omitempty"`
	PassageWordInQuestion []int     `json:"passage_word_in_question,omitempty"`
	ParagraphMatchScore   []float64 `json:"paragraph_match_score,omitempty"`
	TitleLen              int       `json:"title_len,omitempty"`

	// Char-level feature projections, aligned with Content.
	CharPos    []string `json:"char_pos,omitempty"`
	CharKw     []int    `json:"char_kw,omitempty"`
	CharInQue  []int    `json:"char_in_que,omitempty"`
	CharEntity []string `json:"char_entity,omitempty"`

	// Per-char sentence-vs-question distance features, aligned with
	// Content.  Every char of a sentence carries that sentence's value.
	LevenshteinDist   []float64 `json:"levenshtein_dist,omitempty"`
	LongestMatchSize  []int     `json:"longest_match_size,omitempty"`
	LongestMatchRatio []float64 `json:"longest_match_ratio,omitempty"`
	JaccardCoef       []float64 `json:"jaccard_coef,omitempty"`
	DiceDist          []float64 `json:"dice_dist,omitempty"`
	F1Score           []float64 `json:"f1_score,omitempty"`
}

// ConcatParagraphs collapses Paragraphs into Content and releases the
// paragraph slice.  Calling it twice is a no-op.
func (d *Document) ConcatParagraphs() {
	if d.Paragraphs == nil {
		return
	}
	total := 0
	for _, p := range d.Paragraphs {
		total += len(p)
	}
	buf := make([]byte, 0, total)
	for _, p := range d.Paragraphs {
		buf = append(buf, p...)
	}
	d.Content = string(buf)
	d.Paragraphs = nil
}

// ContentRunes returns Content as a rune slice.  Offsets throughout the
// pipeline are rune offsets, never byte offsets.
func (d *Document) ContentRunes() []rune {
	return []rune(d.Content)
}

// AnswerLabel locates one resolved answer fragment: a zero-based document
// index and inclusive rune offsets into that document's Content.  Never
// mutated after creation.
type AnswerLabel struct {
	DocIndex int
	Start    int
	End      int
}

// MarshalJSON encodes the label as the 3-element array [doc, start, end]
// used by the dataset format.
func (l AnswerLabel) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{l.DocIndex, l.Start, l.End})
}

// UnmarshalJSON decodes the [doc, start, end] array form.
func (l *AnswerLabel) UnmarshalJSON(data []byte) error {
	var arr [3]int
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("answer label must be a [doc, start, end] array: %w", err)
	}
	l.DocIndex, l.Start, l.End = arr[0], arr[1], arr[2]
	return nil
}

// Sample is one QA instance.  Training records carry Answer and
// SupportingParagraph; inference records never do, and consequently never
// receive AnswerLabels.
type Sample struct {
	QuestionID string `json:"question_id,omitempty"`
	Question   string `json:"question,omitempty"`
	Keyword    string `json:"keyword,omitempty"`

	Documents []*Document `json:"documents"`

	// Marker-annotated raw training fields, discardable after resolution.
	Answer              string `json:"answer,omitempty"`
	SupportingParagraph string `json:"supporting_paragraph,omitempty"`

	SegmentedQuestion []string `json:"segmented_question,omitempty"`

	// Derived supervision fields.
	AnswerLabels []AnswerLabel `json:"answer_labels,omitempty"`
	FakeAnswers  []string      `json:"fake_answers,omitempty"`

	// CeilRougeL is the achievability ceiling: the similarity between the
	// extracted fake answers and the annotated answer text.  A trained
	// extractive model can never exceed it on this sample.
	CeilRougeL float64 `json:"ceil_rougel,omitempty"`

	// Char-level question feature projections.
	QuesCharPos    []string `json:"ques_char_pos,omitempty"`
	QuesCharKw     []int    `json:"ques_char_kw,omitempty"`
	QuesCharInQue  []int    `json:"ques_char_in_que,omitempty"`
	QuesCharEntity []string `json:"ques_char_entity,omitempty"`
}

// IsTraining reports whether the sample carries answer supervision.
func (s *Sample) IsTraining() bool {
	return s.Answer != ""
}

// Document returns the zero-based document at idx, or nil when idx is out
// of range.  Marker doc ids are 1-based; callers subtract one first.
func (s *Sample) Document(idx int) *Document {
	if idx < 0 || idx >= len(s.Documents) {
		return nil
	}
	return s.Documents[idx]
}

// Parse decodes one NDJSON line into a Sample.
func Parse(line []byte) (*Sample, error) {
	var s Sample
	if err := json.Unmarshal(line, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Encode serializes the sample back to a single JSON line (no trailing
// newline).  Chinese text is kept literal, not \u-escaped, matching the
// dataset convention.
func (s *Sample) Encode() ([]byte, error) {
	return marshalNoEscape(s)
}

func marshalNoEscape(v interface{}) ([]byte, error) {
	var buf jsonBuffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encoder appends a newline; strip it so callers control framing.
	b := buf.bytes
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	return b, nil
}

type jsonBuffer struct {
	bytes []byte
}

func (b *jsonBuffer) Write(p []byte) (int, error) {
	b.bytes = append(b.bytes, p...)
	return len(p), nil
}
