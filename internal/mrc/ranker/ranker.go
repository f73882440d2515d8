// Package ranker selects the most question-relevant paragraphs of each
// document under a passage length budget, producing the concatenated
// passage and its aligned token-level feature rows.
package ranker

import (
	"sort"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/sample"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/similarity"
)

// DefaultSplitter is the passage segment separator token.
const DefaultSplitter = "<splitter>"

// paraInfo is the transient sort key of one paragraph: higher score first,
// shorter paragraph preferred on ties to economize the token budget.
type paraInfo struct {
	score  float64
	length int
	index  int
}

// Ranker scores paragraphs against query token sequences and trims
// documents to a passage budget.  Instances are immutable and safe for
// concurrent use.
type Ranker struct {
	splitter string
	metricA  similarity.Metric
	metricB  similarity.Metric
}

// New returns a Ranker with the default splitter and the F1 + BLEU-4
// scorer pair.
func New() *Ranker {
	return &Ranker{
		splitter: DefaultSplitter,
		metricA:  similarity.F1,
		metricB:  similarity.BLEU4,
	}
}

// NewWithSplitter returns a Ranker using a custom splitter token.
func NewWithSplitter(splitter string) *Ranker {
	r := New()
	if splitter != "" {
		r.splitter = splitter
	}
	return r
}

// Splitter returns the segment separator token in use.
func (r *Ranker) Splitter() string { return r.splitter }

func (r *Ranker) matchScore(tokens []string, groundTruths [][]string) float64 {
	return similarity.MaxOverGroundTruths(r.metricA, r.metricB, tokens, groundTruths)
}

// Select trims doc to maxLen tokens of passage.  groundTruths is the query
// in token form: the question alone for dev/test samples, the question plus
// each answer for training samples.  The document's segmented fields are
// consumed and replaced by the derived passage fields; raw title and
// paragraph fields are released afterwards.
//
// Selection is by descending match score (ties to the shorter paragraph);
// the budget always includes the title plus one splitter per segment; the
// first overflowing paragraph is truncated to exactly fill the remaining
// budget; everything after it is discarded.  Selected paragraphs are
// restored to original document order before concatenation; relevance
// ordering is a selection device only.
//
// A budget smaller than the title degrades to the title plus an empty
// truncation; it never fails and never yields an empty passage.
func (r *Ranker) Select(doc *sample.Document, groundTruths [][]string, maxLen int) {
	titleScore := r.matchScore(doc.SegmentedTitle, groundTruths)

	paraScores := make([]float64, len(doc.SegmentedParagraphs))
	infos := make([]paraInfo, 0, len(doc.SegmentedParagraphs))
	for i, para := range doc.SegmentedParagraphs {
		paraScores[i] = r.matchScore(para, groundTruths)
		infos = append(infos, paraInfo{score: paraScores[i], length: len(para), index: i})
	}

	sort.SliceStable(infos, func(a, b int) bool {
		if infos[a].score != infos[b].score {
			return infos[a].score > infos[b].score
		}
		return infos[a].length < infos[b].length
	})

	// Greedy budget fill.  selectedLen tracks tokens plus one splitter per
	// accepted segment, starting with the title.
	selectedLen := len(doc.SegmentedTitle) + 1
	selectedIDs := make([]int, 0, len(infos))
	cutParaID := -1
	cutLen := 0
	for _, info := range infos {
		if selectedLen+info.length+1 <= maxLen {
			selectedLen += info.length + 1
			selectedIDs = append(selectedIDs, info.index)
			continue
		}
		// Truncate the overflowing paragraph to the remaining budget and
		// stop considering anything ranked below it.
		cutParaID = info.index
		cutLen = maxLen - selectedLen
		if cutLen < 0 {
			cutLen = 0
		}
		if cutLen > info.length {
			cutLen = info.length
		}
		break
	}

	// Restore original document order.
	sort.Ints(selectedIDs)

	segments := [][]string{doc.SegmentedTitle}
	scores := []float64{titleScore}
	pos := [][]string{doc.PosTitle}
	keyword := [][]int{doc.KeywordTitle}
	wordInQue := [][]int{doc.TitleWordInQuestion}

	for _, id := range selectedIDs {
		segments = append(segments, doc.SegmentedParagraphs[id])
		scores = append(scores, paraScores[id])
		pos = append(pos, fieldAt(doc.PosParagraphs, id))
		keyword = append(keyword, intFieldAt(doc.KeywordParagraphs, id))
		wordInQue = append(wordInQue, intFieldAt(doc.ParagraphsWordInQuestion, id))
	}

	if cutParaID >= 0 {
		cut := doc.SegmentedParagraphs[cutParaID][:cutLen]
		segments = append(segments, cut)
		scores = append(scores, r.matchScore(cut, groundTruths))
		pos = append(pos, truncStr(fieldAt(doc.PosParagraphs, cutParaID), cutLen))
		keyword = append(keyword, truncInt(intFieldAt(doc.KeywordParagraphs, cutParaID), cutLen))
		wordInQue = append(wordInQue, truncInt(intFieldAt(doc.ParagraphsWordInQuestion, cutParaID), cutLen))
	}

	doc.SegmentedPassage = joinWithSplitter(segments, r.splitter)
	doc.PosPassage = joinWithSplitter(pos, r.splitter)
	doc.KeywordPassage = joinWithZero(keyword)
	doc.PassageWordInQuestion = joinWithZero(wordInQue)
	doc.ParagraphMatchScore = scores
	doc.MostRelatedParaID = argMax(scores)
	doc.TitleLen = len(doc.SegmentedTitle)

	// Raw fields are dead weight once the passage exists.
	doc.Title = ""
	doc.Paragraphs = nil
	doc.SegmentedTitle = nil
	doc.SegmentedParagraphs = nil
	doc.PosTitle = nil
	doc.PosParagraphs = nil
	doc.KeywordTitle = nil
	doc.KeywordParagraphs = nil
	doc.TitleWordInQuestion = nil
	doc.ParagraphsWordInQuestion = nil
}

// SelectAll runs Select over every document of the sample.  Training
// samples query with question plus answer fragments; others with the
// question alone.
func (r *Ranker) SelectAll(s *sample.Sample, groundTruths [][]string, maxLen int) {
	for _, doc := range s.Documents {
		r.Select(doc, groundTruths, maxLen)
	}
}

// fieldAt tolerates feature matrices that were never populated upstream.
func fieldAt(rows [][]string, i int) []string {
	if i < 0 || i >= len(rows) {
		return nil
	}
	return rows[i]
}

func intFieldAt(rows [][]int, i int) []int {
	if i < 0 || i >= len(rows) {
		return nil
	}
	return rows[i]
}

func truncStr(row []string, n int) []string {
	if len(row) > n {
		return row[:n]
	}
	return row
}

func truncInt(row []int, n int) []int {
	if len(row) > n {
		return row[:n]
	}
	return row
}

// joinWithSplitter concatenates segments with the splitter token between
// them (no trailing splitter).
func joinWithSplitter(segments [][]string, splitter string) []string {
	out := make([]string, 0, totalLen(segments)+len(segments))
	for i, seg := range segments {
		out = append(out, seg...)
		if i < len(segments)-1 {
			out = append(out, splitter)
		}
	}
	return out
}

// joinWithZero concatenates int feature rows with a 0 in the splitter
// positions.
func joinWithZero(rows [][]int) []int {
	out := make([]int, 0)
	for i, row := range rows {
		out = append(out, row...)
		if i < len(rows)-1 {
			out = append(out, 0)
		}
	}
	return out
}

func totalLen(segments [][]string) int {
	n := 0
	for _, s := range segments {
		n += len(s)
	}
	return n
}

func argMax(scores []float64) int {
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	return best
}
