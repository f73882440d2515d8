package ranker

import (
	"sort"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/resolver"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/sample"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/similarity"
)

// Filter drops paragraphs whose relevance to the question falls below a
// threshold, then re-locates each supporting fragment's paragraph id in the
// shrunken document.
type Filter struct {
	threshold float64
}

// NewFilter returns a Filter with the given low-score threshold.
// Paragraphs scoring <= threshold are removed.
func NewFilter(threshold float64) *Filter {
	return &Filter{threshold: threshold}
}

// Apply filters every document of the sample in place.  Documents without
// per-paragraph scores are left untouched.  After filtering, supporting
// fragments are re-anchored: for each fragment, the paragraph with the
// highest character recall over a bigram window (previous paragraph +
// paragraph) wins, and the sorted unique winners are stored as the
// document's SupportedParaIDs.
func (f *Filter) Apply(s *sample.Sample) {
	for _, doc := range s.Documents {
		f.filterDoc(doc)
	}

	if s.SupportingParagraph == "" {
		return
	}
	for _, docID := range resolver.MarkedDocIDs(s.SupportingParagraph) {
		doc := s.Document(docID - 1)
		if doc == nil {
			continue
		}
		ids := supportedParaIDs(doc, resolver.FragmentsForDoc(s.SupportingParagraph, docID))
		doc.SupportedParaIDs = ids
	}
}

func (f *Filter) filterDoc(doc *sample.Document) {
	if len(doc.ParaMatchScores) == 0 || len(doc.ParaMatchScores) != len(doc.Paragraphs) {
		return
	}
	kept := doc.Paragraphs[:0]
	keptScores := doc.ParaMatchScores[:0]
	for i, para := range doc.Paragraphs {
		if doc.ParaMatchScores[i] <= f.threshold {
			continue
		}
		kept = append(kept, para)
		keptScores = append(keptScores, doc.ParaMatchScores[i])
	}
	doc.Paragraphs = kept
	doc.ParaMatchScores = keptScores
}

// supportedParaIDs finds, per fragment, the paragraph achieving maximum
// char recall of the fragment over the bigram window, then returns the
// sorted unique ids.
func supportedParaIDs(doc *sample.Document, fragments []string) []int {
	found := map[int]struct{}{}
	for _, frag := range fragments {
		bestID := -1
		bestRecall := -1.0
		for pid, para := range doc.Paragraphs {
			window := para
			if pid > 0 {
				window = doc.Paragraphs[pid-1] + para
			}
			recall := similarity.CharRecall(window, frag)
			if recall > bestRecall {
				bestRecall = recall
				bestID = pid
			}
		}
		if bestID >= 0 {
			found[bestID] = struct{}{}
		}
	}

	ids := make([]int, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
