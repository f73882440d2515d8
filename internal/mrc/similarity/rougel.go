// Package similarity provides the character and token level relevance
// metrics used across the pipeline: a Rouge-L style LCS F-measure for span
// scoring, and the token F1 / BLEU-4 collaborator metrics consumed by
// paragraph ranking and filtering.
package similarity

// DefaultBeta is the recall weight of the Rouge-L F-measure.  The dataset's
// ceiling scores were historically computed with 1.2; do not change it
// without recomputing them.
const DefaultBeta = 1.2

// RougeL computes a longest-common-subsequence F-measure between two rune
// sequences.  Instances are immutable and safe for concurrent use.
type RougeL struct {
	beta float64
}

// NewRougeL returns a scorer with the default beta.
func NewRougeL() *RougeL {
	return &RougeL{beta: DefaultBeta}
}

// NewRougeLWithBeta returns a scorer with an explicit beta.  Values <= 0
// fall back to the default.
func NewRougeLWithBeta(beta float64) *RougeL {
	if beta <= 0 {
		beta = DefaultBeta
	}
	return &RougeL{beta: beta}
}

// Score returns the Rouge-L F-measure of candidate against reference in
// [0,1].  Either side empty scores 0.
//
//	P = LCS/len(cand), R = LCS/len(ref)
//	score = ((1+beta²)·P·R) / (R + beta²·P)
func (r *RougeL) Score(candidate, reference string) float64 {
	return r.ScoreRunes([]rune(candidate), []rune(reference))
}

// ScoreRunes is Score on pre-converted rune slices.  The span locator calls
// it in a tight loop and keeps its container as runes to avoid repeated
// conversions.
func (r *RougeL) ScoreRunes(candidate, reference []rune) float64 {
	if len(candidate) == 0 || len(reference) == 0 {
		return 0
	}
	lcs := lcsLength(candidate, reference)
	if lcs == 0 {
		return 0
	}
	p := float64(lcs) / float64(len(candidate))
	rec := float64(lcs) / float64(len(reference))
	b2 := r.beta * r.beta
	return ((1 + b2) * p * rec) / (rec + b2*p)
}

// lcsLength computes the LCS length with two rolling rows, keeping memory
// proportional to the shorter sequence.
func lcsLength(a, b []rune) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for i := 1; i <= len(b); i++ {
		for j := 1; j <= len(a); j++ {
			if b[i-1] == a[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}
