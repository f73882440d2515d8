package similarity

import (
	"math"
	"strings"
)

// Metric is a pure token-level similarity function.  Paragraph ranking
// treats its scorers as collaborators of this shape.
type Metric func(candidate, reference []string) float64

// PrecisionRecallF1 computes bag-of-token precision, recall and F1 between
// two token sequences, counting multiset intersection.
func PrecisionRecallF1(prediction, groundTruth []string) (p, r, f1 float64) {
	if len(prediction) == 0 || len(groundTruth) == 0 {
		return 0, 0, 0
	}
	counts := make(map[string]int, len(groundTruth))
	for _, tok := range groundTruth {
		counts[tok]++
	}
	same := 0
	for _, tok := range prediction {
		if counts[tok] > 0 {
			counts[tok]--
			same++
		}
	}
	if same == 0 {
		return 0, 0, 0
	}
	p = float64(same) / float64(len(prediction))
	r = float64(same) / float64(len(groundTruth))
	f1 = (2 * p * r) / (p + r)
	return p, r, f1
}

// F1 is the F-measure component of PrecisionRecallF1, usable as a Metric.
func F1(candidate, reference []string) float64 {
	_, _, f1 := PrecisionRecallF1(candidate, reference)
	return f1
}

// Recall is the recall component of PrecisionRecallF1.
func Recall(candidate, reference []string) float64 {
	_, r, _ := PrecisionRecallF1(candidate, reference)
	return r
}

// CharRecall computes rune-level recall of reference inside candidate.
// The paragraph filter uses it to find which paragraph a supporting
// fragment came from.
func CharRecall(candidate, reference string) float64 {
	return Recall(splitChars(candidate), splitChars(reference))
}

// CharF1 computes rune-level F1 between two strings.
func CharF1(a, b string) float64 {
	return F1(splitChars(a), splitChars(b))
}

func splitChars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// BLEU4 computes a sentence-level BLEU score with n-grams up to 4 and a
// brevity penalty.  Zero-count n-gram orders use add-one smoothing so short
// candidates do not collapse the geometric mean to zero.
func BLEU4(candidate, reference []string) float64 {
	return bleu(candidate, reference, 4)
}

func bleu(candidate, reference []string, maxN int) float64 {
	if len(candidate) == 0 || len(reference) == 0 {
		return 0
	}

	logSum := 0.0
	for n := 1; n <= maxN; n++ {
		matched, total := ngramMatches(candidate, reference, n)
		// add-one smoothing for orders with no overlap
		if matched == 0 {
			matched, total = 1, total+1
		}
		if total == 0 {
			return 0
		}
		logSum += math.Log(float64(matched) / float64(total))
	}
	precision := math.Exp(logSum / float64(maxN))

	bp := 1.0
	if len(candidate) < len(reference) {
		bp = math.Exp(1 - float64(len(reference))/float64(len(candidate)))
	}
	return bp * precision
}

// ngramMatches returns the clipped n-gram match count and the candidate
// n-gram total.
func ngramMatches(candidate, reference []string, n int) (matched, total int) {
	if len(candidate) < n {
		return 0, 0
	}
	refCounts := make(map[string]int)
	for i := 0; i+n <= len(reference); i++ {
		refCounts[strings.Join(reference[i:i+n], "\x00")]++
	}
	for i := 0; i+n <= len(candidate); i++ {
		total++
		key := strings.Join(candidate[i:i+n], "\x00")
		if refCounts[key] > 0 {
			refCounts[key]--
			matched++
		}
	}
	return matched, total
}

// MaxOverGroundTruths scores candidate against every ground truth with the
// averaged pair of metrics and returns the maximum.  Paragraph ranking
// calls it with (F1, BLEU4); the question alone is a single ground truth,
// question+answers supply several.
func MaxOverGroundTruths(metricA, metricB Metric, candidate []string, groundTruths [][]string) float64 {
	best := 0.0
	for _, gt := range groundTruths {
		score := (metricA(candidate, gt) + metricB(candidate, gt)) / 2
		if score > best {
			best = score
		}
	}
	return best
}
