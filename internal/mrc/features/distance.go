package features

import (
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/similarity"
)

// Levenshtein returns the edit distance between two strings normalized to
// [0,1] by the longer length.  Identical strings score 0, fully disjoint
// strings score 1.
func Levenshtein(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 0
	}
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return float64(editDistance(ra, rb)) / float64(longest)
}

// editDistance is the classic two-row DP over runes.
func editDistance(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// LongestMatchSize returns the length in runes of the longest common
// substring of a and b.
func LongestMatchSize(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	best := 0
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > best {
					best = curr[j]
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return best
}

// LongestMatchRatio is LongestMatchSize normalized by the shorter string.
func LongestMatchRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	shorter := len(ra)
	if len(rb) < shorter {
		shorter = len(rb)
	}
	if shorter == 0 {
		return 0
	}
	return float64(LongestMatchSize(a, b)) / float64(shorter)
}

// JaccardCoef is the Jaccard coefficient of the two rune sets.
func JaccardCoef(a, b string) float64 {
	sa, sb := runeSet(a), runeSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}
	inter := 0
	for r := range sa {
		if _, ok := sb[r]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// DiceDist is one minus the Dice coefficient of the two rune sets.
func DiceDist(a, b string) float64 {
	sa, sb := runeSet(a), runeSet(b)
	if len(sa)+len(sb) == 0 {
		return 1
	}
	inter := 0
	for r := range sa {
		if _, ok := sb[r]; ok {
			inter++
		}
	}
	return 1 - 2*float64(inter)/float64(len(sa)+len(sb))
}

// CharF1 is the char-level F1 between the two strings.
func CharF1(a, b string) float64 {
	return similarity.CharF1(a, b)
}

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
