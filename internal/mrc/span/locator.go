// Package span locates short text fragments inside longer containing text,
// returning inclusive rune-offset spans and a confidence score.  Annotation
// fragments are rarely exact substrings of the document they reference, so
// the locator layers cheap exact-match variants over a similarity-guided
// fuzzy search.
package span

import (
	"strings"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/similarity"
)

// Strategy names the matching phase that produced a Match.
const (
	StrategyExact      = "exact"
	StrategyStripStop  = "strip_stop"
	StrategyStripSpace = "strip_space"
	StrategyFuzzy      = "fuzzy"
	StrategyMiss       = "miss"
)

// Match is the result of a locate call.  Start/End are inclusive rune
// offsets into the container; a failed locate is {-1, -1, 0}.
type Match struct {
	Start      int
	End        int
	Confidence float64
	Strategy   string
}

// NoMatch is returned when no window scores above zero.
var NoMatch = Match{Start: -1, End: -1, Confidence: 0, Strategy: StrategyMiss}

// Found reports whether the match carries a usable span.
func (m Match) Found() bool {
	return m.Start >= 0 && m.End >= m.Start && m.Confidence > 0
}

// Length returns the matched span length in runes, 0 for a failed match.
func (m Match) Length() int {
	if !m.Found() {
		return 0
	}
	return m.End - m.Start + 1
}

// Locator finds best-matching spans.  Instances are immutable and safe for
// concurrent use.
type Locator struct {
	scorer *similarity.RougeL
}

// NewLocator returns a Locator scoring fuzzy windows with the default
// Rouge-L scorer.
func NewLocator() *Locator {
	return &Locator{scorer: similarity.NewRougeL()}
}

// NewLocatorWithScorer returns a Locator with an explicit scorer.
func NewLocatorWithScorer(scorer *similarity.RougeL) *Locator {
	if scorer == nil {
		scorer = similarity.NewRougeL()
	}
	return &Locator{scorer: scorer}
}

// Locate finds the best-matching contiguous span of fragment inside
// container.  Matching policy, first success wins:
//
//  1. exact substring containment, confidence 1;
//  2. fragment minus a trailing sentence-final 。 contained exactly;
//  3. fragment with spaces removed contained exactly (annotation typos);
//  4. fuzzy search: enumerate candidate windows whose boundary runes occur
//     in the fragment's rune set, score each with Rouge-L, keep the max.
//
// The fuzzy search prunes by shrinking the end-search ceiling to the best
// end found so far.  It is a bounded heuristic, not exhaustive-optimal, and
// its first-found tie-break is deliberately stable: downstream ceiling
// metrics were computed against this exact behavior.
func (l *Locator) Locate(fragment, container string) Match {
	return l.LocateRunes([]rune(fragment), []rune(container))
}

// LocateRunes is Locate on pre-converted rune slices.  Callers that match
// one fragment against many containers (or vice versa) convert once.
func (l *Locator) LocateRunes(fragment, container []rune) Match {
	if len(fragment) == 0 || len(container) == 0 {
		return NoMatch
	}

	if m, ok := exactMatch(fragment, container); ok {
		m.Strategy = StrategyExact
		return m
	}

	// Annotators frequently append the sentence-final mark.
	if fragment[len(fragment)-1] == '。' {
		if m, ok := exactMatch(fragment[:len(fragment)-1], container); ok {
			m.Strategy = StrategyStripStop
			return m
		}
	}

	// Stray spaces inside annotations break exact containment.
	if stripped := stripSpaces(fragment); len(stripped) < len(fragment) {
		if m, ok := exactMatch(stripped, container); ok {
			m.Strategy = StrategyStripSpace
			return m
		}
	}

	return l.fuzzySearch(fragment, container)
}

// exactMatch reports the first occurrence of fragment in container.
func exactMatch(fragment, container []rune) (Match, bool) {
	if len(fragment) == 0 {
		return NoMatch, false
	}
	idx := runeIndex(container, fragment)
	if idx < 0 {
		return NoMatch, false
	}
	return Match{Start: idx, End: idx + len(fragment) - 1, Confidence: 1}, true
}

// runeIndex returns the rune offset of the first occurrence of needle in
// haystack, or -1.  strings.Index works on bytes; offsets here must count
// runes, so the byte index is translated back.
func runeIndex(haystack, needle []rune) int {
	h, n := string(haystack), string(needle)
	byteIdx := strings.Index(h, n)
	if byteIdx < 0 {
		return -1
	}
	return len([]rune(h[:byteIdx]))
}

func stripSpaces(rs []rune) []rune {
	out := make([]rune, 0, len(rs))
	for _, r := range rs {
		if r != ' ' {
			out = append(out, r)
		}
	}
	return out
}

// fuzzySearch scans candidate windows [start, end] whose boundary runes
// belong to the fragment's rune set and keeps the best Rouge-L score.
// The end scan starts at the best end found so far (initially the container
// end) and walks down to start, reproducing the original search order so
// ties break identically across runs.
func (l *Locator) fuzzySearch(fragment, container []rune) Match {
	fragChars := make(map[rune]struct{}, len(fragment))
	for _, r := range fragment {
		fragChars[r] = struct{}{}
	}

	best := NoMatch
	lastEnd := len(container) - 1

	for start := 0; start < len(container)-len(fragment); start++ {
		if _, ok := fragChars[container[start]]; !ok {
			continue
		}
		for end := lastEnd; end >= start; end-- {
			if _, ok := fragChars[container[end]]; !ok {
				continue
			}
			score := l.scorer.ScoreRunes(container[start:end+1], fragment)
			if score > best.Confidence {
				best = Match{Start: start, End: end, Confidence: score, Strategy: StrategyFuzzy}
				lastEnd = end
			}
		}
	}

	return best
}
