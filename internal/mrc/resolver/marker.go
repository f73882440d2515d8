// Package resolver converts marker-annotated answer and supporting
// paragraph text into absolute character-offset answer labels.
package resolver

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// markerPattern matches the ad-hoc @content<N>@ document markers embedded
// in answer and supporting_paragraph annotations.  N is the 1-based
// document index.
var markerPattern = regexp.MustCompile(`@content(\d+)@`)

// residualPattern matches half-broken marker debris (missing the leading
// @) that some annotations carry inside a fragment.
var residualPattern = regexp.MustCompile(`content\d+@`)

// Fragment is one segment of marker-annotated text attributed to a
// document.  DocID is 1-based, as written in the annotation.
type Fragment struct {
	DocID int
	Text  string
}

// ParseMarked splits marker-annotated text into per-document fragments
// using an explicit current-document tracker: each @content<N>@ marker sets
// the active document, and every non-empty stretch of text between markers
// belongs to the document active at that point.  Text before the first
// marker is attributed to the first marker's document (annotations
// occasionally drop the opening marker).  Residual marker debris inside a
// fragment is stripped; fragments that are empty after stripping are
// dropped.
func ParseMarked(text string) []Fragment {
	locs := markerPattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	docAt := func(loc []int) int {
		id, _ := strconv.Atoi(text[loc[2]:loc[3]])
		return id
	}

	var fragments []Fragment
	appendFragment := func(docID int, raw string) {
		raw = strings.TrimSpace(residualPattern.ReplaceAllString(raw, ""))
		if raw == "" {
			return
		}
		fragments = append(fragments, Fragment{DocID: docID, Text: raw})
	}

	// Leading unmarked text belongs to the first marker's document.
	appendFragment(docAt(locs[0]), text[:locs[0][0]])

	for i, loc := range locs {
		segEnd := len(text)
		if i+1 < len(locs) {
			segEnd = locs[i+1][0]
		}
		appendFragment(docAt(loc), text[loc[1]:segEnd])
	}

	return fragments
}

// MarkedDocIDs returns the sorted unique document ids referenced by the
// markers in text.
func MarkedDocIDs(text string) []int {
	seen := map[int]struct{}{}
	for _, m := range markerPattern.FindAllStringSubmatch(text, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		seen[id] = struct{}{}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// FragmentsForDoc returns the ordered fragment texts attributed to docID.
func FragmentsForDoc(text string, docID int) []string {
	var out []string
	for _, f := range ParseMarked(text) {
		if f.DocID == docID {
			out = append(out, f.Text)
		}
	}
	return out
}
