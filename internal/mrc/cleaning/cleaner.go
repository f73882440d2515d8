// Package cleaning normalizes raw crawled text before any scoring or span
// work: exotic unicode spaces, URLs, HTML tag debris and stuttered
// character runs all defeat exact-match span location downstream, so they
// are removed here, once, at the head of the pipeline.
package cleaning

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/sample"
)

// unicodeSpaces are the invisible and wide space characters observed in the
// crawled corpus, replaced outright before whitespace collapsing.
var unicodeSpaces = []string{
	"\x10", "\x7f", "", "­", " ",
	"", "", "", "", "", "", "",
	"", "", "", "", "", "", "",
	"", "", "", "", "", "", "",
	"", "&#160;", "&nbsp;",
	"​", "‎", "‪", "‬", "\uFEFF", "", "⁡",
	" ", "᠎", " ", " ", " ", " ", " ",
	" ", " ", " ", " ", " ", " ", " ",
	" ", " ", " ", "　",
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)

	// urlPattern catches explicit scheme/www URLs; latinRunAfterChinese
	// mops up bare-domain fragments glued to Chinese text.
	urlPattern          = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s\p{Han}]+`)
	bareDomainPattern   = regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9.-]*\.(?:com|cn|net|org|gov|edu|mil|info|biz)(?:/[^\s\p{Han}]*)?`)
	htmlTagPattern      = regexp.MustCompile(`<[^<>]*>`)
	chinesePattern      = regexp.MustCompile(`\p{Han}`)
	angleOpenRun        = regexp.MustCompile(`<{2,}`)
	chineseCloseAngle   = regexp.MustCompile(`(\p{Han}+)>`)
	chineseInAngle      = regexp.MustCompile(`<(\p{Han}+)>`)
	numberInAngle       = regexp.MustCompile(`<(\d+)>`)
	controlCaretLetters = regexp.MustCompile(`\^[A-Z]`)
)

// duplicatablePunct are the ASCII and CJK punctuation marks whose
// consecutive repeats collapse to a single occurrence.
const duplicatablePunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~" +
	"＃＄％＆＇（）＊＋，－／：；＜＝＞＠［＼］＾＿｀｛｜｝～｟｠｢｣､　、〃〈〉《》" +
	"「」『』【】〔〕〖〗〘〙〚〛〜〝〞〟〰〾〿–—‘’‛“”„‟…‧﹏﹑﹔·！？｡。"

// Cleaner applies the full normalization battery.  Instances are immutable
// and safe for concurrent use.
type Cleaner struct {
	punct map[rune]struct{}
}

// New returns a ready Cleaner.
func New() *Cleaner {
	punct := make(map[rune]struct{}, len(duplicatablePunct))
	for _, r := range duplicatablePunct {
		punct[r] = struct{}{}
	}
	return &Cleaner{punct: punct}
}

// Text runs the full cleaning sequence on one string:
// NFC normalization, unicode-space removal, URL removal, HTML tag removal,
// stuttered-run collapsing and punctuation dedup.
func (c *Cleaner) Text(text string) string {
	text = norm.NFC.String(text)
	text = removeUnicodeSpace(text)
	text = removeHTMLTags(text)
	text = removeURLs(text)
	text = collapseRepeats(text)
	text = c.dedupPunct(text)
	text = numberInAngle.ReplaceAllString(text, "$1")
	text = controlCaretLetters.ReplaceAllString(text, "")
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// Sample cleans every text field of a sample in place and drops empty and
// duplicate paragraphs.
func (c *Cleaner) Sample(s *sample.Sample) {
	s.Question = c.Text(s.Question)
	s.Keyword = c.Text(s.Keyword)
	if s.SupportingParagraph != "" {
		s.SupportingParagraph = c.Text(s.SupportingParagraph)
	}

	for _, doc := range s.Documents {
		doc.Title = c.Text(doc.Title)

		cleaned := make([]string, 0, len(doc.Paragraphs))
		seen := make(map[string]struct{}, len(doc.Paragraphs))
		for _, para := range doc.Paragraphs {
			para = c.Text(para)
			if para == "" {
				continue
			}
			if _, dup := seen[para]; dup {
				continue
			}
			seen[para] = struct{}{}
			cleaned = append(cleaned, para)
		}
		doc.Paragraphs = cleaned
	}
}

func removeUnicodeSpace(text string) string {
	for _, sp := range unicodeSpaces {
		text = strings.ReplaceAll(text, sp, "")
	}
	return whitespaceRun.ReplaceAllString(text, " ")
}

func removeURLs(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	return bareDomainPattern.ReplaceAllString(text, "")
}

// removeHTMLTags strips markup while keeping angle-bracketed Chinese, which
// in this corpus is quoted text rather than markup.
func removeHTMLTags(text string) string {
	text = angleOpenRun.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "<；；", "")
	text = chineseInAngle.ReplaceAllString(text, "$1")
	text = chineseCloseAngle.ReplaceAllString(text, "$1")

	return htmlTagPattern.ReplaceAllStringFunc(text, func(tag string) string {
		if chinesePattern.MatchString(tag) {
			return tag
		}
		return ""
	})
}

// collapseRepeats reduces a unit of 1..6 runes repeated three or more times
// in a row to a single occurrence, iterating until a fixed point (bounded).
// Digits and roman-numeral letters are exempt: "2000" and "III" are
// legitimate repeats.
func collapseRepeats(text string) string {
	for pass := 0; pass < 6; pass++ {
		collapsed := collapseOnce([]rune(text))
		if collapsed == text {
			return text
		}
		text = collapsed
	}
	return text
}

func collapseOnce(rs []rune) string {
	var b strings.Builder
	b.Grow(len(rs))
	i := 0
	for i < len(rs) {
		replaced := false
		for unit := 1; unit <= 6 && i+unit*3 <= len(rs); unit++ {
			if !repeatableUnit(rs[i : i+unit]) {
				continue
			}
			reps := 1
			for i+(reps+1)*unit <= len(rs) && equalRunes(rs[i:i+unit], rs[i+reps*unit:i+(reps+1)*unit]) {
				reps++
			}
			if reps >= 3 {
				b.WriteString(string(rs[i : i+unit]))
				i += reps * unit
				replaced = true
				break
			}
		}
		if !replaced {
			b.WriteRune(rs[i])
			i++
		}
	}
	return b.String()
}

func repeatableUnit(unit []rune) bool {
	for _, r := range unit {
		if (r >= '0' && r <= '9') || r == 'I' || r == 'X' {
			return false
		}
	}
	return true
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// dedupPunct collapses consecutive repeats of the same punctuation mark.
func (c *Cleaner) dedupPunct(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	var prev rune = -1
	for _, r := range text {
		if r == prev {
			if _, isPunct := c.punct[r]; isPunct {
				continue
			}
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}
