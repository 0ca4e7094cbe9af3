// Package normalizer bounds and cleans extracted document text before it is
// injected into a conversation.
package normalizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// PassthroughLimit is the largest document, in characters, kept verbatim.
	PassthroughLimit = 6000
	// ParagraphBudget caps the leading-paragraph block of a summary.
	ParagraphBudget = 2500
	// SentenceWindow is how many leading sentences are scanned for key points.
	SentenceWindow = 25
	// MaxKeyPoints caps the definitional sentences kept.
	MaxKeyPoints = 10
	// HardLimit is the absolute size of a summarized excerpt.
	HardLimit = 12000

	SummaryMarker = "[Automatic summary]"
)

// Result of Normalize.
type Result struct {
	Excerpt       string
	WasSummarized bool
}

var (
	sanitizer = strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
		"—", "-",
		"…", "...",
		"$", "S",
	)
	blankLine     = regexp.MustCompile(`\n[ \t\r]*\n`)
	sentenceBreak = regexp.MustCompile(`[.!?]\s+`)
)

// definitional predicates, English and Portuguese
var definitionalMarkers = map[string]struct{}{
	"is": {}, "are": {}, "means": {}, "consists": {}, "involves": {}, "allows": {},
	"implies": {}, "defines": {}, "represents": {}, "refers": {},
	"é": {}, "são": {}, "consiste": {}, "envolve": {}, "permite": {}, "implica": {},
	"define": {}, "representa": {},
}

// Sanitize replaces typographic punctuation and the template delimiter "$".
func Sanitize(s string) string {
	return strings.TrimSpace(sanitizer.Replace(s))
}

// SanitizeFragment is Sanitize without trimming, for streamed output where
// surrounding whitespace is significant.
func SanitizeFragment(s string) string {
	return sanitizer.Replace(s)
}

// Normalize sanitizes raw and, when it exceeds PassthroughLimit characters,
// replaces it with an extractive summary. It is deterministic.
func Normalize(raw string) Result {
	text := Sanitize(raw)
	if utf8.RuneCountInString(text) <= PassthroughLimit {
		return Result{Excerpt: text}
	}
	return Result{Excerpt: Summarize(text), WasSummarized: true}
}

// Summarize builds the leading-paragraph block plus definitional key points.
func Summarize(text string) string {
	var lead []string
	acc := 0
	for _, p := range blankLine.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n := utf8.RuneCountInString(p)
		if acc+n > ParagraphBudget {
			break
		}
		lead = append(lead, p)
		acc += n
	}

	sentences := sentenceBreak.Split(text, SentenceWindow+1)
	if len(sentences) > SentenceWindow {
		sentences = sentences[:SentenceWindow]
	}
	var points []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" || !isDefinitional(s) {
			continue
		}
		points = append(points, s)
		if len(points) == MaxKeyPoints {
			break
		}
	}

	var b strings.Builder
	b.WriteString(strings.Join(lead, "\n\n"))
	b.WriteString("\n\n")
	b.WriteString(SummaryMarker)
	for _, p := range points {
		b.WriteString("\n- ")
		b.WriteString(p)
	}
	return truncateRunes(b.String(), HardLimit)
}

func isDefinitional(sentence string) bool {
	words := strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if _, ok := definitionalMarkers[w]; ok {
			return true
		}
	}
	return false
}

// Preview returns the first n characters of s followed by an ellipsis.
func Preview(s string, n int) string {
	return truncateRunes(s, n) + "..."
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
