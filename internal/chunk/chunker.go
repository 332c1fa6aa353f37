// Package chunk splits extracted text into overlapping character windows
// for chunk-level embedding. Offsets are rune positions into the original
// text so a hit can be mapped back to its span.
package chunk

import "strings"

const (
	// DefaultMaxChars is the window size.
	DefaultMaxChars = 2048
	// DefaultOverlapChars is how much consecutive windows share.
	DefaultOverlapChars = 256
)

// Span is one window over the source text.
type Span struct {
	Index int
	Start int
	End   int
	Text  string
}

// Splitter produces overlapping windows of at most maxChars characters.
type Splitter struct {
	maxChars int
	overlap  int
}

// NewSplitter creates a splitter. Non-positive values fall back to the
// defaults; an overlap at or above the window size is clamped so windows
// always advance.
func NewSplitter(maxChars, overlap int) *Splitter {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if overlap < 0 {
		overlap = DefaultOverlapChars
	}
	if overlap >= maxChars {
		overlap = maxChars / 8
	}
	return &Splitter{maxChars: maxChars, overlap: overlap}
}

// Split windows the text. Blank text yields no spans. Text within one
// window yields a single span covering it entirely.
func (s *Splitter) Split(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	step := s.maxChars - s.overlap

	var spans []Span
	for start := 0; start < len(runes); start += step {
		end := start + s.maxChars
		if end > len(runes) {
			end = len(runes)
		}
		spans = append(spans, Span{
			Index: len(spans),
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return spans
}

// Snippet returns the leading portion of a span's text for display,
// truncated on a rune boundary.
func Snippet(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= maxChars {
		return string(runes)
	}
	return string(runes[:maxChars])
}
