package inverted

import (
	"strings"
	"unicode"
)

// Chunking geometry of child documents.
const (
	childChunkSize    = 1024
	childChunkOverlap = 128

	// sentenceWindow is how far back from the target size a sentence
	// terminator is still preferred over a word boundary.
	sentenceWindow = 50
)

// sentenceTerminators end a sentence in either script family.
var sentenceTerminators = []rune{'.', '!', '?', '。', '！', '？', '；', ';'}

// Span is one child chunk with its offsets in the original text.
type Span struct {
	Text  string
	Start int
	End   int
}

// SplitText breaks text into child chunks of about size runes with the given
// overlap. Boundaries are chosen in order of preference: a paragraph break, a
// sentence terminator within the last sentenceWindow runes of the target, a
// word boundary, and finally a hard cut.
func SplitText(text string, size, overlap int) []Span {
	if size <= 0 {
		size = childChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = childChunkOverlap
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []Span{{Text: text, Start: 0, End: len(runes)}}
	}

	var spans []Span
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			spans = append(spans, Span{Text: string(runes[start:]), Start: start, End: len(runes)})
			break
		}

		cut := findBoundary(runes, start, end)
		spans = append(spans, Span{Text: string(runes[start:cut]), Start: start, End: cut})

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return spans
}

// findBoundary picks the best cut point at or before end.
func findBoundary(runes []rune, start, end int) int {
	// Paragraph break anywhere in the chunk, closest to the target.
	for i := end; i > start+1; i-- {
		if runes[i-1] == '\n' && i >= 2 && runes[i-2] == '\n' {
			return i
		}
	}
	// Sentence terminator within the last sentenceWindow runes.
	low := end - sentenceWindow
	if low < start+1 {
		low = start + 1
	}
	for i := end; i > low; i-- {
		if isSentenceTerminator(runes[i-1]) {
			return i
		}
	}
	// Word boundary.
	for i := end; i > start+1; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	// Hard cut.
	return end
}

func isSentenceTerminator(r rune) bool {
	for _, t := range sentenceTerminators {
		if r == t {
			return true
		}
	}
	return false
}

// firstLine returns the first non-empty line of text, used as a fallback
// title for untitled documents.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
