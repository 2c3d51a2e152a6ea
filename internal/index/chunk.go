package index

import "strings"

const (
	// DefaultChunkSize is the target chunk length in runes.
	DefaultChunkSize = 1200

	// DefaultChunkOverlap is how many trailing runes of one chunk reappear
	// at the start of the next, so retrieval does not lose context at
	// chunk borders.
	DefaultChunkOverlap = 200
)

// Chunker splits document text into overlapping pieces sized for embedding.
// Splits prefer paragraph breaks, then line breaks, then fall back to a hard
// cut.
type Chunker struct {
	// Size is the target chunk length in runes. Zero means
	// [DefaultChunkSize].
	Size int

	// Overlap is the rune overlap between consecutive chunks. Zero means
	// [DefaultChunkOverlap]; negative disables overlap.
	Overlap int
}

// Split returns the chunks of text in document order. Whitespace-only input
// yields no chunks.
func (c Chunker) Split(text string) []string {
	size := c.Size
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := c.Overlap
	if overlap == 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}

	var chunks []string
	var current []rune

	flush := func() {
		s := strings.TrimSpace(string(current))
		if s != "" {
			chunks = append(chunks, s)
		}
		if overlap > 0 && len(current) > overlap {
			current = append([]rune(nil), current[len(current)-overlap:]...)
		} else {
			current = current[:0]
		}
	}

	for _, para := range splitParagraphs(text) {
		runes := []rune(para)

		// Oversized paragraphs get hard-split at line or rune boundaries.
		for len(runes) > size {
			cut := size
			if i := lastIndexRune(runes[:size], '\n'); i > size/2 {
				cut = i
			}
			current = append(current, runes[:cut]...)
			flush()
			runes = runes[cut:]
		}

		if len(current) > 0 && len(current)+len(runes)+2 > size {
			flush()
		}
		if len(current) > 0 {
			current = append(current, '\n', '\n')
		}
		current = append(current, runes...)
	}
	if s := strings.TrimSpace(string(current)); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

// splitParagraphs splits on blank lines, dropping empty paragraphs.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
