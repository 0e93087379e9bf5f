package chunker

import (
	"fmt"
	"strings"
)

// Default sizes, in characters.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Chunk is a segment of source text prepared for embedding.
type Chunk struct {
	Text string
	// Offset is the position of the chunk's first character (rune) in the
	// text it was split from.
	Offset int
}

// separatorLevels is the split hierarchy, coarsest first: paragraph, line,
// sentence, word. Characters are the implicit last level.
var separatorLevels = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "? ", "! "},
	{" "},
}

// Splitter cuts text into overlapping chunks of at most Size characters.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter validates the sizes and returns a Splitter.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Size returns the maximum chunk length.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the number of characters shared by consecutive chunks.
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns the chunks of text in order. Each chunk ends right after the
// coarsest separator found in its window; the next one starts exactly
// Overlap characters before that end. Whitespace-only input yields nil.
func (s *Splitter) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)

	var chunks []Chunk
	start := 0
	for {
		end := start + s.size
		if end >= n {
			end = n
		} else {
			end = s.cut(runes, start, end)
		}

		seg := string(runes[start:end])
		if strings.TrimSpace(seg) != "" {
			chunks = append(chunks, Chunk{Text: seg, Offset: start})
		}
		if end == n {
			break
		}
		start = end - s.overlap
	}
	return chunks
}

// cut picks the chunk end within runes[start:limit]. The end must lie past
// start+overlap so the next chunk always advances.
func (s *Splitter) cut(runes []rune, start, limit int) int {
	window := runes[start:limit]
	minEnd := s.overlap + 1
	for _, level := range separatorLevels {
		best := -1
		for _, sep := range level {
			if e := lastSeparatorEnd(window, []rune(sep)); e >= minEnd && e > best {
				best = e
			}
		}
		if best > 0 {
			return start + best
		}
	}
	return limit
}

// lastSeparatorEnd returns the index just after the last occurrence of sep
// in window, or -1.
func lastSeparatorEnd(window, sep []rune) int {
	for i := len(window) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if window[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i + len(sep)
		}
	}
	return -1
}

// Texts returns the text of each chunk.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
