package embeddings

import "strings"

// Chunk is one slice of a longer document.
type Chunk struct {
	Text  string
	Index int
	Total int
}

// Chunker splits long texts into overlapping word-based chunks. Token
// counts are approximated by words; the defaults leave headroom against
// typical embedding model limits.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

func NewChunker(maxTokens, overlapTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 1800
	}
	if overlapTokens <= 0 || overlapTokens >= maxTokens {
		overlapTokens = maxTokens / 9
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}
}

// Split returns the chunks covering text. Short texts come back as a
// single chunk so callers can treat every document uniformly.
func (c *Chunker) Split(text string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= c.maxTokens {
		return []Chunk{{Text: strings.Join(words, " "), Index: 0, Total: 1}}
	}

	step := c.maxTokens - c.overlapTokens
	var chunks []Chunk
	for i := 0; i < len(words); i += step {
		end := i + c.maxTokens
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{
			Text:  strings.Join(words[i:end], " "),
			Index: len(chunks),
		})
		if end == len(words) {
			break
		}
	}
	for i := range chunks {
		chunks[i].Total = len(chunks)
	}
	return chunks
}

// CountTokens estimates the token count of text.
func (c *Chunker) CountTokens(text string) int {
	return len(strings.Fields(text))
}
