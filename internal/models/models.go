package models

// Document is the raw text of one page (or the whole file for formats
// without pages) together with where it came from.
type Document struct {
	Content string
	Source  string
	Page    int // 1-based, 0 when the format has no pages
}

// Chunk represents a bounded slice of a Document's content
type Chunk struct {
	ID      string
	Content string
	Source  string
	Page    int
	Index   int
	Start   int // rune offset into the parent document
	End     int
}

// Match is a chunk returned by the vector index for a query
type Match struct {
	Chunk     Chunk
	Score     float32
	Embedding []float32
}

type Answer struct {
	Question string
	Text     string
	Sources  []Match
	Prompt   string
	Fallback bool
}

// Chunks returns the chunks of the matches in rank order.
func Chunks(matches []Match) []Chunk {
	chunks := make([]Chunk, len(matches))
	for i, m := range matches {
		chunks[i] = m.Chunk
	}
	return chunks
}
