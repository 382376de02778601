package chunker

import (
	"errors"
	"fmt"

	"pdf-rag/internal/models"

	"github.com/google/uuid"
)

var (
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrInvalidOverlap   = errors.New("chunk overlap must be non-negative and smaller than chunk size")
)

// DefaultSeparators are tried in order: paragraph, line, sentence, word.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// chunkNamespace scopes the deterministic chunk IDs
var chunkNamespace = uuid.MustParse("6f1c7c1e-3d0a-4c8e-9a55-8b7f2d6e4a10")

// Chunker splits documents into overlapping chunks of at most Size runes.
type Chunker struct {
	size       int
	overlap    int
	separators [][]rune
}

func New(size, overlap int, separators []string) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: got %d with size %d", ErrInvalidOverlap, overlap, size)
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}

	c := &Chunker{size: size, overlap: overlap}
	for _, sep := range separators {
		// the empty separator means "cut anywhere", which is already the fallback
		if sep == "" {
			continue
		}
		c.separators = append(c.separators, []rune(sep))
	}
	return c, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the [start, end) rune spans of text. Consecutive spans share
// exactly Overlap runes and none is longer than Size.
func (c *Chunker) Split(text []rune) [][2]int {
	n := len(text)
	if n == 0 {
		return nil
	}

	var spans [][2]int
	start := 0
	for {
		if n-start <= c.size {
			spans = append(spans, [2]int{start, n})
			return spans
		}
		end := c.cut(text, start)
		spans = append(spans, [2]int{start, end})
		start = end - c.overlap
	}
}

// cut picks the end of the chunk beginning at start. The cut must land after
// start+overlap so the next chunk begins strictly later than this one.
func (c *Chunker) cut(text []rune, start int) int {
	limit := start + c.size
	floor := start + c.overlap

	for _, sep := range c.separators {
		// last occurrence whose end falls in (floor, limit]
		for end := limit; end > floor; end-- {
			if end-len(sep) < start {
				break
			}
			if hasSuffixAt(text, sep, end) {
				return end
			}
		}
	}
	return limit
}

func hasSuffixAt(text, sep []rune, end int) bool {
	begin := end - len(sep)
	if begin < 0 {
		return false
	}
	for i, r := range sep {
		if text[begin+i] != r {
			return false
		}
	}
	return true
}

// ChunkDocument splits one document. Chunks inherit the document's source and
// page and carry their rune offsets into its content.
func (c *Chunker) ChunkDocument(doc models.Document) []models.Chunk {
	text := []rune(doc.Content)
	spans := c.Split(text)

	chunks := make([]models.Chunk, 0, len(spans))
	for i, s := range spans {
		chunks = append(chunks, models.Chunk{
			ID:      ChunkID(doc.Source, doc.Page, i),
			Content: string(text[s[0]:s[1]]),
			Source:  doc.Source,
			Page:    doc.Page,
			Index:   i,
			Start:   s[0],
			End:     s[1],
		})
	}
	return chunks
}

func (c *Chunker) ChunkDocuments(docs []models.Document) []models.Chunk {
	var chunks []models.Chunk
	for _, doc := range docs {
		chunks = append(chunks, c.ChunkDocument(doc)...)
	}
	return chunks
}

// ChunkID is stable across runs so re-indexing the same corpus overwrites
// rather than duplicates.
func ChunkID(source string, page, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d#%d", source, page, index))).String()
}

// Reassemble rebuilds the document text from its chunks in order by dropping
// each chunk's leading overlap.
func Reassemble(chunks []models.Chunk, overlap int) string {
	var out []rune
	for i, ch := range chunks {
		r := []rune(ch.Content)
		if i > 0 {
			r = r[min(overlap, len(r)):]
		}
		out = append(out, r...)
	}
	return string(out)
}
