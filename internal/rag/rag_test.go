package rag

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode"

	"pdf-rag/internal/chromemdb"
	"pdf-rag/internal/chunker"
	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/prompt"
	"pdf-rag/internal/retriever"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vocabEmbedder gives each vocabulary word its own dimension plus a small
// constant bias dimension so no vector is all zeros.
type vocabEmbedder struct {
	vocab []string
}

func (e vocabEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.EmbedQuery(ctx, t)
	}
	return out, nil
}

func (e vocabEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(e.vocab)+1)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		for i, v := range e.vocab {
			if w == v {
				vec[i]++
			}
		}
	}
	vec[len(e.vocab)] = 0.1
	return vec, nil
}

type sliceSource struct {
	docs  []models.Document
	err   error
	loads int
}

func (s *sliceSource) Load(context.Context) ([]models.Document, error) {
	s.loads++
	return s.docs, s.err
}

type scriptedGenerator struct {
	reply   string
	failOn  string
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, p string) (string, error) {
	g.prompts = append(g.prompts, p)
	if g.failOn != "" && strings.Contains(p, g.failOn) {
		return "", errors.New("503 service unavailable")
	}
	return g.reply, nil
}

var corpus = []models.Document{
	{Source: "papers/lora.pdf", Page: 1, Content: "LoRA freezes the pretrained model weights and injects trainable low rank matrices into each transformer layer."},
	{Source: "papers/rlhf.pdf", Page: 3, Content: "Reward modeling trains a model on human preference comparisons to score responses."},
	{Source: "misc/cooking.pdf", Page: 1, Content: "Bake the bread at high heat until the crust turns golden."},
}

var vocab = vocabEmbedder{vocab: []string{"lora", "low", "rank", "matrices", "weights", "reward", "preference", "human", "bread", "crust", "bake", "moon"}}

type fixture struct {
	rag    *RAG
	source *sliceSource
	gen    *scriptedGenerator
	index  *chromemdb.VectorDBManager
}

func newFixture(t *testing.T, opts retriever.Options) *fixture {
	t.Helper()

	index, err := chromemdb.NewVectorDBManager(config.IndexConfig{Collection: "documents"})
	require.NoError(t, err)
	ch, err := chunker.New(500, 50, nil)
	require.NoError(t, err)
	ret, err := retriever.New(vocab, index, opts)
	require.NoError(t, err)
	asm, err := prompt.New(models.DefaultPromptTemplate, models.DefaultFallback)
	require.NoError(t, err)

	f := &fixture{
		source: &sliceSource{docs: corpus},
		gen:    &scriptedGenerator{reply: "<think>look at the context</think>\nLoRA adapts a frozen model with low rank matrices."},
		index:  index,
	}
	f.rag = NewRAG(Components{
		Source:    f.source,
		Chunker:   ch,
		Embedder:  vocab,
		Index:     index,
		Retriever: ret,
		Assembler: asm,
		Generator: f.gen,
		BatchSize: 2,
	})
	return f
}

func defaultOptions() retriever.Options {
	return retriever.Options{SearchType: retriever.Similarity, K: 1, MinScore: 0.3}
}

func TestAsk_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())

	n, err := f.rag.Build(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ans, err := f.rag.Ask(ctx, "What is LoRA?")
	require.NoError(t, err)

	assert.Equal(t, "LoRA adapts a frozen model with low rank matrices.", ans.Text)
	assert.False(t, ans.Fallback)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "papers/lora.pdf", ans.Sources[0].Chunk.Source)
	assert.Equal(t, 1, ans.Sources[0].Chunk.Page)

	require.Len(t, f.gen.prompts, 1)
	assert.Equal(t, ans.Prompt, f.gen.prompts[0])
	assert.Contains(t, ans.Prompt, "Question: What is LoRA?")
	assert.Contains(t, ans.Prompt, "Context: "+corpus[0].Content)
	assert.NotContains(t, ans.Prompt, corpus[2].Content)
}

func TestAsk_FromPDFDirectory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	data, err := os.ReadFile(filepath.Join("..", "parser", "testdata", "lora.pdf"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lora.pdf"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cooking.txt"), []byte(corpus[2].Content), 0o644))

	index, err := chromemdb.NewVectorDBManager(config.IndexConfig{Collection: "documents"})
	require.NoError(t, err)
	ch, err := chunker.New(500, 50, nil)
	require.NoError(t, err)
	ret, err := retriever.New(vocab, index, retriever.Options{SearchType: retriever.Similarity, K: 2, MinScore: 0.3})
	require.NoError(t, err)
	asm, err := prompt.New(models.DefaultPromptTemplate, models.DefaultFallback)
	require.NoError(t, err)
	gen := &scriptedGenerator{reply: "LoRA is a parameter-efficient fine-tuning method."}

	r := NewRAG(Components{
		Source:    parser.NewLoader(config.SourceConfig{Dir: dir, Extensions: []string{".pdf", ".txt"}}),
		Chunker:   ch,
		Embedder:  vocab,
		Index:     index,
		Retriever: ret,
		Assembler: asm,
		Generator: gen,
	})

	n, err := r.Build(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ans, err := r.Ask(ctx, "What is LoRA?")
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "parameter-efficient fine-tuning")
	assert.False(t, ans.Fallback)
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, filepath.Join(dir, "lora.pdf"), ans.Sources[0].Chunk.Source)
	assert.Equal(t, 1, ans.Sources[0].Chunk.Page)
	assert.Contains(t, ans.Sources[0].Chunk.Content, "LoRA is a parameter-efficient fine-tuning method.")
	assert.Contains(t, ans.Prompt, "parameter-efficient fine-tuning method.")
}

func TestAsk_NothingRetrievedReturnsFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())
	_, err := f.rag.Build(ctx, false)
	require.NoError(t, err)

	ans, err := f.rag.Ask(ctx, "How far away is the moon?")
	require.NoError(t, err)

	assert.Equal(t, "I do not have enough information to answer this question accurately.", ans.Text)
	assert.True(t, ans.Fallback)
	assert.Empty(t, ans.Sources)
	assert.Empty(t, f.gen.prompts)
}

func TestAsk_ModelDeclines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())
	f.gen.reply = `"` + models.DefaultFallback + `"`
	_, err := f.rag.Build(ctx, false)
	require.NoError(t, err)

	ans, err := f.rag.Ask(ctx, "Who invented LoRA?")
	require.NoError(t, err)
	assert.True(t, ans.Fallback)
}

func TestBuild_ReusesAndRebuilds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())

	_, err := f.rag.Build(ctx, false)
	require.NoError(t, err)
	n, err := f.rag.Build(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, f.source.loads)

	f.source.docs = corpus[:1]
	n, err = f.rag.Build(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, f.source.loads)

	count, err := f.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBuild_SourceError(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.source.err = parser.ErrNoDocuments
	f.source.docs = nil

	_, err := f.rag.Build(context.Background(), false)
	assert.ErrorIs(t, err, parser.ErrNoDocuments)
}

func TestRun_ContinuesAfterError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, retriever.Options{SearchType: retriever.Similarity, K: 1})
	f.gen.failOn = "Reward modeling"
	_, err := f.rag.Build(ctx, false)
	require.NoError(t, err)

	var out bytes.Buffer
	failed := f.rag.Run(ctx, []string{
		"What is LoRA?",
		"can you tell me how Reward Modeling works?",
		"How do I bake bread?",
	}, &out)

	assert.Equal(t, 1, failed)
	assert.Len(t, f.gen.prompts, 3)

	text := out.String()
	assert.Contains(t, text, "Question: can you tell me how Reward Modeling works?")
	assert.Contains(t, text, "Error: failed to generate answer: 503 service unavailable\nAnswer: \n")
	assert.Contains(t, text, "Question: How do I bake bread?")
	assert.Equal(t, 2, strings.Count(text, "Answer: LoRA adapts a frozen model with low rank matrices."))
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t, defaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	assert.Equal(t, 2, f.rag.Run(ctx, []string{"a", "b"}, &out))
	assert.Empty(t, out.String())
}

func TestInspect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, retriever.Options{SearchType: retriever.Similarity, K: 2})
	_, err := f.rag.Build(ctx, false)
	require.NoError(t, err)

	sweep := []retriever.Options{
		{SearchType: retriever.Similarity, K: 1},
		{SearchType: retriever.MMR, K: 2, FetchK: 20, Lambda: 0.5},
		{SearchType: "bm25", K: 1},
	}

	var out bytes.Buffer
	require.NoError(t, f.rag.Inspect(ctx, "What is LoRA?", sweep, 20, &out))
	text := out.String()

	assert.Contains(t, text, "RAG CHAIN DEBUG")
	assert.Contains(t, text, "Retriever config 1: {k: 1, search_type: similarity}")
	assert.Contains(t, text, "Retriever config 2: {k: 2, search_type: mmr, fetch_k: 20, lambda: 0.50}")
	assert.Contains(t, text, "  First doc preview: LoRA freezes the pre...")
	assert.Contains(t, text, "  Source: papers/lora.pdf")
	assert.Contains(t, text, "ERROR: invalid retriever options")
	assert.Contains(t, text, "2. USING CONFIGURED RETRIEVER {k: 2, search_type: similarity}")
	assert.Contains(t, text, "Document 2 (score")
	assert.Contains(t, text, "  Page: 1")
	assert.Contains(t, text, "Formatted context length: ")
	assert.Contains(t, text, "SUCCESS! Generated answer:\nLoRA adapts a frozen model with low rank matrices.\n")
}

func TestInspect_GenerationError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())
	f.gen.failOn = "LoRA"
	_, err := f.rag.Build(ctx, false)
	require.NoError(t, err)

	var out bytes.Buffer
	err = f.rag.Inspect(ctx, "What is LoRA?", nil, 200, &out)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "ERROR: failed to generate answer")
}
