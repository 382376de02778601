package embedding

import (
	"context"
	"errors"
	"testing"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmbedder struct {
	batches [][]string
	dim     func(i int) int
	short   bool
	err     error
}

func (e *recordingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.batches = append(e.batches, texts)
	n := len(texts)
	if e.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		d := 3
		if e.dim != nil {
			d = e.dim(i)
		}
		out[i] = make([]float32, d)
		out[i][0] = float32(len(texts[i]))
	}
	return out, nil
}

func (e *recordingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func chunksOf(contents ...string) []models.Chunk {
	chunks := make([]models.Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = models.Chunk{ID: c, Content: c}
	}
	return chunks
}

func TestEmbedChunks_Batches(t *testing.T) {
	e := &recordingEmbedder{}
	vecs, err := EmbedChunks(context.Background(), e, chunksOf("a", "bb", "ccc", "dddd", "eeeee"), 2)
	require.NoError(t, err)

	require.Len(t, vecs, 5)
	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc", "dddd"}, {"eeeee"}}, e.batches)
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v[0], "vector %d out of order", i)
	}
}

func TestEmbedChunks_Empty(t *testing.T) {
	vecs, err := EmbedChunks(context.Background(), &recordingEmbedder{}, nil, 10)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestEmbedChunks_WrongCount(t *testing.T) {
	_, err := EmbedChunks(context.Background(), &recordingEmbedder{short: true}, chunksOf("a", "b"), 10)
	assert.ErrorIs(t, err, ErrVectorCount)
}

func TestEmbedChunks_MixedDimensions(t *testing.T) {
	e := &recordingEmbedder{dim: func(i int) int { return 3 + i }}
	_, err := EmbedChunks(context.Background(), e, chunksOf("a", "b"), 10)
	assert.ErrorIs(t, err, ErrDimension)
}

func TestEmbedChunks_PropagatesError(t *testing.T) {
	boom := errors.New("rate limited")
	_, err := EmbedChunks(context.Background(), &recordingEmbedder{err: boom}, chunksOf("a"), 10)
	assert.ErrorIs(t, err, boom)
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	_, err := NewEmbedder(context.Background(), &config.LLMConfig{Provider: "word2vec"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNewEmbedder_AzureNeedsBaseURL(t *testing.T) {
	_, err := NewEmbedder(context.Background(), &config.LLMConfig{Provider: "azure", Key: "k", Model: "m"})
	assert.Error(t, err)
}

func TestNewEmbedder_OllamaBuildsOffline(t *testing.T) {
	e, err := NewEmbedder(context.Background(), &config.LLMConfig{Provider: "ollama", Model: "nomic-embed-text", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.NotNil(t, e)
}
