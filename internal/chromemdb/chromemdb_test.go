package chromemdb

import (
	"context"
	"path/filepath"
	"testing"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleChunks() ([]models.Chunk, [][]float32) {
	chunks := []models.Chunk{
		{ID: "c1", Content: "LoRA freezes the pretrained weights.", Source: "docs/lora.pdf", Page: 1, Index: 0, Start: 0, End: 36},
		{ID: "c2", Content: "Adapters insert small layers.", Source: "docs/adapters.pdf", Page: 2, Index: 3, Start: 120, End: 149},
		{ID: "c3", Content: "Unrelated text about cooking.", Source: "docs/food.pdf", Page: 7, Index: 1, Start: 40, End: 69},
	}
	vectors := [][]float32{{1, 0, 0}, {0.8, 0.6, 0}, {0, 0, 1}}
	return chunks, vectors
}

func newManager(t *testing.T, cfg config.IndexConfig) *VectorDBManager {
	t.Helper()
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}
	m, err := NewVectorDBManager(cfg)
	require.NoError(t, err)
	return m
}

func TestSearch_RoundTripsChunks(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, config.IndexConfig{})
	chunks, vectors := sampleChunks()
	require.NoError(t, m.Add(ctx, chunks, vectors))

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := m.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, chunks[0], got[0].Chunk)
	assert.Equal(t, chunks[1], got[1].Chunk)
	assert.InDelta(t, 1.0, got[0].Score, 1e-5)
	assert.InDelta(t, 0.8, got[1].Score, 1e-5)
	assert.Len(t, got[0].Embedding, 3)
}

func TestSearch_ClampsToCollectionSize(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, config.IndexConfig{})

	got, err := m.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	chunks, vectors := sampleChunks()
	require.NoError(t, m.Add(ctx, chunks, vectors))
	got, err = m.Search(ctx, []float32{1, 0, 0}, 20)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = m.Search(ctx, nil, 1)
	assert.Error(t, err)
}

func TestAdd_SameIDOverwrites(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, config.IndexConfig{})
	chunks, vectors := sampleChunks()
	require.NoError(t, m.Add(ctx, chunks, vectors))
	require.NoError(t, m.Add(ctx, chunks, vectors))

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Error(t, m.Add(ctx, chunks, vectors[:1]))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, config.IndexConfig{})
	chunks, vectors := sampleChunks()
	require.NoError(t, m.Add(ctx, chunks, vectors))

	require.NoError(t, m.Reset(ctx))
	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSnapshot_ExportImport(t *testing.T) {
	ctx := context.Background()
	cfg := config.IndexConfig{
		SnapshotPath:  filepath.Join(t.TempDir(), "snap", "documents.chromem"),
		EncryptionKey: "0123456789abcdef0123456789abcdef",
	}

	m := newManager(t, cfg)
	chunks, vectors := sampleChunks()
	require.NoError(t, m.Add(ctx, chunks, vectors))
	require.NoError(t, m.Save(ctx))

	reopened := newManager(t, cfg)
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := reopened.Search(ctx, []float32{0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, chunks[2], got[0].Chunk)
}

func TestPersistDir(t *testing.T) {
	ctx := context.Background()
	cfg := config.IndexConfig{PersistDir: t.TempDir()}

	m := newManager(t, cfg)
	chunks, vectors := sampleChunks()
	require.NoError(t, m.Add(ctx, chunks, vectors))

	reopened := newManager(t, cfg)
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestNewVectorDBManager_BadKey(t *testing.T) {
	_, err := NewVectorDBManager(config.IndexConfig{Collection: "documents", EncryptionKey: "short"})
	assert.Error(t, err)
}

func TestSave_NoSnapshotIsNoop(t *testing.T) {
	m := newManager(t, config.IndexConfig{})
	assert.NoError(t, m.Save(context.Background()))
	assert.Error(t, m.Export())
}
