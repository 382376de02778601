package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"pdf-rag/internal/config"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

const (
	compress = false
)

// VectorDBManager keeps chunks in a chromem-go collection. Embeddings are
// always supplied by the caller, so the collection has no embedding func.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	name          string
	snapshotPath  string
	encryptionKey string
}

// NewVectorDBManager opens the database described by cfg. With a persist_dir
// the collection survives restarts; with a snapshot_path an existing
// snapshot is imported right away.
func NewVectorDBManager(cfg config.IndexConfig) (*VectorDBManager, error) {
	if cfg.EncryptionKey != "" && len(cfg.EncryptionKey) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}

	var db *chromem.DB
	if cfg.PersistDir == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.PersistDir, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		name:          cfg.Collection,
		snapshotPath:  cfg.SnapshotPath,
		encryptionKey: cfg.EncryptionKey,
	}

	if m.snapshotPath != "" {
		if _, err := os.Stat(m.snapshotPath); err == nil {
			if err := m.Import(); err != nil {
				return nil, err
			}
		}
	}

	c, err := db.GetOrCreateCollection(m.name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return m, nil
}

// Add stores chunks with their vectors. Chunk IDs are stable, so adding the
// same chunk twice overwrites it.
func (m *VectorDBManager) Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = chromem.Document{
			ID:        ch.ID,
			Content:   ch.Content,
			Metadata:  toMetadata(ch),
			Embedding: vectors[i],
		}
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (m *VectorDBManager) Search(ctx context.Context, query []float32, n int) ([]models.Match, error) {
	if len(query) == 0 {
		return nil, errors.New("query embedding must be provided")
	}
	// chromem refuses n larger than the collection
	n = min(n, m.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	matches := make([]models.Match, len(results))
	for i, r := range results {
		ch := fromMetadata(r.Metadata)
		ch.ID = r.ID
		ch.Content = r.Content
		matches[i] = models.Match{Chunk: ch, Score: r.Similarity, Embedding: r.Embedding}
	}
	return matches, nil
}

func (m *VectorDBManager) Count(context.Context) (int, error) {
	return m.collection.Count(), nil
}

// Reset drops the collection and recreates it empty.
func (m *VectorDBManager) Reset(context.Context) error {
	if err := m.db.DeleteCollection(m.name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	c, err := m.db.GetOrCreateCollection(m.name, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return nil
}

// Save exports the collection to the snapshot file, if one is configured.
func (m *VectorDBManager) Save(context.Context) error {
	if m.snapshotPath == "" {
		return nil
	}
	return m.Export()
}

func (m *VectorDBManager) Export() error {
	if m.snapshotPath == "" {
		return errors.New("snapshot path is required")
	}
	if dir := filepath.Dir(m.snapshotPath); dir != "." {
		if err := helper.CreateFolder(dir); err != nil {
			return err
		}
	}

	log.Debug().
		Str("collection", m.name).
		Str("file", m.snapshotPath).
		Bool("encrypted", m.encryptionKey != "").
		Msg("Exporting collection")

	if err := m.db.ExportToFile(m.snapshotPath, compress, m.encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

func (m *VectorDBManager) Import() error {
	if err := m.db.ImportFromFile(m.snapshotPath, m.encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	log.Debug().Str("file", m.snapshotPath).Msg("Imported collection snapshot")
	return nil
}

func toMetadata(ch models.Chunk) map[string]string {
	return map[string]string{
		models.MetaSource: ch.Source,
		models.MetaPage:   strconv.Itoa(ch.Page),
		models.MetaIndex:  strconv.Itoa(ch.Index),
		models.MetaStart:  strconv.Itoa(ch.Start),
		models.MetaEnd:    strconv.Itoa(ch.End),
	}
}

// fromMetadata ignores malformed numbers; they can only come from a
// snapshot written by something else.
func fromMetadata(md map[string]string) models.Chunk {
	atoi := func(k string) int {
		n, _ := strconv.Atoi(md[k])
		return n
	}
	return models.Chunk{
		Source: md[models.MetaSource],
		Page:   atoi(models.MetaPage),
		Index:  atoi(models.MetaIndex),
		Start:  atoi(models.MetaStart),
		End:    atoi(models.MetaEnd),
	}
}
