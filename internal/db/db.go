package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// ChunkRecord is one row of the chunk table. The table name is configurable
// and applied per query, the tag only sets the alias.
type ChunkRecord struct {
	bun.BaseModel `bun:"table:rag_chunks,alias:c"`
	ID            string          `bun:"id,pk"`
	Content       string          `bun:"content,notnull"`
	Source        string          `bun:"source,notnull"`
	Page          int             `bun:"page,notnull"`
	ChunkIndex    int             `bun:"chunk_index,notnull"`
	StartOffset   int             `bun:"start_offset,notnull"`
	EndOffset     int             `bun:"end_offset,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Score         float32         `bun:"score,scanonly"`
}

// Store is a pgvector backed chunk index.
type Store struct {
	db    *bun.DB
	table string
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens (but does not ping) a connection pool with the configured
// driver.
func ConnectDB(cfg config.PostgresConfig) (*sql.DB, error) {
	dsn := withSSLMode(cfg.DSN)
	switch cfg.Driver {
	case config.DriverPQ:
		return sql.Open("postgres", dsn)
	case config.DriverPG, "":
		opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unknown postgres driver %q", cfg.Driver)
	}
}

func withSSLMode(dsn string) string {
	if strings.Contains(dsn, "sslmode=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&sslmode=disable"
	}
	return dsn + "?sslmode=disable"
}

func NewStore(cfg config.PostgresConfig) (*Store, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: NewDB(sqldb, cfg.Debug), table: cfg.Table}, nil
}

func (s *Store) tableExpr() (string, bun.Ident) {
	return "? AS c", bun.Ident(s.table)
}

// InitDB enables pgvector and creates the chunk table.
func (s *Store) InitDB(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	_, err := s.db.NewCreateTable().
		Model((*ChunkRecord)(nil)).
		ModelTableExpr("?", bun.Ident(s.table)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Add upserts chunks by ID.
func (s *Store) Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if len(chunks) == 0 {
		return nil
	}

	records := make([]ChunkRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = toRecord(ch, vectors[i])
	}

	_, err := s.db.NewInsert().
		Model(&records).
		ModelTableExpr(s.tableExpr()).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("source = EXCLUDED.source").
		Set("page = EXCLUDED.page").
		Set("chunk_index = EXCLUDED.chunk_index").
		Set("start_offset = EXCLUDED.start_offset").
		Set("end_offset = EXCLUDED.end_offset").
		Set("embedding = EXCLUDED.embedding").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	return nil
}

// Search orders by cosine distance; Score is the cosine similarity.
func (s *Store) Search(ctx context.Context, query []float32, n int) ([]models.Match, error) {
	if n <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(query)

	var records []ChunkRecord
	err := s.db.NewSelect().
		Model(&records).
		ModelTableExpr(s.tableExpr()).
		ColumnExpr("c.*").
		ColumnExpr("1 - (c.embedding <=> ?) AS score", vec).
		OrderExpr("c.embedding <=> ?", vec).
		Limit(n).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	matches := make([]models.Match, len(records))
	for i, r := range records {
		matches[i] = fromRecord(r)
	}
	return matches, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().
		Model((*ChunkRecord)(nil)).
		ModelTableExpr(s.tableExpr()).
		Count(ctx)
}

func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE TABLE ?", bun.Ident(s.table))
	return err
}

// DropDocuments removes the chunk table entirely.
func (s *Store) DropDocuments(ctx context.Context) error {
	_, err := s.db.NewDropTable().
		Model((*ChunkRecord)(nil)).
		ModelTableExpr("?", bun.Ident(s.table)).
		IfExists().
		Exec(ctx)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func toRecord(ch models.Chunk, vector []float32) ChunkRecord {
	return ChunkRecord{
		ID:          ch.ID,
		Content:     ch.Content,
		Source:      ch.Source,
		Page:        ch.Page,
		ChunkIndex:  ch.Index,
		StartOffset: ch.Start,
		EndOffset:   ch.End,
		Embedding:   pgvector.NewVector(vector),
	}
}

func fromRecord(r ChunkRecord) models.Match {
	return models.Match{
		Chunk: models.Chunk{
			ID:      r.ID,
			Content: r.Content,
			Source:  r.Source,
			Page:    r.Page,
			Index:   r.ChunkIndex,
			Start:   r.StartOffset,
			End:     r.EndOffset,
		},
		Score:     r.Score,
		Embedding: r.Embedding.Slice(),
	}
}
