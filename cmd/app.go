package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/chromemdb"
	"pdf-rag/internal/chunker"
	"pdf-rag/internal/config"
	"pdf-rag/internal/db"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/prompt"
	"pdf-rag/internal/rag"
	"pdf-rag/internal/retriever"
)

// app owns the wired pipeline and whatever needs closing afterwards.
type app struct {
	rag     *rag.RAG
	closers []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	ch, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, cfg.RAG.Separators)
	if err != nil {
		return nil, err
	}

	asm, err := prompt.New(cfg.Prompt.Template, cfg.Prompt.Fallback)
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.NewEmbedder(ctx, &cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	a.track(embedder)

	generator, err := llmservice.NewGenerator(ctx, &cfg.InferenceLLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	a.track(generator)

	index, err := newIndex(ctx, cfg.Index)
	if err != nil {
		return nil, err
	}
	a.track(index)

	ret, err := retriever.New(embedder, index, retriever.OptionsFromConfig(cfg.Retriever))
	if err != nil {
		return nil, err
	}

	a.rag = rag.NewRAG(rag.Components{
		Source:    parser.NewLoader(cfg.Source),
		Chunker:   ch,
		Embedder:  embedder,
		Index:     index,
		Retriever: ret,
		Assembler: asm,
		Generator: generator,
		BatchSize: cfg.EmbedLLM.BatchSize,
	})
	ok = true
	return a, nil
}

func newIndex(ctx context.Context, cfg config.IndexConfig) (retriever.Index, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		store, err := db.NewStore(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := store.InitDB(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return chromemdb.NewVectorDBManager(cfg)
	}
}

func (a *app) track(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing resource")
		}
	}
}
