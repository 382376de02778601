package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	ErrUnknownProvider = errors.New("unknown embedding provider")
	ErrVectorCount     = errors.New("embedder returned wrong number of vectors")
	ErrDimension       = errors.New("embedding dimensions differ")
)

// NewEmbedder builds the embedder named by cfg.Provider.
func NewEmbedder(ctx context.Context, cfg *config.LLMConfig) (embeddings.Embedder, error) {
	log.Debug().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Str("base_url", cfg.BaseURL).
		Msg("Creating embedder")

	switch cfg.Provider {
	case "google":
		return NewGoogleEmbedder(ctx, cfg)
	case "azure":
		return NewAzureEmbedder(cfg)
	case "openai", "groq":
		return NewOpenAIEmbedder(cfg)
	case "ollama":
		return NewOllamaEmbedder(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// NewOpenAIEmbedder talks to any OpenAI-compatible embeddings endpoint.
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batchSize(cfg)))
}

func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batchSize(cfg)))
}

func batchSize(cfg *config.LLMConfig) int {
	if cfg.BatchSize > 0 {
		return cfg.BatchSize
	}
	return 100
}

// EmbedChunks embeds chunk contents in batches and returns one vector per
// chunk, in order.
func EmbedChunks(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk, batch int) ([][]float32, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}
	if batch <= 0 {
		batch = len(chunks)
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += batch {
		end := min(start+batch, len(chunks))

		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Content)
		}

		vecs, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("%w: sent %d, got %d", ErrVectorCount, len(texts), len(vecs))
		}
		vectors = append(vectors, vecs...)

		log.Debug().Int("done", end).Int("total", len(chunks)).Msg("Embedded batch")
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return nil, fmt.Errorf("%w: chunk %s has %d, expected %d", ErrDimension, chunks[i].ID, len(v), dim)
		}
	}
	return vectors, nil
}
