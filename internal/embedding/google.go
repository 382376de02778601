package embedding

import (
	"context"
	"errors"
	"fmt"

	"pdf-rag/internal/config"

	"github.com/google/generative-ai-go/genai"
	genaiopt "google.golang.org/api/option"
)

// googleMaxBatch is the request limit of batchEmbedContents
const googleMaxBatch = 100

type GoogleEmbedder struct {
	client *genai.Client
	model  string
	batch  int
}

func NewGoogleEmbedder(ctx context.Context, cfg *config.LLMConfig) (*GoogleEmbedder, error) {
	client, err := genai.NewClient(ctx, genaiopt.WithAPIKey(cfg.Key))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GoogleEmbedder{
		client: client,
		model:  cfg.Model,
		batch:  min(batchSize(cfg), googleMaxBatch),
	}, nil
}

func (e *GoogleEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalDocument

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batch {
		end := min(start+e.batch, len(texts))

		b := em.NewBatch()
		for _, t := range texts[start:end] {
			b.AddContent(genai.Text(t))
		}
		rsp, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, err
		}
		if rsp == nil || len(rsp.Embeddings) != end-start {
			return nil, errors.New("incomplete response from Google")
		}
		for _, emb := range rsp.Embeddings {
			vectors = append(vectors, emb.Values)
		}
	}
	return vectors, nil
}

func (e *GoogleEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalQuery

	rsp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if rsp == nil || rsp.Embedding == nil || len(rsp.Embedding.Values) == 0 {
		return nil, errors.New("no response from Google")
	}
	return rsp.Embedding.Values, nil
}

func (e *GoogleEmbedder) Close() error {
	return e.client.Close()
}
