package embedding

import (
	"context"
	"errors"
	"fmt"

	"pdf-rag/internal/config"

	"github.com/sashabaranov/go-openai"
)

// AzureEmbedder uses an Azure OpenAI deployment. BaseURL is the resource
// endpoint and Model the deployment's model name.
type AzureEmbedder struct {
	client *openai.Client
	model  string
}

func NewAzureEmbedder(cfg *config.LLMConfig) (*AzureEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("azure embedder needs base_url")
	}
	client := openai.NewClientWithConfig(openai.DefaultAzureConfig(cfg.Key, cfg.BaseURL))
	return &AzureEmbedder{client: client, model: cfg.Model}, nil
}

func (e *AzureEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, err
	}
	if len(rsp.Data) != len(texts) {
		return nil, errors.New("incomplete response from Azure OpenAI")
	}

	vectors := make([][]float32, len(texts))
	for _, d := range rsp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("azure returned out of range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (e *AzureEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
