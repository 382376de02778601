package llmservice

import (
	"context"
	"errors"

	"pdf-rag/internal/config"

	"github.com/sashabaranov/go-openai"
)

// AzureGenerator calls an Azure OpenAI chat deployment.
type AzureGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewAzureGenerator(cfg *config.LLMConfig) (*AzureGenerator, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("azure generator needs base_url")
	}
	return &AzureGenerator{
		client:      openai.NewClientWithConfig(openai.DefaultAzureConfig(cfg.Key, cfg.BaseURL)),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (g *AzureGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}

	rsp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(rsp.Choices) == 0 || len(rsp.Choices[0].Message.Content) == 0 {
		return "", errors.New("no response from Azure OpenAI")
	}
	return rsp.Choices[0].Message.Content, nil
}
