package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pdf-rag/internal/config"

	"github.com/google/generative-ai-go/genai"
	genaiopt "google.golang.org/api/option"
)

type GoogleGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

func NewGoogleGenerator(ctx context.Context, cfg *config.LLMConfig) (*GoogleGenerator, error) {
	client, err := genai.NewClient(ctx, genaiopt.WithAPIKey(cfg.Key))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GoogleGenerator{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
	}, nil
}

func (g *GoogleGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.temperature)
	if g.maxTokens > 0 {
		model.SetMaxOutputTokens(g.maxTokens)
	}

	rsp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(rsp.Candidates) == 0 || rsp.Candidates[0].Content == nil || len(rsp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no response from Google")
	}

	var b strings.Builder
	for _, part := range rsp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

func (g *GoogleGenerator) Close() error {
	return g.client.Close()
}
