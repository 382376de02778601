package llmservice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	ErrUnknownProvider = errors.New("unknown generation provider")
	ErrEmptyResponse   = errors.New("model returned an empty response")
)

// Generator turns a fully assembled prompt into the model's text reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewGenerator builds the generator named by cfg.Provider.
func NewGenerator(ctx context.Context, cfg *config.LLMConfig) (Generator, error) {
	log.Debug().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Float64("temperature", cfg.Temperature).
		Msg("Creating generator")

	switch cfg.Provider {
	case "groq", "openai":
		return NewOpenAIGenerator(cfg)
	case "ollama":
		return NewOllamaGenerator(cfg)
	case "google":
		return NewGoogleGenerator(ctx, cfg)
	case "anthropic":
		return NewAnthropicGenerator(cfg), nil
	case "azure":
		return NewAzureGenerator(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// LangChainGenerator drives any langchaingo chat model.
type LangChainGenerator struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
}

// NewOpenAIGenerator covers OpenAI and every OpenAI-compatible endpoint
// (Groq, OpenRouter) through BaseURL.
func NewOpenAIGenerator(cfg *config.LLMConfig) (*LangChainGenerator, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return NewLangChainGenerator(llm, cfg), nil
}

func NewOllamaGenerator(cfg *config.LLMConfig) (*LangChainGenerator, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return NewLangChainGenerator(llm, cfg), nil
}

func NewLangChainGenerator(llm llms.Model, cfg *config.LLMConfig) *LangChainGenerator {
	return &LangChainGenerator{llm: llm, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}
}

func (g *LangChainGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msgContent := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}

	opts := []llms.CallOption{llms.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.maxTokens))
	}

	res, err := g.llm.GenerateContent(ctx, msgContent, opts...)
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return res.Choices[0].Content, nil
}

var thinkRe = regexp.MustCompile(models.ThinkTag)

// ParseOutput strips reasoning blocks some models emit and trims the reply.
func ParseOutput(s string) (string, error) {
	s = strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
	if s == "" {
		return "", ErrEmptyResponse
	}
	return s, nil
}
