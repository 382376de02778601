package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"pdf-rag/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidConfig      = errors.New("invalid config")
)

type Config struct {
	Source       SourceConfig    `yaml:"source"`
	RAG          RAGConfig       `yaml:"rag"`
	EmbedLLM     LLMConfig       `yaml:"embed_llm"`
	InferenceLLM LLMConfig       `yaml:"inference_llm"`
	Index        IndexConfig     `yaml:"index"`
	Retriever    RetrieverConfig `yaml:"retriever"`
	Prompt       PromptConfig    `yaml:"prompt"`
	Debug        DebugConfig     `yaml:"debug"`
	Questions    []string        `yaml:"questions"`
}

type SourceConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
	SkipErrors bool     `yaml:"skip_errors"`
}

type RAGConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators"`
}

// LLMConfig describes a hosted model, used for both embedding and inference.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Key         string  `yaml:"key"`
	KeyEnv      string  `yaml:"key_env"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	BatchSize   int     `yaml:"batch_size"`
}

type IndexConfig struct {
	Backend       string         `yaml:"backend"`
	Collection    string         `yaml:"collection"`
	PersistDir    string         `yaml:"persist_dir"`
	SnapshotPath  string         `yaml:"snapshot_path"`
	EncryptionKey string         `yaml:"encryption_key"`
	Postgres      PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Driver   string `yaml:"driver"`
	Table    string `yaml:"table"`
	Debug    bool   `yaml:"debug"`
}

type RetrieverConfig struct {
	SearchType string  `yaml:"search_type"`
	K          int     `yaml:"k"`
	FetchK     int     `yaml:"fetch_k"`
	Lambda     float64 `yaml:"lambda"`
	MinScore   float32 `yaml:"min_score"`
}

type PromptConfig struct {
	Template string `yaml:"template"`
	Fallback string `yaml:"fallback"`
}

type DebugConfig struct {
	Retrievers   []RetrieverConfig `yaml:"retrievers"`
	PreviewChars int               `yaml:"preview_chars"`
}

const (
	BackendChromem  = "chromem"
	BackendPostgres = "postgres"

	DriverPG = "pgdriver"
	DriverPQ = "pq"
)

// providers that run locally and need no API key
var keylessProviders = map[string]bool{
	"ollama": true,
}

var defaultKeyEnv = map[string]string{
	"google":    "GOOGLE_API_KEY",
	"groq":      "GROQ_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"azure":     "AZURE_OPENAI_API_KEY",
}

// LoadConfig reads the YAML file at path, applies defaults and resolves
// credentials from the environment. It does not validate.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	cfg.ResolveKeys()
	return &cfg, nil
}

// LoadEnv loads a dotenv file into the process environment. A missing file
// is not an error.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// Default returns a config with every default applied, as if loaded from an
// empty file.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

func (c *Config) ApplyDefaults() {
	if c.Source.Dir == "" {
		c.Source.Dir = "notebook/data"
	}
	if len(c.Source.Extensions) == 0 {
		c.Source.Extensions = []string{".pdf"}
	}

	// overlap only defaults alongside the size so an explicit size with no
	// overlap means zero overlap
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = 1000
		if c.RAG.ChunkOverlap == 0 {
			c.RAG.ChunkOverlap = 200
		}
	}
	if len(c.RAG.Separators) == 0 {
		c.RAG.Separators = []string{"\n\n", "\n", ". ", " "}
	}

	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = "google"
	}
	if c.EmbedLLM.Model == "" {
		c.EmbedLLM.Model = defaultEmbedModel(c.EmbedLLM.Provider)
	}
	if c.EmbedLLM.BatchSize == 0 {
		c.EmbedLLM.BatchSize = 100
	}

	if c.InferenceLLM.Provider == "" {
		c.InferenceLLM.Provider = "groq"
		if c.InferenceLLM.Temperature == 0 {
			c.InferenceLLM.Temperature = 0.1
		}
	}
	if c.InferenceLLM.Model == "" {
		c.InferenceLLM.Model = defaultInferenceModel(c.InferenceLLM.Provider)
	}
	if c.InferenceLLM.BaseURL == "" && c.InferenceLLM.Provider == "groq" {
		c.InferenceLLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.InferenceLLM.MaxTokens == 0 {
		c.InferenceLLM.MaxTokens = 1024
	}

	if c.Index.Backend == "" {
		c.Index.Backend = BackendChromem
	}
	if c.Index.Collection == "" {
		c.Index.Collection = "documents"
	}
	if c.Index.Postgres.Driver == "" {
		c.Index.Postgres.Driver = DriverPG
	}
	if c.Index.Postgres.Table == "" {
		c.Index.Postgres.Table = "rag_chunks"
	}

	c.Retriever.applyDefaults()
	if len(c.Debug.Retrievers) == 0 {
		c.Debug.Retrievers = []RetrieverConfig{
			{SearchType: "similarity", K: 3},
			{SearchType: "similarity", K: 5},
			{SearchType: "similarity", K: 7},
			{SearchType: "mmr", K: 3},
		}
	}
	for i := range c.Debug.Retrievers {
		c.Debug.Retrievers[i].applyDefaults()
	}
	if c.Debug.PreviewChars == 0 {
		c.Debug.PreviewChars = 200
	}

	if c.Prompt.Template == "" {
		c.Prompt.Template = models.DefaultPromptTemplate
	}
	if c.Prompt.Fallback == "" {
		c.Prompt.Fallback = models.DefaultFallback
	}
}

func (r *RetrieverConfig) applyDefaults() {
	if r.SearchType == "" {
		r.SearchType = "similarity"
	}
	if r.K == 0 {
		r.K = 5
	}
	if r.FetchK == 0 {
		r.FetchK = 20
	}
	if r.Lambda == 0 {
		r.Lambda = 0.5
	}
}

// ResolveKeys fills empty keys from the environment variable named by
// KeyEnv, or the provider's conventional variable.
func (c *Config) ResolveKeys() {
	for _, l := range []*LLMConfig{&c.EmbedLLM, &c.InferenceLLM} {
		if l.Key != "" {
			continue
		}
		env := l.KeyEnv
		if env == "" {
			env = defaultKeyEnv[l.Provider]
		}
		if env != "" {
			l.Key = os.Getenv(env)
		}
	}
	if c.Index.Postgres.DSN == "" {
		c.Index.Postgres.DSN = os.Getenv("DATABASE_URL")
	}
}

// Validate reports every configuration problem it finds.
func (c *Config) Validate() error {
	var errs []error

	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidConfig, c.RAG.ChunkSize))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d", ErrInvalidConfig, c.RAG.ChunkOverlap))
	}

	for _, named := range []struct {
		name string
		l    LLMConfig
	}{{"embed_llm", c.EmbedLLM}, {"inference_llm", c.InferenceLLM}} {
		name, l := named.name, named.l
		if l.Model == "" {
			errs = append(errs, fmt.Errorf("%w: %s.model is required", ErrInvalidConfig, name))
		}
		if !keylessProviders[l.Provider] && l.Key == "" {
			env := l.KeyEnv
			if env == "" {
				env = defaultKeyEnv[l.Provider]
			}
			errs = append(errs, fmt.Errorf("%w: %s (%s) needs %s", ErrMissingCredentials, name, l.Provider, env))
		}
	}

	switch c.Index.Backend {
	case BackendChromem:
		if len(c.Index.EncryptionKey) != 0 && len(c.Index.EncryptionKey) != 32 {
			errs = append(errs, fmt.Errorf("%w: encryption_key must be 32 bytes", ErrInvalidConfig))
		}
	case BackendPostgres:
		if c.Index.Postgres.DSN == "" {
			errs = append(errs, fmt.Errorf("%w: index.postgres.dsn (or DATABASE_URL) is required", ErrInvalidConfig))
		}
		if d := c.Index.Postgres.Driver; d != DriverPG && d != DriverPQ {
			errs = append(errs, fmt.Errorf("%w: unknown postgres driver %q", ErrInvalidConfig, d))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown index backend %q", ErrInvalidConfig, c.Index.Backend))
	}

	for _, r := range append([]RetrieverConfig{c.Retriever}, c.Debug.Retrievers...) {
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r RetrieverConfig) Validate() error {
	switch strings.ToLower(r.SearchType) {
	case "similarity", "mmr":
	default:
		return fmt.Errorf("%w: unknown search_type %q", ErrInvalidConfig, r.SearchType)
	}
	if r.K < 1 {
		return fmt.Errorf("%w: k must be at least 1, got %d", ErrInvalidConfig, r.K)
	}
	if r.Lambda < 0 || r.Lambda > 1 {
		return fmt.Errorf("%w: lambda must be in [0, 1], got %v", ErrInvalidConfig, r.Lambda)
	}
	return nil
}

func defaultEmbedModel(provider string) string {
	switch provider {
	case "google":
		return "embedding-001"
	case "ollama":
		return "nomic-embed-text"
	default:
		return "text-embedding-3-small"
	}
}

func defaultInferenceModel(provider string) string {
	switch provider {
	case "groq":
		return "llama3-8b-8192"
	case "google":
		return "gemini-1.5-flash"
	case "anthropic":
		return "claude-3-5-haiku-latest"
	case "ollama":
		return "llama3"
	default:
		return "gpt-4o-mini"
	}
}
