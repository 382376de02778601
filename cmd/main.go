package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/config"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/metrics"
	"pdf-rag/internal/retriever"
	"pdf-rag/internal/server"
)

const (
	configFilePath = "./configs/config.yaml"
)

type Globals struct {
	Config   string `help:"Path to the YAML config file." default:"./configs/config.yaml" type:"path"`
	EnvFile  string `help:"Dotenv file loaded before the config." default:".env"`
	LogLevel string `help:"Log level." default:"info" enum:"trace,debug,info,warn,error"`
}

var cli struct {
	Globals

	Index IndexCmd `cmd:"" help:"Build the vector index from the source directory."`
	Ask   AskCmd   `cmd:"" help:"Answer questions from arguments, the config file or stdin."`
	Debug DebugCmd `cmd:"" help:"Trace questions through every pipeline stage."`
	Serve ServeCmd `cmd:"" help:"Serve the ask endpoint over HTTP."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("pdf-rag"),
		kong.Description("Question answering over a directory of PDFs."),
		kong.UsageOnError(),
	)

	setupLogger(cli.LogLevel)

	if err := config.LoadEnv(cli.EnvFile); err != nil {
		log.Fatal().Err(err).Str("file", cli.EnvFile).Msg("Error loading env file")
	}

	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

// loadConfig exits on any configuration problem. A missing file at the
// default location means "all defaults".
func loadConfig(g *Globals) *config.Config {
	cfg, err := config.LoadConfig(g.Config)
	if errors.Is(err, os.ErrNotExist) && strings.HasSuffix(g.Config, strings.TrimPrefix(configFilePath, ".")) {
		log.Warn().Str("file", g.Config).Msg("Config file not found, using defaults")
		cfg = config.Default()
		cfg.ResolveKeys()
		err = nil
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	log.Debug().
		Str("source", cfg.Source.Dir).
		Int("chunk_size", cfg.RAG.ChunkSize).
		Int("chunk_overlap", cfg.RAG.ChunkOverlap).
		Str("embedder", cfg.EmbedLLM.Provider+"/"+cfg.EmbedLLM.Model).
		Str("generator", cfg.InferenceLLM.Provider+"/"+cfg.InferenceLLM.Model).
		Str("index", cfg.Index.Backend).
		Msg("Loaded config")
	return cfg
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type IndexCmd struct {
	Rebuild bool `help:"Drop the existing index and rebuild it."`
}

func (c *IndexCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := loadConfig(g)
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.rag.Build(ctx, c.Rebuild)
	if err != nil {
		return err
	}
	helper.PrettyPrint(os.Stdout, map[string]any{
		"backend":    cfg.Index.Backend,
		"collection": cfg.Index.Collection,
		"chunks":     n,
	})
	return nil
}

type AskCmd struct {
	Rebuild   bool     `help:"Rebuild the index before answering."`
	Questions []string `arg:"" optional:"" help:"Questions to answer."`
}

func (c *AskCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := loadConfig(g)
	questions, err := pickQuestions(c.Questions, cfg.Questions, os.Stdin)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.rag.Build(ctx, c.Rebuild); err != nil {
		return err
	}

	if failed := a.rag.Run(ctx, questions, os.Stdout); failed > 0 {
		return fmt.Errorf("%d of %d questions failed", failed, len(questions))
	}
	return nil
}

type DebugCmd struct {
	Rebuild   bool     `help:"Rebuild the index before inspecting."`
	Questions []string `arg:"" optional:"" help:"Questions to trace."`
}

func (c *DebugCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := loadConfig(g)
	questions, err := pickQuestions(c.Questions, cfg.Questions, os.Stdin)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.rag.Build(ctx, c.Rebuild); err != nil {
		return err
	}

	sweep := make([]retriever.Options, len(cfg.Debug.Retrievers))
	for i, rc := range cfg.Debug.Retrievers {
		sweep[i] = retriever.OptionsFromConfig(rc)
	}

	rule := strings.Repeat("=", 60)
	for _, q := range questions {
		fmt.Printf("\n%s\nTesting: %s\n%s\n", rule, q, rule)
		if err := a.rag.Inspect(ctx, q, sweep, cfg.Debug.PreviewChars, os.Stdout); err != nil {
			log.Error().Err(err).Str("question", q).Msg("Inspection failed")
		}
	}
	return nil
}

type ServeCmd struct {
	Addr    string `help:"Listen address." default:":8080"`
	Rebuild bool   `help:"Rebuild the index before serving."`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := loadConfig(g)
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.rag.Build(ctx, c.Rebuild)
	if err != nil {
		return err
	}

	m := metrics.NewMetrics()
	m.IndexedChunks.Set(float64(n))

	srv := server.New(a.rag, m).NewHTTPServer(c.Addr)
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Addr).Msg("Serving")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	log.Info().Msg("Shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// pickQuestions prefers command line questions, then the config file, then
// non-empty stdin lines.
func pickQuestions(args, configured []string, stdin io.Reader) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if len(configured) > 0 {
		return configured, nil
	}

	var questions []string
	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		if q := strings.TrimSpace(scanner.Text()); q != "" {
			questions = append(questions, q)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, errors.New("no questions given")
	}
	return questions, nil
}
