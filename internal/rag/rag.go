package rag

import (
	"context"
	"fmt"
	"io"
	"strings"

	"pdf-rag/internal/chunker"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
	"pdf-rag/internal/prompt"
	"pdf-rag/internal/retriever"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DocumentSource yields the raw documents to index.
type DocumentSource interface {
	Load(ctx context.Context) ([]models.Document, error)
}

// saver is implemented by indexes that persist explicitly after a build.
type saver interface {
	Save(ctx context.Context) error
}

type Components struct {
	Source    DocumentSource
	Chunker   *chunker.Chunker
	Embedder  embeddings.Embedder
	Index     retriever.Index
	Retriever *retriever.Retriever
	Assembler *prompt.Assembler
	Generator llmservice.Generator
	BatchSize int
}

// RAG answers questions against an index it builds once. After Build it is
// read-only and safe for concurrent Ask calls.
type RAG struct {
	source    DocumentSource
	chunker   *chunker.Chunker
	embedder  embeddings.Embedder
	index     retriever.Index
	retriever *retriever.Retriever
	assembler *prompt.Assembler
	generator llmservice.Generator
	batchSize int
	tracer    trace.Tracer
}

func NewRAG(c Components) *RAG {
	return &RAG{
		source:    c.Source,
		chunker:   c.Chunker,
		embedder:  c.Embedder,
		index:     c.Index,
		retriever: c.Retriever,
		assembler: c.Assembler,
		generator: c.Generator,
		batchSize: c.BatchSize,
		tracer:    otel.Tracer("pdf-rag/internal/rag"),
	}
}

// Build loads, chunks, embeds and indexes the corpus. An index that already
// holds chunks is reused unless rebuild is set. It returns the number of
// chunks in the index.
func (r *RAG) Build(ctx context.Context, rebuild bool) (n int, err error) {
	ctx, span := r.tracer.Start(ctx, "rag.Build", trace.WithAttributes(attribute.Bool("rebuild", rebuild)))
	defer func() { endSpan(span, err) }()

	count, err := r.index.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count index: %w", err)
	}
	if count > 0 && !rebuild {
		log.Info().Int("chunks", count).Msg("Reusing existing index")
		return count, nil
	}
	if count > 0 {
		if err := r.index.Reset(ctx); err != nil {
			return 0, fmt.Errorf("failed to reset index: %w", err)
		}
	}

	docs, err := r.source.Load(ctx)
	if err != nil {
		return 0, err
	}
	log.Info().Int("documents", len(docs)).Msg("Loaded documents")

	chunks := r.chunker.ChunkDocuments(docs)
	log.Info().
		Int("chunks", len(chunks)).
		Int("chunk_size", r.chunker.Size()).
		Int("chunk_overlap", r.chunker.Overlap()).
		Msg("Split documents into chunks")

	vectors, err := embedding.EmbedChunks(ctx, r.embedder, chunks, r.batchSize)
	if err != nil {
		return 0, err
	}

	if err := r.index.Add(ctx, chunks, vectors); err != nil {
		return 0, fmt.Errorf("failed to index chunks: %w", err)
	}
	if s, ok := r.index.(saver); ok {
		if err := s.Save(ctx); err != nil {
			return 0, err
		}
	}

	span.SetAttributes(attribute.Int("documents", len(docs)), attribute.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// Ask answers one question. When nothing relevant is retrieved the fallback
// phrase is returned without calling the generator.
func (r *RAG) Ask(ctx context.Context, question string) (*models.Answer, error) {
	return r.ask(ctx, r.retriever, question)
}

func (r *RAG) ask(ctx context.Context, ret *retriever.Retriever, question string) (ans *models.Answer, err error) {
	ctx, span := r.tracer.Start(ctx, "rag.Ask", trace.WithAttributes(attribute.String("retriever", ret.Options().String())))
	defer func() { endSpan(span, err) }()

	matches, err := r.retrieve(ctx, ret, question)
	if err != nil {
		return nil, err
	}

	ans = &models.Answer{Question: question, Sources: matches}
	if len(matches) == 0 {
		log.Debug().Str("question", question).Msg("Nothing retrieved, answering with fallback")
		ans.Text = r.assembler.Fallback()
		ans.Fallback = true
		return ans, nil
	}

	ans.Prompt, err = r.assembler.Assemble(question, models.Chunks(matches))
	if err != nil {
		return nil, fmt.Errorf("failed to assemble prompt: %w", err)
	}

	ans.Text, err = r.generate(ctx, ans.Prompt)
	if err != nil {
		return nil, err
	}
	ans.Fallback = strings.Trim(ans.Text, `"`) == r.assembler.Fallback()
	return ans, nil
}

func (r *RAG) retrieve(ctx context.Context, ret *retriever.Retriever, question string) (matches []models.Match, err error) {
	ctx, span := r.tracer.Start(ctx, "rag.Retrieve")
	defer func() { endSpan(span, err) }()

	matches, err = ret.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("matches", len(matches)))
	return matches, nil
}

func (r *RAG) generate(ctx context.Context, p string) (text string, err error) {
	ctx, span := r.tracer.Start(ctx, "rag.Generate")
	defer func() { endSpan(span, err) }()

	raw, err := r.generator.Generate(ctx, p)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return llmservice.ParseOutput(raw)
}

// Run answers each question in turn, writing the answers to w. A failed
// question is logged and printed with an empty answer; the loop carries on.
// It returns the number of questions left without an answer.
func (r *RAG) Run(ctx context.Context, questions []string, w io.Writer) int {
	failed := 0
	for i, q := range questions {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Int("skipped", len(questions)-i).Msg("Stopping, context done")
			return failed + len(questions) - i
		}

		fmt.Fprintf(w, "Question: %s\n", q)
		fmt.Fprintln(w, strings.Repeat("-", 40))

		ans, err := r.Ask(ctx, q)
		if err != nil {
			failed++
			log.Error().Err(err).Str("question", q).Msg("Failed to answer question")
			fmt.Fprintf(w, "Error: %v\n", err)
			fmt.Fprint(w, "Answer: \n\n")
			continue
		}

		fmt.Fprintf(w, "Retrieved %d documents\n", len(ans.Sources))
		fmt.Fprintf(w, "Answer: %s\n\n", ans.Text)
	}
	return failed
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
