package rag

import (
	"context"
	"fmt"
	"io"
	"strings"

	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"
	"pdf-rag/internal/prompt"
	"pdf-rag/internal/retriever"

	"github.com/rs/zerolog/log"
)

const (
	hitPreviewChars     = 300
	contextPreviewChars = 500
)

// Inspect walks one question through every stage and prints what each
// produced: a sweep over retriever options, the hits of the configured
// retriever, the formatted context and the final answer or error.
// previewChars bounds the first-hit preview of the sweep.
func (r *RAG) Inspect(ctx context.Context, question string, sweep []retriever.Options, previewChars int, w io.Writer) error {
	rule := strings.Repeat("=", 80)
	dash := strings.Repeat("-", 40)

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "RAG CHAIN DEBUG")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Question: %s\n", question)

	fmt.Fprintf(w, "\n1. TESTING RETRIEVAL\n%s\n", dash)
	for i, opts := range sweep {
		fmt.Fprintf(w, "\nRetriever config %d: %s\n", i+1, opts)
		ret, err := r.retriever.With(opts)
		if err != nil {
			fmt.Fprintf(w, "  ERROR: %v\n", err)
			continue
		}
		matches, err := r.retrieve(ctx, ret, question)
		if err != nil {
			log.Error().Err(err).Str("retriever", opts.String()).Msg("Retrieval failed")
			fmt.Fprintf(w, "  ERROR: %v\n", err)
			continue
		}
		fmt.Fprintf(w, "  Retrieved %d documents\n", len(matches))
		if len(matches) > 0 {
			fmt.Fprintf(w, "  First doc preview: %s\n", helper.Preview(matches[0].Chunk.Content, previewChars))
			fmt.Fprintf(w, "  Source: %s\n", sourceOrUnknown(matches[0].Chunk.Source))
		}
	}

	fmt.Fprintf(w, "\n2. USING CONFIGURED RETRIEVER %s\n%s\n", r.retriever.Options(), dash)
	matches, err := r.retrieve(ctx, r.retriever, question)
	if err != nil {
		fmt.Fprintf(w, "ERROR: %v\n", err)
		return err
	}
	fmt.Fprintf(w, "Retrieved %d documents\n", len(matches))
	for i, m := range matches {
		fmt.Fprintf(w, "\nDocument %d (score %.4f):\n", i+1, m.Score)
		fmt.Fprintf(w, "  Content: %s\n", helper.Preview(m.Chunk.Content, hitPreviewChars))
		fmt.Fprintf(w, "  Source: %s\n", sourceOrUnknown(m.Chunk.Source))
		fmt.Fprintf(w, "  Page: %d\n", m.Chunk.Page)
	}

	fmt.Fprintf(w, "\n3. TESTING PROMPT FORMATTING\n%s\n", dash)
	formatted := prompt.FormatContext(models.Chunks(matches))
	fmt.Fprintf(w, "Formatted context length: %d characters\n", len([]rune(formatted)))
	fmt.Fprintf(w, "Context preview: %s\n", helper.Preview(formatted, contextPreviewChars))

	fmt.Fprintf(w, "\n4. TESTING LLM RESPONSE\n%s\n", dash)
	ans, err := r.Ask(ctx, question)
	if err != nil {
		log.Error().Err(err).Str("question", question).Msg("Failed to answer question")
		fmt.Fprintf(w, "ERROR: %v\n", err)
		return err
	}
	fmt.Fprintln(w, "SUCCESS! Generated answer:")
	fmt.Fprintln(w, ans.Text)
	return nil
}

func sourceOrUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
