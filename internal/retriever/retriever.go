package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"

	"github.com/tmc/langchaingo/embeddings"
)

var ErrInvalidOptions = errors.New("invalid retriever options")

// Index is the vector store behind the retriever. It is written once at
// build time and only searched afterwards.
type Index interface {
	Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
	// Search returns up to n matches ordered by descending score.
	Search(ctx context.Context, query []float32, n int) ([]models.Match, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

type SearchType string

const (
	Similarity SearchType = "similarity"
	MMR        SearchType = "mmr"
)

type Options struct {
	SearchType SearchType
	K          int
	// FetchK and Lambda only apply to MMR
	FetchK   int
	Lambda   float64
	MinScore float32
}

func OptionsFromConfig(c config.RetrieverConfig) Options {
	return Options{
		SearchType: SearchType(strings.ToLower(c.SearchType)),
		K:          c.K,
		FetchK:     c.FetchK,
		Lambda:     c.Lambda,
		MinScore:   c.MinScore,
	}
}

func (o Options) Validate() error {
	if o.SearchType != Similarity && o.SearchType != MMR {
		return fmt.Errorf("%w: search type %q", ErrInvalidOptions, o.SearchType)
	}
	if o.K < 1 {
		return fmt.Errorf("%w: k must be at least 1, got %d", ErrInvalidOptions, o.K)
	}
	if o.Lambda < 0 || o.Lambda > 1 {
		return fmt.Errorf("%w: lambda must be in [0, 1], got %v", ErrInvalidOptions, o.Lambda)
	}
	return nil
}

func (o Options) String() string {
	if o.SearchType == MMR {
		return fmt.Sprintf("{k: %d, search_type: %s, fetch_k: %d, lambda: %.2f}", o.K, o.SearchType, o.FetchK, o.Lambda)
	}
	return fmt.Sprintf("{k: %d, search_type: %s}", o.K, o.SearchType)
}

type Retriever struct {
	embedder embeddings.Embedder
	index    Index
	opts     Options
}

func New(embedder embeddings.Embedder, index Index, opts Options) (*Retriever, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Retriever{embedder: embedder, index: index, opts: opts}, nil
}

// With returns a retriever sharing the same embedder and index but using
// different options.
func (r *Retriever) With(opts Options) (*Retriever, error) {
	return New(r.embedder, r.index, opts)
}

func (r *Retriever) Options() Options { return r.opts }

// Retrieve embeds the query and selects at most K chunks from the index.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.Match, error) {
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return r.RetrieveByVector(ctx, vec)
}

func (r *Retriever) RetrieveByVector(ctx context.Context, vec []float32) ([]models.Match, error) {
	n := r.opts.K
	if r.opts.SearchType == MMR {
		n = max(r.opts.FetchK, r.opts.K)
	}

	candidates, err := r.index.Search(ctx, vec, n)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if r.opts.MinScore > 0 {
		kept := candidates[:0]
		for _, c := range candidates {
			if c.Score >= r.opts.MinScore {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	if r.opts.SearchType == MMR {
		return SelectMMR(candidates, r.opts.K, r.opts.Lambda), nil
	}
	if len(candidates) > r.opts.K {
		candidates = candidates[:r.opts.K]
	}
	return candidates, nil
}
