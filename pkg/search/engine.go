package search

import (
	"context"
	"errors"
	"sync"

	"github.com/memctl/memctl/pkg/embed"
	"github.com/memctl/memctl/pkg/memory"
	"github.com/rs/zerolog"
)

// Engine is the project-level retrieval surface: hybrid keyword+semantic
// search, similar-memory lookup, and index maintenance entry points.
type Engine struct {
	store   *memory.Store
	lexical *LexicalIndex
	vector  *VectorSearcher
	logger  zerolog.Logger
}

// Result is a hybrid search outcome: ordered memory IDs plus the query's
// classification and weighting profile for the caller's secondary scoring
// (priority, recency, pins — outside this engine).
type Result struct {
	IDs            []string       `json:"ids"`
	Classification Classification `json:"classification"`
	Weights        Weights        `json:"weights"`
}

// NewEngine wires the retrieval engine over a store and embedding provider.
func NewEngine(store *memory.Store, provider *embed.Provider, logger zerolog.Logger) *Engine {
	return &Engine{
		store:   store,
		lexical: NewLexicalIndex(store.DB(), logger),
		vector:  NewVectorSearcher(store, provider, logger),
		logger:  logger.With().Str("component", "search").Logger(),
	}
}

// Lexical exposes the lexical index (hook registration, operator tooling).
func (e *Engine) Lexical() *LexicalIndex {
	return e.lexical
}

// HybridSearch runs keyword and vector search in parallel, classifies the
// query's intent, and fuses the available ranked lists. A sub-search being
// unavailable narrows the fusion; both unavailable yields an empty result,
// never an error.
func (e *Engine) HybridSearch(ctx context.Context, projectID, query string, limit int) (*Result, error) {
	if limit <= 0 {
		limit = 10
	}

	classification := Classify(query)

	// Sub-searches fetch wider than the final cut so fusion has overlap
	candidates := limit * 2

	var (
		wg                    sync.WaitGroup
		lexicalIDs, vectorIDs []string
		lexicalErr, vectorErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		lexicalIDs, lexicalErr = e.lexical.Search(ctx, projectID, query, candidates)
	}()
	go func() {
		defer wg.Done()
		vectorIDs, vectorErr = e.vector.Search(ctx, projectID, query, candidates)
	}()
	wg.Wait()

	var lists [][]string
	if lexicalErr == nil {
		lists = append(lists, lexicalIDs)
	} else if !errors.Is(lexicalErr, ErrUnavailable) {
		return nil, lexicalErr
	} else {
		e.logger.Debug().Str("query", query).Msg("Keyword search unavailable, fusing without it")
	}
	if vectorErr == nil {
		lists = append(lists, vectorIDs)
	} else if !errors.Is(vectorErr, ErrUnavailable) {
		return nil, vectorErr
	} else {
		e.logger.Debug().Str("query", query).Msg("Vector search unavailable, fusing without it")
	}

	result := &Result{
		IDs:            []string{},
		Classification: classification,
		Weights:        WeightsFor(classification.Intent),
	}
	if len(lists) > 0 {
		result.IDs = Fuse(lists, limit)
	}

	e.logger.Debug().
		Str("query", query).
		Str("intent", string(classification.Intent)).
		Int("results", len(result.IDs)).
		Msg("Hybrid search completed")

	return result, nil
}

// Similar ranks a project's memories against a reference memory's own
// embedding, excluding the reference. ErrUnavailable when the reference has
// no usable embedding, so the caller can fall back to its own heuristic.
func (e *Engine) Similar(ctx context.Context, memoryID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	ref, err := e.store.GetByID(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if !ref.HasEmbedding() {
		return nil, ErrUnavailable
	}

	vec, err := embed.Deserialize(ref.Embedding)
	if err != nil {
		e.logger.Debug().Err(err).Str("memory_id", memoryID).Msg("Reference embedding undecodable")
		return nil, ErrUnavailable
	}

	return e.vector.SearchByVector(ctx, ref.ProjectID, vec, ref.ID, limit)
}

// RebuildLexicalIndex re-derives the FTS shadow table from the primary
// store. On-demand maintenance entry point.
func (e *Engine) RebuildLexicalIndex(ctx context.Context) error {
	return e.lexical.Rebuild(ctx)
}
