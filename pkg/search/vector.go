package search

import (
	"context"
	"math"
	"sort"

	"github.com/memctl/memctl/pkg/embed"
	"github.com/memctl/memctl/pkg/memory"
	"github.com/rs/zerolog"
)

// minSimilarity is the relevance floor; matches at or below it are noise.
const minSimilarity = 0.3

// VectorSearcher ranks a project's memories by cosine similarity between the
// query embedding and each stored (quantized) embedding.
type VectorSearcher struct {
	store    *memory.Store
	provider *embed.Provider
	logger   zerolog.Logger
}

// NewVectorSearcher creates a vector searcher.
func NewVectorSearcher(store *memory.Store, provider *embed.Provider, logger zerolog.Logger) *VectorSearcher {
	return &VectorSearcher{
		store:    store,
		provider: provider,
		logger:   logger.With().Str("component", "vector-search").Logger(),
	}
}

// Search embeds the query and scans the project. Returns ErrUnavailable when
// no query embedding can be produced, so callers can tell "no semantic
// signal" from "no matches".
func (s *VectorSearcher) Search(ctx context.Context, projectID, query string, limit int) ([]string, error) {
	qv, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, ErrUnavailable
	}
	return s.SearchByVector(ctx, projectID, qv, "", limit)
}

// SearchByVector ranks against an already-computed reference vector,
// optionally excluding one memory (the reference itself in Similar lookups).
func (s *VectorSearcher) SearchByVector(ctx context.Context, projectID string, ref []float32, excludeID string, limit int) ([]string, error) {
	memories, err := s.store.ListWithEmbeddings(ctx, projectID)
	if err != nil {
		return nil, err
	}

	type match struct {
		id         string
		similarity float64
	}
	var matches []match

	for _, m := range memories {
		if m.ID == excludeID {
			continue
		}

		vec, err := embed.Deserialize(m.Embedding)
		if err != nil {
			// One malformed row must not abort the scan
			s.logger.Debug().Err(err).Str("memory_id", m.ID).Msg("Skipping undecodable embedding")
			continue
		}
		if len(vec) != len(ref) {
			s.logger.Debug().Str("memory_id", m.ID).
				Int("got", len(vec)).Int("want", len(ref)).
				Msg("Skipping embedding with mismatched dimension")
			continue
		}

		sim := CosineSimilarity(ref, vec)
		if sim <= minSimilarity {
			continue
		}
		matches = append(matches, match{id: m.ID, similarity: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].similarity > matches[j].similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.id
	}
	return ids, nil
}

// CosineSimilarity is dot(a,b)/(|a|*|b|). Mismatched lengths or a zero norm
// yield the neutral 0; it never panics on stored data.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
