package scheduler

import (
	"context"

	"github.com/google/uuid"
	"github.com/memctl/memctl/pkg/embed"
	"github.com/memctl/memctl/pkg/memory"
	"github.com/rs/zerolog"
)

const (
	// defaultBatchSize bounds how many embedding-less memories one run picks up.
	defaultBatchSize = 100

	// defaultSubBatchSize is how many texts go into one model invocation.
	defaultSubBatchSize = 50
)

// BackfillStore is the slice of the primary store the job needs.
type BackfillStore interface {
	ListMissingEmbeddings(ctx context.Context, limit int) ([]*memory.Memory, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []byte) error
}

// BackfillStats counts one run's work.
type BackfillStats struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Backfill closes embedding gaps left by failed or dropped pipeline jobs.
// Every failure is contained: a memory, a sub-batch, or the whole model going
// unavailable never stops the remaining work, and the run always exits
// cleanly so the next schedule can pick up the rest.
type Backfill struct {
	store        BackfillStore
	provider     *embed.Provider
	logger       zerolog.Logger
	batchSize    int
	subBatchSize int
}

// BackfillConfig holds job configuration; zero sizes take the defaults.
type BackfillConfig struct {
	Store        BackfillStore
	Provider     *embed.Provider
	Logger       zerolog.Logger
	BatchSize    int
	SubBatchSize int
}

// NewBackfill creates the job.
func NewBackfill(cfg BackfillConfig) *Backfill {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.SubBatchSize <= 0 {
		cfg.SubBatchSize = defaultSubBatchSize
	}
	return &Backfill{
		store:        cfg.Store,
		provider:     cfg.Provider,
		logger:       cfg.Logger.With().Str("component", "backfill").Logger(),
		batchSize:    cfg.BatchSize,
		subBatchSize: cfg.SubBatchSize,
	}
}

// Run executes one backfill pass and reports its counts. It never returns
// the model's errors; degraded runs just log and leave work for next time.
func (b *Backfill) Run(ctx context.Context) BackfillStats {
	runID := uuid.New().String()
	logger := b.logger.With().Str("run_id", runID).Logger()

	var stats BackfillStats

	memories, err := b.store.ListMissingEmbeddings(ctx, b.batchSize)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to list memories missing embeddings")
		return stats
	}
	if len(memories) == 0 {
		logger.Debug().Msg("No embeddings to backfill")
		return stats
	}

	for start := 0; start < len(memories); start += b.subBatchSize {
		end := start + b.subBatchSize
		if end > len(memories) {
			end = len(memories)
		}
		b.processSubBatch(ctx, logger, memories[start:end], &stats)
	}

	logger.Info().
		Int("attempted", stats.Attempted).
		Int("succeeded", stats.Succeeded).
		Int("failed", stats.Failed).
		Msg("Embedding backfill completed")

	return stats
}

func (b *Backfill) processSubBatch(ctx context.Context, logger zerolog.Logger, batch []*memory.Memory, stats *BackfillStats) {
	texts := make([]string, len(batch))
	for i, m := range batch {
		texts[i] = embed.EmbeddingText(m)
	}

	stats.Attempted += len(batch)

	vectors, err := b.provider.EmbedBatch(ctx, texts)
	if err != nil {
		// Model wholly unavailable; the rest of this sub-batch waits for
		// the next run
		logger.Warn().Int("batch", len(batch)).Msg("Embedding model unavailable for sub-batch")
		stats.Failed += len(batch)
		return
	}

	for i, m := range batch {
		if vectors[i] == nil {
			stats.Failed++
			continue
		}

		blob, err := embed.Serialize(vectors[i])
		if err != nil {
			logger.Warn().Err(err).Str("memory_id", m.ID).Msg("Failed to serialize embedding")
			stats.Failed++
			continue
		}
		if err := b.store.UpdateEmbedding(ctx, m.ID, blob); err != nil {
			logger.Warn().Err(err).Str("memory_id", m.ID).Msg("Failed to persist embedding")
			stats.Failed++
			continue
		}
		stats.Succeeded++
	}
}
