package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memctl/memctl/pkg/embed"
	"github.com/memctl/memctl/pkg/memory"
)

// fakeBackfillStore holds pending memories in a slice and records writes.
type fakeBackfillStore struct {
	pending  []*memory.Memory
	written  map[string][]byte
	listErr  error
	writeErr map[string]error
}

func newFakeBackfillStore(n int) *fakeBackfillStore {
	s := &fakeBackfillStore{
		written:  make(map[string][]byte),
		writeErr: make(map[string]error),
	}
	for i := 0; i < n; i++ {
		s.pending = append(s.pending, &memory.Memory{
			ID:        fmt.Sprintf("mem-%d", i),
			ProjectID: "p",
			Content:   fmt.Sprintf("content %d", i),
		})
	}
	return s
}

func (s *fakeBackfillStore) ListMissingEmbeddings(_ context.Context, limit int) ([]*memory.Memory, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeBackfillStore) UpdateEmbedding(_ context.Context, id string, embedding []byte) error {
	if err := s.writeErr[id]; err != nil {
		return err
	}
	s.written[id] = embedding
	return nil
}

type scriptedModel struct {
	dim    int
	encode func(texts []string) ([]float32, error)
}

func (m *scriptedModel) Encode(_ context.Context, texts []string) ([]float32, error) {
	return m.encode(texts)
}

func (m *scriptedModel) Dim() int { return m.dim }

func (m *scriptedModel) Close() error { return nil }

func flatVectors(dim, n int) []float32 {
	out := make([]float32, n*dim)
	for i := range out {
		out[i] = 0.5
	}
	return out
}

func newBackfill(t *testing.T, store BackfillStore, model embed.Model, batch, subBatch int) *Backfill {
	t.Helper()

	provider := embed.NewProvider(func(context.Context) (embed.Model, error) {
		return model, nil
	}, zerolog.Nop())
	t.Cleanup(func() { provider.Close() })

	return NewBackfill(BackfillConfig{
		Store:        store,
		Provider:     provider,
		Logger:       zerolog.Nop(),
		BatchSize:    batch,
		SubBatchSize: subBatch,
	})
}

func TestBackfill_FillsAllPending(t *testing.T) {
	store := newFakeBackfillStore(5)
	model := &scriptedModel{dim: 4, encode: func(texts []string) ([]float32, error) {
		return flatVectors(4, len(texts)), nil
	}}
	job := newBackfill(t, store, model, 100, 50)

	stats := job.Run(context.Background())

	assert.Equal(t, BackfillStats{Attempted: 5, Succeeded: 5, Failed: 0}, stats)
	assert.Len(t, store.written, 5)

	// Written blobs are the quantized stored form
	vec, err := embed.Deserialize(store.written["mem-0"])
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestBackfill_SubBatchSplit(t *testing.T) {
	store := newFakeBackfillStore(5)
	var calls []int
	model := &scriptedModel{dim: 2, encode: func(texts []string) ([]float32, error) {
		calls = append(calls, len(texts))
		return flatVectors(2, len(texts)), nil
	}}
	job := newBackfill(t, store, model, 100, 2)

	stats := job.Run(context.Background())

	assert.Equal(t, 5, stats.Succeeded)
	// 2+2+1, the trailing single skips batch mode inside the provider
	assert.Equal(t, []int{2, 2, 1}, calls)
}

func TestBackfill_PerItemFailureIsolated(t *testing.T) {
	store := newFakeBackfillStore(3)
	store.writeErr["mem-1"] = errors.New("disk full")
	model := &scriptedModel{dim: 2, encode: func(texts []string) ([]float32, error) {
		return flatVectors(2, len(texts)), nil
	}}
	job := newBackfill(t, store, model, 100, 50)

	stats := job.Run(context.Background())

	assert.Equal(t, BackfillStats{Attempted: 3, Succeeded: 2, Failed: 1}, stats)
	assert.NotContains(t, store.written, "mem-1")
	assert.Contains(t, store.written, "mem-0")
	assert.Contains(t, store.written, "mem-2")
}

func TestBackfill_ModelUnavailable(t *testing.T) {
	store := newFakeBackfillStore(4)
	model := &scriptedModel{dim: 2, encode: func([]string) ([]float32, error) {
		return nil, errors.New("inference down")
	}}
	job := newBackfill(t, store, model, 100, 2)

	stats := job.Run(context.Background())

	// Run exits cleanly, every sub-batch counted as failed, nothing written
	assert.Equal(t, BackfillStats{Attempted: 4, Succeeded: 0, Failed: 4}, stats)
	assert.Empty(t, store.written)
}

func TestBackfill_ModelRecoversMidRun(t *testing.T) {
	store := newFakeBackfillStore(4)
	var down int32 = 1
	model := &scriptedModel{dim: 2, encode: func(texts []string) ([]float32, error) {
		if atomic.LoadInt32(&down) == 1 {
			atomic.StoreInt32(&down, 0)
			return nil, errors.New("transient")
		}
		return flatVectors(2, len(texts)), nil
	}}
	job := newBackfill(t, store, model, 100, 2)

	stats := job.Run(context.Background())

	// First sub-batch hits the transient failure and falls back per-text;
	// later sub-batches proceed normally
	assert.Equal(t, 4, stats.Attempted)
	assert.GreaterOrEqual(t, stats.Succeeded, 3)
}

func TestBackfill_ListFailure(t *testing.T) {
	store := newFakeBackfillStore(0)
	store.listErr = errors.New("db locked")
	model := &scriptedModel{dim: 2, encode: func(texts []string) ([]float32, error) {
		return flatVectors(2, len(texts)), nil
	}}
	job := newBackfill(t, store, model, 100, 50)

	stats := job.Run(context.Background())
	assert.Zero(t, stats.Attempted)
}

func TestBackfill_NothingPending(t *testing.T) {
	store := newFakeBackfillStore(0)
	model := &scriptedModel{dim: 2, encode: func(texts []string) ([]float32, error) {
		return flatVectors(2, len(texts)), nil
	}}
	job := newBackfill(t, store, model, 100, 50)

	stats := job.Run(context.Background())
	assert.Equal(t, BackfillStats{}, stats)
	assert.Empty(t, store.written)
}

func TestBackfill_BatchSizeLimitsRun(t *testing.T) {
	store := newFakeBackfillStore(10)
	model := &scriptedModel{dim: 2, encode: func(texts []string) ([]float32, error) {
		return flatVectors(2, len(texts)), nil
	}}
	job := newBackfill(t, store, model, 3, 50)

	stats := job.Run(context.Background())
	assert.Equal(t, 3, stats.Attempted)
	assert.Len(t, store.written, 3)
}
