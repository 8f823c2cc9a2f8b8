package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/memctl/memctl/pkg/embed"
	"github.com/memctl/memctl/pkg/memory"
)

// fakeModel returns a fixed vector per known text and the zero vector for
// anything else.
type fakeModel struct {
	dim     int
	vectors map[string][]float32
	err     error
}

func (m *fakeModel) Encode(_ context.Context, texts []string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float32, 0, len(texts)*m.dim)
	for _, text := range texts {
		v, ok := m.vectors[text]
		if !ok {
			v = make([]float32, m.dim)
		}
		out = append(out, v...)
	}
	return out, nil
}

func (m *fakeModel) Dim() int { return m.dim }

func (m *fakeModel) Close() error { return nil }

func createTestStore(t *testing.T) *memory.Store {
	t.Helper()

	store, err := memory.NewStore(memory.StoreConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func newFakeProvider(t *testing.T, m *fakeModel) *embed.Provider {
	t.Helper()

	p := embed.NewProvider(func(context.Context) (embed.Model, error) {
		return m, nil
	}, zerolog.Nop())
	t.Cleanup(func() { p.Close() })

	return p
}

// storeEmbedded creates a memory and persists a quantized embedding for it.
func storeEmbedded(t *testing.T, store *memory.Store, projectID, content string, vec []float32) *memory.Memory {
	t.Helper()
	ctx := context.Background()

	m := &memory.Memory{ProjectID: projectID, Content: content}
	require.NoError(t, store.Create(ctx, m))

	blob, err := embed.Serialize(vec)
	require.NoError(t, err)
	require.NoError(t, store.UpdateEmbedding(ctx, m.ID, blob))

	return m
}

func createTestIndex(t *testing.T, store *memory.Store) *LexicalIndex {
	t.Helper()

	idx := NewLexicalIndex(store.DB(), zerolog.Nop())
	if !idx.EnsureIndex() {
		t.Skip("FTS5 not available in this build")
	}
	return idx
}
