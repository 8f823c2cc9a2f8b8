package embed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memctl/memctl/pkg/memory"
)

type recordingWriter struct {
	mu     sync.Mutex
	writes map[string][]byte
	err    error
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{writes: make(map[string][]byte)}
}

func (w *recordingWriter) UpdateEmbedding(_ context.Context, id string, embedding []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.writes[id] = embedding
	return nil
}

func (w *recordingWriter) get(id string) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	blob, ok := w.writes[id]
	return blob, ok
}

func newTestPipeline(t *testing.T, m *stubModel, writer EmbeddingWriter) *Pipeline {
	t.Helper()
	var loads int32
	provider := NewProvider(stubLoader(m, &loads), zerolog.Nop())
	p := NewPipeline(provider, writer, zerolog.Nop())
	t.Cleanup(func() {
		p.Close()
		_ = provider.Close()
	})
	return p
}

func TestPipeline_EmbedsAndPersists(t *testing.T) {
	m := &stubModel{dim: 4, encode: constantEncode(4)}
	writer := newRecordingWriter()
	p := newTestPipeline(t, m, writer)

	p.Enqueue(&memory.Memory{ID: "mem-1", Key: "auth", Content: "use jwt"})
	p.Close()

	blob, ok := writer.get("mem-1")
	require.True(t, ok, "embedding must be persisted after Close drains the queue")

	vec, err := Deserialize(blob)
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestPipeline_HooksEnqueue(t *testing.T) {
	m := &stubModel{dim: 4, encode: constantEncode(4)}
	writer := newRecordingWriter()
	p := newTestPipeline(t, m, writer)

	ctx := context.Background()
	p.OnInsert(ctx, &memory.Memory{ID: "ins-1", Content: "inserted"})
	p.OnUpdate(ctx, &memory.Memory{ID: "upd-1", Content: "updated"})
	p.OnDelete(ctx, "gone-1")
	p.Close()

	_, ok := writer.get("ins-1")
	assert.True(t, ok)
	_, ok = writer.get("upd-1")
	assert.True(t, ok)
	_, ok = writer.get("gone-1")
	assert.False(t, ok, "deletes must not schedule embedding work")
}

func TestPipeline_ModelUnavailable(t *testing.T) {
	m := &stubModel{dim: 4, encode: func(context.Context, []string) ([]float32, error) {
		return nil, errors.New("inference down")
	}}
	writer := newRecordingWriter()
	p := newTestPipeline(t, m, writer)

	p.Enqueue(&memory.Memory{ID: "mem-1", Content: "text"})
	p.Close()

	_, ok := writer.get("mem-1")
	assert.False(t, ok, "unavailable model leaves the memory for backfill")
}

func TestPipeline_WriterFailureDoesNotStopWorker(t *testing.T) {
	m := &stubModel{dim: 4, encode: constantEncode(4)}
	writer := newRecordingWriter()
	writer.err = errors.New("disk full")
	p := newTestPipeline(t, m, writer)

	p.Enqueue(&memory.Memory{ID: "mem-1", Content: "first"})

	writer.mu.Lock()
	writer.err = nil
	writer.mu.Unlock()

	p.Enqueue(&memory.Memory{ID: "mem-2", Content: "second"})
	p.Close()

	_, ok := writer.get("mem-2")
	assert.True(t, ok, "a failed write must not take down the worker")
}

func TestPipeline_CloseIdempotent(t *testing.T) {
	m := &stubModel{dim: 4, encode: constantEncode(4)}
	p := newTestPipeline(t, m, newRecordingWriter())

	p.Close()
	p.Close()
}

func TestEmbeddingText(t *testing.T) {
	tests := []struct {
		name string
		mem  memory.Memory
		want string
	}{
		{
			name: "key content and tags",
			mem:  memory.Memory{Key: "auth-flow", Content: "use jwt", Tags: []string{"auth", "security"}},
			want: "auth-flow\nuse jwt\nauth security",
		},
		{
			name: "no tags",
			mem:  memory.Memory{Key: "k", Content: "c"},
			want: "k\nc",
		},
		{
			name: "empty memory",
			mem:  memory.Memory{},
			want: "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EmbeddingText(&tt.mem))
		})
	}
}
