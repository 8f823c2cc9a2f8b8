package memory

import (
	"context"
	"time"
)

// Memory is a single stored text record scoped to a project.
type Memory struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	Key        string     `json:"key"`
	Content    string     `json:"content"`
	Tags       []string   `json:"tags,omitempty"`
	Embedding  []byte     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// Archived reports whether the memory is excluded from search.
func (m *Memory) Archived() bool {
	return m.ArchivedAt != nil
}

// HasEmbedding reports whether a serialized embedding is stored.
func (m *Memory) HasEmbedding() bool {
	return len(m.Embedding) > 0
}

// IndexHook receives synchronous notifications from the store's write path.
// Implementations keep derived indexes consistent with the primary table;
// they must recover failures internally and never fail the write.
type IndexHook interface {
	OnInsert(ctx context.Context, m *Memory)
	OnUpdate(ctx context.Context, m *Memory)
	OnDelete(ctx context.Context, id string)
}
