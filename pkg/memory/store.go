package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a memory id does not exist.
var ErrNotFound = errors.New("memory not found")

// Store is the sqlite-backed primary record store. It owns the memories
// table; derived indexes subscribe through IndexHook and are notified
// synchronously on every write.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	hooks  []IndexHook
}

// StoreConfig holds store configuration.
type StoreConfig struct {
	DBPath string
	Logger zerolog.Logger
}

// NewStore opens (or creates) the database and initializes the schema.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	// FTS5 is needed by the lexical index sharing this handle
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_fts5=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets the backfill job and live searches overlap
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: cfg.Logger,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			key TEXT NOT NULL,
			content TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			embedding BLOB,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			archived_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project_id);
		CREATE INDEX IF NOT EXISTS idx_memories_project_key ON memories(project_id, key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// DB exposes the underlying handle for derived indexes that live in the
// same database file (the lexical index's FTS5 table).
func (s *Store) DB() *sql.DB {
	return s.db
}

// RegisterHook subscribes a derived index to write notifications.
// Hooks run synchronously, in registration order.
func (s *Store) RegisterHook(h IndexHook) {
	s.hooks = append(s.hooks, h)
}

// Create inserts a new memory. An empty ID is filled with a nanoid.
func (s *Store) Create(ctx context.Context, m *Memory) error {
	if m.ProjectID == "" {
		return errors.New("project id is required")
	}
	if m.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate id: %w", err)
		}
		m.ID = id
	}

	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, project_id, key, content, tags, embedding, created_at, updated_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`, m.ID, m.ProjectID, m.Key, m.Content, string(tags), m.Embedding, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}

	for _, h := range s.hooks {
		h.OnInsert(ctx, m)
	}

	return nil
}

// Update rewrites a memory's key, content and tags. The stored embedding is
// cleared since it no longer describes the new text; hooks re-enqueue it.
func (s *Store) Update(ctx context.Context, m *Memory) error {
	if m.ID == "" {
		return errors.New("memory id is required")
	}

	now := time.Now()
	m.UpdatedAt = now

	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET key = ?, content = ?, tags = ?, embedding = NULL, updated_at = ?
		WHERE id = ?
	`, m.Key, m.Content, string(tags), now.Unix(), m.ID)
	if err != nil {
		return fmt.Errorf("failed to update memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	m.Embedding = nil

	for _, h := range s.hooks {
		h.OnUpdate(ctx, m)
	}

	return nil
}

// Archive marks a memory as excluded from search. The row and its indexes
// are kept; queries filter on archived_at.
func (s *Store) Archive(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE memories SET archived_at = ?, updated_at = ? WHERE id = ? AND archived_at IS NULL",
		time.Now().Unix(), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to archive memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a memory and notifies hooks.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	for _, h := range s.hooks {
		h.OnDelete(ctx, id)
	}

	return nil
}

// GetByID fetches a single memory.
func (s *Store) GetByID(ctx context.Context, id string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, key, content, tags, embedding, created_at, updated_at, archived_at
		FROM memories WHERE id = ?
	`, id)

	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// ListByProject returns every non-archived memory in a project.
func (s *Store) ListByProject(ctx context.Context, projectID string) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, key, content, tags, embedding, created_at, updated_at, archived_at
		FROM memories WHERE project_id = ? AND archived_at IS NULL
		ORDER BY updated_at DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMemories(rows)
}

// ListWithEmbeddings returns every non-archived memory in a project that has
// a stored embedding. Feeds the vector search scan.
func (s *Store) ListWithEmbeddings(ctx context.Context, projectID string) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, key, content, tags, embedding, created_at, updated_at, archived_at
		FROM memories
		WHERE project_id = ? AND archived_at IS NULL AND embedding IS NOT NULL
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMemories(rows)
}

// ListMissingEmbeddings returns up to limit non-archived memories without an
// embedding, oldest first. Feeds the backfill job.
func (s *Store) ListMissingEmbeddings(ctx context.Context, limit int) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, key, content, tags, embedding, created_at, updated_at, archived_at
		FROM memories
		WHERE archived_at IS NULL AND embedding IS NULL
		ORDER BY updated_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMemories(rows)
}

// UpdateEmbedding persists a serialized embedding for a memory. Writing the
// same embedding twice is harmless, so backfill and the live pipeline can
// overlap without coordination.
func (s *Store) UpdateEmbedding(ctx context.Context, id string, embedding []byte) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE memories SET embedding = ? WHERE id = ?", embedding, id)
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// CountByProject returns total and embedded non-archived memory counts.
func (s *Store) CountByProject(ctx context.Context, projectID string) (total, embedded int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(embedding)
		FROM memories WHERE project_id = ? AND archived_at IS NULL
	`, projectID).Scan(&total, &embedded)
	return total, embedded, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	var (
		m          Memory
		tags       string
		embedding  []byte
		createdAt  int64
		updatedAt  int64
		archivedAt sql.NullInt64
	)

	err := row.Scan(&m.ID, &m.ProjectID, &m.Key, &m.Content, &tags, &embedding,
		&createdAt, &updatedAt, &archivedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		// A corrupt tag list should not hide the memory itself
		m.Tags = nil
	}
	m.Embedding = embedding
	m.CreatedAt = time.Unix(createdAt, 0)
	m.UpdatedAt = time.Unix(updatedAt, 0)
	if archivedAt.Valid {
		t := time.Unix(archivedAt.Int64, 0)
		m.ArchivedAt = &t
	}

	return &m, nil
}

func collectMemories(rows *sql.Rows) ([]*Memory, error) {
	var out []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
