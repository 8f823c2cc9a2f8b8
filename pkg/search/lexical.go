package search

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"unicode"

	"github.com/memctl/memctl/pkg/memory"
	"github.com/rs/zerolog"
)

// ErrUnavailable means a retrieval method has no signal to offer: the lexical
// engine is missing, or the embedding model cannot be reached. Callers fuse
// whatever remains; it is never a failed request.
var ErrUnavailable = errors.New("search method unavailable")

// LexicalIndex is the FTS5 shadow of the memories table. It is never the
// system of record: hooks keep it promptly consistent with the primary store
// and Rebuild can re-derive it wholesale at any time.
type LexicalIndex struct {
	db     *sql.DB
	logger zerolog.Logger

	mu        sync.Mutex
	ensured   bool
	available bool
}

// NewLexicalIndex creates the index over the store's database handle.
// EnsureIndex runs lazily on first use and is safe to call eagerly too.
func NewLexicalIndex(db *sql.DB, logger zerolog.Logger) *LexicalIndex {
	return &LexicalIndex{
		db:     db,
		logger: logger.With().Str("component", "lexical-index").Logger(),
	}
}

// EnsureIndex sets up the FTS5 table. Idempotent and safe from any call
// site. A runtime without FTS5 marks the index unavailable instead of
// failing the caller.
func (l *LexicalIndex) EnsureIndex() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ensured {
		return l.available
	}
	l.ensured = true

	_, err := l.db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			memory_id UNINDEXED,
			key,
			content,
			tags,
			tokenize='porter unicode61'
		);
	`)
	if err != nil {
		l.logger.Warn().Err(err).Msg("FTS5 unavailable, keyword search disabled")
		l.available = false
		return false
	}

	l.available = true
	return true
}

// Available reports whether keyword search can serve queries.
func (l *LexicalIndex) Available() bool {
	return l.EnsureIndex()
}

// Search runs a ranked keyword query scoped to one project, excluding
// archived memories. Returns ErrUnavailable when the index cannot serve.
func (l *LexicalIndex) Search(ctx context.Context, projectID, query string, limit int) ([]string, error) {
	if !l.EnsureIndex() {
		return nil, ErrUnavailable
	}

	match := buildMatchQuery(query)
	if match == "" {
		// Nothing searchable left after sanitizing
		return nil, nil
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT memories_fts.memory_id
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.memory_id
		WHERE memories_fts MATCH ? AND m.project_id = ? AND m.archived_at IS NULL
		ORDER BY bm25(memories_fts)
		LIMIT ?
	`, match, projectID, limit)
	if err != nil {
		l.logger.Warn().Err(err).Str("query", query).Msg("Keyword search failed")
		return nil, ErrUnavailable
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Rebuild re-derives the whole shadow table from the primary store. Safe at
// any time, e.g. after a bulk import.
func (l *LexicalIndex) Rebuild(ctx context.Context) error {
	if !l.EnsureIndex() {
		return ErrUnavailable
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM memories_fts"); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, "SELECT id, key, content, tags FROM memories")
	if err != nil {
		return err
	}

	type ftsRow struct {
		id, key, content, tags string
	}
	var pending []ftsRow
	for rows.Next() {
		var r ftsRow
		if err := rows.Scan(&r.id, &r.key, &r.content, &r.tags); err != nil {
			rows.Close()
			return err
		}
		r.tags = flattenTags(r.tags)
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, r := range pending {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO memories_fts (memory_id, key, content, tags) VALUES (?, ?, ?, ?)",
			r.id, r.key, r.content, r.tags); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	l.logger.Info().Int("rows", len(pending)).Msg("Lexical index rebuilt")
	return nil
}

// OnInsert implements memory.IndexHook.
func (l *LexicalIndex) OnInsert(ctx context.Context, m *memory.Memory) {
	if !l.EnsureIndex() {
		return
	}
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO memories_fts (memory_id, key, content, tags) VALUES (?, ?, ?, ?)",
		m.ID, m.Key, m.Content, strings.Join(m.Tags, " "))
	if err != nil {
		l.logger.Warn().Err(err).Str("memory_id", m.ID).Msg("Failed to index memory")
	}
}

// OnUpdate implements memory.IndexHook.
func (l *LexicalIndex) OnUpdate(ctx context.Context, m *memory.Memory) {
	l.OnDelete(ctx, m.ID)
	l.OnInsert(ctx, m)
}

// OnDelete implements memory.IndexHook.
func (l *LexicalIndex) OnDelete(ctx context.Context, id string) {
	if !l.EnsureIndex() {
		return
	}
	_, err := l.db.ExecContext(ctx, "DELETE FROM memories_fts WHERE memory_id = ?", id)
	if err != nil {
		l.logger.Warn().Err(err).Str("memory_id", id).Msg("Failed to deindex memory")
	}
}

// buildMatchQuery strips FTS5 operator characters from the raw query and
// OR-joins the remaining terms so any term hit counts.
func buildMatchQuery(query string) string {
	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return ' '
	}, query)

	terms := strings.Fields(sanitized)
	if len(terms) == 0 {
		return ""
	}

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

// flattenTags turns the stored JSON tag list into plain searchable text.
func flattenTags(tags string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', '"', ',':
			return ' '
		default:
			return r
		}
	}, tags)
}
