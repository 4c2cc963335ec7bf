package memory

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/oversight/internal/message"
)

// SQLiteSummaryCache persists the most recent conversation summary to a
// local SQLite file so a restarted process can resume from a summarized
// view instead of an empty one (spec §6 "Persisted state", §4.6's
// summarize policy cache). This is the one piece of on-disk state this
// runtime keeps; everything else in AgentMemory is process-lifetime only.
// Grounded on the teacher's pattern of a single embedded store being
// sufficient for one optional persisted cache rather than a pluggable
// backend registry.
type SQLiteSummaryCache struct {
	db *sql.DB
}

// OpenSQLiteSummaryCache opens (creating if necessary) a SQLite database at
// path and ensures its schema exists.
func OpenSQLiteSummaryCache(path string) (*SQLiteSummaryCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite summary cache: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS summary_cache (
		session_id TEXT PRIMARY KEY,
		content    TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create summary_cache schema: %w", err)
	}
	return &SQLiteSummaryCache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *SQLiteSummaryCache) Close() error { return c.db.Close() }

// Load returns the most recently persisted summary for sessionID, if any.
func (c *SQLiteSummaryCache) Load(ctx context.Context, sessionID string) (string, bool, error) {
	var content string
	err := c.db.QueryRowContext(ctx, `SELECT content FROM summary_cache WHERE session_id = ?`, sessionID).Scan(&content)
	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("load summary for %s: %w", sessionID, err)
	default:
		return content, true, nil
	}
}

// Save upserts the summary for sessionID.
func (c *SQLiteSummaryCache) Save(ctx context.Context, sessionID, content string) error {
	const upsert = `INSERT INTO summary_cache (session_id, content, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`
	if _, err := c.db.ExecContext(ctx, upsert, sessionID, content); err != nil {
		return fmt.Errorf("save summary for %s: %w", sessionID, err)
	}
	return nil
}

// PersistingSummarizer wraps a Summarizer and mirrors every summary it
// produces into a SQLiteSummaryCache, keyed by sessionID.
type PersistingSummarizer struct {
	Next      Summarizer
	Cache     *SQLiteSummaryCache
	SessionID string
}

// Summarize delegates to Next and persists the result before returning it.
// A cache write failure does not fail the summarization itself — losing the
// persisted copy only affects recovery after a restart, not the current
// run — so the error is swallowed here and the summary still flows through
// to the caller.
func (p *PersistingSummarizer) Summarize(ctx context.Context, messages []message.Message) (string, error) {
	summary, err := p.Next.Summarize(ctx, messages)
	if err != nil {
		return "", err
	}
	_ = p.Cache.Save(ctx, p.SessionID, summary)
	return summary, nil
}
