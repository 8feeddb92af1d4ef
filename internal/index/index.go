// Package index maintains a SQLite index of sessions so listing and
// cleanup accounting do not require scanning every session directory.
// The directories remain authoritative; the index is rebuildable.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/stagewatch/stagewatch/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	dir         TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	ended_at    TEXT,
	status      TEXT NOT NULL,
	entry_count INTEGER NOT NULL DEFAULT 0,
	size_bytes  INTEGER NOT NULL DEFAULT 0,
	fail_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
`

// DB is the SQLite-backed session index.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the index database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging index database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing index schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Upsert inserts or updates a session row.
func (d *DB) Upsert(sess *types.Session) error {
	var ended sql.NullString
	if sess.EndedAt != nil {
		ended = sql.NullString{String: sess.EndedAt.Format(time.RFC3339Nano), Valid: true}
	}

	_, err := d.db.Exec(`
		INSERT INTO sessions (id, dir, started_at, ended_at, status, entry_count, size_bytes, fail_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			dir = excluded.dir,
			ended_at = excluded.ended_at,
			status = excluded.status,
			entry_count = excluded.entry_count,
			size_bytes = excluded.size_bytes,
			fail_reason = excluded.fail_reason`,
		sess.ID, sess.Dir, sess.StartedAt.Format(time.RFC3339Nano), ended,
		string(sess.Status), sess.EntryCount, sess.SizeBytes, sess.FailReason)
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", sess.ID, err)
	}
	return nil
}

// Delete removes a session row.
func (d *DB) Delete(id string) error {
	if _, err := d.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

// List returns all indexed sessions, oldest first.
func (d *DB) List() ([]*types.Session, error) {
	rows, err := d.db.Query(`
		SELECT id, dir, started_at, ended_at, status, entry_count, size_bytes, fail_reason
		FROM sessions ORDER BY started_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		var (
			sess       types.Session
			startedStr string
			endedStr   sql.NullString
			status     string
		)
		if err := rows.Scan(&sess.ID, &sess.Dir, &startedStr, &endedStr,
			&status, &sess.EntryCount, &sess.SizeBytes, &sess.FailReason); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}

		started, err := time.Parse(time.RFC3339Nano, startedStr)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at for %s: %w", sess.ID, err)
		}
		sess.StartedAt = started
		if endedStr.Valid {
			ended, err := time.Parse(time.RFC3339Nano, endedStr.String)
			if err != nil {
				return nil, fmt.Errorf("parsing ended_at for %s: %w", sess.ID, err)
			}
			sess.EndedAt = &ended
		}
		sess.Status = types.SessionStatus(status)
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// Get returns one indexed session by id.
func (d *DB) Get(id string) (*types.Session, error) {
	sessions, err := d.List()
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("session %s not indexed", id)
}
