// Package journal persists status transitions observed between consecutive
// registry snapshots in a SQLite database. The journal is advisory: write
// failures are logged by the caller and never affect a refresh.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// DB wraps the transition journal database. Safe for concurrent use within
// one process; WAL mode plus busy timeout keep multiple processes safe.
type DB struct {
	db *sql.DB
}

// Transition records one observed status change for a session.
type Transition struct {
	SessionID   string
	ProjectPath string
	From        string
	To          string
	At          time.Time
}

// Open creates or opens the journal at dbPath with WAL mode and a busy
// timeout, and applies migrations.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	// WAL allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: wal mode: %w", err)
	}
	// Wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: busy timeout: %w", err)
	}

	j := &DB{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Close checkpoints WAL and closes the database.
func (j *DB) Close() error {
	_, _ = j.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return j.db.Close()
}

func (j *DB) migrate() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS transitions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id   TEXT NOT NULL,
			project_path TEXT NOT NULL,
			from_status  TEXT NOT NULL,
			to_status    TEXT NOT NULL,
			at           INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transitions_at ON transitions(at);
		CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(session_id);
	`)
	if err != nil {
		return fmt.Errorf("journal: create schema: %w", err)
	}

	_, err = j.db.Exec(
		`INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO NOTHING`,
		fmt.Sprintf("%d", SchemaVersion),
	)
	if err != nil {
		return fmt.Errorf("journal: set schema version: %w", err)
	}
	return nil
}

// RecordTransitions writes a batch of transitions in one transaction.
// An empty batch is a no-op.
func (j *DB) RecordTransitions(transitions []Transition) error {
	if len(transitions) == 0 {
		return nil
	}

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("journal: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO transitions (session_id, project_path, from_status, to_status, at)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("journal: prepare: %w", err)
	}
	defer stmt.Close()

	for _, tr := range transitions {
		if _, err := stmt.Exec(tr.SessionID, tr.ProjectPath, tr.From, tr.To, tr.At.Unix()); err != nil {
			return fmt.Errorf("journal: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: commit: %w", err)
	}
	return nil
}

// Recent returns the newest transitions, most recent first.
func (j *DB) Recent(limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.Query(
		`SELECT session_id, project_path, from_status, to_status, at
		 FROM transitions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var tr Transition
		var at int64
		if err := rows.Scan(&tr.SessionID, &tr.ProjectPath, &tr.From, &tr.To, &at); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		tr.At = time.Unix(at, 0)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Prune deletes transitions older than the cutoff and returns the number
// removed.
func (j *DB) Prune(olderThan time.Time) (int64, error) {
	res, err := j.db.Exec(`DELETE FROM transitions WHERE at < ?`, olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("journal: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
