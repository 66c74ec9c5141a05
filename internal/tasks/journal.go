package tasks

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Journal is an append-only SQLite record of terminal tasks. The in-memory
// tracker map stays authoritative for live work; the journal exists so that
// operators can audit what ran (and how it ended) across process restarts.
type Journal struct {
	db *sql.DB
}

// DefaultJournalDir returns the per-user data directory for the journal.
func DefaultJournalDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".decopilot")
}

// NewJournal opens (creating if needed) the journal database under dataDir.
func NewJournal(dataDir string) (*Journal, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("journal: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "tasks.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}

	// SQLite performance pragmas
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("journal: pragma %q: %w", p, err)
		}
	}

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		return nil, fmt.Errorf("journal: migration: %w", err)
	}
	return j, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS task_history (
			task_id     TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			state       TEXT NOT NULL,
			result      TEXT,
			error       TEXT,
			created_at  TEXT NOT NULL,
			started_at  TEXT,
			finished_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_history_state    ON task_history(state);
		CREATE INDEX IF NOT EXISTS idx_history_finished ON task_history(finished_at DESC);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record upserts a terminal task snapshot. Non-terminal snapshots are
// rejected: the journal only ever holds finished work.
func (j *Journal) Record(task Task) error {
	if !task.State.Terminal() {
		return fmt.Errorf("journal: task %s is not terminal (state: %s)", task.ID, task.State)
	}

	_, err := j.db.Exec(`
		INSERT INTO task_history
			(task_id, description, state, result, error, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			state = excluded.state,
			result = excluded.result,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		task.ID, task.Description, string(task.State),
		nullable(task.Result), nullable(task.Error),
		task.CreatedAt.Format(time.RFC3339),
		nullableTime(task.StartedAt), nullableTime(task.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("journal: record task %s: %w", task.ID, err)
	}
	return nil
}

// Recent returns up to limit journaled tasks, most recently finished first.
func (j *Journal) Recent(limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.Query(`
		SELECT task_id, description, state, result, error, created_at, started_at, finished_at
		FROM task_history
		ORDER BY finished_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Task
	for rows.Next() {
		var (
			task                        Task
			state                       string
			result, errMsg              sql.NullString
			createdAt, startedAt, finAt sql.NullString
		)
		if err := rows.Scan(&task.ID, &task.Description, &state, &result, &errMsg,
			&createdAt, &startedAt, &finAt); err != nil {
			return nil, fmt.Errorf("journal: scan row: %w", err)
		}
		task.State = State(state)
		task.Result = result.String
		task.Error = errMsg.String
		if createdAt.Valid {
			task.CreatedAt, _ = time.Parse(time.RFC3339, createdAt.String)
		}
		task.StartedAt = parseTimePtr(startedAt)
		task.FinishedAt = parseTimePtr(finAt)
		out = append(out, task)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &parsed
}
