package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteJournal opens (and initializes) a journal database.
// Use ":memory:" for an in-memory database, or a file path for persistence.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	j := &SQLiteJournal{db: db}
	if err := j.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return j, nil
}

func (j *SQLiteJournal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		result TEXT NOT NULL,
		message TEXT,
		files INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_finished ON attempts(finished_at);
	CREATE INDEX IF NOT EXISTS idx_attempts_kind ON attempts(kind);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record appends a terminal attempt record.
func (j *SQLiteJournal) Record(ctx context.Context, a Attempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.FinishedAt.IsZero() {
		a.FinishedAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO attempts (id, kind, result, message, files, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		a.ID, string(a.Kind), a.Result, a.Message, a.Files, a.StartedAt.Unix(), a.FinishedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// Recent returns attempts newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	query := "SELECT id, kind, result, message, files, started_at, finished_at FROM attempts ORDER BY finished_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var kind string
		var started, finished int64
		if err := rows.Scan(&a.ID, &kind, &a.Result, &a.Message, &a.Files, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Kind = Kind(kind)
		a.StartedAt = time.Unix(started, 0)
		a.FinishedAt = time.Unix(finished, 0)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}
