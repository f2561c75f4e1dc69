// Package journal records generate/publish attempt history in SQLite so the
// history command can show past outcomes.
package journal

import (
	"context"
	"time"
)

// Kind identifies which workflow an attempt belongs to.
type Kind string

const (
	KindGenerate Kind = "generate"
	KindPublish  Kind = "publish"
)

// Attempt is one terminal generate or publish outcome.
type Attempt struct {
	ID         string
	Kind       Kind
	Result     string // success|fail|terminated
	Message    string
	Files      int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the attempt's wall-clock duration.
func (a Attempt) Duration() time.Duration {
	return a.FinishedAt.Sub(a.StartedAt)
}

// Journal stores attempt records.
type Journal interface {
	// Record appends a terminal attempt. An empty ID is assigned by the store.
	Record(ctx context.Context, a Attempt) error

	// Recent returns up to limit attempts, newest first. A zero limit means all.
	Recent(ctx context.Context, limit int) ([]Attempt, error)

	// Close releases the underlying store.
	Close() error
}

// Noop is a Journal that discards everything; used when no journal path is
// configured.
type Noop struct{}

func (Noop) Record(context.Context, Attempt) error          { return nil }
func (Noop) Recent(context.Context, int) ([]Attempt, error) { return nil, nil }
func (Noop) Close() error                                   { return nil }
