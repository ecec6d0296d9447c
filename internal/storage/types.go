package storage

import (
	"context"
	"time"

	"notebot/internal/reminder"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL reachable through DSN
type Config struct {
	Driver       string
	Path         string
	DSN          string
	BusyTimeout  time.Duration // sqlite only; 0 means default
	MaxOpenConns int           // postgres only; 0 means default
}

// Store is the reminder persistence API.
//
// All instants passed in or returned are UTC. Failures of the backing store
// wrap reminder.ErrStorageUnavailable; nothing is retried internally.
type Store interface {
	// Create inserts an undelivered record. Empty bodies are rejected with
	// reminder.ErrEmptyBody.
	Create(ctx context.Context, owner int64, body string, tags []string, dueAt *time.Time) (reminder.Record, error)

	// FindDueWindow returns records with start <= due_at <= end ordered by
	// due_at, then id.
	FindDueWindow(ctx context.Context, start, end time.Time, onlyUndelivered bool) ([]reminder.Record, error)

	// MarkDelivered flips delivered exactly once. It reports false when the id
	// is unknown, already delivered or has no due instant.
	MarkDelivered(ctx context.Context, id int64) (bool, error)

	// FindByOwnerAndTag and FindAllByOwner return records newest first.
	FindByOwnerAndTag(ctx context.Context, owner int64, tag string) ([]reminder.Record, error)
	FindAllByOwner(ctx context.Context, owner int64) ([]reminder.Record, error)

	Close() error
}
