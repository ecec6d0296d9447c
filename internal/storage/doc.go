// Package storage persists notes and reminders.
//
// It owns the delivery dedup invariant: MarkDelivered is a single conditional
// UPDATE, so two schedulers racing on the same row can never both win.
//
// Drivers:
//   - "sqlite": modernc.org/sqlite file database (default)
//   - "postgres": github.com/lib/pq, DSN from config or DATABASE_URL
package storage
