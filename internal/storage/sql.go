package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	"notebot/internal/reminder"
	logx "notebot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dialect covers the few differences between the supported SQL engines.
type dialect struct {
	name       string
	migration  string
	dollarArgs bool
}

// sqlStore implements Store on database/sql for every dialect.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	log logx.Logger
	now func() time.Time
}

const recordColumns = `id, owner, body, tags, due_at, delivered, delivered_at, created_at`

func newSQLStore(db *sql.DB, d dialect, log logx.Logger) *sqlStore {
	return &sqlStore{db: db, d: d, log: log, now: time.Now}
}

func (s *sqlStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/" + s.d.migration)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

// q rewrites '?' placeholders for dialects that use $n.
func (s *sqlStore) q(query string) string {
	if !s.d.dollarArgs {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) Create(ctx context.Context, owner int64, body string, tags []string, dueAt *time.Time) (reminder.Record, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return reminder.Record{}, reminder.ErrEmptyBody
	}
	if owner == 0 {
		return reminder.Record{}, fmt.Errorf("%w: owner is required", reminder.ErrValidation)
	}
	tags = reminder.NormalizeTags(tags)
	created := s.now().UTC().Truncate(time.Millisecond)

	rec := reminder.Record{
		Owner:     owner,
		Body:      body,
		Tags:      tags,
		CreatedAt: created,
	}
	var due any
	if dueAt != nil {
		d := dueAt.UTC().Truncate(time.Millisecond)
		rec.DueAt = &d
		due = d.UnixMilli()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return reminder.Record{}, reminder.Storage("create: begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, s.q(
		`INSERT INTO reminders(owner, body, tags, due_at, delivered, created_at)
		 VALUES(?,?,?,?,0,?) RETURNING id`),
		owner, body, strings.Join(tags, " "), due, created.UnixMilli(),
	).Scan(&rec.ID)
	if err != nil {
		return reminder.Record{}, reminder.Storage("create: insert", err)
	}
	for _, t := range tags {
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO reminder_tags(reminder_id, tag) VALUES(?,?)`), rec.ID, t); err != nil {
			return reminder.Record{}, reminder.Storage("create: tag", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return reminder.Record{}, reminder.Storage("create: commit", err)
	}
	s.log.Debug("record created",
		logx.Int64("id", rec.ID),
		logx.Int64("owner", owner),
		logx.Bool("reminder", rec.DueAt != nil),
	)
	return rec, nil
}

func (s *sqlStore) FindDueWindow(ctx context.Context, start, end time.Time, onlyUndelivered bool) ([]reminder.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM reminders
		WHERE due_at IS NOT NULL AND due_at >= ? AND due_at <= ?`
	if onlyUndelivered {
		query += ` AND delivered = 0`
	}
	query += ` ORDER BY due_at ASC, id ASC`
	return s.list(ctx, "find due window", query, start.UTC().UnixMilli(), end.UTC().UnixMilli())
}

func (s *sqlStore) MarkDelivered(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE reminders SET delivered = 1, delivered_at = ?
		 WHERE id = ? AND delivered = 0 AND due_at IS NOT NULL`),
		s.now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return false, reminder.Storage("mark delivered", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, reminder.Storage("mark delivered: rows", err)
	}
	return n == 1, nil
}

func (s *sqlStore) FindByOwnerAndTag(ctx context.Context, owner int64, tag string) ([]reminder.Record, error) {
	tags := reminder.NormalizeTags([]string{tag})
	if len(tags) == 0 {
		return nil, nil
	}
	return s.list(ctx, "find by tag", `SELECT `+recordColumns+` FROM reminders r
		WHERE r.owner = ? AND EXISTS (
			SELECT 1 FROM reminder_tags t WHERE t.reminder_id = r.id AND t.tag = ?
		)
		ORDER BY r.created_at DESC, r.id DESC`, owner, tags[0])
}

func (s *sqlStore) FindAllByOwner(ctx context.Context, owner int64) ([]reminder.Record, error) {
	return s.list(ctx, "find all", `SELECT `+recordColumns+` FROM reminders
		WHERE owner = ?
		ORDER BY created_at DESC, id DESC`, owner)
}

func (s *sqlStore) list(ctx context.Context, op, query string, args ...any) ([]reminder.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, reminder.Storage(op, err)
	}
	defer rows.Close()

	var out []reminder.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, reminder.Storage(op+": scan", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, reminder.Storage(op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (reminder.Record, error) {
	var (
		r           reminder.Record
		tags        string
		due, doneAt sql.NullInt64
		delivered   int64
		created     int64
	)
	if err := sc.Scan(&r.ID, &r.Owner, &r.Body, &tags, &due, &delivered, &doneAt, &created); err != nil {
		return reminder.Record{}, err
	}
	r.Tags = reminder.NormalizeTags(strings.Fields(tags))
	r.Delivered = delivered != 0
	r.CreatedAt = time.UnixMilli(created).UTC()
	if due.Valid {
		t := time.UnixMilli(due.Int64).UTC()
		r.DueAt = &t
	}
	if doneAt.Valid {
		t := time.UnixMilli(doneAt.Int64).UTC()
		r.DeliveredAt = &t
	}
	return r, nil
}
