package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebot/internal/reminder"
	logx "notebot/pkg/logx"
)

func openTestStore(t *testing.T) *sqlStore {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "notes.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	s, ok := st.(*sqlStore)
	require.True(t, ok)
	return s
}

func at(t time.Time) *time.Time { return &t }

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mysql"}, logx.Nop())
	require.Error(t, err)
}

func TestCreateNormalizesAndRejectsEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, 1, "   ", nil, nil)
	require.ErrorIs(t, err, reminder.ErrEmptyBody)
	require.ErrorIs(t, err, reminder.ErrValidation)

	_, err = s.Create(ctx, 0, "body", nil, nil)
	require.ErrorIs(t, err, reminder.ErrValidation)

	due := time.Date(2026, 3, 5, 11, 30, 0, 0, time.UTC)
	rec, err := s.Create(ctx, 42, " Buy milk ", []string{"#Errands", "errands", "home"}, &due)
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
	assert.Equal(t, "Buy milk", rec.Body)
	assert.Equal(t, []string{"errands", "home"}, rec.Tags)
	assert.False(t, rec.Delivered)
	require.NotNil(t, rec.DueAt)
	assert.True(t, rec.DueAt.Equal(due))

	all, err := s.FindAllByOwner(ctx, 42)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rec.ID, all[0].ID)
	assert.Equal(t, []string{"errands", "home"}, all[0].Tags)
	assert.True(t, all[0].DueAt.Equal(due))
	assert.Equal(t, time.UTC, all[0].DueAt.Location())
}

func TestFindDueWindowInclusiveAndOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(35 * time.Minute)

	atEnd, err := s.Create(ctx, 1, "end", nil, at(end))
	require.NoError(t, err)
	atStart, err := s.Create(ctx, 1, "start", nil, at(start))
	require.NoError(t, err)
	mid1, err := s.Create(ctx, 2, "mid-1", nil, at(start.Add(10*time.Minute)))
	require.NoError(t, err)
	mid2, err := s.Create(ctx, 3, "mid-2", nil, at(start.Add(10*time.Minute)))
	require.NoError(t, err)

	_, err = s.Create(ctx, 1, "before", nil, at(start.Add(-time.Millisecond)))
	require.NoError(t, err)
	_, err = s.Create(ctx, 1, "after", nil, at(end.Add(time.Millisecond)))
	require.NoError(t, err)
	_, err = s.Create(ctx, 1, "plain note", nil, nil)
	require.NoError(t, err)

	got, err := s.FindDueWindow(ctx, start, end, true)
	require.NoError(t, err)

	ids := make([]int64, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{atStart.ID, mid1.ID, mid2.ID, atEnd.ID}, ids)
}

func TestFindDueWindowNormalizesLocalBounds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	due := time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)
	_, err := s.Create(ctx, 1, "tz", nil, &due)
	require.NoError(t, err)

	zone := time.FixedZone("UTC+3", 3*3600)
	got, err := s.FindDueWindow(ctx, due.In(zone), due.In(zone), true)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	due := time.Now().UTC()
	rec, err := s.Create(ctx, 1, "once", nil, &due)
	require.NoError(t, err)

	ok, err := s.MarkDelivered(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkDelivered(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.MarkDelivered(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := s.FindAllByOwner(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Delivered)
	assert.NotNil(t, all[0].DeliveredAt)
}

func TestMarkDeliveredIgnoresPlainNotes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, 1, "no due", nil, nil)
	require.NoError(t, err)

	ok, err := s.MarkDelivered(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkDeliveredConcurrentSingleWinner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	due := time.Now().UTC()
	rec, err := s.Create(ctx, 1, "race", nil, &due)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.MarkDelivered(ctx, rec.ID)
			if err != nil {
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRepeatedWindowEmptyAfterMarking(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, off := range []time.Duration{-20 * time.Minute, -time.Minute, 2 * time.Minute} {
		_, err := s.Create(ctx, int64(i+1), "due", nil, at(now.Add(off)))
		require.NoError(t, err)
	}

	start, end := now.Add(-30*time.Minute), now.Add(5*time.Minute)
	first, err := s.FindDueWindow(ctx, start, end, true)
	require.NoError(t, err)
	require.Len(t, first, 3)
	for _, r := range first {
		ok, err := s.MarkDelivered(ctx, r.ID)
		require.NoError(t, err)
		require.True(t, ok)
	}

	second, err := s.FindDueWindow(ctx, start, end, true)
	require.NoError(t, err)
	assert.Empty(t, second)

	history, err := s.FindDueWindow(ctx, start, end, false)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestOwnerQueriesNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	a, err := s.Create(ctx, 5, "first", []string{"work"}, nil)
	require.NoError(t, err)
	_, err = s.Create(ctx, 5, "second", []string{"home"}, nil)
	require.NoError(t, err)
	c, err := s.Create(ctx, 5, "third", []string{"Work", "urgent"}, nil)
	require.NoError(t, err)
	_, err = s.Create(ctx, 6, "other owner", []string{"work"}, nil)
	require.NoError(t, err)

	byTag, err := s.FindByOwnerAndTag(ctx, 5, "#WORK")
	require.NoError(t, err)
	require.Len(t, byTag, 2)
	assert.Equal(t, c.ID, byTag[0].ID)
	assert.Equal(t, a.ID, byTag[1].ID)

	all, err := s.FindAllByOwner(ctx, 5)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].Body)
	assert.Equal(t, "first", all[2].Body)

	none, err := s.FindByOwnerAndTag(ctx, 5, "#")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClosedStoreReportsUnavailable(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.FindAllByOwner(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, reminder.ErrStorageUnavailable))

	_, err = s.Create(context.Background(), 1, "x", nil, nil)
	assert.ErrorIs(t, err, reminder.ErrStorageUnavailable)
}

func TestRebindDollarPlaceholders(t *testing.T) {
	s := &sqlStore{d: dialect{dollarArgs: true}}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", s.q("SELECT a FROM t WHERE x = ? AND y = ?"))

	s.d.dollarArgs = false
	assert.Equal(t, "x = ?", s.q("x = ?"))
}
