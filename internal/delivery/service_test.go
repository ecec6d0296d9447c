package delivery

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"notebot/internal/eventbus"
	"notebot/internal/reminder"
	"notebot/internal/storage"
	"notebot/internal/transport"
	logx "notebot/pkg/logx"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) FindDueWindow(ctx context.Context, start, end time.Time, only bool) ([]reminder.Record, error) {
	args := m.Called(ctx, start, end, only)
	recs, _ := args.Get(0).([]reminder.Record)
	return recs, args.Error(1)
}

func (m *mockStore) MarkDelivered(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type mockMessenger struct{ mock.Mock }

func (m *mockMessenger) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	args := m.Called(ctx, to, text, opt)
	return args.Get(0).(transport.MessageRef), args.Error(1)
}

// recordingMessenger is a thread-safe fake used with the real store.
type recordingMessenger struct {
	mu   sync.Mutex
	sent []transport.ChatTarget
	text []string
}

func (r *recordingMessenger) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, to)
	r.text = append(r.text, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(r.sent)}, nil
}

func (r *recordingMessenger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

var fixedNow = time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

func newTestService(st Store, msg Messenger, bus eventbus.Bus) *Service {
	cfg := DefaultConfig()
	cfg.RatePerSec = 1000
	cfg.SendTimeout = time.Second
	s := New(cfg, st, msg, logx.Nop(), bus, nil)
	s.now = func() time.Time { return fixedNow }
	return s
}

func rec(id, owner int64, due time.Time) reminder.Record {
	return reminder.Record{ID: id, Owner: owner, Body: "body " + string(rune('a'+id)), DueAt: &due}
}

func TestTickSendsInOrderAndMarks(t *testing.T) {
	st := &mockStore{}
	msg := &mockMessenger{}

	recs := []reminder.Record{rec(1, 10, fixedNow.Add(-10*time.Minute)), rec(2, 20, fixedNow)}
	st.On("FindDueWindow", mock.Anything, fixedNow.Add(-DefaultLookback), fixedNow.Add(DefaultLookahead), true).Return(recs, nil).Once()
	st.On("MarkDelivered", mock.Anything, int64(1)).Return(true, nil).Once()
	st.On("MarkDelivered", mock.Anything, int64(2)).Return(true, nil).Once()

	var order []int64
	msg.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { order = append(order, args.Get(1).(transport.ChatTarget).ChatID) }).
		Return(transport.MessageRef{}, nil)

	res, err := newTestService(st, msg, nil).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Found)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, []int64{10, 20}, order)
	st.AssertExpectations(t)
}

func TestTickDispatchFailureIsIsolated(t *testing.T) {
	st := &mockStore{}
	msg := &mockMessenger{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	recs := []reminder.Record{rec(1, 10, fixedNow), rec(2, 20, fixedNow), rec(3, 30, fixedNow)}
	st.On("FindDueWindow", mock.Anything, mock.Anything, mock.Anything, true).Return(recs, nil)
	st.On("MarkDelivered", mock.Anything, int64(1)).Return(true, nil)
	st.On("MarkDelivered", mock.Anything, int64(3)).Return(true, nil)

	msg.On("SendText", mock.Anything, transport.ChatTarget{ChatID: 20}, mock.Anything, mock.Anything).
		Return(transport.MessageRef{}, errors.New("chat not found"))
	msg.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(transport.MessageRef{}, nil)

	res, err := newTestService(st, msg, bus).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, res.Failed)
	st.AssertNotCalled(t, "MarkDelivered", mock.Anything, int64(2))

	var failed []DeliveredEvent
	for len(events) > 0 {
		ev := <-events
		if ev.Type == EventDispatchFailed {
			failed = append(failed, ev.Data.(DeliveredEvent))
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, int64(2), failed[0].ID)
	assert.Contains(t, failed[0].Err, reminder.ErrDispatch.Error())
}

func TestTickPanicIsIsolated(t *testing.T) {
	st := &mockStore{}
	msg := &mockMessenger{}

	recs := []reminder.Record{rec(1, 10, fixedNow), rec(2, 20, fixedNow)}
	st.On("FindDueWindow", mock.Anything, mock.Anything, mock.Anything, true).Return(recs, nil)
	st.On("MarkDelivered", mock.Anything, int64(2)).Return(true, nil)

	msg.On("SendText", mock.Anything, transport.ChatTarget{ChatID: 10}, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("boom") }).
		Return(transport.MessageRef{}, nil)
	msg.On("SendText", mock.Anything, transport.ChatTarget{ChatID: 20}, mock.Anything, mock.Anything).
		Return(transport.MessageRef{}, nil)

	res, err := newTestService(st, msg, nil).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Sent)
}

func TestTickStorageUnavailable(t *testing.T) {
	st := &mockStore{}
	msg := &mockMessenger{}
	st.On("FindDueWindow", mock.Anything, mock.Anything, mock.Anything, true).Return(nil, errors.New("connection refused"))

	_, err := newTestService(st, msg, nil).Tick(context.Background())
	require.ErrorIs(t, err, reminder.ErrStorageUnavailable)
	msg.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTickLostRace(t *testing.T) {
	st := &mockStore{}
	msg := &mockMessenger{}
	st.On("FindDueWindow", mock.Anything, mock.Anything, mock.Anything, true).Return([]reminder.Record{rec(1, 10, fixedNow)}, nil)
	st.On("MarkDelivered", mock.Anything, int64(1)).Return(false, nil)
	msg.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(transport.MessageRef{}, nil)

	res, err := newTestService(st, msg, nil).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Lost)
	assert.Zero(t, res.Sent)
}

func TestZeroWindowQueriesOnlyNow(t *testing.T) {
	st := &mockStore{}
	st.On("FindDueWindow", mock.Anything, fixedNow, fixedNow, true).Return(nil, nil).Once()

	s := New(Config{Lookback: 0, Lookahead: -time.Minute}, st, &mockMessenger{}, logx.Nop(), nil, nil)
	s.now = func() time.Time { return fixedNow }

	res, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixedNow, res.WindowStart)
	assert.Equal(t, fixedNow, res.WindowEnd)
	st.AssertExpectations(t)
}

func TestTickSendTimeoutLeavesUndelivered(t *testing.T) {
	st := &mockStore{}
	msg := &mockMessenger{}
	st.On("FindDueWindow", mock.Anything, mock.Anything, mock.Anything, true).Return([]reminder.Record{rec(1, 10, fixedNow)}, nil)
	msg.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(transport.MessageRef{}, context.DeadlineExceeded)

	s := New(Config{SendTimeout: 20 * time.Millisecond}, st, msg, logx.Nop(), nil, nil)
	s.now = func() time.Time { return fixedNow }

	res, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	st.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything)
}

func TestNotificationRendersDisplayZone(t *testing.T) {
	st := &mockStore{}
	msg := &mockMessenger{}
	due := time.Date(2026, 3, 5, 11, 30, 0, 0, time.UTC)
	r := reminder.Record{ID: 1, Owner: 10, Body: "Buy milk", DueAt: &due}
	st.On("FindDueWindow", mock.Anything, mock.Anything, mock.Anything, true).Return([]reminder.Record{r}, nil)
	st.On("MarkDelivered", mock.Anything, int64(1)).Return(true, nil)
	msg.On("SendText", mock.Anything, mock.Anything, "🔔 Reminder: «Buy milk» is due at 14:30 05-03-2026", mock.Anything).
		Return(transport.MessageRef{}, nil).Once()

	s := New(Config{Location: time.FixedZone("MSK", 3*3600)}, st, msg, logx.Nop(), nil, nil)
	s.now = func() time.Time { return fixedNow }
	_, err := s.Tick(context.Background())
	require.NoError(t, err)
	msg.AssertExpectations(t)
}

func TestConsecutiveTicksDeliverOnce(t *testing.T) {
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "d.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	now := time.Now().UTC()
	for i, off := range []time.Duration{-25 * time.Minute, -time.Minute, 3 * time.Minute} {
		due := now.Add(off)
		_, err := st.Create(ctx, int64(100+i), "ping", []string{"t"}, &due)
		require.NoError(t, err)
	}
	far := now.Add(time.Hour)
	_, err = st.Create(ctx, 200, "later", nil, &far)
	require.NoError(t, err)

	msg := &recordingMessenger{}
	cfg := DefaultConfig()
	cfg.RatePerSec = 1000
	s := New(cfg, st, msg, logx.Nop(), nil, nil)

	first, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Sent)

	second, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Found)
	assert.Equal(t, 3, msg.count())
	for _, txt := range msg.text {
		assert.True(t, strings.HasPrefix(txt, "🔔 Reminder: «ping»"), txt)
	}
}

func TestStartRunsImmediateTickAndStops(t *testing.T) {
	st := &mockStore{}
	msg := &mockMessenger{}
	called := make(chan struct{}, 4)
	st.On("FindDueWindow", mock.Anything, mock.Anything, mock.Anything, true).
		Run(func(mock.Arguments) { called <- struct{}{} }).
		Return(nil, nil)

	s := New(Config{Interval: time.Hour}, st, msg, logx.Nop(), nil, nil)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an immediate tick")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestNewMetricsRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m1, err := NewMetrics(reg)
	require.NoError(t, err)
	m2, err := NewMetrics(reg)
	require.NoError(t, err)

	m1.observe(TickResult{Sent: 2}, 0.1)
	m2.observe(TickResult{Sent: 1}, 0.1)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var sent float64
	for _, mf := range mfs {
		if mf.GetName() == "notebot_delivery_sent_total" {
			sent = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(3), sent)

	var nilMetrics *Metrics
	nilMetrics.observe(TickResult{Sent: 1}, 1)
	nilMetrics.tickError()
}

// overlapMessenger runs overlap once, before its first send.
type overlapMessenger struct {
	recordingMessenger
	overlap func()
}

func (o *overlapMessenger) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if f := o.overlap; f != nil {
		o.overlap = nil
		f()
	}
	return o.recordingMessenger.SendText(ctx, to, text, opt)
}

func TestOverlappingSchedulersMarkOnce(t *testing.T) {
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "o.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	due := time.Now().UTC().Add(-time.Minute)
	_, err = st.Create(ctx, 7, "standup", nil, &due)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RatePerSec = 1000
	other := New(cfg, st, &recordingMessenger{}, logx.Nop(), nil, nil)

	var otherRes TickResult
	msg := &overlapMessenger{}
	msg.overlap = func() {
		otherRes, err = other.Tick(ctx)
		require.NoError(t, err)
	}
	res, err := New(cfg, st, msg, logx.Nop(), nil, nil).Tick(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, otherRes.Sent)
	assert.Equal(t, 1, res.Lost)
	assert.Zero(t, res.Sent)
	assert.Equal(t, 1, msg.count())

	again, err := other.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Found)
}
