package delivery

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"notebot/internal/eventbus"
	"notebot/internal/reminder"
	"notebot/internal/transport"
	logx "notebot/pkg/logx"
)

// ErrBusy is returned by a cron-driven tick that found the previous one still running.
var ErrBusy = errors.New("delivery tick already running")

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeLost
	outcomeUnmarked
)

// Service is the delivery scheduler. It is safe for concurrent use; ticks
// are serialized.
type Service struct {
	cfg     Config
	store   Store
	msg     Messenger
	log     logx.Logger
	bus     eventbus.Bus
	metrics *Metrics
	limiter *rate.Limiter
	now     func() time.Time

	tickMu sync.Mutex

	mu     sync.Mutex
	c      *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, store Store, msg Messenger, log logx.Logger, bus eventbus.Bus, m *Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		cfg:     cfg,
		store:   store,
		msg:     msg,
		log:     log,
		bus:     bus,
		metrics: m,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		now:     time.Now,
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Start runs one tick immediately and then every Interval until Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	schedule := "@every " + s.cfg.Interval.String()
	if _, err := c.AddFunc(schedule, func() { s.scheduledTick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("delivery schedule %q: %w", schedule, err)
	}

	s.c = c
	s.cancel = cancel
	c.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.scheduledTick(runCtx)
	}()

	s.log.Info("service started",
		logx.Duration("interval", s.cfg.Interval),
		logx.Duration("lookback", s.cfg.Lookback),
		logx.Duration("lookahead", s.cfg.Lookahead),
	)
	return nil
}

// Stop halts the schedule and waits for an in-flight tick, bounded by ctx.
// Records not yet sent stay undelivered and are picked up after restart.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	cancel()
	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("stop timed out; tick still running")
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) scheduledTick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		s.log.Debug("tick skipped", logx.Err(ErrBusy))
		return
	}
	defer s.tickMu.Unlock()
	_, _ = s.tickLocked(ctx)
}

// Tick runs one delivery pass. It blocks while another tick is running.
func (s *Service) Tick(ctx context.Context) (TickResult, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.tickLocked(ctx)
}

func (s *Service) tickLocked(ctx context.Context) (TickResult, error) {
	started := time.Now()
	now := s.now().UTC()
	res := TickResult{
		WindowStart: now.Add(-s.cfg.Lookback),
		WindowEnd:   now.Add(s.cfg.Lookahead),
	}

	recs, err := s.store.FindDueWindow(ctx, res.WindowStart, res.WindowEnd, true)
	if err != nil {
		if !errors.Is(err, reminder.ErrStorageUnavailable) {
			err = fmt.Errorf("%w: %v", reminder.ErrStorageUnavailable, err)
		}
		s.metrics.tickError()
		s.log.Error("due window query failed; tick aborted", logx.Err(err))
		return res, err
	}
	res.Found = len(recs)

	for _, r := range recs {
		if ctx.Err() != nil {
			s.log.Info("tick interrupted", logx.Int("remaining", res.Found-res.Sent-res.Failed-res.Lost-res.Unmarked))
			break
		}
		switch s.deliver(ctx, r) {
		case outcomeSent:
			res.Sent++
		case outcomeFailed:
			res.Failed++
		case outcomeLost:
			res.Lost++
		case outcomeUnmarked:
			res.Unmarked++
		}
	}

	took := time.Since(started)
	s.metrics.observe(res, took.Seconds())
	if res.Found > 0 {
		s.log.Info("tick done",
			logx.Int("found", res.Found),
			logx.Int("sent", res.Sent),
			logx.Int("failed", res.Failed),
			logx.Int("lost", res.Lost),
			logx.Int("unmarked", res.Unmarked),
			logx.Duration("took", took),
		)
	} else {
		s.log.Debug("tick done", logx.Duration("took", took))
	}
	return res, nil
}

// deliver sends one reminder and marks it. Panics are contained here so one
// bad record cannot abort the tick.
func (s *Service) deliver(ctx context.Context, r reminder.Record) (out outcome) {
	log := s.log.With(logx.Int64("id", r.ID), logx.Int64("owner", r.Owner))
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic while delivering", logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
			s.publishFailure(r, fmt.Errorf("%w: panic: %v", reminder.ErrDispatch, rec))
			out = outcomeFailed
		}
	}()

	if err := s.limiter.Wait(ctx); err != nil {
		log.Debug("rate limiter wait aborted", logx.Err(err))
		return outcomeFailed
	}

	text := reminder.Notification(r, s.cfg.Location)
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	_, err := s.msg.SendText(sctx, transport.ChatTarget{ChatID: r.Owner}, text, nil)
	cancel()
	if err != nil {
		err = fmt.Errorf("%w: %v", reminder.ErrDispatch, err)
		log.Warn("dispatch failed; retry next tick", logx.Err(err))
		s.publishFailure(r, err)
		return outcomeFailed
	}

	// The send already happened; marking must not be skipped because a
	// shutdown cancelled ctx in between.
	mctx, mcancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	ok, err := s.store.MarkDelivered(mctx, r.ID)
	mcancel()
	switch {
	case err != nil:
		log.Error("mark delivered failed; reminder will be sent again", logx.Err(err))
		return outcomeUnmarked
	case !ok:
		log.Warn("already delivered elsewhere")
		return outcomeLost
	}

	log.Debug("reminder delivered")
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: EventDelivered, Data: s.event(r, nil)})
	}
	return outcomeSent
}

func (s *Service) publishFailure(r reminder.Record, err error) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: EventDispatchFailed, Data: s.event(r, err)})
}

func (s *Service) event(r reminder.Record, err error) DeliveredEvent {
	ev := DeliveredEvent{ID: r.ID, Owner: r.Owner}
	if r.DueAt != nil {
		ev.DueAt = *r.DueAt
	}
	if err != nil {
		ev.Err = err.Error()
	}
	return ev
}
