package dialog

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"notebot/internal/reminder"
	"notebot/internal/transport"
	logx "notebot/pkg/logx"
)

const (
	defaultSendTimeout = 15 * time.Second
	noticeGone         = "This dialog is no longer active. Use /compose to start again."
)

// Saver persists the reminder a dialog produced.
type Saver interface {
	Create(ctx context.Context, owner int64, body string, tags []string, dueAt *time.Time) (reminder.Record, error)
}

// Controller executes dialog effects against the chat transport and the store.
// Events for one session are serialized by the session lock; sessions never
// share mutable state.
type Controller struct {
	lim         Limits
	sessions    *SessionStore
	out         transport.Sender
	store       Saver
	log         logx.Logger
	now         func() time.Time
	sendTimeout time.Duration

	wg     sync.WaitGroup
	closed atomic.Bool
}

func NewController(lim Limits, sessions *SessionStore, out transport.Sender, store Saver, log logx.Logger) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	lim = lim.withDefaults()
	if sessions == nil {
		sessions = NewSessionStore(DefaultMaxSessions, lim.Timeout)
	}
	c := &Controller{
		lim:         lim,
		sessions:    sessions,
		out:         out,
		store:       store,
		log:         log,
		now:         time.Now,
		sendTimeout: defaultSendTimeout,
	}
	sessions.setExpireHook(c.expire)
	return c
}

// Limits returns the effective limits.
func (c *Controller) Limits() Limits { return c.lim }

// Sessions exposes the session store (read-only use).
func (c *Controller) Sessions() *SessionStore { return c.sessions }

// Begin starts a dialog in key.Chat composing a reminder for destination.
// An active session under the same key is cancelled (with cleanup) first.
// trigger is the id of the message that started the dialog; it is retracted
// with the other transient messages.
func (c *Controller) Begin(ctx context.Context, key Key, destination int64, trigger int) Session {
	if old, ok := c.sessions.get(key); ok {
		old.mu.Lock()
		c.apply(ctx, key, old, Event{Kind: EvCancel, Reason: ReasonReplaced}, nil)
		old.mu.Unlock()
	}

	if destination == 0 {
		destination = key.Chat
	}
	e := &entry{s: Session{
		ID:          uuid.NewString(),
		Key:         key,
		Destination: destination,
		Hour:        -1,
		Minute:      -1,
	}}
	e.s.addTransient(trigger)

	e.mu.Lock()
	defer e.mu.Unlock()
	c.sessions.touch(key, e)
	c.logger(e).Info("dialog started", logx.Int64("destination", destination))
	c.apply(ctx, key, e, Event{Kind: EvStart}, nil)
	return e.s
}

// HandleText feeds a text message to the active session in that chat. Outside
// the text step the session answers with a hint. It reports false when no
// active session exists, so the text can be saved as a note.
func (c *Controller) HandleText(ctx context.Context, m transport.Message) bool {
	for _, k := range candidateKeys(m.FromID, m.ChatID) {
		e, ok := c.sessions.get(k)
		if !ok {
			continue
		}
		e.mu.Lock()
		if e.s.State == StateNone || e.s.State.Terminal() {
			e.mu.Unlock()
			continue
		}
		c.apply(ctx, k, e, Event{Kind: EvText, Text: m.Text, MessageID: m.ID}, nil)
		e.mu.Unlock()
		return true
	}
	return false
}

// HandleCallback applies an inline button press and returns the text to show
// as the callback answer.
func (c *Controller) HandleCallback(ctx context.Context, from, chat int64, messageID int, action, payload string) string {
	ev, ok := ParseCallback(action, payload, c.lim.Location)
	if !ok {
		return noticeStale
	}
	e, key, ok := c.lookup(from, chat)
	if !ok {
		return noticeGone
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.State.Terminal() {
		return noticeGone
	}
	if messageID != 0 && e.s.Panel != 0 && messageID != e.s.Panel {
		return noticeStale
	}
	var answer string
	c.apply(ctx, key, e, ev, &answer)
	return answer
}

// Cancel cancels the session of user in chat. It reports whether one existed.
func (c *Controller) Cancel(ctx context.Context, user, chat int64) bool {
	e, key, ok := c.lookup(user, chat)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.State.Terminal() {
		return false
	}
	c.apply(ctx, key, e, Event{Kind: EvCancel, Reason: ReasonCancelled}, nil)
	return true
}

// Shutdown cancels every live session with cleanup and waits for pending
// timeout handlers, bounded by ctx.
func (c *Controller) Shutdown(ctx context.Context) {
	c.closed.Store(true)
	for _, k := range c.sessions.Keys() {
		e, ok := c.sessions.get(k)
		if !ok {
			continue
		}
		e.mu.Lock()
		c.apply(ctx, k, e, Event{Kind: EvCancel, Reason: ReasonShutdown}, nil)
		e.mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// expire drives the Timeout transition for a session evicted from the store.
func (c *Controller) expire(k Key, e *entry) {
	if c.closed.Load() {
		return
	}
	c.wg.Add(1)
	defer c.wg.Done()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.State.Terminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*c.sendTimeout)
	defer cancel()
	c.logger(e).Info("dialog timed out", logx.Time("last_activity", e.s.LastActivity))
	c.apply(ctx, k, e, Event{Kind: EvTimeout}, nil)
}

func (c *Controller) lookup(from, chat int64) (*entry, Key, bool) {
	for _, k := range candidateKeys(from, chat) {
		if e, ok := c.sessions.get(k); ok {
			return e, k, true
		}
	}
	return nil, Key{}, false
}

// candidateKeys: the user's own session first, then the chat-wide session
// started by an anonymous channel post.
func candidateKeys(from, chat int64) []Key {
	if from == 0 {
		return []Key{{Chat: chat}}
	}
	return []Key{{User: from, Chat: chat}, {Chat: chat}}
}

// apply steps e with ev and runs the resulting effects. Caller holds e.mu.
func (c *Controller) apply(ctx context.Context, key Key, e *entry, ev Event, answer *string) {
	prev := e.s.State
	next, effects := Step(e.s, ev, c.now(), c.lim)
	e.s = next

	for len(effects) > 0 {
		eff := effects[0]
		effects = effects[1:]
		switch eff.Kind {
		case EffRender:
			c.render(ctx, e)
		case EffNotice:
			c.notice(ctx, e, eff.Text, answer)
		case EffSave:
			follow := c.save(ctx, e, eff.Save)
			var more []Effect
			e.s, more = Step(e.s, follow, c.now(), c.lim)
			effects = append(effects, more...)
		case EffCleanup:
			c.cleanup(ctx, e)
		}
	}

	if e.s.State != prev {
		c.logger(e).Debug("dialog transition", logx.String("from", prev.String()), logx.String("to", e.s.State.String()))
	}
	if e.s.State.Terminal() {
		c.sessions.drop(key, e)
		c.logger(e).Info("dialog finished", logx.String("state", e.s.State.String()), logx.String("reason", e.s.Reason), logx.Int64("record", e.s.RecordID))
		return
	}
	c.sessions.touch(key, e)
}

func (c *Controller) save(ctx context.Context, e *entry, req *SaveRequest) Event {
	if req == nil || c.store == nil {
		return Event{Kind: EvSaveFailed}
	}
	due := req.DueAt
	rec, err := c.store.Create(ctx, req.Owner, req.Body, req.Tags, &due)
	if err != nil {
		c.logger(e).Error("dialog save failed", logx.Err(err))
		return Event{Kind: EvSaveFailed}
	}
	c.logger(e).Info("reminder saved", logx.Int64("id", rec.ID), logx.Time("due_at", due))
	return Event{Kind: EvSaved, RecordID: rec.ID}
}

func (c *Controller) render(ctx context.Context, e *entry) {
	msg := View(e.s, c.now(), c.lim)
	to := transport.ChatTarget{ChatID: e.s.Key.Chat}

	cctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	if e.s.Panel != 0 {
		err := msg.Edit(cctx, c.out, transport.MessageRef{ChatID: to.ChatID, MessageID: e.s.Panel})
		if err == nil {
			return
		}
		c.logger(e).Debug("panel edit failed; sending a new one", logx.Err(err))
	}
	ref, err := msg.Send(cctx, c.out, to)
	if err != nil {
		c.logger(e).Warn("panel send failed", logx.Err(err))
		return
	}
	e.s.Panel = ref.MessageID
	e.s.addTransient(ref.MessageID)
}

func (c *Controller) notice(ctx context.Context, e *entry, text string, answer *string) {
	if answer != nil {
		if *answer == "" {
			*answer = text
		} else {
			*answer = strings.TrimSpace(*answer + " " + text)
		}
		return
	}
	cctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	ref, err := c.out.SendText(cctx, transport.ChatTarget{ChatID: e.s.Key.Chat}, text, nil)
	if err != nil {
		c.logger(e).Warn("notice send failed", logx.Err(err))
		return
	}
	e.s.addTransient(ref.MessageID)
}

// cleanup retracts every transient message except the panel, then renders
// the final panel. Delete failures are logged and ignored.
func (c *Controller) cleanup(ctx context.Context, e *entry) {
	for _, id := range e.s.Transient {
		if id == e.s.Panel {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
		err := c.out.DeleteMessage(cctx, transport.MessageRef{ChatID: e.s.Key.Chat, MessageID: id})
		cancel()
		if err != nil {
			c.logger(e).Debug("delete transient message failed", logx.Int("message_id", id), logx.Err(err))
		}
	}
	c.render(ctx, e)
}

func (c *Controller) logger(e *entry) logx.Logger {
	return c.log.With(
		logx.String("dialog", e.s.ID),
		logx.Int64("user", e.s.Key.User),
		logx.Int64("chat", e.s.Key.Chat),
	)
}
