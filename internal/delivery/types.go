// Package delivery runs the periodic reminder delivery loop.
//
// Each tick queries the store for undelivered reminders due inside
// [now-lookback, now+lookahead], sends them one by one and marks each one
// delivered only after its send succeeded. Ticks never overlap.
package delivery

import (
	"context"
	"time"

	"notebot/internal/reminder"
	"notebot/internal/transport"
)

const (
	DefaultInterval    = 60 * time.Second
	DefaultLookback    = 30 * time.Minute
	DefaultLookahead   = 5 * time.Minute
	DefaultSendTimeout = 15 * time.Second
	DefaultRatePerSec  = 20

	markTimeout = 10 * time.Second
)

// Event types published on the bus.
const (
	EventDelivered      = "reminder.delivered"
	EventDispatchFailed = "reminder.dispatch_failed"
)

// Config tunes the scheduler. Lookback and Lookahead are taken as given:
// zero means no extension on that side. DefaultConfig carries the defaults.
type Config struct {
	Interval    time.Duration
	Lookback    time.Duration
	Lookahead   time.Duration
	SendTimeout time.Duration
	RatePerSec  int

	// Location renders due times in notifications. Nil means UTC.
	Location *time.Location
}

func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		Lookback:    DefaultLookback,
		Lookahead:   DefaultLookahead,
		SendTimeout: DefaultSendTimeout,
		RatePerSec:  DefaultRatePerSec,
		Location:    time.UTC,
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	c.Lookback = max(c.Lookback, 0)
	c.Lookahead = max(c.Lookahead, 0)
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = DefaultRatePerSec
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Store is the part of storage.Store the scheduler needs.
type Store interface {
	FindDueWindow(ctx context.Context, start, end time.Time, onlyUndelivered bool) ([]reminder.Record, error)
	MarkDelivered(ctx context.Context, id int64) (bool, error)
}

// Messenger sends the notification text to the reminder owner.
type Messenger interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

// TickResult summarizes one pass over the due window.
type TickResult struct {
	WindowStart time.Time
	WindowEnd   time.Time

	Found    int
	Sent     int // sent and marked
	Failed   int // not sent; retried next tick
	Lost     int // sent, but another instance marked it first
	Unmarked int // sent, but marking failed; will be sent again
}

// DeliveredEvent is the payload of EventDelivered and EventDispatchFailed.
type DeliveredEvent struct {
	ID    int64
	Owner int64
	DueAt time.Time
	Err   string `json:",omitempty"`
}
