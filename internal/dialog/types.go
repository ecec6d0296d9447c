// Package dialog implements the guided reminder composer:
// date → time → text → confirm.
//
// The conversation is a finite-state machine. Step is a pure function of
// (session, event, now) returning the next session and the side effects the
// Controller must perform (render, notice, save, cleanup). Sessions live only
// in process memory, in a SessionStore keyed by (user, chat).
package dialog

import (
	"time"
)

type State int

const (
	StateNone State = iota
	StateChooseDate
	StateChooseTime
	StateEnterText
	StateConfirm
	StateSaved
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateChooseDate:
		return "choose_date"
	case StateChooseTime:
		return "choose_time"
	case StateEnterText:
		return "enter_text"
	case StateConfirm:
		return "confirm"
	case StateSaved:
		return "saved"
	case StateCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateSaved || s == StateCancelled }

// Cancellation reasons.
const (
	ReasonCancelled = "cancelled"
	ReasonTimeout   = "timeout"
	ReasonReplaced  = "replaced"
	ReasonShutdown  = "shutdown"
)

// Key identifies a session: the user driving it and the chat hosting its UI.
// User is 0 for anonymous channel posts.
type Key struct {
	User int64
	Chat int64
}

// Session is the per-conversation dialog state.
type Session struct {
	ID          string
	Key         Key
	Destination int64 // chat the reminder is delivered to
	State       State

	Month  time.Time // first day of the displayed calendar month
	Date   time.Time // chosen day (midnight, display zone); zero until chosen
	Hour   int       // -1 until chosen
	Minute int       // -1 until chosen
	Draft  string

	// Transient lists UI message ids retracted on completion. Panel is the
	// message edited at every step; it is kept and shows the final outcome.
	Transient []int
	Panel     int

	LastActivity time.Time
	Reason       string // set when Cancelled
	RecordID     int64  // set when Saved
}

// EventAt is the chosen event instant, valid once date, hour and minute are set.
func (s Session) EventAt(loc *time.Location) (time.Time, bool) {
	if s.Date.IsZero() || s.Hour < 0 || s.Minute < 0 {
		return time.Time{}, false
	}
	y, m, d := s.Date.In(loc).Date()
	return time.Date(y, m, d, s.Hour, s.Minute, 0, 0, loc), true
}

func (s *Session) addTransient(id int) {
	if id <= 0 {
		return
	}
	for _, v := range s.Transient {
		if v == id {
			return
		}
	}
	s.Transient = append(s.Transient, id)
}

// Limits bounds the selectable event instant relative to now.
type Limits struct {
	MinLead    time.Duration
	MaxLead    time.Duration
	NotifyLead time.Duration // due = event - NotifyLead
	Timeout    time.Duration // inactivity bound
	Location   *time.Location
}

const (
	DefaultMinLead     = 24 * time.Hour
	DefaultMaxLead     = 365 * 24 * time.Hour
	DefaultNotifyLead  = 24 * time.Hour
	DefaultTimeout     = 30 * time.Minute
	DefaultMaxSessions = 1000
)

func DefaultLimits() Limits {
	return Limits{
		MinLead:    DefaultMinLead,
		MaxLead:    DefaultMaxLead,
		NotifyLead: DefaultNotifyLead,
		Timeout:    DefaultTimeout,
		Location:   time.UTC,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MinLead < 0 {
		l.MinLead = 0
	}
	if l.MaxLead <= 0 {
		l.MaxLead = d.MaxLead
	}
	if l.MaxLead < l.MinLead {
		l.MaxLead = l.MinLead
	}
	if l.NotifyLead < 0 {
		l.NotifyLead = 0
	}
	if l.Timeout <= 0 {
		l.Timeout = d.Timeout
	}
	if l.Location == nil {
		l.Location = time.UTC
	}
	return l
}

type EventKind int

const (
	EvStart EventKind = iota + 1
	EvPickDate
	EvNavMonth
	EvPickHour
	EvPickMinute
	EvBack
	EvText
	EvSave
	EvSaved
	EvSaveFailed
	EvCancel
	EvTimeout
	EvNoop
)

// Event is a user interaction or a controller signal.
type Event struct {
	Kind EventKind

	Date      time.Time // EvPickDate
	Delta     int       // EvNavMonth
	Value     int       // EvPickHour, EvPickMinute
	Text      string    // EvText
	MessageID int       // EvText: the user's message
	RecordID  int64     // EvSaved
	Reason    string    // EvCancel
}

type EffectKind int

const (
	// EffRender shows the current state on the panel.
	EffRender EffectKind = iota + 1
	// EffNotice shows a short, non-persistent message.
	EffNotice
	// EffSave asks the controller to persist Save and report back with
	// EvSaved or EvSaveFailed.
	EffSave
	// EffCleanup retracts transient messages and renders the final panel.
	EffCleanup
)

type Effect struct {
	Kind EffectKind
	Text string       // EffNotice
	Save *SaveRequest // EffSave
}

// SaveRequest is the reminder the dialog produced.
type SaveRequest struct {
	Owner   int64
	Body    string
	Tags    []string
	EventAt time.Time // UTC
	DueAt   time.Time // UTC, EventAt - NotifyLead
}
