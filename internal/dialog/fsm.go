package dialog

import (
	"fmt"
	"strings"
	"time"

	"notebot/internal/reminder"
)

const dayLayout = "02-01-2006"

const (
	noticeStale      = "This button is no longer active."
	noticeEmptyText  = "Please enter the note text."
	noticeSaveFailed = "Could not save the reminder. Please try again."
	noticeNoMonth    = "No selectable days in that direction."
	noticeUseButtons = "Please use the buttons above, or /cancel."
)

// Step applies ev to s at instant now. It never mutates its input and has no
// side effects; the returned effects describe what the caller must do.
//
// Terminal sessions ignore every event.
func Step(s Session, ev Event, now time.Time, lim Limits) (Session, []Effect) {
	lim = lim.withDefaults()
	if s.State.Terminal() || ev.Kind == EvNoop {
		return s, nil
	}
	s.Transient = append([]int(nil), s.Transient...)

	switch ev.Kind {
	case EvCancel:
		reason := ev.Reason
		if reason == "" {
			reason = ReasonCancelled
		}
		return terminate(s, reason, now), []Effect{{Kind: EffCleanup}}
	case EvTimeout:
		return terminate(s, ReasonTimeout, now), []Effect{{Kind: EffCleanup}}
	}

	switch s.State {
	case StateNone:
		if ev.Kind != EvStart {
			return s, nil
		}
		s.State = StateChooseDate
		s.Hour, s.Minute = -1, -1
		s.Date = time.Time{}
		s.Month = firstOfMonth(now.Add(lim.MinLead), lim.Location)
		s.LastActivity = now
		return s, render()
	case StateChooseDate:
		return chooseDate(s, ev, now, lim)
	case StateChooseTime:
		return chooseTime(s, ev, now, lim)
	case StateEnterText:
		return enterText(s, ev, now)
	case StateConfirm:
		return confirm(s, ev, now, lim)
	}
	return s, nil
}

func chooseDate(s Session, ev Event, now time.Time, lim Limits) (Session, []Effect) {
	switch ev.Kind {
	case EvPickDate:
		s.LastActivity = now
		day := dayStart(ev.Date, lim.Location)
		if !DayAllowed(day, now, lim) {
			return s, append(notice(rangeNotice(now, lim)), render()...)
		}
		s.Date = day
		s.Hour, s.Minute = -1, -1
		s.State = StateChooseTime
		return s, render()
	case EvNavMonth:
		s.LastActivity = now
		target := s.Month.AddDate(0, ev.Delta, 0)
		lo, hi := MonthBounds(now, lim)
		if target.Before(lo) || target.After(hi) {
			return s, notice(noticeNoMonth)
		}
		s.Month = target
		return s, render()
	case EvText:
		return strayText(s, ev)
	}
	return s, notice(noticeStale)
}

func chooseTime(s Session, ev Event, now time.Time, lim Limits) (Session, []Effect) {
	switch ev.Kind {
	case EvPickHour:
		if ev.Value < 0 || ev.Value > 23 {
			return s, notice(noticeStale)
		}
		s.LastActivity = now
		s.Hour, s.Minute = ev.Value, -1
		return s, render()
	case EvPickMinute:
		if s.Hour < 0 || ev.Value < 0 || ev.Value > 59 {
			return s, notice(noticeStale)
		}
		s.LastActivity = now
		s.Minute = ev.Value
		at, _ := s.EventAt(lim.Location)
		if !LeadOK(at, now, lim) {
			return backToDate(s, lim, leadNotice(now, lim))
		}
		s.State = StateEnterText
		return s, render()
	case EvBack:
		s.LastActivity = now
		if s.Hour >= 0 {
			s.Hour = -1
			return s, render()
		}
		s.State = StateChooseDate
		s.Date = time.Time{}
		return s, render()
	case EvText:
		return strayText(s, ev)
	}
	return s, notice(noticeStale)
}

func enterText(s Session, ev Event, now time.Time) (Session, []Effect) {
	switch ev.Kind {
	case EvText:
		s.LastActivity = now
		s.addTransient(ev.MessageID)
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return s, notice(noticeEmptyText)
		}
		s.Draft = text
		s.State = StateConfirm
		return s, render()
	case EvBack:
		s.LastActivity = now
		s.Minute = -1
		s.State = StateChooseTime
		return s, render()
	}
	return s, notice(noticeStale)
}

func confirm(s Session, ev Event, now time.Time, lim Limits) (Session, []Effect) {
	switch ev.Kind {
	case EvSave:
		s.LastActivity = now
		at, ok := s.EventAt(lim.Location)
		if !ok || !LeadOK(at, now, lim) {
			return backToDate(s, lim, leadNotice(now, lim))
		}
		req := &SaveRequest{
			Owner:   s.Destination,
			Body:    s.Draft,
			Tags:    reminder.ExtractTags(s.Draft),
			EventAt: at.UTC(),
			DueAt:   at.Add(-lim.NotifyLead).UTC(),
		}
		return s, []Effect{{Kind: EffSave, Save: req}}
	case EvSaved:
		s.LastActivity = now
		s.State = StateSaved
		s.RecordID = ev.RecordID
		return s, []Effect{{Kind: EffCleanup}}
	case EvSaveFailed:
		s.LastActivity = now
		return s, append(notice(noticeSaveFailed), render()...)
	case EvBack:
		s.LastActivity = now
		s.State = StateEnterText
		return s, render()
	case EvText:
		return strayText(s, ev)
	}
	return s, notice(noticeStale)
}

// strayText answers a message typed while the panel expects a button. The
// message is retracted together with the dialog.
func strayText(s Session, ev Event) (Session, []Effect) {
	s.addTransient(ev.MessageID)
	return s, notice(noticeUseButtons)
}

func backToDate(s Session, lim Limits, msg string) (Session, []Effect) {
	if !s.Date.IsZero() {
		s.Month = firstOfMonth(s.Date, lim.Location)
	}
	s.State = StateChooseDate
	s.Date = time.Time{}
	s.Hour, s.Minute = -1, -1
	return s, append(notice(msg), render()...)
}

func terminate(s Session, reason string, now time.Time) Session {
	s.State = StateCancelled
	s.Reason = reason
	s.LastActivity = now
	return s
}

func render() []Effect { return []Effect{{Kind: EffRender}} }

func notice(text string) []Effect { return []Effect{{Kind: EffNotice, Text: text}} }

// DayAllowed reports whether some instant of day lies inside
// [now+MinLead, now+MaxLead].
func DayAllowed(day, now time.Time, lim Limits) bool {
	lim = lim.withDefaults()
	start := dayStart(day, lim.Location)
	last := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return !last.Before(now.Add(lim.MinLead)) && !start.After(now.Add(lim.MaxLead))
}

// LeadOK reports whether at lies inside [now+MinLead, now+MaxLead].
func LeadOK(at, now time.Time, lim Limits) bool {
	lim = lim.withDefaults()
	return !at.Before(now.Add(lim.MinLead)) && !at.After(now.Add(lim.MaxLead))
}

// MonthBounds returns the first and last calendar months holding allowed days.
func MonthBounds(now time.Time, lim Limits) (lo, hi time.Time) {
	lim = lim.withDefaults()
	return firstOfMonth(now.Add(lim.MinLead), lim.Location), firstOfMonth(now.Add(lim.MaxLead), lim.Location)
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func firstOfMonth(t time.Time, loc *time.Location) time.Time {
	y, m, _ := t.In(loc).Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, loc)
}

func rangeNotice(now time.Time, lim Limits) string {
	lo := now.Add(lim.MinLead).In(lim.Location).Format(dayLayout)
	hi := now.Add(lim.MaxLead).In(lim.Location).Format(dayLayout)
	return fmt.Sprintf("Pick a day between %s and %s.", lo, hi)
}

func leadNotice(now time.Time, lim Limits) string {
	earliest := now.Add(lim.MinLead).In(lim.Location).Format(reminder.DueLayout)
	return fmt.Sprintf("The event must be at least %s ahead (not before %s). Pick the date again.", humanLead(lim.MinLead), earliest)
}

func humanLead(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d >= day && d%day == 0:
		n := int(d / day)
		if n == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", n)
	case d >= time.Hour && d%time.Hour == 0:
		n := int(d / time.Hour)
		if n == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", n)
	default:
		return d.String()
	}
}
