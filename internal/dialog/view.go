package dialog

import (
	"fmt"
	"strconv"
	"time"

	"notebot/internal/reminder"
	"notebot/pkg/tgui"
)

// Namespace prefixes every dialog callback: "dlg:<action>[:<payload>]".
const Namespace = "dlg"

const (
	actDate   = "date"
	actMonth  = "month"
	actHour   = "hour"
	actMinute = "min"
	actBack   = "back"
	actSave   = "save"
	actCancel = "cancel"
	actNoop   = "noop"
)

const minuteStep = 5

// Actions lists the callback actions the dialog handles.
func Actions() []string {
	return []string{actDate, actMonth, actHour, actMinute, actBack, actSave, actCancel, actNoop}
}

// ParseCallback maps an inline button back to an event. Dates are read in loc.
func ParseCallback(action, payload string, loc *time.Location) (Event, bool) {
	if loc == nil {
		loc = time.UTC
	}
	switch action {
	case actDate:
		d, err := time.ParseInLocation("20060102", payload, loc)
		if err != nil {
			return Event{}, false
		}
		return Event{Kind: EvPickDate, Date: d}, true
	case actMonth:
		n, err := strconv.Atoi(payload)
		if err != nil || n == 0 {
			return Event{}, false
		}
		return Event{Kind: EvNavMonth, Delta: n}, true
	case actHour, actMinute:
		n, err := strconv.Atoi(payload)
		if err != nil {
			return Event{}, false
		}
		if action == actHour {
			return Event{Kind: EvPickHour, Value: n}, true
		}
		return Event{Kind: EvPickMinute, Value: n}, true
	case actBack:
		return Event{Kind: EvBack}, true
	case actSave:
		return Event{Kind: EvSave}, true
	case actCancel:
		return Event{Kind: EvCancel, Reason: ReasonCancelled}, true
	case actNoop:
		return Event{Kind: EvNoop}, true
	}
	return Event{}, false
}

func cb(action, payload string) string { return tgui.Data(Namespace, action, payload) }

// View renders the panel for the session's current state.
func View(s Session, now time.Time, lim Limits) tgui.Message {
	lim = lim.withDefaults()
	loc := lim.Location
	b := tgui.New()
	cancel := tgui.Btn("✖ Cancel", cb(actCancel, ""))
	back := tgui.Btn("« Back", cb(actBack, ""))

	switch s.State {
	case StateChooseDate:
		lo := now.Add(lim.MinLead)
		hi := now.Add(lim.MaxLead)
		mlo, mhi := MonthBounds(now, lim)
		opts := tgui.CalendarOpts{
			Month:    s.Month,
			Allowed:  func(day time.Time) bool { return DayAllowed(day, now, lim) },
			DayData:  func(day time.Time) string { return cb(actDate, day.Format("20060102")) },
			NoopData: cb(actNoop, ""),
		}
		if s.Month.After(mlo) {
			opts.PrevData = cb(actMonth, "-1")
		}
		if s.Month.Before(mhi) {
			opts.NextData = cb(actMonth, "1")
		}
		b.Title("📅", "New reminder").
			Line("Choose the event date.").
			KV("Allowed", lo.In(loc).Format(dayLayout)+" – "+hi.In(loc).Format(dayLayout)).
			Inline(tgui.Calendar(opts).Row(cancel))

	case StateChooseTime:
		b.Title("🕒", "New reminder").KV("Date", s.Date.In(loc).Format(dayLayout))
		if s.Hour < 0 {
			hours := make([]int, 24)
			for i := range hours {
				hours[i] = i
			}
			b.Line("Choose the hour.").Inline(tgui.NumberGrid(hours, 6,
				func(h int) string { return fmt.Sprintf("%02d", h) },
				func(h int) string { return cb(actHour, strconv.Itoa(h)) },
			).Row(back, cancel))
			break
		}
		mins := make([]int, 0, 60/minuteStep)
		for m := 0; m < 60; m += minuteStep {
			mins = append(mins, m)
		}
		hour := s.Hour
		b.KV("Hour", fmt.Sprintf("%02d", hour)).
			Line("Choose the minutes.").
			Inline(tgui.NumberGrid(mins, 4,
				func(m int) string { return fmt.Sprintf("%02d:%02d", hour, m) },
				func(m int) string { return cb(actMinute, strconv.Itoa(m)) },
			).Row(back, cancel))

	case StateEnterText:
		at, _ := s.EventAt(loc)
		b.Title("✏️", "New reminder").
			KV("Event", reminder.FormatDue(at, loc)).
			Line("Send the reminder text as a message. #tags become categories.").
			Inline(tgui.NewInline().Row(back, cancel))

	case StateConfirm:
		at, _ := s.EventAt(loc)
		b.Title("📝", "Confirm reminder")
		summary(b, s, at, lim)
		b.Inline(tgui.NewInline().Row(tgui.Btn("✅ Save", cb(actSave, "")), cancel).Row(back))

	case StateSaved:
		at, _ := s.EventAt(loc)
		b.Title("✅", "Reminder saved")
		summary(b, s, at, lim)

	case StateCancelled:
		b.Title("❌", cancelTitle(s.Reason))
	}
	return b.Build()
}

func summary(b *tgui.Builder, s Session, at time.Time, lim Limits) {
	loc := lim.Location
	b.KV("Text", s.Draft).
		KV("Event", reminder.FormatDue(at, loc)).
		KV("Notification", reminder.FormatDue(at.Add(-lim.NotifyLead), loc)).
		KV("Destination", destinationLabel(s))
	if tags := reminder.FormatTags(reminder.ExtractTags(s.Draft)); tags != "" {
		b.KV("Tags", tags)
	}
}

func destinationLabel(s Session) string {
	if s.Destination == s.Key.Chat {
		return "this chat"
	}
	return strconv.FormatInt(s.Destination, 10)
}

func cancelTitle(reason string) string {
	switch reason {
	case ReasonTimeout:
		return "Reminder creation timed out"
	case ReasonReplaced:
		return "Reminder creation replaced by a new one"
	case ReasonShutdown:
		return "Reminder creation interrupted, please start again"
	default:
		return "Reminder creation cancelled"
	}
}
