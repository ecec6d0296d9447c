package tgui

import (
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"
)

// CalendarOpts configures a month calendar keyboard.
type CalendarOpts struct {
	Month    time.Time // any instant of the month; its location is used for days
	Allowed  func(day time.Time) bool
	DayData  func(day time.Time) string
	PrevData string // empty hides the arrow
	NextData string
	NoopData string // data for labels and disabled days; must be non-empty
}

var weekdayLabels = [7]string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

// Calendar renders a Monday-first month grid. Disabled days show as "·".
func Calendar(o CalendarOpts) *Inline {
	y, m, _ := o.Month.Date()
	loc := o.Month.Location()
	first := time.Date(y, m, 1, 0, 0, 0, 0, loc)

	prev, next := Btn(" ", o.NoopData), Btn(" ", o.NoopData)
	if o.PrevData != "" {
		prev = Btn("«", o.PrevData)
	}
	if o.NextData != "" {
		next = Btn("»", o.NextData)
	}
	kb := NewInline().Row(prev, Btn(first.Format("January 2006"), o.NoopData), next)

	head := make([]tele.Btn, 0, 7)
	for _, l := range weekdayLabels {
		head = append(head, Btn(l, o.NoopData))
	}
	kb.Row(head...)

	row := make([]tele.Btn, 0, 7)
	for i := 0; i < (int(first.Weekday())+6)%7; i++ {
		row = append(row, Btn(" ", o.NoopData))
	}
	days := first.AddDate(0, 1, -1).Day()
	for d := 1; d <= days; d++ {
		day := time.Date(y, m, d, 0, 0, 0, 0, loc)
		if o.DayData != nil && (o.Allowed == nil || o.Allowed(day)) {
			row = append(row, Btn(strconv.Itoa(d), o.DayData(day)))
		} else {
			row = append(row, Btn("·", o.NoopData))
		}
		if len(row) == 7 {
			kb.Row(row...)
			row = make([]tele.Btn, 0, 7)
		}
	}
	if len(row) > 0 {
		for len(row) < 7 {
			row = append(row, Btn(" ", o.NoopData))
		}
		kb.Row(row...)
	}
	return kb
}

// NumberGrid renders one button per value, cols per row.
func NumberGrid(values []int, cols int, label, data func(int) string) *Inline {
	btns := make([]tele.Btn, 0, len(values))
	for _, v := range values {
		btns = append(btns, Btn(label(v), data(v)))
	}
	return Grid(cols, btns)
}
