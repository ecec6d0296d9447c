package reminder

import (
	"strings"
	"time"
)

// DueLayout renders instants the way the token grammar writes them.
const DueLayout = "15:04 02-01-2006"

// FormatDue renders t in loc using DueLayout.
func FormatDue(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DueLayout)
}

// FormatTags renders tags as "#a #b".
func FormatTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, "#"+t)
	}
	return strings.Join(parts, " ")
}

// Notification is the text delivered to the owner when a reminder falls due.
func Notification(r Record, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("🔔 Reminder: «")
	b.WriteString(r.Body)
	b.WriteString("»")
	if r.DueAt != nil {
		b.WriteString(" is due at ")
		b.WriteString(FormatDue(*r.DueAt, loc))
	}
	if tags := FormatTags(r.Tags); tags != "" {
		b.WriteString("\n")
		b.WriteString(tags)
	}
	return b.String()
}
