// Package reminder holds the note/reminder domain: the persisted record shape,
// the inline token grammar parser and the error taxonomy shared by the store,
// the delivery scheduler and the chat handlers.
package reminder

import (
	"sort"
	"strings"
	"time"
)

// Record is a stored note. A note with DueAt set is a reminder.
//
// Records are created and mutated only through storage.Store; callers must not
// flip Delivered themselves.
type Record struct {
	ID        int64
	Owner     int64 // destination chat id (user or channel)
	Body      string
	Tags      []string
	DueAt     *time.Time // UTC; nil for plain notes
	Delivered bool

	CreatedAt   time.Time
	DeliveredAt *time.Time
}

// IsReminder reports whether the record carries a due instant.
func (r Record) IsReminder() bool { return r.DueAt != nil }

// HasTag reports whether tag (with or without '#') is attached to r.
func (r Record) HasTag(tag string) bool {
	tag = normalizeTag(tag)
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// NormalizeTags trims, strips a leading '#', lower-cases, de-duplicates and
// sorts tags. Empty entries are dropped.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = normalizeTag(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func normalizeTag(t string) string {
	t = strings.TrimSpace(t)
	t = strings.TrimPrefix(t, "#")
	return strings.ToLower(strings.TrimSpace(t))
}
