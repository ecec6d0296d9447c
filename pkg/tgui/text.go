package tgui

import "strings"

// Snippet flattens s onto one line and cuts it to at most n runes, ending
// with "…" when cut. List views use it so each note stays one entry.
func Snippet(s string, n int) string {
	if n <= 0 {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return strings.TrimRight(string(rs[:n-1]), " ") + "…"
}
