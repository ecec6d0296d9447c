package reminder

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Default time of day applied to a date-only token.
const (
	DefaultHour   = 9
	DefaultMinute = 0
)

var (
	tagRe      = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
	dateTimeRe = regexp.MustCompile(`@(\d{2}):(\d{2})\s+(\d{2})-(\d{2})-(\d{4})`)
	dateOnlyRe = regexp.MustCompile(`@(\d{2})-(\d{2})-(\d{4})`)
)

// Parsed is the structured result of Parse.
type Parsed struct {
	Body  string
	Tags  []string
	DueAt *time.Time // UTC
}

// Parse extracts tags and an optional due instant from free text.
//
// Grammar:
//
//	#word              tag, repeatable
//	@HH:MM DD-MM-YYYY  explicit time and date
//	@DD-MM-YYYY        date only, 09:00
//
// Digits are interpreted in loc (UTC when nil) and the instant is returned in
// UTC. A matched token naming a non-existent calendar value yields a
// *DateTimeError. An empty body yields ErrEmptyBody together with whatever
// was extracted.
func Parse(text string, loc *time.Location) (Parsed, error) {
	if loc == nil {
		loc = time.UTC
	}

	var out Parsed
	out.Tags = ExtractTags(text)

	rest := tagRe.ReplaceAllString(text, " ")

	due, span, err := findDue(rest, loc)
	if err != nil {
		return out, err
	}
	if span != nil {
		rest = rest[:span[0]] + " " + rest[span[1]:]
		out.DueAt = &due
	}

	out.Body = strings.Join(strings.Fields(rest), " ")
	if out.Body == "" {
		return out, ErrEmptyBody
	}
	return out, nil
}

// ExtractTags returns the normalized tags found in text.
func ExtractTags(text string) []string {
	m := tagRe.FindAllStringSubmatch(text, -1)
	if len(m) == 0 {
		return nil
	}
	raw := make([]string, 0, len(m))
	for _, g := range m {
		raw = append(raw, g[1])
	}
	return NormalizeTags(raw)
}

// findDue locates the first date token, full form first. span is nil when no
// token is present.
func findDue(s string, loc *time.Location) (time.Time, []int, error) {
	if m := dateTimeRe.FindStringSubmatchIndex(s); m != nil {
		tok := s[m[0]:m[1]]
		hh, mm := atoi(s[m[2]:m[3]]), atoi(s[m[4]:m[5]])
		d, mo, y := atoi(s[m[6]:m[7]]), atoi(s[m[8]:m[9]]), atoi(s[m[10]:m[11]])
		t, err := buildInstant(tok, y, mo, d, hh, mm, loc)
		if err != nil {
			return time.Time{}, nil, err
		}
		return t, m[:2], nil
	}
	if m := dateOnlyRe.FindStringSubmatchIndex(s); m != nil {
		tok := s[m[0]:m[1]]
		d, mo, y := atoi(s[m[2]:m[3]]), atoi(s[m[4]:m[5]]), atoi(s[m[6]:m[7]])
		t, err := buildInstant(tok, y, mo, d, DefaultHour, DefaultMinute, loc)
		if err != nil {
			return time.Time{}, nil, err
		}
		return t, m[:2], nil
	}
	return time.Time{}, nil, nil
}

func buildInstant(tok string, y, mo, d, hh, mm int, loc *time.Location) (time.Time, error) {
	switch {
	case hh > 23:
		return time.Time{}, &DateTimeError{Token: tok, Reason: "hour out of range"}
	case mm > 59:
		return time.Time{}, &DateTimeError{Token: tok, Reason: "minute out of range"}
	case y < 1:
		return time.Time{}, &DateTimeError{Token: tok, Reason: "year out of range"}
	case mo < 1 || mo > 12:
		return time.Time{}, &DateTimeError{Token: tok, Reason: "month out of range"}
	case d < 1 || d > DaysIn(time.Month(mo), y):
		return time.Time{}, &DateTimeError{Token: tok, Reason: "day out of range"}
	}
	return time.Date(y, time.Month(mo), d, hh, mm, 0, 0, loc).UTC(), nil
}

// DaysIn returns the number of days of month m in year y.
func DaysIn(m time.Month, y int) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
