package reminder

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("tzdata unavailable for %s: %v", name, err)
	}
	return loc
}

func TestParseFullDateTime(t *testing.T) {
	loc := mustLoc(t, "Europe/Moscow")

	got, err := Parse("Buy milk #errands @14:30 05-03-2026", loc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Body != "Buy milk" {
		t.Fatalf("body=%q", got.Body)
	}
	if !reflect.DeepEqual(got.Tags, []string{"errands"}) {
		t.Fatalf("tags=%v", got.Tags)
	}
	want := time.Date(2026, 3, 5, 14, 30, 0, 0, loc).UTC()
	if got.DueAt == nil || !got.DueAt.Equal(want) {
		t.Fatalf("dueAt=%v want %v", got.DueAt, want)
	}
	if got.DueAt.Location() != time.UTC {
		t.Fatalf("dueAt not UTC: %v", got.DueAt.Location())
	}
}

func TestParseDateOnlyDefaultsToNine(t *testing.T) {
	loc := mustLoc(t, "Europe/Moscow")

	got, err := Parse("Call mom @05-03-2026", loc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Body != "Call mom" {
		t.Fatalf("body=%q", got.Body)
	}
	want := time.Date(2026, 3, 5, 9, 0, 0, 0, loc).UTC()
	if got.DueAt == nil || !got.DueAt.Equal(want) {
		t.Fatalf("dueAt=%v want %v", got.DueAt, want)
	}
}

func TestParsePlainNote(t *testing.T) {
	got, err := Parse("#onlytag no date", time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.DueAt != nil {
		t.Fatalf("expected no due instant, got %v", got.DueAt)
	}
	if got.Body != "no date" {
		t.Fatalf("body=%q", got.Body)
	}
	if !reflect.DeepEqual(got.Tags, []string{"onlytag"}) {
		t.Fatalf("tags=%v", got.Tags)
	}
}

func TestParseMalformedDateTime(t *testing.T) {
	cases := []string{
		"Meet @25:00 01-01-2026",
		"Meet @12:60 01-01-2026",
		"Meet @10:00 31-04-2026",
		"Meet @29-02-2025",
		"Meet @01-13-2026",
		"Meet @00-01-2026",
	}
	for _, in := range cases {
		_, err := Parse(in, time.UTC)
		if !errors.Is(err, ErrMalformedDateTime) {
			t.Fatalf("%q: expected ErrMalformedDateTime, got %v", in, err)
		}
		var de *DateTimeError
		if !errors.As(err, &de) || de.Token == "" {
			t.Fatalf("%q: expected DateTimeError with token, got %v", in, err)
		}
	}
}

func TestParseLeapDay(t *testing.T) {
	got, err := Parse("leap @29-02-2028", time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := time.Date(2028, 2, 29, 9, 0, 0, 0, time.UTC)
	if !got.DueAt.Equal(want) {
		t.Fatalf("dueAt=%v want %v", got.DueAt, want)
	}
}

func TestParseRoundTripEitherOrder(t *testing.T) {
	loc := mustLoc(t, "Asia/Tokyo")
	want := time.Date(2027, 11, 20, 7, 5, 0, 0, loc).UTC()

	inputs := []string{
		"pay rent #Bills @07:05 20-11-2027",
		"pay rent @07:05 20-11-2027 #bills",
		"#BILLS pay   rent @07:05   20-11-2027",
		"@07:05 20-11-2027 #bills pay rent",
		"pay #bills rent @07:05 20-11-2027",
	}
	for _, in := range inputs {
		got, err := Parse(in, loc)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got.Body != "pay rent" {
			t.Fatalf("%q: body=%q", in, got.Body)
		}
		if !reflect.DeepEqual(got.Tags, []string{"bills"}) {
			t.Fatalf("%q: tags=%v", in, got.Tags)
		}
		if got.DueAt == nil || !got.DueAt.Equal(want) {
			t.Fatalf("%q: dueAt=%v want %v", in, got.DueAt, want)
		}
	}
}

func TestParseTagsUnicodeAndDedup(t *testing.T) {
	got, err := Parse("купить хлеб #Покупки #покупки #home_2", time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(got.Tags, []string{"home_2", "покупки"}) {
		t.Fatalf("tags=%v", got.Tags)
	}
	if got.Body != "купить хлеб" {
		t.Fatalf("body=%q", got.Body)
	}
}

func TestParseEmptyBody(t *testing.T) {
	for _, in := range []string{"", "   ", "#tag", "#a #b @10:00 01-01-2030"} {
		got, err := Parse(in, time.UTC)
		if !errors.Is(err, ErrEmptyBody) || !errors.Is(err, ErrValidation) {
			t.Fatalf("%q: expected ErrEmptyBody, got %v", in, err)
		}
		if got.Body != "" {
			t.Fatalf("%q: body=%q", in, got.Body)
		}
	}
}

func TestParseKeepsUnrecognizedTokens(t *testing.T) {
	got, err := Parse("ping @bob at 5", time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Body != "ping @bob at 5" || got.DueAt != nil {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestNotificationText(t *testing.T) {
	due := time.Date(2026, 3, 5, 11, 30, 0, 0, time.UTC)
	loc := mustLoc(t, "Europe/Moscow")
	r := Record{ID: 1, Owner: 7, Body: "Buy milk", Tags: []string{"errands"}, DueAt: &due}

	got := Notification(r, loc)
	want := "🔔 Reminder: «Buy milk» is due at 14:30 05-03-2026\n#errands"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRecordHasTag(t *testing.T) {
	r := Record{Tags: NormalizeTags([]string{"#Work", "home", "work"})}
	if !reflect.DeepEqual(r.Tags, []string{"home", "work"}) {
		t.Fatalf("tags=%v", r.Tags)
	}
	if !r.HasTag("#WORK") || r.HasTag("gym") {
		t.Fatalf("HasTag mismatch for %v", r.Tags)
	}
}
