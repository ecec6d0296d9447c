package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations are Go duration strings ("90s", "30m", "24h"). An empty string
// is unset; callers decide what unset resolves to.

// ParseDurationField parses a non-negative duration. Unset yields 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0, got %s", path, d)
	}
	return d, nil
}

// ParseDurationOrDefault resolves unset and zero to def. For settings where
// zero would stall a component: intervals and timeouts.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseDurationUnset resolves only unset to def; an explicit "0" stays 0.
// For window extensions and lead offsets, where zero is a real choice.
func ParseDurationUnset(path, raw string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return ParseDurationField(path, raw)
}

// durationField is one duration setting checked by Validate.
type durationField struct {
	path string
	raw  string
	min  time.Duration // applied only when set and non-zero
}

func (f durationField) check() (time.Duration, error) {
	d, err := ParseDurationField(f.path, f.raw)
	if err != nil {
		return 0, err
	}
	if d > 0 && d < f.min {
		return d, fmt.Errorf("%s: %s is below %s", f.path, d, f.min)
	}
	return d, nil
}

// durationFields lists the duration settings of the enabled sections.
func (c *Config) durationFields() []durationField {
	fields := []durationField{
		{path: "telegram.poll_timeout", raw: c.Telegram.PollTimeout, min: time.Second},
		{path: "storage.busy_timeout", raw: c.Storage.BusyTimeout},
		{path: "reminders.upcoming", raw: c.Reminders.Upcoming, min: time.Minute},
	}
	if c.Delivery.Enabled {
		fields = append(fields,
			durationField{path: "delivery.interval", raw: c.Delivery.Interval, min: time.Second},
			durationField{path: "delivery.lookback", raw: c.Delivery.Lookback},
			durationField{path: "delivery.lookahead", raw: c.Delivery.Lookahead},
			durationField{path: "delivery.send_timeout", raw: c.Delivery.SendTimeout, min: 100 * time.Millisecond},
		)
	}
	if c.Dialog.Enabled {
		fields = append(fields,
			durationField{path: "dialog.min_lead", raw: c.Dialog.MinLead},
			durationField{path: "dialog.max_lead", raw: c.Dialog.MaxLead},
			durationField{path: "dialog.notify_lead", raw: c.Dialog.NotifyLead},
			durationField{path: "dialog.timeout", raw: c.Dialog.Timeout, min: time.Minute},
		)
	}
	if c.Ops.Enabled {
		fields = append(fields,
			durationField{path: "ops.read_timeout", raw: c.Ops.ReadTimeout},
			durationField{path: "ops.write_timeout", raw: c.Ops.WriteTimeout},
			durationField{path: "ops.idle_timeout", raw: c.Ops.IdleTimeout},
		)
	}
	return fields
}
