package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Location resolves reminders.timezone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Reminders.Timezone)
	if name == "" || strings.EqualFold(name, "UTC") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("reminders.timezone: %w", err)
	}
	return loc, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	durs := map[string]time.Duration{}
	for _, f := range c.durationFields() {
		d, err := f.check()
		add(err)
		durs[f.path] = d
	}

	if strings.TrimSpace(c.Telegram.Token) == "" {
		add(errors.New("telegram.token: required (or set TELEGRAM_BOT_TOKEN)"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			add(errors.New("storage.path: required for sqlite"))
		}
	case "postgres", "postgresql", "pq":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add(errors.New("storage.dsn: required for postgres (or set DATABASE_URL)"))
		}
	default:
		add(fmt.Errorf("storage.driver: unsupported %q", c.Storage.Driver))
	}

	_, err := c.Location()
	add(err)

	if c.Delivery.Enabled && c.Delivery.RatePerSec < 0 {
		add(errors.New("delivery.rate_per_sec: must be >= 0"))
	}

	if c.Dialog.Enabled {
		minLead, maxLead := durs["dialog.min_lead"], durs["dialog.max_lead"]
		if maxLead > 0 && minLead > maxLead {
			add(fmt.Errorf("dialog.min_lead (%s) exceeds dialog.max_lead (%s)", minLead, maxLead))
		}
	}

	if c.Ops.Enabled {
		add(c.Ops.checkExposure())
	}
	return errors.Join(errs...)
}

func (o OpsConfig) checkExposure() error {
	addr := strings.TrimSpace(o.Addr)
	if addr == "" {
		return nil
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("ops.addr: %w", err)
	}
	if isLoopback(host) || o.Token != "" || o.AllowInsecure {
		return nil
	}
	return fmt.Errorf("ops.addr: %q is not loopback; set ops.token or ops.allow_insecure", addr)
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
