package app

import (
	"time"

	"notebot/internal/config"
	"notebot/internal/delivery"
	"notebot/internal/dialog"
	"notebot/internal/notes"
	"notebot/internal/observability/ops"
	telegram "notebot/internal/transport/telegram/adapter"
	"notebot/internal/transport/telegram/router"
	"notebot/pkg/logx"
)

// Mapping from the file config to component configs. Each map* function
// parses durations again so it can be used on unvalidated input.

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll, APIURL: cfg.Telegram.APIURL}, nil
}

func mapRouterOptions(cfg *config.Config) router.Options {
	return router.Options{Workers: cfg.Telegram.Workers, QueueSize: cfg.Telegram.QueueSize}
}

func mapDialogLimits(cfg *config.Config, loc *time.Location) (dialog.Limits, error) {
	d := cfg.Dialog
	lim := dialog.Limits{Location: loc}
	var err error
	if lim.MinLead, err = config.ParseDurationOrDefault("dialog.min_lead", d.MinLead, dialog.DefaultMinLead); err != nil {
		return lim, err
	}
	if lim.MaxLead, err = config.ParseDurationOrDefault("dialog.max_lead", d.MaxLead, dialog.DefaultMaxLead); err != nil {
		return lim, err
	}
	if lim.NotifyLead, err = config.ParseDurationField("dialog.notify_lead", d.NotifyLead); err != nil {
		return lim, err
	}
	if lim.Timeout, err = config.ParseDurationOrDefault("dialog.timeout", d.Timeout, dialog.DefaultTimeout); err != nil {
		return lim, err
	}
	return lim, nil
}

func mapDeliveryConfig(cfg *config.Config, loc *time.Location) (delivery.Config, error) {
	d := cfg.Delivery
	out := delivery.Config{RatePerSec: d.RatePerSec, Location: loc}
	var err error
	if out.Interval, err = config.ParseDurationOrDefault("delivery.interval", d.Interval, delivery.DefaultInterval); err != nil {
		return out, err
	}
	if out.Lookback, err = config.ParseDurationUnset("delivery.lookback", d.Lookback, delivery.DefaultLookback); err != nil {
		return out, err
	}
	if out.Lookahead, err = config.ParseDurationUnset("delivery.lookahead", d.Lookahead, delivery.DefaultLookahead); err != nil {
		return out, err
	}
	if out.SendTimeout, err = config.ParseDurationOrDefault("delivery.send_timeout", d.SendTimeout, delivery.DefaultSendTimeout); err != nil {
		return out, err
	}
	return out, nil
}

func mapNotesConfig(cfg *config.Config, loc *time.Location) (notes.Config, error) {
	up, err := config.ParseDurationOrDefault("reminders.upcoming", cfg.Reminders.Upcoming, notes.DefaultUpcoming)
	if err != nil {
		return notes.Config{}, err
	}
	return notes.Config{Location: loc, PageSize: cfg.Reminders.PageSize, Upcoming: up}, nil
}

func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	o := cfg.Ops
	out := ops.Config{Addr: o.Addr, Token: o.Token, AllowInsecure: o.AllowInsecure, Pprof: o.Pprof}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("ops.read_timeout", o.ReadTimeout, 10*time.Second); err != nil {
		return out, err
	}
	// zero keeps long pprof profiles working
	if out.WriteTimeout, err = config.ParseDurationField("ops.write_timeout", o.WriteTimeout); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("ops.idle_timeout", o.IdleTimeout, time.Minute); err != nil {
		return out, err
	}
	return out, nil
}
