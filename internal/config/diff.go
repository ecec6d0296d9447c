package config

import (
	"sort"
	"strings"

	"notebot/pkg/logx"
)

// HotSections are applied without a restart.
var HotSections = map[string]bool{"logging": true}

// SummarizeConfigChange lists the changed sections and returns log fields
// describing the new values. Secrets (token, dsn) are reported as *_set only.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	o, n := oldCfg.Telegram, newCfg.Telegram
	if o.Token != n.Token || trimNE(o.PollTimeout, n.PollTimeout) || trimNE(o.APIURL, n.APIURL) ||
		o.Workers != n.Workers || o.QueueSize != n.QueueSize || o.UpdatesBuffer != n.UpdatesBuffer {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", o.Token != n.Token),
			logx.String("telegram.poll_timeout", strings.TrimSpace(n.PollTimeout)),
			logx.Int("telegram.workers", n.Workers),
		)
	}

	ost, nst := oldCfg.Storage, newCfg.Storage
	if trimNE(ost.Driver, nst.Driver) || trimNE(ost.Path, nst.Path) || ost.DSN != nst.DSN ||
		trimNE(ost.BusyTimeout, nst.BusyTimeout) || ost.MaxOpenConns != nst.MaxOpenConns {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nst.Driver)),
			logx.String("storage.path", strings.TrimSpace(nst.Path)),
			logx.Bool("storage.dsn_set", nst.DSN != ""),
		)
	}

	if oldCfg.Reminders != newCfg.Reminders {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.String("reminders.timezone", newCfg.Reminders.Timezone),
			logx.Int("reminders.page_size", newCfg.Reminders.PageSize),
		)
	}

	if oldCfg.Delivery != newCfg.Delivery {
		d := newCfg.Delivery
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.Bool("delivery.enabled", d.Enabled),
			logx.String("delivery.interval", d.Interval),
			logx.String("delivery.lookback", d.Lookback),
			logx.String("delivery.lookahead", d.Lookahead),
		)
	}

	if oldCfg.Dialog != newCfg.Dialog {
		d := newCfg.Dialog
		changed = append(changed, "dialog")
		attrs = append(attrs,
			logx.Bool("dialog.enabled", d.Enabled),
			logx.String("dialog.min_lead", d.MinLead),
			logx.String("dialog.max_lead", d.MaxLead),
			logx.String("dialog.timeout", d.Timeout),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		l := newCfg.Logging
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", l.Level),
			logx.Bool("logging.console", l.Console),
			logx.Bool("logging.file_enabled", l.File.Enabled),
		)
	}

	if oldCfg.Ops != newCfg.Ops {
		p := newCfg.Ops
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", p.Enabled),
			logx.String("ops.addr", strings.TrimSpace(p.Addr)),
			logx.Bool("ops.token_set", p.Token != ""),
			logx.Bool("ops.pprof", p.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters sections that only take effect after a restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		if !HotSections[s] {
			out = append(out, s)
		}
	}
	return out
}

func trimNE(a, b string) bool { return strings.TrimSpace(a) != strings.TrimSpace(b) }
