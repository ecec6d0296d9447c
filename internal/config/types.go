package config

// Config is the process configuration, read from JSON or YAML.
//
// Durations are Go duration strings ("90s", "30m", "24h"). Only the logging
// section is applied live; every other section is read once at start.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Dialog    DialogConfig    `json:"dialog"`
	Logging   LoggingConfig   `json:"logging"`
	Ops       OpsConfig       `json:"ops"`
}

type TelegramConfig struct {
	Token       string `json:"token"` // or TELEGRAM_BOT_TOKEN
	PollTimeout string `json:"poll_timeout,omitempty"`
	APIURL      string `json:"api_url,omitempty"`

	// Router worker pool.
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
	// UpdatesBuffer is the adapter -> router channel capacity.
	UpdatesBuffer int `json:"updates_buffer,omitempty"`
}

// StorageConfig selects the record store.
//
//	"storage": { "driver": "sqlite", "path": "./data/notebot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://..." }
//
// DATABASE_URL in the environment switches the driver to postgres.
type StorageConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path,omitempty"`
	DSN          string `json:"dsn,omitempty"` // do not log
	BusyTimeout  string `json:"busy_timeout,omitempty"`
	MaxOpenConns int    `json:"max_open_conns,omitempty"`
}

type RemindersConfig struct {
	// Timezone is the display zone: tokens are read and times rendered in it.
	Timezone string `json:"timezone"`
	PageSize int    `json:"page_size,omitempty"`
	// Upcoming is the /upcoming window.
	Upcoming string `json:"upcoming,omitempty"`
}

type DeliveryConfig struct {
	Enabled     bool   `json:"enabled"`
	Interval    string `json:"interval"`
	Lookback    string `json:"lookback"`
	Lookahead   string `json:"lookahead"`
	SendTimeout string `json:"send_timeout,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
}

type DialogConfig struct {
	Enabled     bool   `json:"enabled"`
	MinLead     string `json:"min_lead"`
	MaxLead     string `json:"max_lead"`
	NotifyLead  string `json:"notify_lead"`
	Timeout     string `json:"timeout"`
	MaxSessions int    `json:"max_sessions,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// OpsConfig controls the optional operations HTTP server (/metrics,
// /healthz and, when Pprof is set, /debug/pprof/).
//
// Prefer a loopback Addr. A non-loopback Addr needs a Token or AllowInsecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default "127.0.0.1:9090"
	Token         string `json:"token,omitempty"` // bearer token, do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"` // 0: disabled, pprof profiles run 30s+
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// Default returns the configuration used for omitted keys.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeout: "10s"},
		Storage:  StorageConfig{Driver: "sqlite", Path: "./data/notebot.db"},
		Reminders: RemindersConfig{
			Timezone: "UTC",
			PageSize: 10,
			Upcoming: "24h",
		},
		Delivery: DeliveryConfig{
			Enabled:     true,
			Interval:    "60s",
			Lookback:    "30m",
			Lookahead:   "5m",
			SendTimeout: "15s",
			RatePerSec:  20,
		},
		Dialog: DialogConfig{
			Enabled:     true,
			MinLead:     "24h",
			MaxLead:     "8760h",
			NotifyLead:  "24h",
			Timeout:     "30m",
			MaxSessions: 1000,
		},
		Logging: LoggingConfig{Level: "info", Console: true},
		Ops:     OpsConfig{Addr: "127.0.0.1:9090"},
	}
}
