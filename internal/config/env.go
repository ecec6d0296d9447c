package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override the file.
const (
	EnvToken       = "TELEGRAM_BOT_TOKEN"
	EnvDatabaseURL = "DATABASE_URL"
	EnvTimezone    = "NOTEBOT_TIMEZONE"
	EnvLogLevel    = "LOG_LEVEL"
)

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *Config) {
	applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}
	if v := get(EnvToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := get(EnvDatabaseURL); v != "" {
		cfg.Storage.Driver = "postgres"
		cfg.Storage.DSN = v
	}
	if v := get(EnvTimezone); v != "" {
		cfg.Reminders.Timezone = v
	}
	if v := get(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
}
