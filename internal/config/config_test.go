package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseYAMLKeepsDefaults(t *testing.T) {
	p := writeFile(t, "notebot.yaml", `
telegram:
  token: "abc"
reminders:
  timezone: Europe/Berlin
delivery:
  enabled: true
  interval: 30s
  lookback: 30m
  lookahead: 5m
`)
	m := NewConfigManager(p)
	m.lookup = noEnv
	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Telegram.Token)
	assert.Equal(t, "30s", cfg.Delivery.Interval)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "24h", cfg.Dialog.MinLead)
	assert.Equal(t, 10, cfg.Reminders.PageSize)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
	assert.Same(t, cfg, m.Get())
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	p := writeFile(t, "notebot.json", `{"telegram":{"token":"x"},"plugins":{}}`)
	m := NewConfigManager(p)
	m.lookup = noEnv
	_, err := m.Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugins")
}

func TestParseRejectsTrailingData(t *testing.T) {
	p := writeFile(t, "notebot.json", `{"telegram":{"token":"x"}} {}`)
	m := NewConfigManager(p)
	m.lookup = noEnv
	_, err := m.Parse()
	require.Error(t, err)
}

func TestEnvOverlay(t *testing.T) {
	m := NewConfigManager("")
	m.lookup = envOf(map[string]string{
		EnvToken:       " tok ",
		EnvDatabaseURL: "postgres://u:p@db/notes",
		EnvTimezone:    "Asia/Tokyo",
		EnvLogLevel:    "debug",
	})
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.Telegram.Token)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://u:p@db/notes", cfg.Storage.DSN)
	assert.Equal(t, "Asia/Tokyo", cfg.Reminders.Timezone)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	p := writeFile(t, ".env", "NOTEBOT_TEST_A=fromfile\nNOTEBOT_TEST_B=fromfile\n")
	t.Setenv("NOTEBOT_TEST_A", "preset")
	t.Setenv("NOTEBOT_TEST_B", "")
	os.Unsetenv("NOTEBOT_TEST_B")

	require.NoError(t, LoadDotEnv(p, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "preset", os.Getenv("NOTEBOT_TEST_A"))
	assert.Equal(t, "fromfile", os.Getenv("NOTEBOT_TEST_B"))
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "mongo"
	cfg.Reminders.Timezone = "Mars/Olympus"
	cfg.Delivery.Interval = "soon"
	cfg.Dialog.MinLead = "48h"
	cfg.Dialog.MaxLead = "24h"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"telegram.token",
		"storage.driver",
		"reminders.timezone",
		"delivery.interval",
		"dialog.min_lead",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidatePostgresNeedsDSN(t *testing.T) {
	cfg := Default()
	cfg.Telegram.Token = "x"
	cfg.Storage.Driver = "postgres"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.dsn")
}

func TestValidateOpsExposure(t *testing.T) {
	cfg := Default()
	cfg.Telegram.Token = "x"
	cfg.Ops.Enabled = true

	cfg.Ops.Addr = "127.0.0.1:9090"
	assert.NoError(t, cfg.Validate())

	cfg.Ops.Addr = "0.0.0.0:9090"
	assert.ErrorContains(t, cfg.Validate(), "ops.addr")

	cfg.Ops.Token = "secret"
	assert.NoError(t, cfg.Validate())

	cfg.Ops.Token = ""
	cfg.Ops.AllowInsecure = true
	assert.NoError(t, cfg.Validate())
}

func TestDisabledSectionsSkipDurations(t *testing.T) {
	cfg := Default()
	cfg.Telegram.Token = "x"
	cfg.Delivery.Enabled = false
	cfg.Delivery.Interval = "garbage"
	cfg.Dialog.Enabled = false
	cfg.Dialog.Timeout = "garbage"
	assert.NoError(t, cfg.Validate())
}

func TestSummarizeConfigChange(t *testing.T) {
	a := Default()
	a.Telegram.Token = "old"
	b := Default()
	b.Telegram.Token = "new"
	b.Logging.Level = "debug"
	b.Delivery.Interval = "30s"

	changed, attrs := SummarizeConfigChange(a, b)
	assert.Equal(t, []string{"delivery", "logging", "telegram"}, changed)
	assert.NotEmpty(t, attrs)
	assert.Equal(t, []string{"delivery", "telegram"}, RestartRequired(changed))

	changed, _ = SummarizeConfigChange(a, a)
	assert.Empty(t, changed)
}

func TestWatchPublishesValidEdits(t *testing.T) {
	p := writeFile(t, "notebot.json", `{"telegram":{"token":"x"},"logging":{"level":"info"}}`)
	m := NewConfigManager(p)
	m.lookup = noEnv
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// give the watcher a moment to register
	time.Sleep(100 * time.Millisecond)

	// invalid edit is rejected
	require.NoError(t, os.WriteFile(p, []byte(`{"telegram":{"token":"x"},"delivery":{"enabled":true,"interval":"bad"}}`), 0o600))
	select {
	case cfg := <-ch:
		t.Fatalf("unexpected publish: %+v", cfg.Delivery)
	case <-time.After(600 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(p, []byte(`{"telegram":{"token":"x"},"logging":{"level":"debug"}}`), 0o600))
	select {
	case cfg := <-ch:
		assert.Equal(t, "debug", cfg.Logging.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("no config published")
	}
	assert.Equal(t, "debug", m.Get().Logging.Level)

	cancel()
	<-done
}

func TestPublishKeepsNewest(t *testing.T) {
	m := NewConfigManager("")
	ch := m.Subscribe(1)
	a, b := Default(), Default()
	a.Logging.Level, b.Logging.Level = "a", "b"
	m.publish(a)
	m.publish(b)
	got := <-ch
	assert.Equal(t, "b", got.Logging.Level)

	m.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestYAMLToJSONNestedKeys(t *testing.T) {
	jb, err := yamlToJSON([]byte("a:\n  1: one\n  list:\n    - b: 2\n"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(jb), `"1":"one"`))

	empty, err := yamlToJSON([]byte("# nothing here\n"))
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestYAMLRejectsDuplicatesAndExtraDocuments(t *testing.T) {
	_, err := yamlToJSON([]byte("delivery:\n  interval: 60s\n  interval: 30s\n"))
	assert.ErrorContains(t, err, `line 3: duplicate key "interval"`)

	_, err = yamlToJSON([]byte("telegram: {}\n---\nstorage: {}\n"))
	assert.ErrorContains(t, err, "only one document allowed")
}

func TestYAMLAnchorsResolve(t *testing.T) {
	cfg := Default()
	src := "base: &lead 48h\n"
	err := decodeStrict("c.yaml", []byte(src), cfg)
	assert.ErrorContains(t, err, `unknown field "base"`)

	cfg = Default()
	src = "dialog:\n  min_lead: &lead 48h\n  notify_lead: *lead\n"
	require.NoError(t, decodeStrict("c.yaml", []byte(src), cfg))
	assert.Equal(t, "48h", cfg.Dialog.NotifyLead)
}

func TestDurationUnsetVersusZero(t *testing.T) {
	d, err := ParseDurationUnset("delivery.lookahead", "", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)

	d, err = ParseDurationUnset("delivery.lookahead", "0", 5*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = ParseDurationOrDefault("delivery.interval", "0", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	_, err = ParseDurationUnset("delivery.lookback", "-1m", 0)
	assert.ErrorContains(t, err, "delivery.lookback: duration must be >= 0")
}

func TestValidateDurationMinimums(t *testing.T) {
	cfg := Default()
	cfg.Telegram.Token = "x"
	cfg.Delivery.Interval = "500ms"
	cfg.Dialog.Timeout = "10s"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "delivery.interval: 500ms is below 1s")
	assert.ErrorContains(t, err, "dialog.timeout: 10s is below 1m0s")
}
