package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: movewatch\n"))
	require.NoError(t, err)

	require.Equal(t, 10*time.Second, cfg.Scheduler.Interval)
	require.Equal(t, time.Hour, cfg.Tracking.Duration)
	require.Equal(t, []time.Duration{5 * time.Minute, 15 * time.Minute, 30 * time.Minute, time.Hour}, cfg.Tracking.Checkpoints)
	require.Equal(t, "age-out", cfg.Detector.CooldownPolicy)
	require.Equal(t, "bunt", cfg.Storage.Driver)
	require.Equal(t, []string{"log"}, cfg.Alerting.Channels)
	require.Equal(t, 3, cfg.Binance.RetryAttempts)
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  interval: 30s
detector:
  cooldown_policy: reset
tracking:
  duration: 30m
  checkpoints: ["15m", "5m"]
storage:
  driver: none
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	require.Equal(t, "reset", cfg.Detector.CooldownPolicy)
	require.Equal(t, []time.Duration{5 * time.Minute, 15 * time.Minute}, cfg.Tracking.Checkpoints)
	require.Equal(t, "none", cfg.Storage.Driver)
}

func TestLoadTelegramAliases(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100")
	t.Setenv("MOVEWATCH_ALERTING_TELEGRAM_ENABLED", "true")

	cfg, err := Load(writeConfig(t, "alerting:\n  channels: [log, telegram]\n"))
	require.NoError(t, err)
	require.True(t, cfg.Alerting.Telegram.Enabled)
	require.Equal(t, "123:abc", cfg.Alerting.Telegram.BotToken)
	require.Equal(t, "-100", cfg.Alerting.Telegram.ChatID)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown policy":       "detector:\n  cooldown_policy: forever\n",
		"checkpoint too late":  "tracking:\n  duration: 10m\n  checkpoints: [\"15m\"]\n",
		"unknown driver":       "storage:\n  driver: mongo\n",
		"postgres without dsn": "storage:\n  driver: postgres\n",
		"unknown channel":      "alerting:\n  channels: [pager]\n",
		"telegram no token":    "alerting:\n  telegram:\n    enabled: true\n",
		"zero retries":         "binance:\n  retry_attempts: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 500}}
	require.Equal(t, 500, cfg.ResolveMaxPoints(0))
	require.Equal(t, 20, cfg.ResolveMaxPoints(20))
}
