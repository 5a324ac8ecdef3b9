package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/samber/lo"
	"github.com/spf13/viper"

	"price-move-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Binance   BinanceConfig   `mapstructure:"binance"`
	Watchlist WatchlistConfig `mapstructure:"watchlist"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// StorageConfig selects where alerts and tracking summaries are kept.
type StorageConfig struct {
	Driver string     `mapstructure:"driver"`
	Bunt   BuntConfig `mapstructure:"bunt"`
}

// BuntConfig points at the embedded database file.
type BuntConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// BinanceConfig covers the futures ticker endpoint.
type BinanceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	SecretKey      string        `mapstructure:"secret_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryMin       time.Duration `mapstructure:"retry_min"`
	RetryMax       time.Duration `mapstructure:"retry_max"`
}

// WatchlistConfig locates the active watchlist and the saved configurations.
type WatchlistConfig struct {
	Path     string `mapstructure:"path"`
	SavesDir string `mapstructure:"saves_dir"`
}

// DetectorConfig tunes threshold evaluation.
type DetectorConfig struct {
	CooldownPolicy string `mapstructure:"cooldown_policy"`
}

// TrackingConfig sets the post-alert observation period.
type TrackingConfig struct {
	Duration    time.Duration   `mapstructure:"duration"`
	Checkpoints []time.Duration `mapstructure:"checkpoints"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	Channels        []string       `mapstructure:"channels"`
	DeliveryTimeout time.Duration  `mapstructure:"delivery_timeout"`
	QueueSize       int            `mapstructure:"queue_size"`
	NotifySummaries bool           `mapstructure:"notify_summaries"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int    `mapstructure:"max_data_points"`
	Dir           string `mapstructure:"dir"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MOVEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindAliases(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	sort.Slice(cfg.Tracking.Checkpoints, func(i, j int) bool {
		return cfg.Tracking.Checkpoints[i] < cfg.Tracking.Checkpoints[j]
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "movewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.max_size_mb", 50)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 14)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("scheduler.interval", "10s")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6d6f7665))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("binance.base_url", "https://fapi.binance.com")
	v.SetDefault("binance.request_timeout", "5s")
	v.SetDefault("binance.retry_attempts", 3)
	v.SetDefault("binance.retry_min", "200ms")
	v.SetDefault("binance.retry_max", "2s")

	v.SetDefault("watchlist.path", "config/watchlist.json")
	v.SetDefault("watchlist.saves_dir", "config/saves")

	v.SetDefault("detector.cooldown_policy", "age-out")

	v.SetDefault("tracking.duration", "1h")
	v.SetDefault("tracking.checkpoints", []string{"5m", "15m", "30m", "60m"})

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.channels", []string{"log"})
	v.SetDefault("alerting.delivery_timeout", "10s")
	v.SetDefault("alerting.queue_size", 64)
	v.SetDefault("alerting.notify_summaries", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("storage.driver", "bunt")
	v.SetDefault("storage.bunt.path", "data/movewatch.db")

	v.SetDefault("export.max_data_points", 100000)
	v.SetDefault("export.dir", "exports")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
}

// bindAliases lets the conventional bot variables from a .env file fill the
// Telegram section.
func bindAliases(v *viper.Viper) {
	_ = v.BindEnv("alerting.telegram.bot_token", "MOVEWATCH_ALERTING_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("alerting.telegram.chat_id", "MOVEWATCH_ALERTING_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

var (
	cooldownPolicies = []string{"age-out", "reset", "none"}
	storageDrivers   = []string{"bunt", "postgres", "none"}
	alertChannels    = []string{"log", "telegram"}
)

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Binance.RetryAttempts < 1 {
		return fmt.Errorf("binance.retry_attempts must be at least 1")
	}
	if c.Tracking.Duration <= 0 {
		return fmt.Errorf("tracking.duration must be greater than zero")
	}
	for _, cp := range c.Tracking.Checkpoints {
		if cp <= 0 || cp > c.Tracking.Duration {
			return fmt.Errorf("tracking.checkpoints: %s must be within (0, %s]", cp, c.Tracking.Duration)
		}
	}
	if p := strings.ToLower(c.Detector.CooldownPolicy); p != "" && !lo.Contains(cooldownPolicies, p) {
		return fmt.Errorf("detector.cooldown_policy must be one of %s", strings.Join(cooldownPolicies, ", "))
	}
	if d := strings.ToLower(c.Storage.Driver); !lo.Contains(storageDrivers, d) {
		return fmt.Errorf("storage.driver must be one of %s", strings.Join(storageDrivers, ", "))
	}
	if strings.EqualFold(c.Storage.Driver, "postgres") && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for the postgres storage driver")
	}
	for _, ch := range c.Alerting.Channels {
		if !lo.Contains(alertChannels, strings.ToLower(strings.TrimSpace(ch))) {
			return fmt.Errorf("alerting.channels: unknown channel %q", ch)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
