package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/newthinker/tradewatch/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Refresh RefreshConfig `mapstructure:"refresh"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	Notifiers map[string]NotifierConfig `mapstructure:"notifiers"`
	Alerts    AlertsConfig              `mapstructure:"alerts"`
}

// BackendConfig points at the trading bot's status API.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RefreshConfig drives the reconciliation loop.
type RefreshConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	Mode         string        `mapstructure:"mode"` // "scanner" or "single"
	TradesLimit  int           `mapstructure:"trades_limit"`
	CandlesLimit int           `mapstructure:"candles_limit"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig controls the zap logger. An empty File logs to stderr.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// NotifierConfig configures one alert destination, keyed by type
// ("webhook" or "telegram").
type NotifierConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Webhook notifier fields
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	// Telegram notifier fields
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// AlertsConfig holds alerts configuration. Without rules the built-in
// defaults apply.
type AlertsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	Rules    []AlertRule   `mapstructure:"rules"`
}

// AlertRule defines a single alert rule.
type AlertRule struct {
	Name     string        `mapstructure:"name"`
	Expr     string        `mapstructure:"expr"`
	For      time.Duration `mapstructure:"for"`
	Severity string        `mapstructure:"severity"`
	Message  string        `mapstructure:"message"`
}

// Load reads configuration from file, layered over Defaults.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.SetEnvPrefix("TRADEWATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 2 * time.Second,
		},
		Refresh: RefreshConfig{
			Interval:     3 * time.Second,
			Mode:         string(core.ModeScanner),
			TradesLimit:  50,
			CandlesLimit: 100,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Alerts: AlertsConfig{
			Enabled:  false,
			Cooldown: 5 * time.Minute,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("backend.base_url", d.Backend.BaseURL)
	v.SetDefault("backend.timeout", d.Backend.Timeout)
	v.SetDefault("refresh.interval", d.Refresh.Interval)
	v.SetDefault("refresh.mode", d.Refresh.Mode)
	v.SetDefault("refresh.trades_limit", d.Refresh.TradesLimit)
	v.SetDefault("refresh.candles_limit", d.Refresh.CandlesLimit)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("alerts.enabled", d.Alerts.Enabled)
	v.SetDefault("alerts.cooldown", d.Alerts.Cooldown)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("backend base_url required"))
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("backend base_url must be an http(s) URL, got %q", c.Backend.BaseURL))
	}
	if c.Backend.Timeout <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("backend timeout must be positive, got %s", c.Backend.Timeout))
	}

	// cron's @every cannot go below one second
	if c.Refresh.Interval < time.Second {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("refresh interval must be at least 1s, got %s", c.Refresh.Interval))
	}
	switch core.Mode(c.Refresh.Mode) {
	case core.ModeScanner, core.ModeSingle:
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("refresh mode must be scanner or single, got %q", c.Refresh.Mode))
	}
	if c.Refresh.TradesLimit < 0 || c.Refresh.CandlesLimit < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("limits cannot be negative"))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Alerts.Cooldown < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("alerts cooldown cannot be negative"))
	}
	for i, r := range c.Alerts.Rules {
		if r.Name == "" || r.Expr == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("alert rule %d needs a name and an expr", i))
		}
	}
	for name, n := range c.Notifiers {
		if !n.Enabled {
			continue
		}
		switch name {
		case "webhook":
			if n.URL == "" {
				return core.WrapError(core.ErrConfigMissing, fmt.Errorf("webhook notifier url required"))
			}
		case "telegram":
			if n.BotToken == "" || n.ChatID == "" {
				return core.WrapError(core.ErrConfigMissing, fmt.Errorf("telegram notifier bot_token and chat_id required"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown notifier %q", name))
		}
	}

	return nil
}
