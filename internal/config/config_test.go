package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newthinker/tradewatch/internal/core"
)

func TestLoad_FromFile(t *testing.T) {
	content := []byte(`
backend:
  base_url: "http://10.0.0.5:8000"
  timeout: 5s

refresh:
  interval: 10s
  mode: single
`)

	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Backend.BaseURL != "http://10.0.0.5:8000" {
		t.Errorf("expected base url from file, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.Backend.Timeout)
	}
	if cfg.Refresh.Interval != 10*time.Second {
		t.Errorf("expected 10s interval, got %s", cfg.Refresh.Interval)
	}
	if cfg.Refresh.Mode != "single" {
		t.Errorf("expected single mode, got %s", cfg.Refresh.Mode)
	}

	// untouched keys fall back to defaults
	if cfg.Refresh.TradesLimit != 50 {
		t.Errorf("expected default trades limit 50, got %d", cfg.Refresh.TradesLimit)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("BOT_API", "http://bot.internal:9000")
	content := []byte(`
backend:
  base_url: "${BOT_API}"
`)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Backend.BaseURL != "http://bot.internal:9000" {
		t.Errorf("expected expanded base url, got %s", cfg.Backend.BaseURL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Refresh.Interval != 3*time.Second {
		t.Errorf("expected default interval 3s, got %s", cfg.Refresh.Interval)
	}
	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Errorf("expected default backend, got %s", cfg.Backend.BaseURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr *core.Error
	}{
		{"valid config", func(*Config) {}, nil},
		{"missing base url", func(c *Config) { c.Backend.BaseURL = "" }, core.ErrConfigMissing},
		{"non-http base url", func(c *Config) { c.Backend.BaseURL = "ftp://x" }, core.ErrConfigInvalid},
		{"zero timeout", func(c *Config) { c.Backend.Timeout = 0 }, core.ErrConfigInvalid},
		{"sub-second interval", func(c *Config) { c.Refresh.Interval = 500 * time.Millisecond }, core.ErrConfigInvalid},
		{"unknown mode", func(c *Config) { c.Refresh.Mode = "multi" }, core.ErrConfigInvalid},
		{"negative limit", func(c *Config) { c.Refresh.TradesLimit = -1 }, core.ErrConfigInvalid},
		{"invalid port - zero", func(c *Config) { c.Server.Port = 0 }, core.ErrConfigInvalid},
		{"invalid port - too high", func(c *Config) { c.Server.Port = 70000 }, core.ErrConfigInvalid},
		{"negative cooldown", func(c *Config) { c.Alerts.Cooldown = -time.Second }, core.ErrConfigInvalid},
		{"rule without expr", func(c *Config) { c.Alerts.Rules = []AlertRule{{Name: "x"}} }, core.ErrConfigMissing},
		{"webhook without url", func(c *Config) {
			c.Notifiers = map[string]NotifierConfig{"webhook": {Enabled: true}}
		}, core.ErrConfigMissing},
		{"disabled webhook without url", func(c *Config) {
			c.Notifiers = map[string]NotifierConfig{"webhook": {}}
		}, nil},
		{"telegram without chat", func(c *Config) {
			c.Notifiers = map[string]NotifierConfig{"telegram": {Enabled: true, BotToken: "t"}}
		}, core.ErrConfigMissing},
		{"unknown notifier", func(c *Config) {
			c.Notifiers = map[string]NotifierConfig{"email": {Enabled: true}}
		}, core.ErrConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected %s", tt.wantErr.Code)
			}
			if ce, ok := err.(*core.Error); !ok || ce.Code != tt.wantErr.Code {
				t.Errorf("Validate() error = %v, want code %s", err, tt.wantErr.Code)
			}
		})
	}
}

func TestLoad_Alerts(t *testing.T) {
	content := []byte(`
alerts:
  enabled: true
  rules:
    - name: backend_down
      expr: "cycle_failed == 1"
      for: 30s
      severity: critical
      message: backend unreachable

notifiers:
  webhook:
    enabled: true
    url: "http://hooks.local/alerts"
    headers:
      Authorization: "Bearer x"
`)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !cfg.Alerts.Enabled {
		t.Error("expected alerts enabled")
	}
	if cfg.Alerts.Cooldown != 5*time.Minute {
		t.Errorf("expected default cooldown, got %s", cfg.Alerts.Cooldown)
	}
	if len(cfg.Alerts.Rules) != 1 || cfg.Alerts.Rules[0].For != 30*time.Second {
		t.Fatalf("unexpected rules %+v", cfg.Alerts.Rules)
	}
	hook, ok := cfg.Notifiers["webhook"]
	if !ok || !hook.Enabled || hook.URL != "http://hooks.local/alerts" {
		t.Errorf("unexpected webhook config %+v", hook)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error = %v", err)
	}
}
