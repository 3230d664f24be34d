package main

import (
	"fmt"
	"os"

	"github.com/newthinker/tradewatch/internal/alert"
	"github.com/newthinker/tradewatch/internal/backend"
	"github.com/newthinker/tradewatch/internal/config"
	"github.com/newthinker/tradewatch/internal/core"
	"github.com/newthinker/tradewatch/internal/metrics"
	"github.com/newthinker/tradewatch/internal/reconcile"
	"github.com/newthinker/tradewatch/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
	baseURL string
	mode    string
)

var rootCmd = &cobra.Command{
	Use:   "tradewatch",
	Short: "tradewatch - live dashboard for a trading bot",
	Long: `tradewatch polls a trading bot's status API and keeps a dashboard of
account, signal, scanner, trades, chart and logs up to date.
It runs as a terminal UI (watch) or as a web page (serve).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "refresh mode: scanner or single (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file when one is given, applies flag
// overrides and validates the result.
func loadConfig() (*config.Config, bool, error) {
	var cfg *config.Config
	fromFile := cfgFile != ""

	if fromFile {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, false, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
	}

	if baseURL != "" {
		cfg.Backend.BaseURL = baseURL
	}
	if mode != "" {
		cfg.Refresh.Mode = mode
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, fromFile, nil
}

// app holds the pieces both front ends share
type app struct {
	client  *backend.Client
	session *session.Session
	loop    *reconcile.Loop
	metrics *metrics.Registry
	alerts  *alert.Evaluator
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	client := backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	sess := session.New()

	loop := reconcile.New(client, sess, reconcile.Options{
		Mode:         core.Mode(cfg.Refresh.Mode),
		Interval:     cfg.Refresh.Interval,
		TradesLimit:  cfg.Refresh.TradesLimit,
		CandlesLimit: cfg.Refresh.CandlesLimit,
	}, log)

	a := &app{client: client, session: sess, loop: loop}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewRegistry()
		loop.SetMetrics(a.metrics)
	}
	if cfg.Alerts.Enabled {
		eval, err := newAlerts(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("configuring alerts: %w", err)
		}
		a.alerts = eval
		loop.AddRenderer(eval)
	}
	return a, nil
}

// close waits for in-flight alert deliveries
func (a *app) close() {
	if a.alerts != nil {
		a.alerts.Wait()
	}
}
