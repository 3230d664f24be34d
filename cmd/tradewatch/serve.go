package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/tradewatch/internal/api"
	"github.com/newthinker/tradewatch/internal/chart"
	"github.com/newthinker/tradewatch/internal/control"
	"github.com/newthinker/tradewatch/internal/logger"
	"github.com/newthinker/tradewatch/internal/view"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var templatesDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&templatesDir, "templates", "", "override the embedded templates with a directory")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, fromFile, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.NewWithConfig(cfg.Log, debug)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	if !fromFile {
		log.Warn("no config file specified, using defaults")
	}

	log.Info("starting tradewatch server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("mode", cfg.Refresh.Mode),
	)

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	latest := view.NewLatest()
	svg := chart.NewSVG()
	a.loop.AddRenderer(latest)
	a.loop.AddChart(svg)

	server, err := api.NewServer(api.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		TemplatesDir:   templatesDir,
		MetricsPath:    cfg.Metrics.Path,
		RefreshSeconds: int(cfg.Refresh.Interval / time.Second),
	}, api.Dependencies{
		Session: a.session,
		Control: control.New(a.client, a.session, log, a.metrics),
		Latest:  latest,
		Chart:   svg,
		Metrics: a.metrics,
	}, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- a.loop.Run(ctx)
	}()

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			log.Error("server error", zap.Error(err))
		}
		stop()
	}

	log.Info("shutting down tradewatch server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("refresh loop: %w", err)
	}

	return nil
}
