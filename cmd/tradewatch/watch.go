package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/newthinker/tradewatch/internal/chart"
	"github.com/newthinker/tradewatch/internal/control"
	"github.com/newthinker/tradewatch/internal/core"
	"github.com/newthinker/tradewatch/internal/logger"
	"github.com/newthinker/tradewatch/internal/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultWatchLog = "tradewatch.log"

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the dashboard in the terminal",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	// the terminal belongs to the dashboard
	if cfg.Log.File == "" {
		cfg.Log.File = defaultWatchLog
	}
	log, err := logger.NewWithConfig(cfg.Log, debug)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	// sized on the first window event
	term := chart.NewTerminal(0, 0)

	model := tui.New(ctx, tui.Deps{
		Selector: a.session,
		Toggler:  control.New(a.client, a.session, log, a.metrics),
		Refresh:  func() { a.loop.Trigger(ctx, core.TriggerManual) },
		Chart:    term,
		Source:   a.client.BaseURL(),
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	a.loop.AddRenderer(tui.NewRenderer(p))
	a.loop.AddChart(term)

	log.Info("starting tradewatch terminal dashboard",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("mode", cfg.Refresh.Mode),
	)

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- a.loop.Run(ctx)
	}()

	_, runErr := p.Run()
	stop()

	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		log.Error("refresh loop stopped", zap.Error(err))
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("running dashboard: %w", runErr)
	}
	return nil
}
