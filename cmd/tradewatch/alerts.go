package main

import (
	"fmt"
	"sort"

	"github.com/newthinker/tradewatch/internal/alert"
	"github.com/newthinker/tradewatch/internal/config"
	"github.com/newthinker/tradewatch/internal/notifier"
	"github.com/newthinker/tradewatch/internal/notifier/telegram"
	"github.com/newthinker/tradewatch/internal/notifier/webhook"
	"go.uber.org/zap"
)

// newAlerts builds the alert evaluator and its notifiers from config
func newAlerts(cfg *config.Config, log *zap.Logger) (*alert.Evaluator, error) {
	registry := notifier.NewRegistry()

	names := make([]string, 0, len(cfg.Notifiers))
	for name := range cfg.Notifiers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		nc := cfg.Notifiers[name]
		if !nc.Enabled {
			continue
		}

		var n notifier.Notifier
		switch name {
		case "webhook":
			n = webhook.New(nc.URL, nc.Headers)
		case "telegram":
			n = telegram.New(nc.BotToken, nc.ChatID)
		default:
			return nil, fmt.Errorf("unknown notifier %q", name)
		}
		if err := n.Init(notifier.Config{Type: name}); err != nil {
			return nil, fmt.Errorf("initializing %s notifier: %w", name, err)
		}
		if err := registry.Register(n); err != nil {
			return nil, err
		}
		log.Info("notifier enabled", zap.String("notifier", name))
	}

	rules := alert.DefaultRules()
	if len(cfg.Alerts.Rules) > 0 {
		rules = make([]alert.Rule, 0, len(cfg.Alerts.Rules))
		for _, r := range cfg.Alerts.Rules {
			rules = append(rules, alert.Rule{
				Name:     r.Name,
				Expr:     r.Expr,
				For:      r.For,
				Severity: r.Severity,
				Message:  r.Message,
			})
		}
	}

	eval, err := alert.NewEvaluator(rules, registry, log)
	if err != nil {
		return nil, err
	}
	eval.SetCooldown(cfg.Alerts.Cooldown)

	if registry.Len() == 0 {
		log.Warn("alerts enabled without notifiers, alerts are only logged")
	}
	return eval, nil
}
