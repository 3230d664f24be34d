package notifier

import (
	"context"
	"time"
)

// Config holds notifier configuration
type Config struct {
	Type   string         `mapstructure:"type"`
	Params map[string]any `mapstructure:"params"`
}

// Alert is one fired alert rule together with the value that tripped it
type Alert struct {
	Rule     string    `json:"rule"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	Metric   string    `json:"metric"`
	Value    float64   `json:"value"`
	FiredAt  time.Time `json:"fired_at"`
}

// Notifier delivers alerts to one destination
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Init initializes the notifier with configuration
	Init(cfg Config) error

	// Send delivers a single alert
	Send(ctx context.Context, alert Alert) error
}
