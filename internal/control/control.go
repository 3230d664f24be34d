// Package control sends pause/resume intents to the backend and adopts the
// state the backend reports back.
package control

import (
	"context"

	"github.com/newthinker/tradewatch/internal/core"
	"github.com/newthinker/tradewatch/internal/metrics"
	"github.com/newthinker/tradewatch/internal/session"
	"go.uber.org/zap"
)

// Sender posts a control action and returns the resulting status
type Sender interface {
	Control(ctx context.Context, action core.ControlAction) (core.BotStatus, error)
}

// Channel is the single write path to the bot
type Channel struct {
	sender  Sender
	session *session.Session
	logger  *zap.Logger
	metrics *metrics.Registry
}

// New creates a channel. reg may be nil.
func New(sender Sender, sess *session.Session, logger *zap.Logger, reg *metrics.Registry) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{sender: sender, session: sess, logger: logger, metrics: reg}
}

// Toggle asks for the opposite of the current paused state
func (c *Channel) Toggle(ctx context.Context) (core.BotStatus, error) {
	action := core.ActionPause
	if c.session.Paused() {
		action = core.ActionResume
	}
	return c.Set(ctx, action)
}

// Set sends action and adopts whatever status comes back, even when it
// disagrees with the intent. On failure the session is left untouched.
func (c *Channel) Set(ctx context.Context, action core.ControlAction) (core.BotStatus, error) {
	if !action.IsValid() {
		return "", core.ErrInvalidAction
	}

	status, err := c.sender.Control(ctx, action)
	if err != nil {
		c.logger.Warn("control request failed",
			zap.String("action", string(action)),
			zap.Error(err),
		)
		c.record(action, "error")
		return "", core.WrapError(core.ErrControlFailed, err)
	}

	c.session.SetPaused(status.Paused())
	c.record(action, string(status))
	c.logger.Info("bot state changed",
		zap.String("action", string(action)),
		zap.String("status", string(status)),
	)
	return status, nil
}

func (c *Channel) record(action core.ControlAction, status string) {
	if c.metrics != nil {
		c.metrics.RecordControl(string(action), status)
	}
}
