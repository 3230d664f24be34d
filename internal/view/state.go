// Package view defines the merged view state produced by one refresh cycle
// and the renderers that consume it. Rendering is a pure function of State;
// every cycle replaces the whole state, nothing is diffed.
package view

import (
	"sync"
	"time"

	"github.com/newthinker/tradewatch/internal/core"
)

// TradeRow is a trade as shown in the table. PnL is the realized value, or
// the unrealized estimate when Unrealized is set.
type TradeRow struct {
	core.Trade
	DisplayPnL *float64 `json:"display_pnl"`
	Unrealized bool     `json:"unrealized"`
}

// Freshness tracks whether a region still shows data from an earlier cycle
type Freshness struct {
	Stale       bool      `json:"stale"`
	Failures    int       `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success"`
}

// State is everything a renderer needs for one frame
type State struct {
	CycleID      string    `json:"cycle_id"`
	UpdatedAt    time.Time `json:"updated_at"`
	Mode         core.Mode `json:"mode"`
	ActiveSymbol string    `json:"active_symbol"`
	Paused       bool      `json:"paused"`
	// Error is the cycle-level failure; regions keep their previous values.
	Error string `json:"error,omitempty"`

	Account    *core.AccountSnapshot `json:"account,omitempty"`
	Statistics *core.Statistics      `json:"statistics,omitempty"`
	Signal     *core.Signal          `json:"signal,omitempty"`
	Scanner    []core.ScannerEntry   `json:"scanner"`
	Trades     []TradeRow            `json:"trades"`
	Candles    []core.Candle         `json:"candles"`
	Markers    []core.Marker         `json:"markers"`
	Logs       []core.LogLine        `json:"logs"`

	Freshness map[core.Resource]Freshness `json:"freshness"`
}

// Clone returns a deep copy safe to hand to another goroutine
func (s State) Clone() State {
	out := s
	if s.Account != nil {
		a := *s.Account
		out.Account = &a
	}
	if s.Statistics != nil {
		st := *s.Statistics
		out.Statistics = &st
	}
	if s.Signal != nil {
		sig := *s.Signal
		out.Signal = &sig
	}
	out.Scanner = append([]core.ScannerEntry(nil), s.Scanner...)
	out.Trades = append([]TradeRow(nil), s.Trades...)
	out.Candles = append([]core.Candle(nil), s.Candles...)
	out.Markers = append([]core.Marker(nil), s.Markers...)
	out.Logs = append([]core.LogLine(nil), s.Logs...)
	if s.Freshness != nil {
		out.Freshness = make(map[core.Resource]Freshness, len(s.Freshness))
		for k, v := range s.Freshness {
			out.Freshness[k] = v
		}
	}
	return out
}

// IsStale reports whether the region fed by r failed in the last cycle
func (s State) IsStale(r core.Resource) bool {
	return s.Freshness[r].Stale
}

// Renderer applies a state to some output. Implementations must be
// idempotent: rendering the same state twice gives the same output.
type Renderer interface {
	Render(state State)
}

// RendererFunc adapts a function to Renderer
type RendererFunc func(State)

func (f RendererFunc) Render(state State) { f(state) }

// Latest keeps the most recent state for pull-based surfaces such as the
// web handlers.
type Latest struct {
	mu    sync.RWMutex
	state State
	set   bool
}

// NewLatest creates an empty holder
func NewLatest() *Latest {
	return &Latest{}
}

// Render stores a copy of state
func (l *Latest) Render(state State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = state.Clone()
	l.set = true
}

// Get returns a copy of the latest state and whether one was rendered yet
func (l *Latest) Get() (State, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Clone(), l.set
}
