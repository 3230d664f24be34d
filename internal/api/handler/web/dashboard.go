// internal/api/handler/web/dashboard.go
package web

import (
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/newthinker/tradewatch/internal/core"
	"github.com/newthinker/tradewatch/internal/format"
	"github.com/newthinker/tradewatch/internal/view"
)

// SignalView is the signal panel
type SignalView struct {
	Headline    string
	Class       string
	Probability string
	Reason      string
}

// ScannerRow is one clickable scanner row
type ScannerRow struct {
	Symbol      string
	Signal      string
	Class       string
	Probability string
	Close       string
	Active      bool
}

// TradeView is one trades table row
type TradeView struct {
	Time       string
	Symbol     string
	Side       string
	SideClass  string
	Price      string
	PnL        string
	PnLClass   string
	Unrealized bool
	Reason     string
}

// LogView is one log line with its level class
type LogView struct {
	Raw   string
	Class string
}

// DashboardData holds data for the dashboard template
type DashboardData struct {
	Title          string
	RefreshSeconds int
	Ready          bool
	Notice         string

	Mode         string
	ActiveSymbol string
	Paused       bool
	UpdatedAt    string
	Error        bool

	Balance      string
	BalanceClass string
	Equity       string
	PnL          string
	PnLClass     string
	Winrate      string

	Signal  SignalView
	Scanner []ScannerRow
	Trades  []TradeView
	Logs    []LogView
	Chart   template.HTML

	// Stale is keyed by resource name
	Stale map[string]bool
}

// BuildDashboardData turns a merged state into template data. It is a pure
// function of its inputs.
func BuildDashboardData(state view.State, ready bool, loc *time.Location, chartSVG string) DashboardData {
	data := DashboardData{
		Title:   "Dashboard",
		Ready:   ready,
		Chart:   template.HTML(chartSVG),
		Stale:   make(map[string]bool),
		Balance: "-",
		Equity:  "-",
		PnL:     "-",
		Winrate: "Winrate: -",
		Signal: SignalView{
			Headline: "Waiting...",
			Class:    "hold",
			Reason:   "Reason: Analyzing market...",
		},
	}
	if !ready {
		return data
	}

	data.Mode = string(state.Mode)
	data.ActiveSymbol = state.ActiveSymbol
	data.Paused = state.Paused
	data.UpdatedAt = format.EpochTime(state.UpdatedAt.Unix(), loc)
	for r, f := range state.Freshness {
		data.Stale[string(r)] = f.Stale
	}

	if a := state.Account; a != nil {
		data.Balance = format.Currency(a.Balance)
		data.Equity = format.Currency(a.Equity)
	}
	if state.Error != "" {
		data.Error = true
		data.Balance = "Error"
		data.BalanceClass = "negative"
	}
	if st := state.Statistics; st != nil {
		data.PnL = format.Currency(st.PnL)
		data.PnLClass = format.SignClass(st.PnL)
		data.Winrate = format.Winrate(st.Winrate, st.TotalTrades)
	}

	if sig := state.Signal; sig != nil {
		headline := string(sig.SignalType)
		if sig.Symbol != "" {
			headline = sig.Symbol + " " + headline
		}
		data.Signal = SignalView{
			Headline:    headline,
			Class:       format.SignalClass(sig.SignalType),
			Probability: format.Probability(sig.Probability),
			Reason:      "Reason: " + sig.Reason,
		}
	}

	for _, e := range state.Scanner {
		data.Scanner = append(data.Scanner, ScannerRow{
			Symbol:      e.Symbol,
			Signal:      string(e.SignalType),
			Class:       format.SignalClass(e.SignalType),
			Probability: format.Percent(e.Probability),
			Close:       format.Number(e.ClosePrice),
			Active:      e.Symbol == state.ActiveSymbol,
		})
	}

	for _, t := range state.Trades {
		tv := TradeView{
			Time:       format.TradeTime(t.Timestamp, loc),
			Symbol:     format.OrDash(t.Symbol),
			Side:       string(t.Side),
			SideClass:  format.SignalClass(core.SignalType(t.Side)),
			Price:      format.Number(t.Price),
			PnL:        format.OptionalNumber(t.DisplayPnL),
			Unrealized: t.Unrealized,
			Reason:     format.OrDash(t.Reason),
		}
		if t.DisplayPnL != nil {
			tv.PnLClass = format.SignClass(*t.DisplayPnL)
		}
		data.Trades = append(data.Trades, tv)
	}

	for _, l := range state.Logs {
		data.Logs = append(data.Logs, LogView{Raw: l.Raw, Class: format.LevelClass(l.Level)})
	}

	return data
}

// Dashboard renders the dashboard page. Optional w and h query values
// size the chart.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	width, _ := strconv.Atoi(q.Get("w"))
	height, _ := strconv.Atoi(q.Get("h"))
	if width > 0 || height > 0 {
		h.deps.Chart.Resize(width, height)
	}

	state, ready := view.State{}, false
	if h.deps.State != nil {
		state, ready = h.deps.State.Get()
	}

	data := BuildDashboardData(state, ready, h.deps.Location, h.deps.Chart.Render())
	data.RefreshSeconds = h.deps.RefreshSeconds
	if q.Get("notice") == "control" {
		data.Notice = "Pause/resume failed, state unchanged."
	}

	h.render(w, "dashboard.html", data)
}

// Select handles a scanner row click
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.deps.Selector.Select(r.PostForm.Get("symbol")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Toggle handles the pause/resume button. A failure is shown as a quiet
// notice on the next page load.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	if _, err := h.deps.Toggler.Toggle(r.Context()); err != nil {
		http.Redirect(w, r, "/?notice=control", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
