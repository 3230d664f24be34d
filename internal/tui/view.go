package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/newthinker/tradewatch/internal/chart"
	"github.com/newthinker/tradewatch/internal/core"
	"github.com/newthinker/tradewatch/internal/format"
	"github.com/newthinker/tradewatch/internal/view"
)

const (
	defaultWidth  = 120
	defaultHeight = 40
	minWidth      = 100
	leftWidth     = 46
	chartHeight   = 12
	maxTradeRows  = 10
	maxLogRows    = 8
)

var (
	accent = lipgloss.Color("39")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	staleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	activeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))

	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(chart.ColorUp))
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(chart.ColorDown))
	holdStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))

	pausedBadge  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214")).Padding(0, 1)
	runningBadge = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("42")).Padding(0, 1)
	modeBadge    = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(accent).Padding(0, 1)
)

func signClass(v float64) lipgloss.Style {
	if format.SignClass(v) == "negative" {
		return negativeStyle
	}
	return positiveStyle
}

func signalStyle(t core.SignalType) lipgloss.Style {
	switch format.SignalClass(t) {
	case "buy":
		return positiveStyle
	case "sell":
		return negativeStyle
	default:
		return holdStyle
	}
}

func levelStyle(level string) lipgloss.Style {
	switch format.LevelClass(level) {
	case "error":
		return negativeStyle
	case "warn":
		return staleStyle
	case "debug":
		return mutedStyle
	default:
		return lipgloss.NewStyle()
	}
}

func (m Model) totalWidth() int {
	if m.width < minWidth {
		return minWidth
	}
	return m.width
}

// chartWidth is the inner width of the chart box. Every box adds a border
// and a padding cell on each side.
func (m Model) chartWidth() int {
	return m.totalWidth() - leftWidth - 4
}

// View renders the dashboard. The output depends only on the model.
func (m Model) View() string {
	if !m.hasState {
		return headerStyle.Render("tradewatch") + "\n" +
			mutedStyle.Render(fmt.Sprintf("  Connecting to %s ...", m.deps.Source)) + "\n"
	}

	s := m.state
	inner := leftWidth - 4

	left := lipgloss.JoinVertical(lipgloss.Left,
		m.panel("Account", s.IsStale(core.ResourceAccount) || s.IsStale(core.ResourceStatistics), m.renderAccount(), inner),
		m.panel("Signal", m.signalStale(), m.renderSignal(), inner),
		m.panel("Scanner", s.IsStale(core.ResourceScanner), m.renderScanner(), inner),
	)

	chartTitle := "Chart"
	if s.ActiveSymbol != "" {
		chartTitle = "Chart " + s.ActiveSymbol
	}
	right := m.panel(chartTitle, s.IsStale(core.ResourceCandles), m.deps.Chart.Render(), m.chartWidth())

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	full := m.totalWidth() - 4

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.panel("Trades", s.IsStale(core.ResourceTrades), m.renderTrades(), full),
		m.panel("Logs", s.IsStale(core.ResourceLogs), m.renderLogs(), full),
		m.renderFooter(),
	)
}

func (m Model) panel(title string, stale bool, body string, width int) string {
	head := titleStyle.Render(title)
	if stale {
		head += " " + staleStyle.Render("(stale)")
	}
	return boxStyle.Width(width + 2).Render(head + "\n" + body)
}

func (m Model) signalStale() bool {
	if m.state.Mode == core.ModeSingle {
		return m.state.IsStale(core.ResourceSignal)
	}
	return m.state.IsStale(core.ResourceScanner)
}

func (m Model) renderHeader() string {
	s := m.state
	badge := runningBadge.Render("RUNNING")
	if s.Paused {
		badge = pausedBadge.Render("PAUSED")
	}
	parts := []string{
		headerStyle.Render("tradewatch"),
		modeBadge.Render(string(s.Mode)),
		badge,
		mutedStyle.Render("updated " + format.EpochTime(s.UpdatedAt.Unix(), m.deps.Location)),
	}
	if s.Error != "" {
		parts = append(parts, negativeStyle.Render("refresh failed"))
	}
	return strings.Join(parts, " ")
}

func (m Model) renderAccount() string {
	s := m.state
	var lines []string

	switch {
	case s.Error != "":
		lines = append(lines, "Balance  "+negativeStyle.Render("Error"))
	case s.Account != nil:
		lines = append(lines, "Balance  "+format.Currency(s.Account.Balance))
	default:
		lines = append(lines, "Balance  "+mutedStyle.Render("-"))
	}
	if s.Account != nil {
		lines = append(lines, "Equity   "+format.Currency(s.Account.Equity))
	} else {
		lines = append(lines, "Equity   -")
	}
	if st := s.Statistics; st != nil {
		lines = append(lines, "PnL      "+signClass(st.PnL).Render(format.Currency(st.PnL)))
		lines = append(lines, format.Winrate(st.Winrate, st.TotalTrades))
	} else {
		lines = append(lines, "PnL      -", "Winrate: -")
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderSignal() string {
	sig := m.state.Signal
	if sig == nil {
		return strings.Join([]string{
			holdStyle.Render("Waiting..."),
			"",
			"Reason: Analyzing market...",
		}, "\n")
	}
	head := string(sig.SignalType)
	if sig.Symbol != "" {
		head = sig.Symbol + " " + head
	}
	return strings.Join([]string{
		signalStyle(sig.SignalType).Bold(true).Render(head),
		format.Probability(sig.Probability),
		"Reason: " + sig.Reason,
	}, "\n")
}

func (m Model) renderScanner() string {
	if len(m.state.Scanner) == 0 {
		return mutedStyle.Render("No scanner data")
	}
	lines := []string{mutedStyle.Render(fmt.Sprintf("  %-10s %-6s %7s %14s", "SYMBOL", "SIGNAL", "PROB", "CLOSE"))}
	for i, e := range m.state.Scanner {
		cursor := " "
		if i == m.cursor {
			cursor = ">"
		}
		row := fmt.Sprintf("%-10s %s %7s %14s",
			e.Symbol,
			signalStyle(e.SignalType).Render(fmt.Sprintf("%-6s", e.SignalType)),
			format.Percent(e.Probability),
			format.Number(e.ClosePrice),
		)
		if e.Symbol == m.state.ActiveSymbol {
			row = activeStyle.Render(row)
		}
		lines = append(lines, cursor+" "+row)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderTrades() string {
	if len(m.state.Trades) == 0 {
		return mutedStyle.Render("No trades")
	}
	lines := []string{mutedStyle.Render(fmt.Sprintf("%-8s %-8s %-4s %14s %14s  %s", "TIME", "SYMBOL", "SIDE", "PRICE", "PNL", "REASON"))}
	rows := m.state.Trades
	if len(rows) > maxTradeRows {
		rows = rows[:maxTradeRows]
	}
	for _, t := range rows {
		pnl := format.OptionalNumber(t.DisplayPnL)
		if t.Unrealized {
			pnl += "*"
		}
		pnlCell := fmt.Sprintf("%14s", pnl)
		if t.DisplayPnL != nil {
			pnlCell = signClass(*t.DisplayPnL).Render(pnlCell)
		}
		side := signalStyle(core.SignalType(t.Side)).Render(fmt.Sprintf("%-4s", t.Side))
		lines = append(lines, fmt.Sprintf("%-8s %-8s %s %14s %s  %s",
			format.TradeTime(t.Timestamp, m.deps.Location),
			format.OrDash(t.Symbol),
			side,
			format.Number(t.Price),
			pnlCell,
			format.OrDash(t.Reason),
		))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderLogs() string {
	logs := m.state.Logs
	if len(logs) == 0 {
		return mutedStyle.Render("No logs")
	}
	if len(logs) > maxLogRows {
		logs = logs[len(logs)-maxLogRows:]
	}
	lines := make([]string, 0, len(logs))
	for _, l := range logs {
		lines = append(lines, levelStyle(l.Level).Render(l.Raw))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	help := mutedStyle.Render("↑/↓ move  enter select  p pause/resume  r refresh  q quit")
	if m.notice != "" {
		return help + "  " + staleStyle.Render(m.notice)
	}
	return help
}

// interface check
var _ view.Renderer = (*Renderer)(nil)
