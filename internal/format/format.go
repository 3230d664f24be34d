// Package format renders dashboard values for display. Every function is pure;
// values used for time-domain alignment are never modified here.
package format

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/newthinker/tradewatch/internal/core"
	"github.com/shopspring/decimal"
)

var subCent = decimal.New(1, -2)

// Number renders v with 2 decimals, or 8 when 0 < |v| < 0.01 so that
// sub-cent prices stay visible.
func Number(v float64) string {
	d := decimal.NewFromFloat(v)
	abs := d.Abs()
	if abs.IsZero() || !abs.LessThan(subCent) {
		return d.StringFixed(2)
	}
	s := d.StringFixed(8)
	if d.Round(8).IsZero() {
		// below 1e-8: fall back to the exact representation
		s = d.String()
	}
	return s
}

// Currency renders v as a dollar amount. The sign is kept after the symbol.
func Currency(v float64) string {
	return "$" + Number(v)
}

// SignClass returns the css/style class for a signed amount.
func SignClass(v float64) string {
	if v >= 0 {
		return "positive"
	}
	return "negative"
}

// Percent renders a probability in [0,1] as a percentage with one decimal.
func Percent(p float64) string {
	return decimal.NewFromFloat(p).Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

// Probability renders the signal panel probability line.
func Probability(p float64) string {
	return "Prob: " + Percent(p)
}

// Winrate renders the statistics badge. The backend already sends a percentage.
func Winrate(winrate float64, total int) string {
	return fmt.Sprintf("Winrate: %s%% (%d trades)", decimal.NewFromFloat(winrate).String(), total)
}

// SignalClass maps a signal type to buy/sell/hold.
func SignalClass(t core.SignalType) string {
	switch core.SignalType(strings.ToUpper(string(t))) {
	case core.SignalBuy:
		return "buy"
	case core.SignalSell:
		return "sell"
	default:
		return "hold"
	}
}

// EpochTime renders unix seconds as local wall-clock time.
func EpochTime(sec int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(sec, 0).In(loc).Format("15:04:05")
}

var tradeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
}

// ParseTradeTime parses a backend trade timestamp. Zoneless values are read
// in loc; RFC3339 values keep their own offset.
func ParseTradeTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range tradeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, core.WrapError(core.ErrMalformed, fmt.Errorf("unrecognised timestamp %q", s))
}

// TradeTime renders a trade timestamp as local wall-clock time, or the raw
// string when it cannot be parsed.
func TradeTime(s string, loc *time.Location) string {
	t, err := ParseTradeTime(s, loc)
	if err != nil {
		return s
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("15:04:05")
}

// OptionalNumber renders a nullable amount, "-" when absent.
func OptionalNumber(v *float64) string {
	if v == nil {
		return "-"
	}
	return Number(*v)
}

// OrDash returns s, or "-" when s is blank.
func OrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

var logPrefix = regexp.MustCompile(`^(?:\[([^\]]*)\]|(.*?))\s*\[([A-Z]+)\]\s*(.*)$`)

// ParseLogLine splits "<time> [LEVEL] message" or "[time][LEVEL] message".
// Lines without a level keep the whole text as the message.
func ParseLogLine(line string) core.LogLine {
	m := logPrefix.FindStringSubmatch(line)
	if m == nil {
		return core.LogLine{Message: line, Raw: line}
	}
	ts := m[1]
	if ts == "" {
		ts = strings.TrimSpace(m[2])
	}
	return core.LogLine{Time: ts, Level: m[3], Message: m[4], Raw: line}
}

// LevelClass groups log levels into display classes.
func LevelClass(level string) string {
	switch strings.ToUpper(level) {
	case "ERROR", "CRITICAL", "FATAL":
		return "error"
	case "WARN", "WARNING":
		return "warn"
	case "DEBUG":
		return "debug"
	default:
		return "info"
	}
}
