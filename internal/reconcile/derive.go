package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/tradewatch/internal/chart"
	"github.com/newthinker/tradewatch/internal/core"
	"github.com/newthinker/tradewatch/internal/format"
	"github.com/newthinker/tradewatch/internal/view"
	"github.com/shopspring/decimal"
)

const (
	// DefaultReason is shown when the backend gives no reason
	DefaultReason = "AI Model Decision"
	// LowVolatility is the threshold under which the reason is overridden
	LowVolatility = 0.002
)

// DeriveSignal picks the signal shown for the active symbol. In scanner
// mode it is the scanner entry matching active; in single mode it is the
// live signal. Returns nil when there is nothing to show.
func DeriveSignal(mode core.Mode, active string, scanner []core.ScannerEntry, live *core.Signal) *core.Signal {
	var sig *core.Signal
	switch mode {
	case core.ModeSingle:
		if live == nil || live.SignalType == "" {
			return nil
		}
		s := *live
		if s.Symbol == "" {
			s.Symbol = active
		}
		sig = &s
	default:
		for _, e := range scanner {
			if e.Symbol != active {
				continue
			}
			sig = &core.Signal{
				Symbol:      e.Symbol,
				SignalType:  e.SignalType,
				Probability: e.Probability,
				ClosePrice:  e.ClosePrice,
			}
			break
		}
		if sig == nil {
			return nil
		}
	}

	if sig.Reason == "" {
		sig.Reason = DefaultReason
	}
	if v := sig.Volatility; v != nil && *v > 0 && *v < LowVolatility {
		sig.Reason = fmt.Sprintf("Low Volatility (%.4f)", *v)
	}
	return sig
}

// LatestCloses returns the most recent known close per symbol. The active
// symbol's last candle beats the scanner, which beats the live signal.
func LatestCloses(scanner []core.ScannerEntry, candles []core.Candle, active string, signal *core.Signal) map[string]float64 {
	closes := make(map[string]float64, len(scanner)+1)
	if signal != nil && signal.ClosePrice > 0 {
		sym := signal.Symbol
		if sym == "" {
			sym = active
		}
		if sym != "" {
			closes[sym] = signal.ClosePrice
		}
	}
	for _, e := range scanner {
		if e.ClosePrice > 0 {
			closes[e.Symbol] = e.ClosePrice
		}
	}
	if active != "" && len(candles) > 0 {
		if c := candles[len(candles)-1].Close; c > 0 {
			closes[active] = c
		}
	}
	return closes
}

// ApplyUnrealized turns trades into table rows. Settled trades keep their
// realized PnL; unsettled ones get an estimate from the latest close of
// their symbol. Trades without a symbol are priced against fallback.
// The input order is preserved.
func ApplyUnrealized(trades []core.Trade, closes map[string]float64, fallback string) []view.TradeRow {
	rows := make([]view.TradeRow, 0, len(trades))
	for _, t := range trades {
		row := view.TradeRow{Trade: t, DisplayPnL: t.PnL}
		if !t.IsSettled() {
			sym := t.Symbol
			if sym == "" {
				sym = fallback
			}
			if last, ok := closes[sym]; ok {
				pnl := UnrealizedPnL(t.Side, t.Price, t.Amount, last)
				row.DisplayPnL = &pnl
				row.Unrealized = true
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// UnrealizedPnL is (last - price) * amount for BUY and the negation for SELL.
func UnrealizedPnL(side core.Side, price, amount, last float64) float64 {
	diff := decimal.NewFromFloat(last).Sub(decimal.NewFromFloat(price))
	if side == core.SideSell {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromFloat(amount)).InexactFloat64()
}

// BuildMarkers projects trades onto the candle time axis. Markers come out
// sorted ascending; equal times keep trade order. Each marker snaps to the
// bar containing its trade, trades older than the first bar are dropped and
// newer ones land on the last bar. Without candles the raw epoch is used.
// Trades whose timestamp cannot be parsed are skipped.
func BuildMarkers(trades []core.Trade, candles []core.Candle, loc *time.Location) []core.Marker {
	type placed struct {
		at    int64
		trade core.Trade
	}
	items := make([]placed, 0, len(trades))
	for _, t := range trades {
		ts, err := format.ParseTradeTime(t.Timestamp, loc)
		if err != nil {
			continue
		}
		items = append(items, placed{at: ts.Unix(), trade: t})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].at < items[j].at })

	markers := make([]core.Marker, 0, len(items))
	for _, it := range items {
		at := it.at
		if len(candles) > 0 {
			i := sort.Search(len(candles), func(i int) bool { return candles[i].Time > at }) - 1
			if i < 0 {
				continue
			}
			at = candles[i].Time
		}
		markers = append(markers, markerFor(it.trade, at))
	}
	return markers
}

func markerFor(t core.Trade, at int64) core.Marker {
	if t.Side == core.SideSell {
		return core.Marker{
			Time:     at,
			Position: core.MarkerAboveBar,
			Color:    chart.ColorSellMark,
			Shape:    core.ShapeArrowDown,
			Text:     string(t.Side),
		}
	}
	return core.Marker{
		Time:     at,
		Position: core.MarkerBelowBar,
		Color:    chart.ColorBuyMark,
		Shape:    core.ShapeArrowUp,
		Text:     string(t.Side),
	}
}
