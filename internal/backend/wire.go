package backend

import (
	"strings"

	"github.com/newthinker/tradewatch/internal/core"
)

// Wire types use pointers so that absent required fields can be told apart
// from zero values.

type balanceWire struct {
	Balance *float64 `json:"balance"`
	Equity  *float64 `json:"equity"`
}

type signalWire struct {
	Symbol      *string  `json:"symbol"`
	SignalType  *string  `json:"signal_type"`
	Probability float64  `json:"probability"`
	ClosePrice  float64  `json:"close_price"`
	Reason      *string  `json:"reason"`
	Volatility  *float64 `json:"volatility"`
}

func (w signalWire) isEmpty() bool {
	return w.Symbol == nil && w.SignalType == nil && w.Probability == 0 && w.ClosePrice == 0
}

func (w signalWire) toSignal() *core.Signal {
	s := &core.Signal{
		SignalType:  core.SignalType(*w.SignalType),
		Probability: w.Probability,
		ClosePrice:  w.ClosePrice,
		Volatility:  w.Volatility,
	}
	if w.Symbol != nil {
		s.Symbol = *w.Symbol
	}
	if w.Reason != nil {
		s.Reason = *w.Reason
	}
	return s
}

type scannerWire struct {
	Symbol      *string `json:"symbol"`
	SignalType  *string `json:"signal_type"`
	Probability float64 `json:"probability"`
	ClosePrice  float64 `json:"close_price"`
}

type statisticsWire struct {
	PnL         *float64 `json:"pnl"`
	Winrate     *float64 `json:"winrate"`
	TotalTrades *int     `json:"total_trades"`
}

type tradeWire struct {
	ID        int64    `json:"id"`
	Timestamp *string  `json:"timestamp"`
	Symbol    *string  `json:"symbol"`
	Side      *string  `json:"side"`
	Price     *float64 `json:"price"`
	Amount    float64  `json:"amount"`
	Cost      *float64 `json:"cost"`
	Fee       *float64 `json:"fee"`
	PnL       *float64 `json:"pnl"`
	Status    *string  `json:"status"`
	Reason    *string  `json:"reason"`
}

func (w tradeWire) toTrade() core.Trade {
	t := core.Trade{
		ID:        w.ID,
		Timestamp: *w.Timestamp,
		Side:      core.Side(strings.ToUpper(*w.Side)),
		Price:     *w.Price,
		Amount:    w.Amount,
		Cost:      w.Cost,
		Fee:       w.Fee,
		PnL:       w.PnL,
	}
	if w.Symbol != nil {
		t.Symbol = *w.Symbol
	}
	if w.Status != nil {
		t.Status = *w.Status
	}
	if w.Reason != nil {
		t.Reason = *w.Reason
	}
	return t
}

type candleWire struct {
	Time   *int64   `json:"time"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  *float64 `json:"close"`
	Volume float64  `json:"volume"`
}

func (w candleWire) toCandle() core.Candle {
	return core.Candle{
		Time:   *w.Time,
		Open:   w.Open,
		High:   w.High,
		Low:    w.Low,
		Close:  *w.Close,
		Volume: w.Volume,
	}
}

type logsWire struct {
	Logs *[]string `json:"logs"`
}

type controlRequest struct {
	Action string `json:"action"`
}

type controlWire struct {
	Status string `json:"status"`
}
