// Package backend reads the trading bot's status API. Each method is one
// independent request; a failure is classified as transport, status or
// payload error and never affects other resources.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/newthinker/tradewatch/internal/core"
)

const defaultTimeout = 2 * time.Second

// Client talks to the backend over HTTP/JSON
type Client struct {
	client  *resty.Client
	baseURL string
}

// New creates a client with a bounded per-request timeout. Retries are left
// to the refresh interval.
func New(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{client: client, baseURL: baseURL}
}

// BaseURL returns the backend root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// TradeQuery narrows GET /trades. Zero values are omitted.
type TradeQuery struct {
	Symbol string
	Limit  int
}

// CandleQuery narrows GET /chart-data. Zero values are omitted.
type CandleQuery struct {
	Symbol string
	Limit  int
}

// Balance fetches the latest account snapshot
func (c *Client) Balance(ctx context.Context) (*core.AccountSnapshot, error) {
	var w balanceWire
	if err := c.get(ctx, "/balance", nil, &w); err != nil {
		return nil, err
	}
	if w.Balance == nil || w.Equity == nil {
		return nil, missing("/balance", "balance/equity")
	}
	return &core.AccountSnapshot{Balance: *w.Balance, Equity: *w.Equity}, nil
}

// LiveSignal fetches the single-symbol signal. An empty object means the
// bot has not produced a signal yet and yields (nil, nil).
func (c *Client) LiveSignal(ctx context.Context) (*core.Signal, error) {
	var w signalWire
	if err := c.get(ctx, "/live-signal", nil, &w); err != nil {
		return nil, err
	}
	if w.isEmpty() {
		return nil, nil
	}
	if w.SignalType == nil {
		return nil, missing("/live-signal", "signal_type")
	}
	return w.toSignal(), nil
}

// Scanner fetches the ranked multi-symbol feed in backend order
func (c *Client) Scanner(ctx context.Context) ([]core.ScannerEntry, error) {
	var rows []scannerWire
	if err := c.get(ctx, "/scanner", nil, &rows); err != nil {
		return nil, err
	}
	entries := make([]core.ScannerEntry, 0, len(rows))
	for i, r := range rows {
		if r.Symbol == nil || *r.Symbol == "" || r.SignalType == nil {
			return nil, missing("/scanner", fmt.Sprintf("symbol/signal_type at index %d", i))
		}
		entries = append(entries, core.ScannerEntry{
			Symbol:      *r.Symbol,
			SignalType:  core.SignalType(*r.SignalType),
			Probability: r.Probability,
			ClosePrice:  r.ClosePrice,
		})
	}
	return entries, nil
}

// Statistics fetches the closed-trade summary
func (c *Client) Statistics(ctx context.Context) (*core.Statistics, error) {
	var w statisticsWire
	if err := c.get(ctx, "/statistics", nil, &w); err != nil {
		return nil, err
	}
	if w.PnL == nil || w.Winrate == nil || w.TotalTrades == nil {
		return nil, missing("/statistics", "pnl/winrate/total_trades")
	}
	return &core.Statistics{PnL: *w.PnL, Winrate: *w.Winrate, TotalTrades: *w.TotalTrades}, nil
}

// Trades fetches a window of trade history as delivered
func (c *Client) Trades(ctx context.Context, q TradeQuery) ([]core.Trade, error) {
	params := map[string]string{}
	if q.Symbol != "" {
		params["symbol"] = q.Symbol
	}
	if q.Limit > 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}

	var rows []tradeWire
	if err := c.get(ctx, "/trades", params, &rows); err != nil {
		return nil, err
	}
	trades := make([]core.Trade, 0, len(rows))
	for i, r := range rows {
		if r.Timestamp == nil || r.Side == nil || r.Price == nil {
			return nil, missing("/trades", fmt.Sprintf("timestamp/side/price at index %d", i))
		}
		trades = append(trades, r.toTrade())
	}
	return trades, nil
}

// Candles fetches the chart series. The backend must deliver it in
// ascending time order; anything else is rejected as malformed.
func (c *Client) Candles(ctx context.Context, q CandleQuery) ([]core.Candle, error) {
	params := map[string]string{}
	if q.Symbol != "" {
		params["symbol"] = q.Symbol
	}
	if q.Limit > 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}

	var rows []candleWire
	if err := c.get(ctx, "/chart-data", params, &rows); err != nil {
		return nil, err
	}
	candles := make([]core.Candle, 0, len(rows))
	var prev int64
	for i, r := range rows {
		if r.Time == nil || r.Close == nil {
			return nil, missing("/chart-data", fmt.Sprintf("time/close at index %d", i))
		}
		if i > 0 && *r.Time < prev {
			return nil, core.WrapError(core.ErrMalformed,
				fmt.Errorf("/chart-data: time not ascending at index %d", i))
		}
		prev = *r.Time
		candles = append(candles, r.toCandle())
	}
	return candles, nil
}

// Logs fetches the preformatted log tail, newest last
func (c *Client) Logs(ctx context.Context) ([]string, error) {
	var w logsWire
	if err := c.get(ctx, "/logs", nil, &w); err != nil {
		return nil, err
	}
	if w.Logs == nil {
		return nil, missing("/logs", "logs")
	}
	return *w.Logs, nil
}

// Control posts a pause/resume intent and returns the state the backend
// reports. Callers must adopt the returned state.
func (c *Client) Control(ctx context.Context, action core.ControlAction) (core.BotStatus, error) {
	if !action.IsValid() {
		return "", core.WrapError(core.ErrInvalidAction, fmt.Errorf("action %q", action))
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(controlRequest{Action: string(action)}).
		Post("/control")
	if err := classify("/control", resp, err); err != nil {
		return "", err
	}

	var w controlWire
	if err := json.Unmarshal(resp.Body(), &w); err != nil {
		return "", core.WrapError(core.ErrMalformed, fmt.Errorf("/control: %w", err))
	}
	status := core.BotStatus(w.Status)
	if status != core.StatusPaused && status != core.StatusRunning {
		return "", missing("/control", "status")
	}
	return status, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	req := c.client.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(path)
	if err := classify(path, resp, err); err != nil {
		return err
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return core.WrapError(core.ErrMalformed, fmt.Errorf("%s: %w", path, err))
	}
	return nil
}

func classify(path string, resp *resty.Response, err error) error {
	if err != nil {
		return core.WrapError(core.ErrTransport, fmt.Errorf("%s: %w", path, err))
	}
	if !resp.IsSuccess() {
		return core.WrapError(core.ErrBadStatus, fmt.Errorf("%s: status %d", path, resp.StatusCode()))
	}
	return nil
}

func missing(path, fields string) error {
	return core.WrapError(core.ErrMalformed, fmt.Errorf("%s: missing %s", path, fields))
}
