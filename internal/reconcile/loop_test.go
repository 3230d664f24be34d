package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/tradewatch/internal/backend"
	"github.com/newthinker/tradewatch/internal/core"
	"github.com/newthinker/tradewatch/internal/format"
	"github.com/newthinker/tradewatch/internal/metrics"
	"github.com/newthinker/tradewatch/internal/session"
	"github.com/newthinker/tradewatch/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errDown = core.WrapError(core.ErrTransport, errors.New("connection refused"))

type fakeFetcher struct {
	mu sync.Mutex

	scanner    []core.ScannerEntry
	live       *core.Signal
	account    *core.AccountSnapshot
	statistics *core.Statistics
	trades     map[string][]core.Trade // keyed by symbol, "" is global
	candles    map[string][]core.Candle
	logs       []string

	fail map[core.Resource]bool

	// block, when set, is waited on inside Scanner after entered is signalled
	block   chan struct{}
	entered chan struct{}

	scannerCalls int
	tradeQueries []backend.TradeQuery
	candleCalls  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		scanner: []core.ScannerEntry{
			{Symbol: "BTC", SignalType: core.SignalBuy, Probability: 0.82, ClosePrice: 65000.12},
			{Symbol: "ETH", SignalType: core.SignalSell, Probability: 0.61, ClosePrice: 3100},
		},
		account:    &core.AccountSnapshot{Balance: 1000, Equity: 1050},
		statistics: &core.Statistics{PnL: 50, Winrate: 55.5, TotalTrades: 12},
		trades: map[string][]core.Trade{
			"": {
				{ID: 2, Timestamp: "2024-01-01 00:02:30", Symbol: "BTC", Side: core.SideBuy, Price: 64000, Amount: 0.5, Status: core.TradeStatusOpen},
				{ID: 1, Timestamp: "2024-01-01 00:00:10", Symbol: "ETH", Side: core.SideSell, Price: 3000, Amount: 1, PnL: ptr(-12.5)},
			},
			"BTC": {
				{ID: 2, Timestamp: "2024-01-01 00:02:30", Symbol: "BTC", Side: core.SideBuy, Price: 64000, Amount: 0.5, Status: core.TradeStatusOpen},
				{ID: 0, Timestamp: "2024-01-01 00:00:30", Symbol: "BTC", Side: core.SideSell, Price: 63000, Amount: 0.5, PnL: ptr(20)},
			},
			"ETH": {
				{ID: 1, Timestamp: "2024-01-01 00:00:10", Symbol: "ETH", Side: core.SideSell, Price: 3000, Amount: 1, PnL: ptr(-12.5)},
			},
		},
		candles: map[string][]core.Candle{
			"BTC": {
				{Time: utc(0), Open: 64000, High: 64100, Low: 63900, Close: 64050},
				{Time: utc(60), Open: 64050, High: 64500, Low: 64000, Close: 64400},
				{Time: utc(120), Open: 64400, High: 65200, Low: 64300, Close: 65100},
			},
			"ETH": {
				{Time: utc(0), Open: 3000, High: 3050, Low: 2990, Close: 3020},
			},
		},
		logs: []string{"2024-01-01 00:00:00 [INFO] started", "2024-01-01 00:01:00 [WARN] slow"},
		fail: map[core.Resource]bool{},
	}
}

func ptr(v float64) *float64 { return &v }

// utc returns the epoch of 2024-01-01 00:00:00 UTC plus offset seconds
func utc(offset int64) int64 {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix() + offset
}

func (f *fakeFetcher) failing(r core.Resource) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[r]
}

func (f *fakeFetcher) setFail(r core.Resource, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[r] = v
}

func (f *fakeFetcher) Balance(ctx context.Context) (*core.AccountSnapshot, error) {
	if f.failing(core.ResourceAccount) {
		return nil, errDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a := *f.account
	return &a, nil
}

func (f *fakeFetcher) LiveSignal(ctx context.Context) (*core.Signal, error) {
	if f.failing(core.ResourceSignal) {
		return nil, errDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.live == nil {
		return nil, nil
	}
	s := *f.live
	return &s, nil
}

func (f *fakeFetcher) Scanner(ctx context.Context) ([]core.ScannerEntry, error) {
	f.mu.Lock()
	f.scannerCalls++
	block, entered := f.block, f.entered
	f.block, f.entered = nil, nil
	f.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if block != nil {
		<-block
	}
	if f.failing(core.ResourceScanner) {
		return nil, errDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.ScannerEntry(nil), f.scanner...), nil
}

func (f *fakeFetcher) Statistics(ctx context.Context) (*core.Statistics, error) {
	if f.failing(core.ResourceStatistics) {
		return nil, errDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := *f.statistics
	return &s, nil
}

func (f *fakeFetcher) Trades(ctx context.Context, q backend.TradeQuery) ([]core.Trade, error) {
	f.mu.Lock()
	f.tradeQueries = append(f.tradeQueries, q)
	f.mu.Unlock()

	r := core.ResourceTrades
	if q.Symbol != "" {
		r = core.ResourceSymbolTrades
	}
	if f.failing(r) {
		return nil, errDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Trade(nil), f.trades[q.Symbol]...), nil
}

func (f *fakeFetcher) Candles(ctx context.Context, q backend.CandleQuery) ([]core.Candle, error) {
	f.mu.Lock()
	f.candleCalls = append(f.candleCalls, q.Symbol)
	f.mu.Unlock()

	if f.failing(core.ResourceCandles) {
		return nil, errDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Candle(nil), f.candles[q.Symbol]...), nil
}

func (f *fakeFetcher) Logs(ctx context.Context) ([]string, error) {
	if f.failing(core.ResourceLogs) {
		return nil, errDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.logs...), nil
}

func (f *fakeFetcher) failAll() {
	for _, r := range []core.Resource{
		core.ResourceScanner, core.ResourceSignal, core.ResourceAccount, core.ResourceStatistics,
		core.ResourceTrades, core.ResourceSymbolTrades, core.ResourceCandles, core.ResourceLogs,
	} {
		f.setFail(r, true)
	}
}

// recorder keeps every rendered state
type recorder struct {
	mu     sync.Mutex
	states []view.State
}

func (r *recorder) Render(s view.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) all() []view.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]view.State(nil), r.states...)
}

func (r *recorder) last(t *testing.T) view.State {
	t.Helper()
	all := r.all()
	require.NotEmpty(t, all, "nothing rendered")
	return all[len(all)-1]
}

// fakeChart records what the loop pushes
type fakeChart struct {
	mu          sync.Mutex
	candles     []core.Candle
	markers     []core.Marker
	candleCalls int
}

func (c *fakeChart) SetCandles(candles []core.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candles = candles
	c.candleCalls++
}

func (c *fakeChart) SetMarkers(markers []core.Marker) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers = markers
	return nil
}

func (c *fakeChart) Resize(width, height int) {}

var fixedNow = time.Date(2024, 1, 1, 0, 3, 0, 0, time.UTC)

func newTestLoop(t *testing.T, f *fakeFetcher, mode core.Mode) (*Loop, *recorder, *fakeChart) {
	t.Helper()
	l := New(f, session.New(), Options{
		Mode:         mode,
		TradesLimit:  50,
		CandlesLimit: 100,
		Location:     time.UTC,
	}, zap.NewNop())
	l.SetClock(func() time.Time { return fixedNow })
	rec := &recorder{}
	ch := &fakeChart{}
	l.AddRenderer(rec)
	l.AddChart(ch)
	return l, rec, ch
}

func TestLoop_FirstScannerEntryBecomesActive(t *testing.T) {
	f := newFakeFetcher()
	l, rec, _ := newTestLoop(t, f, core.ModeScanner)

	require.True(t, l.RunCycle(context.Background(), core.TriggerInitial))

	assert.Equal(t, "BTC", l.Session().ActiveSymbol())
	state := rec.last(t)
	assert.Equal(t, "BTC", state.ActiveSymbol)
	require.NotNil(t, state.Signal)
	assert.Equal(t, "BTC", state.Signal.Symbol)
	assert.Equal(t, core.SignalBuy, state.Signal.SignalType)
	assert.Equal(t, "Prob: 82.0%", format.Probability(state.Signal.Probability))
	assert.Equal(t, DefaultReason, state.Signal.Reason)
	assert.Empty(t, state.Error)

	// per-symbol fetches used the freshly established symbol
	assert.Contains(t, f.candleCalls, "BTC")
	assert.Contains(t, f.tradeQueries, backend.TradeQuery{Symbol: "BTC", Limit: 50})
	assert.Contains(t, f.tradeQueries, backend.TradeQuery{Limit: 50})
}

func TestLoop_ExistingSelectionIsKept(t *testing.T) {
	f := newFakeFetcher()
	l, rec, _ := newTestLoop(t, f, core.ModeScanner)
	require.NoError(t, l.Session().Select("ETH"))

	l.RunCycle(context.Background(), core.TriggerTimer)

	assert.Equal(t, "ETH", l.Session().ActiveSymbol())
	state := rec.last(t)
	require.NotNil(t, state.Signal)
	assert.Equal(t, core.SignalSell, state.Signal.SignalType)
}

func TestLoop_DerivedRegions(t *testing.T) {
	f := newFakeFetcher()
	l, rec, ch := newTestLoop(t, f, core.ModeScanner)

	l.RunCycle(context.Background(), core.TriggerInitial)
	state := rec.last(t)

	require.NotNil(t, state.Account)
	assert.Equal(t, 1000.0, state.Account.Balance)
	require.NotNil(t, state.Statistics)
	assert.Equal(t, 12, state.Statistics.TotalTrades)
	require.Len(t, state.Logs, 2)
	assert.Equal(t, "WARN", state.Logs[1].Level)

	// table keeps backend order; open BUY priced against the last BTC candle
	require.Len(t, state.Trades, 2)
	assert.Equal(t, int64(2), state.Trades[0].ID)
	assert.True(t, state.Trades[0].Unrealized)
	require.NotNil(t, state.Trades[0].DisplayPnL)
	assert.InDelta(t, (65100-64000)*0.5, *state.Trades[0].DisplayPnL, 1e-9)
	assert.False(t, state.Trades[1].Unrealized)
	assert.Equal(t, -12.5, *state.Trades[1].DisplayPnL)

	// markers come from BTC trades only, sorted and snapped to bars
	require.Len(t, state.Markers, 2)
	assert.Equal(t, utc(0), state.Markers[0].Time)
	assert.Equal(t, core.ShapeArrowDown, state.Markers[0].Shape)
	assert.Equal(t, utc(120), state.Markers[1].Time)
	assert.Equal(t, core.ShapeArrowUp, state.Markers[1].Shape)

	assert.Equal(t, state.Candles, ch.candles)
	assert.Equal(t, state.Markers, ch.markers)
}

func TestLoop_TradesFailureKeepsPreviousRows(t *testing.T) {
	f := newFakeFetcher()
	l, rec, _ := newTestLoop(t, f, core.ModeScanner)
	ctx := context.Background()

	l.RunCycle(ctx, core.TriggerInitial)
	before := rec.last(t)

	f.setFail(core.ResourceTrades, true)
	f.mu.Lock()
	f.account = &core.AccountSnapshot{Balance: 2000, Equity: 2100}
	f.mu.Unlock()

	l.RunCycle(ctx, core.TriggerTimer)
	after := rec.last(t)

	assert.Empty(t, after.Error, "partial failure must not show the cycle error")
	assert.Equal(t, 2000.0, after.Account.Balance)
	assert.Equal(t, before.Trades, after.Trades)
	assert.Equal(t, before.Candles, after.Candles)
	assert.True(t, after.IsStale(core.ResourceTrades))
	assert.False(t, after.IsStale(core.ResourceAccount))
}

func TestLoop_TradesFailureBeforeAnySuccessRendersEmpty(t *testing.T) {
	f := newFakeFetcher()
	f.setFail(core.ResourceTrades, true)
	l, rec, _ := newTestLoop(t, f, core.ModeScanner)

	l.RunCycle(context.Background(), core.TriggerInitial)
	state := rec.last(t)

	assert.Empty(t, state.Error)
	assert.Empty(t, state.Trades)
	assert.NotNil(t, state.Account)
}

func TestLoop_StalenessCounts(t *testing.T) {
	f := newFakeFetcher()
	l, rec, _ := newTestLoop(t, f, core.ModeScanner)
	ctx := context.Background()

	l.RunCycle(ctx, core.TriggerInitial)
	f.setFail(core.ResourceLogs, true)
	l.RunCycle(ctx, core.TriggerTimer)
	l.RunCycle(ctx, core.TriggerTimer)

	fr := rec.last(t).Freshness[core.ResourceLogs]
	assert.True(t, fr.Stale)
	assert.Equal(t, 2, fr.Failures)
	assert.Contains(t, fr.LastError, "TRANSPORT")
	assert.Equal(t, fixedNow, fr.LastSuccess)

	f.setFail(core.ResourceLogs, false)
	l.RunCycle(ctx, core.TriggerTimer)
	fr = rec.last(t).Freshness[core.ResourceLogs]
	assert.False(t, fr.Stale)
	assert.Zero(t, fr.Failures)
}

func TestLoop_TotalFailure(t *testing.T) {
	f := newFakeFetcher()
	l, rec, ch := newTestLoop(t, f, core.ModeScanner)
	reg := metrics.NewRegistry()
	l.SetMetrics(reg)
	ctx := context.Background()

	l.RunCycle(ctx, core.TriggerInitial)
	good := rec.last(t)
	pushes := ch.candleCalls

	f.failAll()
	l.RunCycle(ctx, core.TriggerTimer)
	bad := rec.last(t)

	assert.NotEmpty(t, bad.Error)
	assert.Equal(t, good.Account, bad.Account, "regions keep their previous values")
	assert.Equal(t, good.Trades, bad.Trades)
	assert.Equal(t, pushes, ch.candleCalls, "chart is not pushed on total failure")

	// next tick retries unconditionally
	f2 := newFakeFetcher()
	l.fetcher = f2
	l.RunCycle(ctx, core.TriggerTimer)
	assert.Empty(t, rec.last(t).Error)
	assert.Equal(t, int64(3), l.Cycles())
}

func TestLoop_TotalFailureOnFirstCycle(t *testing.T) {
	f := newFakeFetcher()
	f.failAll()
	l, rec, _ := newTestLoop(t, f, core.ModeScanner)

	l.RunCycle(context.Background(), core.TriggerInitial)
	state := rec.last(t)
	assert.NotEmpty(t, state.Error)
	assert.Nil(t, state.Account)
	assert.Empty(t, l.Session().ActiveSymbol())
}

type panicRenderer struct{ once sync.Once }

func (p *panicRenderer) Render(s view.State) {
	p.once.Do(func() { panic("boom") })
}

func TestLoop_RecoversFromPanic(t *testing.T) {
	f := newFakeFetcher()
	l := New(f, session.New(), Options{Location: time.UTC}, zap.NewNop())
	rec := &recorder{}
	l.AddRenderer(&panicRenderer{})
	l.AddRenderer(rec)

	assert.NotPanics(t, func() { l.RunCycle(context.Background(), core.TriggerInitial) })
	assert.Contains(t, rec.last(t).Error, "CYCLE_FAILED")
	assert.False(t, l.inFlight.Load(), "guard released after panic")
}

func TestLoop_Idempotent(t *testing.T) {
	f := newFakeFetcher()
	l, rec, _ := newTestLoop(t, f, core.ModeScanner)
	ctx := context.Background()

	l.RunCycle(ctx, core.TriggerInitial)
	l.RunCycle(ctx, core.TriggerTimer)

	all := rec.all()
	require.Len(t, all, 2)
	first, second := all[0], all[1]
	first.CycleID, second.CycleID = "", ""
	assert.Equal(t, first, second)
	assert.Len(t, second.Trades, 2, "no duplicate rows")
	assert.Len(t, second.Markers, 2)
}

func TestLoop_SelectionMidCycle(t *testing.T) {
	f := newFakeFetcher()
	l, rec, _ := newTestLoop(t, f, core.ModeScanner)
	ctx := context.Background()

	l.RunCycle(ctx, core.TriggerInitial)
	require.Equal(t, "BTC", l.Session().ActiveSymbol())

	release := make(chan struct{})
	entered := make(chan struct{})
	f.mu.Lock()
	f.block, f.entered = release, entered
	f.mu.Unlock()

	done := make(chan bool)
	go func() { done <- l.RunCycle(ctx, core.TriggerTimer) }()
	<-entered

	// the user clicks ETH while the BTC cycle is in flight
	require.NoError(t, l.Session().Select("ETH"))
	assert.False(t, l.RunCycle(ctx, core.TriggerSelection))
	close(release)
	assert.True(t, <-done)

	all := rec.all()
	require.Len(t, all, 3, "initial, in-flight and exactly one follow-up")

	inFlight := all[1]
	assert.Equal(t, "BTC", inFlight.ActiveSymbol)
	require.NotNil(t, inFlight.Signal)
	assert.Equal(t, "BTC", inFlight.Signal.Symbol)
	for _, m := range inFlight.Markers {
		assert.GreaterOrEqual(t, m.Time, utc(0))
	}

	followUp := all[2]
	assert.Equal(t, "ETH", followUp.ActiveSymbol)
	require.NotNil(t, followUp.Signal)
	assert.Equal(t, "ETH", followUp.Signal.Symbol)
	assert.Equal(t, f.candles["ETH"], followUp.Candles)
	require.Len(t, followUp.Markers, 1)
	assert.Equal(t, core.ShapeArrowDown, followUp.Markers[0].Shape)
}

func TestLoop_TimerTickDroppedWhileInFlight(t *testing.T) {
	f := newFakeFetcher()
	l, rec, _ := newTestLoop(t, f, core.ModeScanner)
	reg := metrics.NewRegistry()
	l.SetMetrics(reg)
	ctx := context.Background()

	release := make(chan struct{})
	entered := make(chan struct{})
	f.block, f.entered = release, entered

	done := make(chan bool)
	go func() { done <- l.RunCycle(ctx, core.TriggerInitial) }()
	<-entered

	assert.False(t, l.RunCycle(ctx, core.TriggerTimer))
	assert.False(t, l.RunCycle(ctx, core.TriggerTimer))
	close(release)
	assert.True(t, <-done)

	assert.Len(t, rec.all(), 1, "ticks are dropped, not queued")
	assert.Equal(t, 1, f.scannerCalls)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var skipped float64
	for _, mf := range mfs {
		if mf.GetName() == "tradewatch_cycles_skipped_total" {
			for _, m := range mf.GetMetric() {
				skipped += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, skipped)
}

func TestLoop_SingleMode(t *testing.T) {
	f := newFakeFetcher()
	f.live = &core.Signal{Symbol: "BTC", SignalType: core.SignalHold, Probability: 0.5, ClosePrice: 65000, Volatility: ptr(0.0015)}
	l, rec, _ := newTestLoop(t, f, core.ModeSingle)

	l.RunCycle(context.Background(), core.TriggerInitial)

	assert.Equal(t, 0, f.scannerCalls)
	assert.Equal(t, "BTC", l.Session().ActiveSymbol())
	state := rec.last(t)
	require.NotNil(t, state.Signal)
	assert.Equal(t, "Low Volatility (0.0015)", state.Signal.Reason)
	assert.Empty(t, state.Scanner)
}

func TestLoop_SingleModeWaiting(t *testing.T) {
	f := newFakeFetcher()
	l, rec, _ := newTestLoop(t, f, core.ModeSingle)

	l.RunCycle(context.Background(), core.TriggerInitial)

	state := rec.last(t)
	assert.Nil(t, state.Signal)
	assert.Empty(t, state.Error)
	assert.Empty(t, state.ActiveSymbol)
}

func TestLoop_SymbolScopedRegionsDoNotLeak(t *testing.T) {
	f := newFakeFetcher()
	l, rec, _ := newTestLoop(t, f, core.ModeScanner)
	ctx := context.Background()

	l.RunCycle(ctx, core.TriggerInitial)
	f.setFail(core.ResourceCandles, true)
	f.setFail(core.ResourceSymbolTrades, true)
	require.NoError(t, l.Session().Select("ETH"))
	<-l.Session().Selections()

	l.RunCycle(ctx, core.TriggerSelection)
	state := rec.last(t)
	assert.Equal(t, "ETH", state.ActiveSymbol)
	assert.Empty(t, state.Candles, "BTC candles must not be shown for ETH")
	assert.Empty(t, state.Markers)
}

func TestLoop_TotalFailureAfterSelectionClearsSymbolRegions(t *testing.T) {
	f := newFakeFetcher()
	l, rec, ch := newTestLoop(t, f, core.ModeScanner)
	ctx := context.Background()

	l.RunCycle(ctx, core.TriggerInitial)
	require.NotEmpty(t, ch.candles)

	f.failAll()
	require.NoError(t, l.Session().Select("ETH"))
	<-l.Session().Selections()
	l.RunCycle(ctx, core.TriggerSelection)

	state := rec.last(t)
	assert.NotEmpty(t, state.Error)
	assert.Equal(t, "ETH", state.ActiveSymbol)
	assert.Empty(t, state.Candles)
	assert.Empty(t, state.Markers)
	require.NotNil(t, state.Signal, "scanner from the last good cycle still knows ETH")
	assert.Equal(t, core.SignalSell, state.Signal.SignalType)
	assert.NotNil(t, state.Account, "account is not symbol scoped")
	assert.Empty(t, ch.candles, "chart no longer shows BTC")
}

func TestLoop_PausedReadFromSession(t *testing.T) {
	f := newFakeFetcher()
	l, rec, _ := newTestLoop(t, f, core.ModeScanner)
	l.Session().SetPaused(true)

	l.RunCycle(context.Background(), core.TriggerInitial)
	assert.True(t, rec.last(t).Paused)
}

func TestLoop_RunStopsWithContext(t *testing.T) {
	f := newFakeFetcher()
	l, rec, _ := newTestLoop(t, f, core.ModeScanner)
	l.opts.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error)
	go func() { errc <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, l.Session().Select("ETH"))
	require.Eventually(t, func() bool {
		all := rec.all()
		return len(all) == 2 && all[1].ActiveSymbol == "ETH"
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
