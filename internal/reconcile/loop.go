// Package reconcile drives the refresh cycle: fetch every backend resource,
// merge the results with what is already on screen and push one consistent
// view state to the renderers and chart widgets.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/tradewatch/internal/backend"
	"github.com/newthinker/tradewatch/internal/chart"
	"github.com/newthinker/tradewatch/internal/core"
	"github.com/newthinker/tradewatch/internal/format"
	"github.com/newthinker/tradewatch/internal/metrics"
	"github.com/newthinker/tradewatch/internal/session"
	"github.com/newthinker/tradewatch/internal/view"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	resultOK      = "ok"
	resultPartial = "partial"
	resultFailed  = "failed"
)

// Fetcher is the read side of the backend
type Fetcher interface {
	Balance(ctx context.Context) (*core.AccountSnapshot, error)
	LiveSignal(ctx context.Context) (*core.Signal, error)
	Scanner(ctx context.Context) ([]core.ScannerEntry, error)
	Statistics(ctx context.Context) (*core.Statistics, error)
	Trades(ctx context.Context, q backend.TradeQuery) ([]core.Trade, error)
	Candles(ctx context.Context, q backend.CandleQuery) ([]core.Candle, error)
	Logs(ctx context.Context) ([]string, error)
}

// Options configures the loop
type Options struct {
	Mode         core.Mode
	Interval     time.Duration
	TradesLimit  int
	CandlesLimit int
	// Location is used to read zoneless trade timestamps. Defaults to time.Local.
	Location *time.Location
}

// Loop runs at most one cycle at a time
type Loop struct {
	fetcher Fetcher
	session *session.Session
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Registry
	now     func() time.Time

	mu        sync.RWMutex
	renderers []view.Renderer
	charts    []chart.Adapter

	inFlight atomic.Bool
	pending  atomic.Bool
	cycles   atomic.Int64

	// owned by the goroutine holding inFlight
	prev         view.State
	symTrades    []core.Trade
	symTradesFor string
}

// New creates a loop over fetcher and sess
func New(fetcher Fetcher, sess *session.Session, opts Options, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Mode == "" {
		opts.Mode = core.ModeScanner
	}
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Loop{
		fetcher: fetcher,
		session: sess,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		prev:    view.State{Mode: opts.Mode, Freshness: map[core.Resource]view.Freshness{}},
	}
}

// SetMetrics enables cycle metrics
func (l *Loop) SetMetrics(reg *metrics.Registry) {
	l.metrics = reg
}

// SetClock replaces time.Now, for tests
func (l *Loop) SetClock(now func() time.Time) {
	l.now = now
}

// AddRenderer registers a view renderer
func (l *Loop) AddRenderer(r view.Renderer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.renderers = append(l.renderers, r)
}

// AddChart registers a chart widget
func (l *Loop) AddChart(a chart.Adapter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.charts = append(l.charts, a)
}

// Session returns the session the loop reads
func (l *Loop) Session() *session.Session {
	return l.session
}

// Cycles returns how many cycles have completed
func (l *Loop) Cycles() int64 {
	return l.cycles.Load()
}

// Run performs the initial cycle, then refreshes every interval and after
// every selection until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("refresh loop starting",
		zap.String("mode", string(l.opts.Mode)),
		zap.Duration("interval", l.opts.Interval),
	)

	l.RunCycle(ctx, core.TriggerInitial)

	sched := NewScheduler(l.logger)
	if err := sched.Every(l.opts.Interval, func() { l.RunCycle(ctx, core.TriggerTimer) }); err != nil {
		return fmt.Errorf("scheduling refresh: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("refresh loop shutting down")
			return ctx.Err()
		case symbol := <-l.session.Selections():
			l.logger.Debug("symbol selected", zap.String("symbol", symbol))
			l.Trigger(ctx, core.TriggerSelection)
		}
	}
}

// Trigger starts a cycle without waiting for it
func (l *Loop) Trigger(ctx context.Context, trigger core.Trigger) {
	go l.RunCycle(ctx, trigger)
}

// RunCycle runs one cycle and reports whether it ran. Timer ticks that find
// a cycle in flight are dropped. Selection and manual triggers are folded
// into a single follow-up cycle that runs as soon as the current one ends.
func (l *Loop) RunCycle(ctx context.Context, trigger core.Trigger) bool {
	if !l.inFlight.CompareAndSwap(false, true) {
		if trigger == core.TriggerTimer || trigger == core.TriggerInitial {
			l.logger.Debug("cycle in flight, tick dropped", zap.String("trigger", string(trigger)))
			if l.metrics != nil {
				l.metrics.RecordSkipped(string(trigger))
			}
			return false
		}
		l.pending.Store(true)
		// the running cycle may have released the guard in between
		if !l.inFlight.CompareAndSwap(false, true) {
			return false
		}
	}

	for {
		l.pending.Store(false)
		l.cycle(ctx, trigger)
		l.inFlight.Store(false)

		if !l.pending.Load() || !l.inFlight.CompareAndSwap(false, true) {
			return true
		}
		trigger = core.TriggerSelection
	}
}

type fetchResults struct {
	scanner    []core.ScannerEntry
	live       *core.Signal
	account    *core.AccountSnapshot
	statistics *core.Statistics
	trades     []core.Trade
	symTrades  []core.Trade
	candles    []core.Candle
	logs       []string

	errs map[core.Resource]error
}

func (r *fetchResults) ok(res core.Resource) bool {
	err, attempted := r.errs[res]
	return attempted && err == nil
}

func (l *Loop) cycle(ctx context.Context, trigger core.Trigger) {
	id := uuid.NewString()
	start := l.now()
	log := l.logger.With(zap.String("cycle_id", id), zap.String("trigger", string(trigger)))
	result := resultOK

	defer func() {
		if r := recover(); r != nil {
			err := core.WrapError(core.ErrCycleFailed, fmt.Errorf("panic: %v", r))
			log.Error("cycle panicked", zap.Error(err))
			l.fail(id, start, l.prev.ActiveSymbol, nil, err)
			result = resultFailed
		}
		l.cycles.Add(1)
		if l.metrics != nil {
			l.metrics.RecordCycle(result, l.now().Sub(start).Seconds())
		}
	}()

	active := l.session.ActiveSymbol()
	res := &fetchResults{errs: make(map[core.Resource]error)}

	// the symbol-establishing fetch must resolve before anything per-symbol
	switch l.opts.Mode {
	case core.ModeSingle:
		res.live, res.errs[core.ResourceSignal] = l.fetcher.LiveSignal(ctx)
		if res.live != nil && active == "" {
			active = l.establish(res.live.Symbol, log)
		}
	default:
		res.scanner, res.errs[core.ResourceScanner] = l.fetcher.Scanner(ctx)
		if len(res.scanner) > 0 && active == "" {
			active = l.establish(res.scanner[0].Symbol, log)
		}
	}

	l.fetchIndependent(ctx, active, res)
	l.recordFetches(res, log)

	failed := 0
	for _, err := range res.errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(res.errs) {
		result = resultFailed
		err := core.WrapError(core.ErrCycleFailed, fmt.Errorf("all %d fetches failed", failed))
		log.Warn("cycle failed", zap.Error(err))
		l.fail(id, start, active, res, err)
		return
	}
	if failed > 0 {
		result = resultPartial
	}

	next := l.merge(id, start, active, res)
	l.prev = next
	l.publish(next, log)

	log.Debug("cycle complete",
		zap.String("symbol", active),
		zap.Int("failed_fetches", failed),
		zap.Duration("duration", l.now().Sub(start)),
	)
}

// establish makes symbol active unless the user picked one meanwhile
func (l *Loop) establish(symbol string, log *zap.Logger) string {
	if l.session.EnsureActive(symbol) {
		log.Info("active symbol established", zap.String("symbol", symbol))
		if l.metrics != nil {
			l.metrics.RecordSymbolChange()
		}
		return symbol
	}
	return l.session.ActiveSymbol()
}

func (l *Loop) fetchIndependent(ctx context.Context, active string, res *fetchResults) {
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	run := func(r core.Resource, fn func() error) {
		g.Go(func() error {
			err := fn()
			mu.Lock()
			res.errs[r] = err
			mu.Unlock()
			// errors stay per resource so siblings are never cancelled
			return nil
		})
	}

	run(core.ResourceAccount, func() (err error) {
		res.account, err = l.fetcher.Balance(ctx)
		return err
	})
	run(core.ResourceStatistics, func() (err error) {
		res.statistics, err = l.fetcher.Statistics(ctx)
		return err
	})
	run(core.ResourceTrades, func() (err error) {
		res.trades, err = l.fetcher.Trades(ctx, backend.TradeQuery{Limit: l.opts.TradesLimit})
		return err
	})
	if active != "" {
		run(core.ResourceSymbolTrades, func() (err error) {
			res.symTrades, err = l.fetcher.Trades(ctx, backend.TradeQuery{Symbol: active, Limit: l.opts.TradesLimit})
			return err
		})
	}
	run(core.ResourceCandles, func() (err error) {
		res.candles, err = l.fetcher.Candles(ctx, backend.CandleQuery{Symbol: active, Limit: l.opts.CandlesLimit})
		return err
	})
	run(core.ResourceLogs, func() (err error) {
		res.logs, err = l.fetcher.Logs(ctx)
		return err
	})

	_ = g.Wait()
}

func (l *Loop) recordFetches(res *fetchResults, log *zap.Logger) {
	for r, err := range res.errs {
		outcome := resultOK
		if err != nil {
			outcome = "error"
			log.Warn("fetch failed", zap.String("resource", string(r)), zap.Error(err))
		}
		if l.metrics != nil {
			l.metrics.RecordFetch(string(r), outcome)
		}
	}
}

// merge layers this cycle's successful fetches over the previous state
func (l *Loop) merge(id string, start time.Time, active string, res *fetchResults) view.State {
	prev := l.prev
	next := prev
	next.CycleID = id
	next.UpdatedAt = start
	next.Mode = l.opts.Mode
	next.ActiveSymbol = active
	next.Paused = l.session.Paused()
	next.Error = ""
	next.Freshness = l.freshness(start, res)

	symbolChanged := prev.ActiveSymbol != active

	if res.ok(core.ResourceScanner) {
		next.Scanner = res.scanner
	}
	if res.ok(core.ResourceAccount) {
		next.Account = res.account
	}
	if res.ok(core.ResourceStatistics) {
		next.Statistics = res.statistics
	}
	if res.ok(core.ResourceLogs) {
		next.Logs = make([]core.LogLine, 0, len(res.logs))
		for _, line := range res.logs {
			next.Logs = append(next.Logs, format.ParseLogLine(line))
		}
	}

	// symbol-scoped regions never carry another symbol's data
	switch {
	case res.ok(core.ResourceCandles):
		next.Candles = res.candles
	case symbolChanged:
		next.Candles = nil
	}
	switch {
	case res.ok(core.ResourceSymbolTrades):
		l.symTrades, l.symTradesFor = res.symTrades, active
	case l.symTradesFor != active:
		l.symTrades, l.symTradesFor = nil, active
	}

	switch l.opts.Mode {
	case core.ModeSingle:
		if res.ok(core.ResourceSignal) {
			next.Signal = DeriveSignal(core.ModeSingle, active, nil, res.live)
		} else if symbolChanged {
			next.Signal = nil
		}
	default:
		next.Signal = DeriveSignal(core.ModeScanner, active, next.Scanner, nil)
	}

	closes := LatestCloses(next.Scanner, next.Candles, active, next.Signal)
	if res.ok(core.ResourceTrades) {
		next.Trades = ApplyUnrealized(res.trades, closes, active)
	}
	next.Markers = BuildMarkers(l.symTrades, next.Candles, l.opts.Location)

	return next
}

func (l *Loop) freshness(start time.Time, res *fetchResults) map[core.Resource]view.Freshness {
	out := make(map[core.Resource]view.Freshness, len(l.prev.Freshness)+len(res.errs))
	for r, f := range l.prev.Freshness {
		out[r] = f
	}
	for r, err := range res.errs {
		f := out[r]
		if err != nil {
			f.Stale = true
			f.Failures++
			f.LastError = err.Error()
		} else {
			f = view.Freshness{LastSuccess: start}
		}
		out[r] = f
	}
	return out
}

// fail publishes the previous regions with the cycle error set. Charts are
// left as they are unless the active symbol moved.
func (l *Loop) fail(id string, start time.Time, active string, res *fetchResults, err error) {
	next := l.prev
	next.CycleID = id
	next.UpdatedAt = start
	next.Paused = l.session.Paused()
	next.Error = err.Error()
	if res != nil {
		next.Freshness = l.freshness(start, res)
	}

	symbolChanged := active != "" && active != next.ActiveSymbol
	if symbolChanged {
		next.ActiveSymbol = active
		next.Candles = nil
		next.Markers = nil
		if l.opts.Mode == core.ModeSingle {
			next.Signal = nil
		} else {
			next.Signal = DeriveSignal(core.ModeScanner, active, next.Scanner, nil)
		}
	}
	l.prev = next

	l.mu.RLock()
	renderers := append([]view.Renderer(nil), l.renderers...)
	charts := append([]chart.Adapter(nil), l.charts...)
	l.mu.RUnlock()

	for _, r := range renderers {
		r.Render(next.Clone())
	}
	if symbolChanged {
		for _, c := range charts {
			c.SetCandles(nil)
			_ = c.SetMarkers(nil)
		}
	}
}

func (l *Loop) publish(state view.State, log *zap.Logger) {
	l.mu.RLock()
	renderers := append([]view.Renderer(nil), l.renderers...)
	charts := append([]chart.Adapter(nil), l.charts...)
	l.mu.RUnlock()

	for _, r := range renderers {
		r.Render(state.Clone())
	}
	for _, c := range charts {
		c.SetCandles(state.Candles)
		if err := c.SetMarkers(state.Markers); err != nil {
			log.Error("chart rejected markers", zap.Error(err))
		}
	}
}
