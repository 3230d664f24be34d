// Package alert raises notifications when the dashboard's view of the
// backend degrades. Rules are checked against every merged state.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/tradewatch/internal/notifier"
	"github.com/newthinker/tradewatch/internal/view"
	"go.uber.org/zap"
)

const (
	defaultCooldown = 5 * time.Minute
	deliveryTimeout = 15 * time.Second
)

// Dispatcher delivers a fired alert. *notifier.Registry satisfies it.
type Dispatcher interface {
	NotifyAll(ctx context.Context, alert notifier.Alert) map[string]error
}

// Evaluator evaluates alert rules and sends notifications.
type Evaluator struct {
	dispatcher Dispatcher
	rules      []Rule
	logger     *zap.Logger

	metrics  map[string]float64
	cooldown time.Duration

	// Track pending alerts (waiting for "for" duration)
	pending map[string]time.Time
	// Track last fired time for cooldown
	lastFired map[string]time.Time

	now func() time.Time

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewEvaluator creates a new alert evaluator. Every rule must parse.
func NewEvaluator(rules []Rule, dispatcher Dispatcher, logger *zap.Logger) (*Evaluator, error) {
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid alert rule: %w", err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		dispatcher: dispatcher,
		rules:      append([]Rule(nil), rules...),
		logger:     logger,
		metrics:    make(map[string]float64),
		cooldown:   defaultCooldown,
		pending:    make(map[string]time.Time),
		lastFired:  make(map[string]time.Time),
		now:        time.Now,
	}, nil
}

// SetCooldown sets the cooldown duration between alerts.
func (e *Evaluator) SetCooldown(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cooldown = d
}

// SetClock replaces the time source
func (e *Evaluator) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// SetMetrics updates the current metrics.
func (e *Evaluator) SetMetrics(metrics map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = metrics
}

// Render checks every rule against a freshly merged state
func (e *Evaluator) Render(state view.State) {
	e.SetMetrics(StateMetrics(state))
	e.EvaluateAll()
}

// Evaluate evaluates a single rule and fires notification if triggered.
func (e *Evaluator) Evaluate(rule Rule) {
	if a, fired := e.check(rule); fired {
		e.dispatch(a)
	}
}

// EvaluateAll evaluates all configured rules.
func (e *Evaluator) EvaluateAll() {
	for _, rule := range e.rules {
		e.Evaluate(rule)
	}
}

// Wait blocks until every dispatched alert has been delivered or dropped
func (e *Evaluator) Wait() {
	e.wg.Wait()
}

func (e *Evaluator) check(rule Rule) (notifier.Alert, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()

	if !rule.Evaluate(e.metrics) {
		// Rule not triggered, clear pending state
		delete(e.pending, rule.Name)
		return notifier.Alert{}, false
	}

	if rule.For > 0 {
		pendingSince, isPending := e.pending[rule.Name]
		if !isPending {
			e.pending[rule.Name] = now
			return notifier.Alert{}, false
		}
		if now.Sub(pendingSince) < rule.For {
			return notifier.Alert{}, false
		}
	}

	lastFired, hasFired := e.lastFired[rule.Name]
	if hasFired && now.Sub(lastFired) < e.cooldown {
		return notifier.Alert{}, false
	}

	e.lastFired[rule.Name] = now
	delete(e.pending, rule.Name)

	metric := rule.Metric()
	return notifier.Alert{
		Rule:     rule.Name,
		Severity: rule.Severity,
		Message:  rule.Message,
		Metric:   metric,
		Value:    e.metrics[metric],
		FiredAt:  now,
	}, true
}

// dispatch logs the alert and delivers it in the background
func (e *Evaluator) dispatch(a notifier.Alert) {
	e.logger.Warn("alert fired",
		zap.String("rule", a.Rule),
		zap.String("severity", a.Severity),
		zap.String("metric", a.Metric),
		zap.Float64("value", a.Value),
	)
	if e.dispatcher == nil {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		for name, err := range e.dispatcher.NotifyAll(ctx, a) {
			e.logger.Warn("alert delivery failed",
				zap.String("rule", a.Rule),
				zap.String("notifier", name),
				zap.Error(err),
			)
		}
	}()
}

// interface check
var _ view.Renderer = (*Evaluator)(nil)
