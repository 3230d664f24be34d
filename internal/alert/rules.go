package alert

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// "metric op value", where op is one of >, <, >=, <=, ==, !=
var exprPattern = regexp.MustCompile(`^(\w+)\s*(>=|<=|==|!=|>|<)\s*([\d.]+)$`)

// Rule defines an alert rule.
type Rule struct {
	Name     string        `mapstructure:"name"`
	Expr     string        `mapstructure:"expr"`
	For      time.Duration `mapstructure:"for"`
	Severity string        `mapstructure:"severity"`
	Message  string        `mapstructure:"message"`
}

type condition struct {
	metric    string
	op        string
	threshold float64
}

func (r *Rule) parse() (condition, error) {
	matches := exprPattern.FindStringSubmatch(strings.TrimSpace(r.Expr))
	if len(matches) != 4 {
		return condition{}, fmt.Errorf("rule %q: cannot parse expression %q", r.Name, r.Expr)
	}
	threshold, err := strconv.ParseFloat(matches[3], 64)
	if err != nil {
		return condition{}, fmt.Errorf("rule %q: bad threshold: %w", r.Name, err)
	}
	return condition{metric: matches[1], op: matches[2], threshold: threshold}, nil
}

// Validate reports whether the rule can be evaluated
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name required")
	}
	_, err := r.parse()
	return err
}

// Metric returns the metric name the expression reads
func (r *Rule) Metric() string {
	c, err := r.parse()
	if err != nil {
		return ""
	}
	return c.metric
}

// Evaluate evaluates the rule expression against metrics. A missing metric
// never triggers.
func (r *Rule) Evaluate(metrics map[string]float64) bool {
	c, err := r.parse()
	if err != nil {
		return false
	}

	value, exists := metrics[c.metric]
	if !exists {
		return false
	}

	switch c.op {
	case ">":
		return value > c.threshold
	case "<":
		return value < c.threshold
	case ">=":
		return value >= c.threshold
	case "<=":
		return value <= c.threshold
	case "==":
		return value == c.threshold
	case "!=":
		return value != c.threshold
	default:
		return false
	}
}

// FormatMessage formats the alert message with the metric value.
func (r *Rule) FormatMessage(metrics map[string]float64) string {
	msg := fmt.Sprintf("[%s] %s: %s", strings.ToUpper(r.Severity), r.Name, r.Message)
	if m := r.Metric(); m != "" {
		if v, ok := metrics[m]; ok {
			msg += fmt.Sprintf(" (%s=%g)", m, v)
		}
	}
	return msg
}

// DefaultRules watch the backend connection and the busiest regions
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "backend_down",
			Expr:     "cycle_failed == 1",
			For:      30 * time.Second,
			Severity: "critical",
			Message:  "every backend request is failing",
		},
		{
			Name:     "trades_stale",
			Expr:     "trades_failures >= 5",
			Severity: "warning",
			Message:  "trade history is not refreshing",
		},
		{
			Name:     "candles_stale",
			Expr:     "candles_failures >= 5",
			Severity: "warning",
			Message:  "chart data is not refreshing",
		},
	}
}
