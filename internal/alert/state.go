package alert

import (
	"github.com/newthinker/tradewatch/internal/core"
	"github.com/newthinker/tradewatch/internal/view"
)

var watchedResources = []core.Resource{
	core.ResourceScanner,
	core.ResourceSignal,
	core.ResourceAccount,
	core.ResourceStatistics,
	core.ResourceTrades,
	core.ResourceSymbolTrades,
	core.ResourceCandles,
	core.ResourceLogs,
}

// StateMetrics flattens a merged state into the values rules can read:
// cycle_failed, paused, stale_regions, scanner_entries, unrealized_trades and
// <resource>_failures / <resource>_stale for every backend resource.
func StateMetrics(state view.State) map[string]float64 {
	m := map[string]float64{
		"cycle_failed":    boolValue(state.Error != ""),
		"paused":          boolValue(state.Paused),
		"scanner_entries": float64(len(state.Scanner)),
	}

	unrealized := 0
	for _, t := range state.Trades {
		if t.Unrealized {
			unrealized++
		}
	}
	m["unrealized_trades"] = float64(unrealized)

	stale := 0
	for _, r := range watchedResources {
		f := state.Freshness[r]
		m[string(r)+"_failures"] = float64(f.Failures)
		m[string(r)+"_stale"] = boolValue(f.Stale)
		if f.Stale {
			stale++
		}
	}
	m["stale_regions"] = float64(stale)

	return m
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
