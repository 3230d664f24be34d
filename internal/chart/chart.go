// Package chart wraps candlestick widgets behind one contract: the whole
// series and the whole marker overlay are replaced on every call, markers
// must arrive sorted ascending by time, and resizing is driven by the host.
package chart

import (
	"fmt"
	"sort"

	"github.com/newthinker/tradewatch/internal/core"
)

// Adapter is implemented by every chart widget
type Adapter interface {
	// SetCandles replaces the visible series.
	SetCandles(candles []core.Candle)
	// SetMarkers replaces the marker overlay. Unsorted input is rejected
	// with core.ErrMarkersUnsorted and leaves the previous overlay in place.
	SetMarkers(markers []core.Marker) error
	// Resize is called by the host whenever its box changes.
	Resize(width, height int)
}

// Palette shared by the widgets
const (
	ColorUp       = "#4caf50"
	ColorDown     = "#f44336"
	ColorBuyMark  = "#2196f3"
	ColorSellMark = "#e91e63"
)

// CheckSorted returns core.ErrMarkersUnsorted when markers are not
// non-decreasing by time.
func CheckSorted(markers []core.Marker) error {
	for i := 1; i < len(markers); i++ {
		if markers[i].Time < markers[i-1].Time {
			return core.WrapError(core.ErrMarkersUnsorted,
				fmt.Errorf("marker %d at %d precedes %d", i, markers[i].Time, markers[i-1].Time))
		}
	}
	return nil
}

// barIndex returns the index of the candle whose bar contains t, or -1 when
// t falls before the first candle.
func barIndex(candles []core.Candle, t int64) int {
	i := sort.Search(len(candles), func(i int) bool { return candles[i].Time > t })
	return i - 1
}

// priceRange returns the low/high envelope of candles, padded when flat.
func priceRange(candles []core.Candle) (lo, hi float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	lo, hi = wickBounds(candles[0])
	for _, c := range candles[1:] {
		l, h := wickBounds(c)
		if l < lo {
			lo = l
		}
		if h > hi {
			hi = h
		}
	}
	if hi == lo {
		pad := hi * 0.001
		if pad == 0 {
			pad = 1
		}
		lo, hi = lo-pad, hi+pad
	}
	return lo, hi
}

func bodyBounds(c core.Candle) (lo, hi float64) {
	open := c.Open
	if open == 0 {
		open = c.Close
	}
	if open < c.Close {
		return open, c.Close
	}
	return c.Close, open
}

func wickBounds(c core.Candle) (float64, float64) {
	// bars without a range still have a body
	if c.Low == 0 && c.High == 0 {
		return bodyBounds(c)
	}
	return c.Low, c.High
}

func isUp(c core.Candle) bool {
	return c.Close >= c.Open || c.Open == 0
}
