package chart

import (
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/newthinker/tradewatch/internal/core"
)

const (
	defaultSVGWidth  = 800
	defaultSVGHeight = 400
	svgMarkerBand    = 24
)

// SVG renders the series as an inline <svg> element for the web page
type SVG struct {
	mu      sync.RWMutex
	candles []core.Candle
	markers []core.Marker
	width   int
	height  int
}

// NewSVG creates a widget with the default 800x400 box
func NewSVG() *SVG {
	return &SVG{width: defaultSVGWidth, height: defaultSVGHeight}
}

func (s *SVG) SetCandles(candles []core.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles = append([]core.Candle(nil), candles...)
}

func (s *SVG) SetMarkers(markers []core.Marker) error {
	if err := CheckSorted(markers); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append([]core.Marker(nil), markers...)
	return nil
}

// Resize ignores non-positive dimensions
func (s *SVG) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width > 0 {
		s.width = width
	}
	if height > 0 {
		s.height = height
	}
}

// Render returns the svg markup
func (s *SVG) Render() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" class="chart" width="%d" height="%d" viewBox="0 0 %d %d">`,
		s.width, s.height, s.width, s.height)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#1e1e1e"/>`, s.width, s.height)

	if len(s.candles) == 0 {
		fmt.Fprintf(&b, `<text x="%d" y="%d" fill="#d1d4dc" text-anchor="middle">No chart data</text></svg>`,
			s.width/2, s.height/2)
		return b.String()
	}

	plotH := float64(s.height - svgMarkerBand)
	lo, hi := priceRange(s.candles)
	y := func(p float64) float64 { return (hi - p) / (hi - lo) * plotH }
	step := float64(s.width) / float64(len(s.candles))
	bodyW := step * 0.7

	for i, c := range s.candles {
		color := ColorDown
		if isUp(c) {
			color = ColorUp
		}
		cx := step*float64(i) + step/2
		wLo, wHi := wickBounds(c)
		bLo, bHi := bodyBounds(c)
		h := y(bLo) - y(bHi)
		if h < 1 {
			h = 1
		}
		fmt.Fprintf(&b, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s"/>`,
			cx, y(wHi), cx, y(wLo), color)
		fmt.Fprintf(&b, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>`,
			cx-bodyW/2, y(bHi), bodyW, h, color)
	}

	for _, m := range s.markers {
		i := barIndex(s.candles, m.Time)
		if i < 0 {
			continue
		}
		cx := step*float64(i) + step/2
		base := plotH + 4
		points := fmt.Sprintf("%.1f,%.1f %.1f,%.1f %.1f,%.1f", cx, base, cx-5, base+10, cx+5, base+10)
		if m.Shape == core.ShapeArrowDown {
			points = fmt.Sprintf("%.1f,%.1f %.1f,%.1f %.1f,%.1f", cx, base+10, cx-5, base, cx+5, base)
		}
		fmt.Fprintf(&b, `<polygon class="marker" points="%s" fill="%s"><title>%s</title></polygon>`,
			points, html.EscapeString(m.Color), html.EscapeString(m.Text))
	}

	b.WriteString(`</svg>`)
	return b.String()
}
