package chart

import (
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/newthinker/tradewatch/internal/core"
	"github.com/newthinker/tradewatch/internal/format"
)

const (
	minTermWidth  = 20
	minTermHeight = 4
	gutterWidth   = 14
)

var (
	upStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorUp))
	downStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDown))
	axisStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// Terminal draws candles as one column per bar, newest on the right, with
// a marker row underneath. It is safe for concurrent use.
type Terminal struct {
	mu      sync.RWMutex
	candles []core.Candle
	markers []core.Marker
	width   int
	height  int
}

// NewTerminal creates a widget sized width x height cells
func NewTerminal(width, height int) *Terminal {
	t := &Terminal{}
	t.Resize(width, height)
	return t
}

func (t *Terminal) SetCandles(candles []core.Candle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.candles = append([]core.Candle(nil), candles...)
}

func (t *Terminal) SetMarkers(markers []core.Marker) error {
	if err := CheckSorted(markers); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markers = append([]core.Marker(nil), markers...)
	return nil
}

// Resize sets the total cell area including the price gutter and marker row
func (t *Terminal) Resize(width, height int) {
	if width < minTermWidth {
		width = minTermWidth
	}
	if height < minTermHeight {
		height = minTermHeight
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.width, t.height = width, height
}

// Size returns the current cell area
func (t *Terminal) Size() (int, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.width, t.height
}

// Render draws the current series
func (t *Terminal) Render() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.candles) == 0 {
		return axisStyle.Render("No chart data")
	}

	cols := t.width - gutterWidth
	rows := t.height - 1
	visible := t.candles
	if len(visible) > cols {
		visible = visible[len(visible)-cols:]
	}
	lo, hi := priceRange(visible)
	step := (hi - lo) / float64(rows)

	var b strings.Builder
	for r := 0; r < rows; r++ {
		bandHi := hi - float64(r)*step
		bandLo := bandHi - step

		label := ""
		switch r {
		case 0:
			label = format.Number(hi)
		case rows - 1:
			label = format.Number(lo)
		}
		b.WriteString(axisStyle.Render(padLeft(label, gutterWidth-1)))
		b.WriteByte(' ')

		for _, c := range visible {
			style := downStyle
			if isUp(c) {
				style = upStyle
			}
			bLo, bHi := bodyBounds(c)
			wLo, wHi := wickBounds(c)
			switch {
			case overlaps(bLo, bHi, bandLo, bandHi):
				b.WriteString(style.Render("┃"))
			case overlaps(wLo, wHi, bandLo, bandHi):
				b.WriteString(style.Render("│"))
			default:
				b.WriteByte(' ')
			}
		}
		b.WriteByte('\n')
	}

	b.WriteString(strings.Repeat(" ", gutterWidth))
	b.WriteString(t.markerRow(visible))
	return b.String()
}

func (t *Terminal) markerRow(visible []core.Candle) string {
	cells := make([]string, len(visible))
	for i := range cells {
		cells[i] = " "
	}
	for _, m := range t.markers {
		i := barIndex(visible, m.Time)
		if i < 0 {
			continue
		}
		glyph := "▲"
		if m.Shape == core.ShapeArrowDown {
			glyph = "▼"
		}
		cells[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(m.Color)).Render(glyph)
	}
	return strings.Join(cells, "")
}

func overlaps(lo, hi, bandLo, bandHi float64) bool {
	return hi >= bandLo && lo <= bandHi
}

func padLeft(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return strings.Repeat(" ", n-len(s)) + s
}
