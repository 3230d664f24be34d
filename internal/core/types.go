package core

// SignalType is the model decision attached to a symbol.
// Backends may send values other than the three known ones.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Side is the direction of an executed trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ScannerEntry is one row of the ranked multi-symbol feed
type ScannerEntry struct {
	Symbol      string     `json:"symbol"`
	SignalType  SignalType `json:"signal_type"`
	Probability float64    `json:"probability"`
	ClosePrice  float64    `json:"close_price"`
}

// Signal is the live inference result for one symbol
type Signal struct {
	Symbol      string     `json:"symbol,omitempty"`
	SignalType  SignalType `json:"signal_type"`
	Probability float64    `json:"probability"`
	ClosePrice  float64    `json:"close_price"`
	Reason      string     `json:"reason,omitempty"`
	Volatility  *float64   `json:"volatility,omitempty"`
}

// AccountSnapshot is the latest balance row
type AccountSnapshot struct {
	Balance float64 `json:"balance"`
	Equity  float64 `json:"equity"`
}

// Statistics summarises closed trades
type Statistics struct {
	PnL         float64 `json:"pnl"`
	Winrate     float64 `json:"winrate"`
	TotalTrades int     `json:"total_trades"`
}

// Trade is a historical execution as delivered by the backend.
// A nil PnL means the position is still open.
type Trade struct {
	ID        int64    `json:"id,omitempty"`
	Timestamp string   `json:"timestamp"`
	Symbol    string   `json:"symbol,omitempty"`
	Side      Side     `json:"side"`
	Price     float64  `json:"price"`
	Amount    float64  `json:"amount"`
	Cost      *float64 `json:"cost,omitempty"`
	Fee       *float64 `json:"fee,omitempty"`
	PnL       *float64 `json:"pnl"`
	Status    string   `json:"status,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// TradeStatusOpen marks a position the backend has not closed yet
const TradeStatusOpen = "OPEN"

// IsSettled reports whether the trade carries a realized PnL
func (t Trade) IsSettled() bool {
	return t.PnL != nil && t.Status != TradeStatusOpen
}

// Candle is one OHLC bar. Time is unix seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume,omitempty"`
}

// IsValid checks if the candle has a usable range
func (c Candle) IsValid() bool {
	return c.Time > 0 && c.High >= c.Low && c.Close > 0
}

// MarkerPosition places a marker relative to its bar
type MarkerPosition string

const (
	MarkerBelowBar MarkerPosition = "belowBar"
	MarkerAboveBar MarkerPosition = "aboveBar"
)

// MarkerShape is the glyph drawn for a marker
type MarkerShape string

const (
	ShapeArrowUp   MarkerShape = "arrowUp"
	ShapeArrowDown MarkerShape = "arrowDown"
)

// Marker annotates a trade on the chart. Time is unix seconds
// aligned to the candle domain.
type Marker struct {
	Time     int64          `json:"time"`
	Position MarkerPosition `json:"position"`
	Color    string         `json:"color"`
	Shape    MarkerShape    `json:"shape"`
	Text     string         `json:"text"`
}

// LogLine is a backend log line split at its prefix
type LogLine struct {
	Time    string `json:"time,omitempty"`
	Level   string `json:"level,omitempty"`
	Message string `json:"message"`
	Raw     string `json:"raw"`
}

// ControlAction is the intent sent to the backend
type ControlAction string

const (
	ActionPause  ControlAction = "pause"
	ActionResume ControlAction = "resume"
)

// IsValid reports whether the backend accepts the action
func (a ControlAction) IsValid() bool {
	return a == ActionPause || a == ActionResume
}

// BotStatus is the authoritative state returned by the backend
type BotStatus string

const (
	StatusPaused  BotStatus = "paused"
	StatusRunning BotStatus = "running"
)

// Paused maps the status to the session flag
func (s BotStatus) Paused() bool {
	return s == StatusPaused
}

// Mode selects which endpoint establishes the active symbol
type Mode string

const (
	ModeScanner Mode = "scanner"
	ModeSingle  Mode = "single"
)

// Trigger names what started a refresh cycle
type Trigger string

const (
	TriggerInitial   Trigger = "initial"
	TriggerTimer     Trigger = "timer"
	TriggerSelection Trigger = "selection"
	TriggerManual    Trigger = "manual"
)

// Resource names one backend read
type Resource string

const (
	ResourceScanner      Resource = "scanner"
	ResourceSignal       Resource = "signal"
	ResourceAccount      Resource = "account"
	ResourceStatistics   Resource = "statistics"
	ResourceTrades       Resource = "trades"
	ResourceSymbolTrades Resource = "symbol_trades"
	ResourceCandles      Resource = "candles"
	ResourceLogs         Resource = "logs"
)
