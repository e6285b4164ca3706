package models

import (
	"time"
)

// Direction is the side of a signal or position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionNone  Direction = "NONE"
)

// Opposite returns the opposing direction (NONE maps to NONE).
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionLong:
		return DirectionShort
	case DirectionShort:
		return DirectionLong
	}
	return DirectionNone
}

// Candle represents a single OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume,omitempty"`
}

// MarketSnapshot is a time-ordered window of candles for one asset and timeframe.
type MarketSnapshot struct {
	Asset     string   `json:"asset"`
	Timeframe string   `json:"timeframe"`
	Candles   []Candle `json:"candles"`
}

// LastClose returns the most recent close price, or 0 if the window is empty.
func (s MarketSnapshot) LastClose() float64 {
	if len(s.Candles) == 0 {
		return 0
	}
	return s.Candles[len(s.Candles)-1].Close
}

// Trim drops the oldest candles so at most max remain.
func (s MarketSnapshot) Trim(max int) MarketSnapshot {
	if max > 0 && len(s.Candles) > max {
		s.Candles = s.Candles[len(s.Candles)-max:]
	}
	return s
}

// Signal is the scorer's per-asset verdict for one cycle.
type Signal struct {
	Asset      string             `json:"asset"`
	Direction  Direction          `json:"direction"`
	Score      float64            `json:"score"`
	LongScore  float64            `json:"long_score"`
	ShortScore float64            `json:"short_score"`
	Factors    map[string]float64 `json:"factors"` // signed contribution per check
}

// ExitStage is the lifecycle stage of an open position.
type ExitStage string

const (
	StageOpen            ExitStage = "OPEN"
	StagePartiallyClosed ExitStage = "PARTIALLY_CLOSED"
	StageClosed          ExitStage = "CLOSED"
)

// Position is an open perpetual position owned by the exit manager.
type Position struct {
	Asset      string    `json:"asset"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	Size       float64   `json:"size"`
	Leverage   int       `json:"leverage"`
	OpenedAt   time.Time `json:"opened_at"`

	Stage         ExitStage `json:"stage"`
	TrailArmed    bool      `json:"trail_armed"`
	PeakPnlPct    float64   `json:"peak_pnl_pct"` // trailing anchor, ratchets favorably only
	PartialClosed bool      `json:"partial_closed"`

	// Realized tranche from the partial close, folded into the final Trade.
	PartialSize      float64 `json:"partial_size,omitempty"`
	PartialExitPrice float64 `json:"partial_exit_price,omitempty"`
}

// Notional is the dollar exposure at entry.
func (p *Position) Notional() float64 {
	return p.EntryPrice * p.Size
}

// PnlPct returns unrealized PnL as a fraction of notional at the given mark price.
func (p *Position) PnlPct(mark float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	change := (mark - p.EntryPrice) / p.EntryPrice
	if p.Direction == DirectionShort {
		change = -change
	}
	return change
}

// Exit reasons recorded on closed trades.
const (
	ExitReasonStopLoss   = "stop-loss"
	ExitReasonTakeProfit = "take-profit"
	ExitReasonTrailing   = "trailing-stop"
	ExitReasonManual     = "manual"
)

// Trade is the immutable record of a fully closed position.
type Trade struct {
	Asset      string    `json:"asset"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Size       float64   `json:"size"`
	Leverage   int       `json:"leverage"`
	PnlPct     float64   `json:"pnl_pct"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
	ExitReason string    `json:"exit_reason"`
}

// Win reports whether the trade closed profitably.
func (t Trade) Win() bool {
	return t.PnlPct > 0
}

// BlockedAsset is an asset the adapter has temporarily excluded from entries.
type BlockedAsset struct {
	Asset     string    `json:"asset"`
	BlockedAt time.Time `json:"blocked_at"`
	Reason    string    `json:"reason"`
}

// StrategyState holds the adapter-tuned parameters read by the scorer and
// sizing manager. Treated as an immutable snapshot within a cycle and
// replaced wholesale by the adapter between cycles.
type StrategyState struct {
	ScoreThreshold    float64            `json:"score_threshold"`
	RiskPerTrade      float64            `json:"risk_per_trade"`
	Leverage          map[string]int     `json:"leverage"` // asset -> leverage tier
	Weights           map[string]float64 `json:"weights"`  // contributor -> weight
	BlockedAssets     []BlockedAsset     `json:"blocked_assets,omitempty"`
	AdaptationCount   int                `json:"adaptation_count"`
	TradesAtLastAdapt int                `json:"trades_at_last_adapt"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Weight returns the contributor weight, defaulting to 1.0 when unset.
func (s StrategyState) Weight(name string) float64 {
	if w, ok := s.Weights[name]; ok {
		return w
	}
	return 1.0
}

// LeverageFor returns the leverage tier for an asset, or def when unmapped.
func (s StrategyState) LeverageFor(asset string, def int) int {
	if lev, ok := s.Leverage[asset]; ok && lev > 0 {
		return lev
	}
	return def
}

// Blocked reports whether the adapter currently excludes the asset.
func (s StrategyState) Blocked(asset string) bool {
	for _, b := range s.BlockedAssets {
		if b.Asset == asset {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so a cycle's snapshot cannot alias the next update.
func (s StrategyState) Clone() StrategyState {
	out := s
	out.Leverage = make(map[string]int, len(s.Leverage))
	for k, v := range s.Leverage {
		out.Leverage[k] = v
	}
	out.Weights = make(map[string]float64, len(s.Weights))
	for k, v := range s.Weights {
		out.Weights[k] = v
	}
	out.BlockedAssets = append([]BlockedAsset(nil), s.BlockedAssets...)
	return out
}

// OrderbookLevel is one resting price level on the book.
type OrderbookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Orderbook holds the visible bid/ask levels for an asset, best first.
type Orderbook struct {
	Asset string           `json:"asset"`
	Bids  []OrderbookLevel `json:"bids"`
	Asks  []OrderbookLevel `json:"asks"`
}

// Fill is the exchange's acknowledgement of an executed order.
type Fill struct {
	Asset    string    `json:"asset"`
	Price    float64   `json:"price"`
	Size     float64   `json:"size"`
	FilledAt time.Time `json:"filled_at"`
}

// ExchangePosition is the exchange's view of an open position, used to
// reconcile externally closed positions (exchange-side SL/TP fills).
type ExchangePosition struct {
	Asset         string  `json:"asset"`
	Size          float64 `json:"size"` // signed: positive long, negative short
	EntryPrice    float64 `json:"entry_price"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
	Leverage      int     `json:"leverage"`
}

// SentimentBias is the external text-analysis verdict for an asset.
type SentimentBias struct {
	Bias  Direction `json:"bias"`
	Score float64   `json:"score"` // -1..1
}
