package models

import "context"

// Exchange is the trading venue collaborator. All calls are bounded by the
// caller's context; failures are either transient (retry next cycle) or
// rejections (log and skip), distinguishable via IsTransient/IsRejected.
type Exchange interface {
	GetBalance(ctx context.Context) (float64, error)
	GetOpenPositions(ctx context.Context) ([]ExchangePosition, error)
	GetMarketSnapshot(ctx context.Context, asset, timeframe string, limit int) (MarketSnapshot, error)
	GetOrderbook(ctx context.Context, asset string) (Orderbook, error)
	GetFundingRate(ctx context.Context, asset string) (float64, error)
	GetMarkPrice(ctx context.Context, asset string) (float64, error)
	SubmitOrder(ctx context.Context, asset string, direction Direction, size float64, leverage int) (Fill, error)
	ClosePosition(ctx context.Context, asset string, fraction float64) (Fill, error)
}

// SentimentProvider supplies the external macro-bias verdict. Implementations
// fail open: on timeout or error the caller treats the result as no bias,
// no veto.
type SentimentProvider interface {
	GetBias(ctx context.Context, asset string) (SentimentBias, error)
}

// TradeLedger is the append-only record of closed trades.
type TradeLedger interface {
	Append(trade Trade) error
	Recent(n int) ([]Trade, error)
	Count() (int, error)
}

// Notifier delivers operator-visible events. Implementations must never
// block the trading loop on delivery failures.
type Notifier interface {
	TradeOpened(pos Position, score float64)
	TradeClosed(trade Trade)
	DrawdownPaused(drawdown, peak, balance float64)
	DrawdownResumed(drawdown float64)
	PositionUnmanaged(asset string, err error)
}
