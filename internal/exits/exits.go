package exits

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/Alias1177/perpbot/models"
)

// Action is what the state machine wants done with a position this cycle.
type Action int

const (
	ActionNone Action = iota
	ActionPartialClose
	ActionFullClose
)

// Decision is the outcome of one evaluation against the mark price.
type Decision struct {
	Action   Action
	Fraction float64 // of remaining size, 1.0 for a full close
	Reason   string
	PnlPct   float64
}

// Config holds the exit thresholds as fractions of position notional.
type Config struct {
	StopLossPct        float64
	TakeProfit1Pct     float64
	PartialCloseFrac   float64
	TrailActivationPct float64
	TrailDistancePct   float64
	RetryAttempts      int
}

// Manager owns every open position's lifecycle from entry to full close.
type Manager struct {
	cfg      Config
	exchange models.Exchange
	ledger   models.TradeLedger
	notifier models.Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewManager creates the exit manager.
func NewManager(cfg Config, exchange models.Exchange, ledger models.TradeLedger, notifier models.Notifier, logger zerolog.Logger) *Manager {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 5
	}
	return &Manager{
		cfg:      cfg,
		exchange: exchange,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger.With().Str("component", "exits").Logger(),
		now:      time.Now,
	}
}

// Evaluate runs one state-machine step for the position at the given mark
// price. It updates the trailing anchor (which only ever ratchets favorably)
// and returns at most one close decision, in priority order: stop-loss,
// trailing stop, first take-profit.
func (m *Manager) Evaluate(pos *models.Position, mark float64) Decision {
	if pos.Stage == models.StageClosed || pos.Size <= 0 {
		return Decision{Action: ActionNone}
	}

	pnl := pos.PnlPct(mark)

	// Arm and ratchet the trailing anchor before deciding anything, so a
	// spike-then-retrace within one cycle is still measured from the spike.
	if !pos.TrailArmed && pnl >= m.cfg.TrailActivationPct {
		pos.TrailArmed = true
		pos.PeakPnlPct = pnl
		m.logger.Info().Str("asset", pos.Asset).Float64("pnl_pct", pnl).Msg("Trailing stop armed")
	} else if pos.TrailArmed && pnl > pos.PeakPnlPct {
		pos.PeakPnlPct = pnl
	}

	if pnl <= -m.cfg.StopLossPct {
		return Decision{Action: ActionFullClose, Fraction: 1, Reason: models.ExitReasonStopLoss, PnlPct: pnl}
	}

	if pos.TrailArmed && pos.PeakPnlPct-pnl >= m.cfg.TrailDistancePct {
		return Decision{Action: ActionFullClose, Fraction: 1, Reason: models.ExitReasonTrailing, PnlPct: pnl}
	}

	if pos.Stage == models.StageOpen && !pos.PartialClosed && pnl >= m.cfg.TakeProfit1Pct {
		return Decision{Action: ActionPartialClose, Fraction: m.cfg.PartialCloseFrac, Reason: models.ExitReasonTakeProfit, PnlPct: pnl}
	}

	return Decision{Action: ActionNone, PnlPct: pnl}
}

// Apply submits the decided close to the exchange with bounded backoff
// retries and advances the position state. A full close returns the Trade
// that was appended to the ledger. Exhausted retries return a
// CloseFailureError after alerting the operator: a live position must never
// be silently abandoned.
func (m *Manager) Apply(ctx context.Context, pos *models.Position, decision Decision) (*models.Trade, error) {
	if decision.Action == ActionNone {
		return nil, nil
	}

	fill, err := m.closeWithRetry(ctx, pos.Asset, decision.Fraction)
	if err != nil {
		closeErr := &models.CloseFailureError{Asset: pos.Asset, Attempts: m.cfg.RetryAttempts, Err: err}
		m.logger.Error().Err(closeErr).Str("asset", pos.Asset).Msg("Close retries exhausted, position unmanaged")
		m.notifier.PositionUnmanaged(pos.Asset, closeErr)
		return nil, closeErr
	}

	switch decision.Action {
	case ActionPartialClose:
		closedSize := pos.Size * decision.Fraction
		pos.PartialSize = closedSize
		pos.PartialExitPrice = fill.Price
		pos.Size -= closedSize
		pos.Stage = models.StagePartiallyClosed
		pos.PartialClosed = true
		m.logger.Info().Str("asset", pos.Asset).Float64("closed_size", closedSize).
			Float64("price", fill.Price).Float64("pnl_pct", decision.PnlPct).
			Msg("Partial take-profit filled")
		return nil, nil

	case ActionFullClose:
		trade := BuildTrade(pos, fill.Price, decision.Reason, m.now())
		pos.Stage = models.StageClosed
		pos.Size = 0

		if err := m.ledger.Append(trade); err != nil {
			// The close already executed; losing the record is worse
			// than a duplicate wait, so surface loudly.
			m.logger.Error().Err(err).Str("asset", pos.Asset).Msg("Ledger append failed for closed trade")
			return &trade, err
		}
		m.notifier.TradeClosed(trade)
		m.logger.Info().Str("asset", pos.Asset).Str("reason", decision.Reason).
			Float64("exit_price", fill.Price).Float64("pnl_pct", trade.PnlPct).
			Msg("Position fully closed")
		return &trade, nil
	}

	return nil, nil
}

// BuildTrade converts a position into its immutable Trade record. The exit
// price and realized PnL are volume-weighted across the partial tranche (if
// any) and the final close.
func BuildTrade(pos *models.Position, finalExit float64, reason string, closedAt time.Time) models.Trade {
	totalSize := pos.Size + pos.PartialSize
	exitPrice := finalExit
	if pos.PartialSize > 0 && totalSize > 0 {
		exitPrice = (pos.PartialExitPrice*pos.PartialSize + finalExit*pos.Size) / totalSize
	}

	pnl := 0.0
	if pos.EntryPrice > 0 {
		pnl = (exitPrice - pos.EntryPrice) / pos.EntryPrice
		if pos.Direction == models.DirectionShort {
			pnl = -pnl
		}
	}

	return models.Trade{
		Asset:      pos.Asset,
		Direction:  pos.Direction,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Size:       totalSize,
		Leverage:   pos.Leverage,
		PnlPct:     pnl,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   closedAt,
		ExitReason: reason,
	}
}

func (m *Manager) closeWithRetry(ctx context.Context, asset string, fraction float64) (models.Fill, error) {
	var fill models.Fill
	operation := func() error {
		var err error
		fill, err = m.exchange.ClosePosition(ctx, asset, fraction)
		return err
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(m.cfg.RetryAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(operation, strategy); err != nil {
		return models.Fill{}, err
	}
	return fill, nil
}
