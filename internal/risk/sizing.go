package risk

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/Alias1177/perpbot/models"
)

// ErrBelowMinimum marks an intent whose notional is under the exchange
// minimum. The cycle skips the asset without retrying.
var ErrBelowMinimum = errors.New("computed size below exchange minimum")

// SizingConfig holds the hard sizing ceilings.
type SizingConfig struct {
	MaxNotionalMultiple float64 // total open notional must stay under balance × this
	MinOrderNotional    float64
	DefaultLeverage     int
}

// OrderIntent is the concrete order request emitted to the exchange.
type OrderIntent struct {
	Asset     string
	Direction models.Direction
	Size      float64
	Leverage  int
	Notional  float64
}

// Manager converts qualifying signals into bounded order intents.
type Manager struct {
	cfg    SizingConfig
	logger zerolog.Logger
}

// NewManager creates a sizing manager.
func NewManager(cfg SizingConfig, logger zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger.With().Str("component", "risk").Logger()}
}

// ComputeIntent sizes a position for a qualifying signal:
// notional = balance × risk-per-trade × leverage tier, rejected when it would
// push total open notional past the configured multiple of balance or fall
// under the exchange minimum.
func (m *Manager) ComputeIntent(sig models.Signal, price, balance, openNotional float64, state models.StrategyState) (*OrderIntent, error) {
	if price <= 0 || balance <= 0 {
		return nil, models.ErrRiskCeiling
	}

	leverage := state.LeverageFor(sig.Asset, m.cfg.DefaultLeverage)
	notional := balance * state.RiskPerTrade * float64(leverage)

	if notional < m.cfg.MinOrderNotional {
		m.logger.Warn().Str("asset", sig.Asset).Float64("notional", notional).
			Float64("minimum", m.cfg.MinOrderNotional).Msg("Notional below exchange minimum")
		return nil, ErrBelowMinimum
	}

	if openNotional+notional > balance*m.cfg.MaxNotionalMultiple {
		m.logger.Info().Str("asset", sig.Asset).
			Float64("open_notional", openNotional).
			Float64("notional", notional).
			Float64("ceiling", balance*m.cfg.MaxNotionalMultiple).
			Msg("Total notional ceiling would be exceeded")
		return nil, models.ErrRiskCeiling
	}

	return &OrderIntent{
		Asset:     sig.Asset,
		Direction: sig.Direction,
		Size:      notional / price,
		Leverage:  leverage,
		Notional:  notional,
	}, nil
}
