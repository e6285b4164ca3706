package risk

import (
	"github.com/rs/zerolog"
)

// DrawdownGuard is the portfolio-level circuit breaker: when account
// drawdown from peak balance exceeds the ceiling, new entries stop while
// open positions are still managed to close. Trading resumes once drawdown
// recovers below half the ceiling.
type DrawdownGuard struct {
	ceiling float64
	peak    float64
	paused  bool
	logger  zerolog.Logger
}

// NewDrawdownGuard creates the breaker with the given ceiling (fraction).
func NewDrawdownGuard(ceiling float64, logger zerolog.Logger) *DrawdownGuard {
	return &DrawdownGuard{
		ceiling: ceiling,
		logger:  logger.With().Str("component", "drawdown").Logger(),
	}
}

// Update records the latest balance, ratchets the peak, and flips the paused
// state across the ceiling and the recovery threshold. It returns the current
// drawdown fraction and whether the paused state changed this call.
func (g *DrawdownGuard) Update(balance float64) (drawdown float64, changed bool) {
	if balance > g.peak {
		g.peak = balance
	}
	if g.peak <= 0 {
		return 0, false
	}

	drawdown = (g.peak - balance) / g.peak

	if drawdown > g.ceiling && !g.paused {
		g.paused = true
		g.logger.Warn().Float64("drawdown", drawdown).Float64("peak", g.peak).
			Float64("balance", balance).Msg("Max drawdown exceeded, pausing new entries")
		return drawdown, true
	}
	if g.paused && drawdown < g.ceiling*0.5 {
		g.paused = false
		g.logger.Info().Float64("drawdown", drawdown).Msg("Drawdown recovered, resuming entries")
		return drawdown, true
	}
	return drawdown, false
}

// Paused reports whether new entries are currently blocked.
func (g *DrawdownGuard) Paused() bool { return g.paused }

// Peak returns the highest balance seen.
func (g *DrawdownGuard) Peak() float64 { return g.peak }
