package adapter

import (
	"fmt"
	"math"
	"time"

	"github.com/Alias1177/perpbot/models"
)

// Config holds the hard bounds and cadence for strategy adaptation. The
// adapter may move the score threshold and risk fraction, never past these.
type Config struct {
	ScoreThresholdMin float64
	ScoreThresholdMax float64
	RiskPerTradeMin   float64
	RiskPerTradeMax   float64

	TradesPerAdaptation int // new ledger entries that trigger a pass
	Window              int // trailing closed trades considered

	BlockWinRate   float64 // per-asset win rate (%) below which entries pause
	BlockMinTrades int
	BlockCooldown  time.Duration
}

// Poor and strong global win-rate bands (%), from the original operators.
const (
	winRatePoor   = 40.0
	winRateStrong = 65.0
)

// AssetStats is the per-asset slice of a performance window.
type AssetStats struct {
	Trades  int
	Wins    int
	WinRate float64
	Pnl     float64
}

// Stats summarizes a window of closed trades.
type Stats struct {
	Total        int
	Wins         int
	Losses       int
	WinRate      float64 // percent
	TotalPnl     float64 // sum of pnl fractions
	AvgPnl       float64
	AvgWin       float64
	AvgLoss      float64
	ProfitFactor float64
	PerAsset     map[string]AssetStats
}

// ComputeStats aggregates a trade window. Deterministic for a fixed window.
func ComputeStats(trades []models.Trade) Stats {
	stats := Stats{PerAsset: make(map[string]AssetStats)}
	if len(trades) == 0 {
		return stats
	}

	var winSum, lossSum float64
	for _, t := range trades {
		stats.Total++
		stats.TotalPnl += t.PnlPct
		if t.Win() {
			stats.Wins++
			winSum += t.PnlPct
		} else {
			stats.Losses++
			lossSum += -t.PnlPct
		}

		a := stats.PerAsset[t.Asset]
		a.Trades++
		if t.Win() {
			a.Wins++
		}
		a.Pnl += t.PnlPct
		stats.PerAsset[t.Asset] = a
	}

	stats.WinRate = float64(stats.Wins) / float64(stats.Total) * 100
	stats.AvgPnl = stats.TotalPnl / float64(stats.Total)
	if stats.Wins > 0 {
		stats.AvgWin = winSum / float64(stats.Wins)
	}
	if stats.Losses > 0 {
		stats.AvgLoss = lossSum / float64(stats.Losses)
	}
	if lossSum > 0 {
		stats.ProfitFactor = winSum / lossSum
	} else if winSum > 0 {
		stats.ProfitFactor = math.Inf(1)
	}

	for asset, a := range stats.PerAsset {
		if a.Trades > 0 {
			a.WinRate = float64(a.Wins) / float64(a.Trades) * 100
		}
		stats.PerAsset[asset] = a
	}
	return stats
}

// ShouldAdapt reports whether enough new ledger entries have accumulated
// since the last pass.
func (c Config) ShouldAdapt(state models.StrategyState, ledgerCount int) bool {
	if ledgerCount < c.BlockMinTrades {
		return false
	}
	return ledgerCount-state.TradesAtLastAdapt >= c.TradesPerAdaptation
}

// Adapt is a pure function from (current state, recent trade window) to the
// next state. Poor recent performance raises the score threshold and lowers
// the risk fraction; sustained strength relaxes both, always clamped to the
// configured hard bounds. A ledger state already consumed by an earlier pass
// is a no-op, so repeated application on the same ledger state is a fixed
// point. Past trades are never mutated.
func Adapt(state models.StrategyState, window []models.Trade, ledgerCount int, now time.Time, cfg Config) models.StrategyState {
	next := state.Clone()
	next.UpdatedAt = now

	if ledgerCount <= state.TradesAtLastAdapt {
		return next
	}

	stats := ComputeStats(window)
	if stats.Total < cfg.BlockMinTrades {
		return next
	}

	next.AdaptationCount++
	next.TradesAtLastAdapt = ledgerCount

	switch {
	case stats.WinRate < winRatePoor:
		next.ScoreThreshold = clamp(state.ScoreThreshold+1, cfg.ScoreThresholdMin, cfg.ScoreThresholdMax)
		next.RiskPerTrade = clamp(state.RiskPerTrade*0.8, cfg.RiskPerTradeMin, cfg.RiskPerTradeMax)
	case stats.WinRate > winRateStrong:
		next.ScoreThreshold = clamp(state.ScoreThreshold-1, cfg.ScoreThresholdMin, cfg.ScoreThresholdMax)
		next.RiskPerTrade = clamp(state.RiskPerTrade*1.1, cfg.RiskPerTradeMin, cfg.RiskPerTradeMax)
	}

	// Block assets whose recent record is poor enough to sit out a cooldown.
	for asset, a := range stats.PerAsset {
		if a.Trades >= cfg.BlockMinTrades && a.WinRate < cfg.BlockWinRate && !next.Blocked(asset) {
			next.BlockedAssets = append(next.BlockedAssets, models.BlockedAsset{
				Asset:     asset,
				BlockedAt: now,
				Reason:    fmt.Sprintf("win rate %.0f%% over %d trades", a.WinRate, a.Trades),
			})
		}
	}

	// Expired blocks get a second chance.
	kept := next.BlockedAssets[:0]
	for _, b := range next.BlockedAssets {
		if now.Sub(b.BlockedAt) <= cfg.BlockCooldown {
			kept = append(kept, b)
		}
	}
	next.BlockedAssets = kept

	return next
}

// ClampToBounds forces a state's tunable parameters inside the configured
// hard bounds. A persisted state restored after the operator tightened the
// bounds must not trade outside them while waiting for the next adaptation.
func (c Config) ClampToBounds(state models.StrategyState) models.StrategyState {
	next := state.Clone()
	next.ScoreThreshold = clamp(state.ScoreThreshold, c.ScoreThresholdMin, c.ScoreThresholdMax)
	next.RiskPerTrade = clamp(state.RiskPerTrade, c.RiskPerTradeMin, c.RiskPerTradeMax)
	return next
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
