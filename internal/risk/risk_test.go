package risk

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Alias1177/perpbot/models"
)

func TestComputeIntent(t *testing.T) {
	m := NewManager(SizingConfig{
		MaxNotionalMultiple: 3.0,
		MinOrderNotional:    10,
		DefaultLeverage:     3,
	}, zerolog.Nop())

	sig := models.Signal{Asset: "BTC", Direction: models.DirectionLong, Score: 3}

	t.Run("sizing formula", func(t *testing.T) {
		state := models.StrategyState{
			RiskPerTrade: 0.33,
			Leverage:     map[string]int{"BTC": 5},
		}
		intent, err := m.ComputeIntent(sig, 60000, 16, 0, state)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// 16 × 0.33 × 5 = 26.40 notional
		if math.Abs(intent.Notional-26.40) > 1e-9 {
			t.Errorf("notional = %.4f, want 26.40", intent.Notional)
		}
		if math.Abs(intent.Size-26.40/60000) > 1e-12 {
			t.Errorf("size = %.8f, want %.8f", intent.Size, 26.40/60000)
		}
		if intent.Leverage != 5 {
			t.Errorf("leverage = %d, want the per-asset tier 5", intent.Leverage)
		}
	})

	t.Run("default leverage tier", func(t *testing.T) {
		state := models.StrategyState{RiskPerTrade: 0.30}
		intent, err := m.ComputeIntent(sig, 100, 100, 0, state)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if intent.Leverage != 3 {
			t.Errorf("leverage = %d, want default 3", intent.Leverage)
		}
	})

	t.Run("below exchange minimum", func(t *testing.T) {
		state := models.StrategyState{RiskPerTrade: 0.10, Leverage: map[string]int{"BTC": 1}}
		_, err := m.ComputeIntent(sig, 60000, 50, 0, state)
		if !errors.Is(err, ErrBelowMinimum) {
			t.Errorf("expected ErrBelowMinimum for $5 notional, got %v", err)
		}
	})

	t.Run("notional ceiling", func(t *testing.T) {
		state := models.StrategyState{RiskPerTrade: 0.30, Leverage: map[string]int{"BTC": 5}}
		// balance 100, open 280, new 150: 430 > 300 ceiling
		_, err := m.ComputeIntent(sig, 100, 100, 280, state)
		if !errors.Is(err, models.ErrRiskCeiling) {
			t.Errorf("expected ErrRiskCeiling, got %v", err)
		}
	})

	t.Run("bad market data", func(t *testing.T) {
		state := models.StrategyState{RiskPerTrade: 0.30}
		if _, err := m.ComputeIntent(sig, 0, 100, 0, state); err == nil {
			t.Error("expected error on zero price")
		}
		if _, err := m.ComputeIntent(sig, 100, 0, 0, state); err == nil {
			t.Error("expected error on zero balance")
		}
	})
}

func TestDrawdownGuardHysteresis(t *testing.T) {
	g := NewDrawdownGuard(0.25, zerolog.Nop())

	if _, changed := g.Update(100); changed {
		t.Error("first peak must not flip state")
	}
	if g.Paused() {
		t.Fatal("fresh guard must not be paused")
	}

	// 26% drawdown pauses.
	dd, changed := g.Update(74)
	if !changed || !g.Paused() {
		t.Fatalf("expected pause at %.0f%% drawdown", dd*100)
	}

	// Recovery to 20% is above the resume threshold (12.5%), still paused.
	if _, changed := g.Update(80); changed || !g.Paused() {
		t.Error("partial recovery must not resume")
	}

	// Recovery to 10% resumes.
	if _, changed := g.Update(90); !changed || g.Paused() {
		t.Error("expected resume below half the ceiling")
	}

	// A new balance high ratchets the peak.
	g.Update(120)
	if g.Peak() != 120 {
		t.Errorf("peak = %.2f, want 120", g.Peak())
	}

	// Drawdown measures from the new peak: 120 -> 88 is ~26.7%.
	if _, changed := g.Update(88); !changed || !g.Paused() {
		t.Error("expected pause measured from the ratcheted peak")
	}
}
