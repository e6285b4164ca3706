package adapter

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Alias1177/perpbot/models"
)

func testConfig() Config {
	return Config{
		ScoreThresholdMin:   1,
		ScoreThresholdMax:   4,
		RiskPerTradeMin:     0.10,
		RiskPerTradeMax:     0.50,
		TradesPerAdaptation: 10,
		Window:              20,
		BlockWinRate:        30,
		BlockMinTrades:      5,
		BlockCooldown:       24 * time.Hour,
	}
}

func testState() models.StrategyState {
	return models.StrategyState{
		ScoreThreshold: 2,
		RiskPerTrade:   0.30,
		Leverage:       map[string]int{"BTC": 5},
		Weights:        map[string]float64{},
	}
}

func tradeWindow(asset string, wins, losses int) []models.Trade {
	var trades []models.Trade
	for i := 0; i < wins; i++ {
		trades = append(trades, models.Trade{Asset: asset, PnlPct: 0.02})
	}
	for i := 0; i < losses; i++ {
		trades = append(trades, models.Trade{Asset: asset, PnlPct: -0.015})
	}
	return trades
}

func TestComputeStats(t *testing.T) {
	window := append(tradeWindow("BTC", 3, 1), tradeWindow("ETH", 1, 5)...)
	stats := ComputeStats(window)

	if stats.Total != 10 || stats.Wins != 4 {
		t.Fatalf("total/wins = %d/%d, want 10/4", stats.Total, stats.Wins)
	}
	if stats.WinRate != 40 {
		t.Errorf("win rate = %.1f, want 40", stats.WinRate)
	}
	if eth := stats.PerAsset["ETH"]; eth.Trades != 6 || eth.WinRate > 17 {
		t.Errorf("ETH stats = %+v, want 6 trades with ~16.7%% win rate", eth)
	}
}

func TestShouldAdaptCadence(t *testing.T) {
	cfg := testConfig()
	state := testState()

	if cfg.ShouldAdapt(state, 4) {
		t.Error("no adaptation before the minimum trade count")
	}
	if !cfg.ShouldAdapt(state, 10) {
		t.Error("adaptation expected at 10 new trades")
	}

	state.TradesAtLastAdapt = 10
	if cfg.ShouldAdapt(state, 15) {
		t.Error("5 new trades since last pass is not enough")
	}
	if !cfg.ShouldAdapt(state, 20) {
		t.Error("adaptation expected after 10 more trades")
	}
}

func TestAdaptTightensOnPoorWindow(t *testing.T) {
	now := time.Now()
	// 20% win rate over 10 trades.
	window := tradeWindow("BTC", 2, 8)

	next := Adapt(testState(), window, 10, now, testConfig())
	if next.ScoreThreshold != 3 {
		t.Errorf("threshold = %.1f, want 3 after a poor window", next.ScoreThreshold)
	}
	if next.RiskPerTrade != 0.30*0.8 {
		t.Errorf("risk = %.3f, want 0.24", next.RiskPerTrade)
	}
	if next.AdaptationCount != 1 || next.TradesAtLastAdapt != 10 {
		t.Errorf("bookkeeping wrong: %+v", next)
	}
}

func TestAdaptRelaxesOnStrongWindow(t *testing.T) {
	// 80% win rate.
	window := tradeWindow("BTC", 8, 2)

	next := Adapt(testState(), window, 10, time.Now(), testConfig())
	if next.ScoreThreshold != 1 {
		t.Errorf("threshold = %.1f, want 1 after a strong window", next.ScoreThreshold)
	}
	if next.RiskPerTrade != 0.30*1.1 {
		t.Errorf("risk = %.3f, want 0.33", next.RiskPerTrade)
	}
}

func TestAdaptClampsAtBounds(t *testing.T) {
	cfg := testConfig()
	state := testState()
	state.ScoreThreshold = 4
	state.RiskPerTrade = 0.11

	// Repeated poor windows cannot push past the hard bounds.
	window := tradeWindow("BTC", 0, 10)
	next := Adapt(state, window, 10, time.Now(), cfg)
	next = Adapt(next, window, 20, time.Now(), cfg)

	if next.ScoreThreshold != cfg.ScoreThresholdMax {
		t.Errorf("threshold = %.1f, must clamp at %.1f", next.ScoreThreshold, cfg.ScoreThresholdMax)
	}
	if next.RiskPerTrade != cfg.RiskPerTradeMin {
		t.Errorf("risk = %.3f, must clamp at %.3f", next.RiskPerTrade, cfg.RiskPerTradeMin)
	}
}

func TestAdaptIdempotentOnSameLedger(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	// 20% win rate tightens on the first pass.
	window := tradeWindow("BTC", 2, 8)

	once := Adapt(testState(), window, 10, now, cfg)
	twice := Adapt(once, window, 10, now, cfg)

	if twice.ScoreThreshold != once.ScoreThreshold {
		t.Errorf("threshold drifted on repeat: %.1f -> %.1f", once.ScoreThreshold, twice.ScoreThreshold)
	}
	if twice.RiskPerTrade != once.RiskPerTrade {
		t.Errorf("risk drifted on repeat: %.3f -> %.3f", once.RiskPerTrade, twice.RiskPerTrade)
	}
	if twice.AdaptationCount != once.AdaptationCount {
		t.Errorf("adaptation count drifted on repeat: %d -> %d", once.AdaptationCount, twice.AdaptationCount)
	}
	if len(twice.BlockedAssets) != len(once.BlockedAssets) {
		t.Errorf("blocked assets drifted on repeat: %d -> %d", len(once.BlockedAssets), len(twice.BlockedAssets))
	}
}

func TestAdaptDoesNotMutateInput(t *testing.T) {
	state := testState()
	window := tradeWindow("BTC", 0, 10)

	Adapt(state, window, 10, time.Now(), testConfig())
	if state.ScoreThreshold != 2 || state.RiskPerTrade != 0.30 || state.AdaptationCount != 0 {
		t.Errorf("input state mutated: %+v", state)
	}
	for _, tr := range window {
		if tr.PnlPct != -0.015 {
			t.Fatal("past trades mutated")
		}
	}
}

func TestAssetBlockingAndCooldown(t *testing.T) {
	cfg := testConfig()
	now := time.Now()

	// DOGE: 1 win over 6 trades (~17%), blocked. BTC stays tradable.
	window := append(tradeWindow("DOGE", 1, 5), tradeWindow("BTC", 3, 1)...)
	next := Adapt(testState(), window, 10, now, cfg)

	if !next.Blocked("DOGE") {
		t.Fatal("DOGE should be blocked on a 17% win rate over 6 trades")
	}
	if next.Blocked("BTC") {
		t.Error("BTC should not be blocked")
	}

	// Under the minimum sample no block applies.
	small := append(tradeWindow("SOL", 0, 4), tradeWindow("BTC", 4, 2)...)
	if got := Adapt(testState(), small, 10, now, cfg); got.Blocked("SOL") {
		t.Error("4 trades is under the blocking minimum")
	}

	// After the cooldown a neutral window clears the block.
	later := now.Add(25 * time.Hour)
	cleared := Adapt(next, tradeWindow("BTC", 3, 2), 20, later, cfg)
	if cleared.Blocked("DOGE") {
		t.Error("expired block should be lifted")
	}
}

func TestClampToBounds(t *testing.T) {
	cfg := testConfig()

	state := testState()
	state.ScoreThreshold = 9
	state.RiskPerTrade = 0.80
	clamped := cfg.ClampToBounds(state)
	if clamped.ScoreThreshold != cfg.ScoreThresholdMax {
		t.Errorf("threshold = %.1f, want clamped to %.1f", clamped.ScoreThreshold, cfg.ScoreThresholdMax)
	}
	if clamped.RiskPerTrade != cfg.RiskPerTradeMax {
		t.Errorf("risk = %.3f, want clamped to %.3f", clamped.RiskPerTrade, cfg.RiskPerTradeMax)
	}

	// In-bounds values pass through untouched.
	inBounds := cfg.ClampToBounds(testState())
	if inBounds.ScoreThreshold != 2 || inBounds.RiskPerTrade != 0.30 {
		t.Errorf("in-bounds state changed: %+v", inBounds)
	}
}

func TestStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if _, found, err := LoadState(path); err != nil || found {
		t.Fatalf("missing file: found=%v err=%v, want clean miss", found, err)
	}

	state := testState()
	state.AdaptationCount = 3
	state.BlockedAssets = []models.BlockedAsset{{Asset: "DOGE", BlockedAt: time.Now().UTC(), Reason: "win rate 17% over 6 trades"}}

	if err := SaveState(path, state); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, found, err := LoadState(path)
	if err != nil || !found {
		t.Fatalf("load failed: found=%v err=%v", found, err)
	}
	if loaded.ScoreThreshold != state.ScoreThreshold ||
		loaded.RiskPerTrade != state.RiskPerTrade ||
		loaded.AdaptationCount != 3 ||
		len(loaded.BlockedAssets) != 1 ||
		loaded.BlockedAssets[0].Asset != "DOGE" {
		t.Errorf("round trip mismatch:\nsaved  %+v\nloaded %+v", state, loaded)
	}

	// Overwrite is atomic and repeatable.
	state.AdaptationCount = 4
	if err := SaveState(path, state); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	loaded, _, _ = LoadState(path)
	if loaded.AdaptationCount != 4 {
		t.Errorf("overwrite not visible, count = %d", loaded.AdaptationCount)
	}
}
