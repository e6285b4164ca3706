package exits

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alias1177/perpbot/models"
)

type fakeExchange struct {
	models.Exchange
	fillPrice float64
	closeErr  error
	calls     int
	fractions []float64
}

func (f *fakeExchange) ClosePosition(ctx context.Context, asset string, fraction float64) (models.Fill, error) {
	f.calls++
	f.fractions = append(f.fractions, fraction)
	if f.closeErr != nil {
		return models.Fill{}, f.closeErr
	}
	return models.Fill{Asset: asset, Price: f.fillPrice, FilledAt: time.Now()}, nil
}

type fakeLedger struct {
	trades []models.Trade
}

func (f *fakeLedger) Append(trade models.Trade) error { f.trades = append(f.trades, trade); return nil }
func (f *fakeLedger) Recent(n int) ([]models.Trade, error) {
	return append([]models.Trade(nil), f.trades...), nil
}
func (f *fakeLedger) Count() (int, error) { return len(f.trades), nil }

type fakeNotifier struct {
	closed    []models.Trade
	unmanaged []string
}

func (f *fakeNotifier) TradeOpened(models.Position, float64)       {}
func (f *fakeNotifier) TradeClosed(t models.Trade)                 { f.closed = append(f.closed, t) }
func (f *fakeNotifier) DrawdownPaused(float64, float64, float64)   {}
func (f *fakeNotifier) DrawdownResumed(float64)                    {}
func (f *fakeNotifier) PositionUnmanaged(asset string, err error)  { f.unmanaged = append(f.unmanaged, asset) }

func testConfig() Config {
	return Config{
		StopLossPct:        0.015,
		TakeProfit1Pct:     0.025,
		PartialCloseFrac:   0.5,
		TrailActivationPct: 0.02,
		TrailDistancePct:   0.01,
		RetryAttempts:      3,
	}
}

func newTestManager(ex models.Exchange) (*Manager, *fakeLedger, *fakeNotifier) {
	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}
	return NewManager(testConfig(), ex, ledger, notifier, zerolog.Nop()), ledger, notifier
}

func openPosition() *models.Position {
	return &models.Position{
		Asset:      "BTC",
		Direction:  models.DirectionLong,
		EntryPrice: 60000,
		Size:       0.001,
		Leverage:   5,
		OpenedAt:   time.Now(),
		Stage:      models.StageOpen,
	}
}

// Full lifecycle: partial take-profit at +2.5%, trailing anchor ratchet at
// the +3.0% peak, trailing close when the retrace exceeds 1%.
func TestLifecyclePartialThenTrailing(t *testing.T) {
	ex := &fakeExchange{fillPrice: 61500}
	m, ledger, notifier := newTestManager(ex)
	ctx := context.Background()
	pos := openPosition()

	// +2.5%: trail arms, first take-profit closes half.
	decision := m.Evaluate(pos, 61500)
	if decision.Action != ActionPartialClose || decision.Reason != models.ExitReasonTakeProfit {
		t.Fatalf("expected partial take-profit at +2.5%%, got %+v", decision)
	}
	if !pos.TrailArmed {
		t.Error("trail must arm at +2.5% (activation 2%)")
	}
	if _, err := m.Apply(ctx, pos, decision); err != nil {
		t.Fatalf("partial close failed: %v", err)
	}
	if pos.Stage != models.StagePartiallyClosed {
		t.Fatalf("stage = %s, want PARTIALLY_CLOSED", pos.Stage)
	}
	if math.Abs(pos.Size-0.0005) > 1e-12 {
		t.Errorf("remaining size = %.6f, want 0.0005", pos.Size)
	}
	if ex.fractions[0] != 0.5 {
		t.Errorf("close fraction = %.2f, want 0.5", ex.fractions[0])
	}

	// +3.0%: anchor ratchets, nothing closes.
	decision = m.Evaluate(pos, 61800)
	if decision.Action != ActionNone {
		t.Fatalf("no exit expected at the new peak, got %+v", decision)
	}
	if math.Abs(pos.PeakPnlPct-0.03) > 1e-9 {
		t.Errorf("peak = %.4f, want 0.03", pos.PeakPnlPct)
	}

	// Retrace to +1.92%: 1.08% off the peak, trailing stop fires.
	ex.fillPrice = 61150
	decision = m.Evaluate(pos, 61150)
	if decision.Action != ActionFullClose || decision.Reason != models.ExitReasonTrailing {
		t.Fatalf("expected trailing close, got %+v", decision)
	}
	trade, err := m.Apply(ctx, pos, decision)
	if err != nil {
		t.Fatalf("trailing close failed: %v", err)
	}
	if pos.Stage != models.StageClosed {
		t.Errorf("stage = %s, want CLOSED", pos.Stage)
	}

	// Exit is volume-weighted across both tranches: (61500 + 61150) / 2.
	if math.Abs(trade.ExitPrice-61325) > 1e-6 {
		t.Errorf("vwap exit = %.2f, want 61325", trade.ExitPrice)
	}
	wantPnl := (61325.0 - 60000.0) / 60000.0
	if math.Abs(trade.PnlPct-wantPnl) > 1e-9 {
		t.Errorf("pnl = %.6f, want %.6f", trade.PnlPct, wantPnl)
	}
	if len(ledger.trades) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(ledger.trades))
	}
	if len(notifier.closed) != 1 {
		t.Errorf("close notifications = %d, want 1", len(notifier.closed))
	}
}

func TestStopLoss(t *testing.T) {
	tests := []struct {
		name      string
		direction models.Direction
		mark      float64
	}{
		{"long stop", models.DirectionLong, 59000},
		{"short stop", models.DirectionShort, 61000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &fakeExchange{fillPrice: tt.mark}
			m, _, _ := newTestManager(ex)
			pos := openPosition()
			pos.Direction = tt.direction

			decision := m.Evaluate(pos, tt.mark)
			if decision.Action != ActionFullClose || decision.Reason != models.ExitReasonStopLoss {
				t.Fatalf("expected stop-loss close, got %+v", decision)
			}
			trade, err := m.Apply(context.Background(), pos, decision)
			if err != nil {
				t.Fatalf("stop close failed: %v", err)
			}
			if trade.Win() {
				t.Error("a stopped trade cannot be a win")
			}
		})
	}
}

func TestTrailingAnchorNeverRetreats(t *testing.T) {
	m, _, _ := newTestManager(&fakeExchange{})
	pos := openPosition()

	m.Evaluate(pos, 61300) // +2.17%, arms
	if !pos.TrailArmed {
		t.Fatal("trail should be armed")
	}
	peak := pos.PeakPnlPct

	m.Evaluate(pos, 61350) // higher, ratchets
	if pos.PeakPnlPct <= peak {
		t.Error("anchor must ratchet up on a new peak")
	}
	peak = pos.PeakPnlPct

	m.Evaluate(pos, 61320) // small dip inside the distance
	if pos.PeakPnlPct != peak {
		t.Error("anchor must never move down")
	}
}

func TestTakeProfitFiresOnce(t *testing.T) {
	ex := &fakeExchange{fillPrice: 61500}
	m, _, _ := newTestManager(ex)
	pos := openPosition()

	decision := m.Evaluate(pos, 61500)
	if _, err := m.Apply(context.Background(), pos, decision); err != nil {
		t.Fatalf("partial close failed: %v", err)
	}

	// Price returns to the TP level: no second partial.
	decision = m.Evaluate(pos, 61500)
	if decision.Action != ActionNone {
		t.Errorf("partial take-profit must fire once, got %+v", decision)
	}
}

func TestCloseRetryExhaustionAlerts(t *testing.T) {
	ex := &fakeExchange{closeErr: &models.TransientError{Op: "close", Err: context.DeadlineExceeded}}
	m, ledger, notifier := newTestManager(ex)
	pos := openPosition()

	decision := Decision{Action: ActionFullClose, Fraction: 1, Reason: models.ExitReasonStopLoss, PnlPct: -0.02}
	_, err := m.Apply(context.Background(), pos, decision)

	var closeErr *models.CloseFailureError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected CloseFailureError, got %v", err)
	}
	if ex.calls != 3 {
		t.Errorf("close attempts = %d, want 3", ex.calls)
	}
	if len(notifier.unmanaged) != 1 || notifier.unmanaged[0] != "BTC" {
		t.Errorf("expected one unmanaged alert for BTC, got %v", notifier.unmanaged)
	}
	if len(ledger.trades) != 0 {
		t.Error("a failed close must not be recorded as a trade")
	}
	if pos.Stage == models.StageClosed {
		t.Error("position must stay open after a failed close")
	}
}
