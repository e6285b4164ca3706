package indicators

import (
	"testing"
	"time"

	"github.com/Alias1177/perpbot/models"
)

func generateTestCandles(count int, build func(i int) models.Candle) []models.Candle {
	candles := make([]models.Candle, count)
	for i := 0; i < count; i++ {
		candles[i] = build(i)
	}
	return candles
}

func trendingCandles(count int, step float64) []models.Candle {
	return generateTestCandles(count, func(i int) models.Candle {
		close := 100 + float64(i)*step
		return models.Candle{
			Timestamp: time.Unix(int64(i)*900, 0),
			Open:      close - step,
			High:      close + 1,
			Low:       close - step - 1,
			Close:     close,
			Volume:    1000,
		}
	})
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name    string
		candles []models.Candle
		period  int
		wantOK  bool
		check   func(t *testing.T, rsi float64)
	}{
		{
			name:    "insufficient data abstains",
			candles: trendingCandles(10, 1),
			period:  14,
			wantOK:  false,
		},
		{
			name:    "zero period abstains",
			candles: trendingCandles(30, 1),
			period:  0,
			wantOK:  false,
		},
		{
			name:    "steady rally saturates high",
			candles: trendingCandles(30, 1),
			period:  14,
			wantOK:  true,
			check: func(t *testing.T, rsi float64) {
				if rsi != 100 {
					t.Errorf("expected RSI 100 for pure gains, got %.2f", rsi)
				}
			},
		},
		{
			name:    "steady decline reads oversold",
			candles: trendingCandles(30, -1),
			period:  14,
			wantOK:  true,
			check: func(t *testing.T, rsi float64) {
				if rsi > 5 {
					t.Errorf("expected deeply oversold RSI for pure losses, got %.2f", rsi)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi, ok := RSI(tt.candles, tt.period)
			if ok != tt.wantOK {
				t.Fatalf("RSI ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.check != nil {
				tt.check(t, rsi)
			}
		})
	}
}

func TestBollinger(t *testing.T) {
	candles := generateTestCandles(30, func(i int) models.Candle {
		// Alternate around 100 so the bands have width.
		close := 100.0
		if i%2 == 0 {
			close = 102
		} else {
			close = 98
		}
		return models.Candle{Close: close}
	})

	upper, middle, lower, ok := Bollinger(candles, 20, 2)
	if !ok {
		t.Fatal("expected Bollinger to compute with 30 candles")
	}
	if middle != 100 {
		t.Errorf("middle band = %.2f, want 100", middle)
	}
	if !(lower < middle && middle < upper) {
		t.Errorf("band ordering violated: %.2f %.2f %.2f", lower, middle, upper)
	}

	if _, _, _, ok := Bollinger(candles[:10], 20, 2); ok {
		t.Error("expected abstain with fewer candles than the period")
	}
}

func TestADX(t *testing.T) {
	if _, _, _, ok := ADX(trendingCandles(20, 1), 14); ok {
		t.Error("expected abstain below period*2 candles")
	}

	adx, plusDI, minusDI, ok := ADX(trendingCandles(60, 2), 14)
	if !ok {
		t.Fatal("expected ADX to compute with 60 candles")
	}
	if plusDI <= minusDI {
		t.Errorf("uptrend should have +DI > -DI, got +%.2f -%.2f", plusDI, minusDI)
	}
	if adx <= 20 {
		t.Errorf("sustained trend should clear the strength floor, got %.2f", adx)
	}

	_, plusDown, minusDown, ok := ADX(trendingCandles(60, -2), 14)
	if !ok {
		t.Fatal("expected ADX to compute for downtrend")
	}
	if minusDown <= plusDown {
		t.Errorf("downtrend should have -DI > +DI, got +%.2f -%.2f", plusDown, minusDown)
	}
}

func TestVolumeRatio(t *testing.T) {
	candles := generateTestCandles(25, func(i int) models.Candle {
		c := models.Candle{Close: 100, Volume: 1000}
		if i == 24 {
			c.Volume = 3000
		}
		return c
	})

	ratio, ok := VolumeRatio(candles, 20)
	if !ok {
		t.Fatal("expected volume ratio to compute")
	}
	if ratio != 3 {
		t.Errorf("ratio = %.2f, want 3.0", ratio)
	}

	flat := generateTestCandles(25, func(i int) models.Candle {
		return models.Candle{Close: 100}
	})
	if _, ok := VolumeRatio(flat, 20); ok {
		t.Error("expected abstain when the venue reports no volume")
	}
}

func TestComputeDeterminism(t *testing.T) {
	snapshot := models.MarketSnapshot{
		Asset:     "BTC",
		Timeframe: "15m",
		Candles:   trendingCandles(100, 0.5),
	}
	params := Params{RSIPeriod: 14, BBPeriod: 20, BBStdDev: 2, ADXPeriod: 14, VolumePeriod: 20}

	first := Compute(snapshot, params)
	second := Compute(snapshot, params)
	if first != second {
		t.Errorf("identical windows must produce identical sets:\n%+v\n%+v", first, second)
	}
	if !first.RSIOK || !first.BBOK || !first.ADXOK || !first.VolumeOK {
		t.Errorf("100 candles should satisfy every indicator: %+v", first)
	}
	if first.Price != snapshot.LastClose() {
		t.Errorf("set price %.2f != last close %.2f", first.Price, snapshot.LastClose())
	}
}
