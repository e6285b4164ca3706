package indicators

import (
	"math"

	"github.com/Alias1177/perpbot/models"
)

// RSI calculates Wilder's smoothed relative strength index over the window.
// Requires at least period+1 candles; ok is false on insufficient data and
// the caller treats the check as neutral.
func RSI(candles []models.Candle, period int) (float64, bool) {
	if period < 1 || len(candles) < period+1 {
		return 0, false
	}

	var gains, losses float64
	// Initial averages over the first period
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	// Wilder smoothing for the rest of the window
	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			avgGain = (avgGain*float64(period-1) + change) / float64(period)
			avgLoss = (avgLoss * float64(period-1)) / float64(period)
		} else {
			avgGain = (avgGain * float64(period-1)) / float64(period)
			avgLoss = (avgLoss*float64(period-1) - change) / float64(period)
		}
	}

	if avgLoss == 0 {
		return 100.0, true
	}

	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs)), true
}

// Bollinger calculates Bollinger Bands: moving average ± stdDev standard
// deviations over the last period candles.
func Bollinger(candles []models.Candle, period int, stdDev float64) (upper, middle, lower float64, ok bool) {
	if period < 1 || len(candles) < period {
		return 0, 0, 0, false
	}

	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	middle = sum / float64(period)

	var variance float64
	for i := len(candles) - period; i < len(candles); i++ {
		variance += math.Pow(candles[i].Close-middle, 2)
	}
	sd := math.Sqrt(variance / float64(period))

	return middle + (sd * stdDev), middle, middle - (sd * stdDev), true
}

// ADX calculates the average directional index with +DI/-DI using Wilder
// smoothing. ADX gates trend strength; the DI pair gives trend direction.
func ADX(candles []models.Candle, period int) (adx, plusDI, minusDI float64, ok bool) {
	if period < 1 || len(candles) < period*2 {
		return 0, 0, 0, false
	}

	var plusDM, minusDM, trueRange []float64
	for i := 1; i < len(candles); i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low

		pDM := 0.0
		if upMove > downMove && upMove > 0 {
			pDM = upMove
		}
		plusDM = append(plusDM, pDM)

		mDM := 0.0
		if downMove > upMove && downMove > 0 {
			mDM = downMove
		}
		minusDM = append(minusDM, mDM)

		tr1 := candles[i].High - candles[i].Low
		tr2 := math.Abs(candles[i].High - candles[i-1].Close)
		tr3 := math.Abs(candles[i].Low - candles[i-1].Close)
		trueRange = append(trueRange, math.Max(tr1, math.Max(tr2, tr3)))
	}

	// Initial smoothed sums over the first period
	var smoothedPlusDM, smoothedMinusDM, smoothedTR float64
	for i := 0; i < period; i++ {
		smoothedPlusDM += plusDM[i]
		smoothedMinusDM += minusDM[i]
		smoothedTR += trueRange[i]
	}
	if smoothedTR == 0 {
		return 0, 0, 0, false
	}

	plusDI = (smoothedPlusDM / smoothedTR) * 100
	minusDI = (smoothedMinusDM / smoothedTR) * 100

	diSum := plusDI + minusDI
	if diSum == 0 {
		return 0, 0, 0, false
	}
	adx = math.Abs(plusDI-minusDI) / diSum * 100

	// Wilder-smoothed refinement over the remaining candles
	for i := period; i < len(trueRange); i++ {
		smoothedPlusDM = smoothedPlusDM - (smoothedPlusDM / float64(period)) + plusDM[i]
		smoothedMinusDM = smoothedMinusDM - (smoothedMinusDM / float64(period)) + minusDM[i]
		smoothedTR = smoothedTR - (smoothedTR / float64(period)) + trueRange[i]
		if smoothedTR == 0 {
			continue
		}

		newPlusDI := (smoothedPlusDM / smoothedTR) * 100
		newMinusDI := (smoothedMinusDM / smoothedTR) * 100
		newSum := newPlusDI + newMinusDI
		if newSum == 0 {
			continue
		}
		newDX := math.Abs(newPlusDI-newMinusDI) / newSum * 100

		adx = ((float64(period-1) * adx) + newDX) / float64(period)
		plusDI = newPlusDI
		minusDI = newMinusDI
	}

	return adx, plusDI, minusDI, true
}

// VolumeRatio divides the latest bar volume by the average volume of the
// preceding lookback bars.
func VolumeRatio(candles []models.Candle, lookback int) (float64, bool) {
	if lookback < 1 || len(candles) < lookback+1 {
		return 0, false
	}

	var sum float64
	for i := len(candles) - lookback - 1; i < len(candles)-1; i++ {
		sum += candles[i].Volume
	}
	avg := sum / float64(lookback)
	if avg == 0 {
		return 0, false
	}
	return candles[len(candles)-1].Volume / avg, true
}

// Set is the full indicator snapshot for one timeframe window.
type Set struct {
	Price float64

	RSI   float64
	RSIOK bool

	BBUpper  float64
	BBMiddle float64
	BBLower  float64
	BBOK     bool

	ADX     float64
	PlusDI  float64
	MinusDI float64
	ADXOK   bool

	VolumeRatio float64
	VolumeOK    bool
}

// Params selects the indicator periods for Compute.
type Params struct {
	RSIPeriod    int
	BBPeriod     int
	BBStdDev     float64
	ADXPeriod    int
	VolumePeriod int
}

// Compute derives the indicator set from a snapshot window. Individual
// indicators with too little data report themselves unavailable instead of
// fabricating values.
func Compute(snapshot models.MarketSnapshot, p Params) Set {
	var set Set
	set.Price = snapshot.LastClose()

	candles := snapshot.Candles
	set.RSI, set.RSIOK = RSI(candles, p.RSIPeriod)
	set.BBUpper, set.BBMiddle, set.BBLower, set.BBOK = Bollinger(candles, p.BBPeriod, p.BBStdDev)
	set.ADX, set.PlusDI, set.MinusDI, set.ADXOK = ADX(candles, p.ADXPeriod)
	set.VolumeRatio, set.VolumeOK = VolumeRatio(candles, p.VolumePeriod)

	return set
}
