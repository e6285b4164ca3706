package scorer

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/Alias1177/perpbot/internal/indicators"
	"github.com/Alias1177/perpbot/models"
)

// Contributor factor names. Weights in StrategyState are keyed by these.
const (
	FactorRSI       = "rsi"
	FactorBollinger = "bb"
	FactorTrend     = "adx"
	FactorVolume    = "volume"
	FactorWall      = "orderbook"
	FactorFunding   = "funding"
	FactorMultiTF   = "multi_tf"
	FactorSentiment = "sentiment"
	FactorExtreme   = "extreme_oversold"
)

// Config holds the scoring thresholds, all operator-tuned.
type Config struct {
	RSIOversold     float64
	RSIOverbought   float64
	ExtremeRSI      float64
	ADXFloor        float64
	VolumeMultiple  float64
	WallRatio       float64
	WallDistancePct float64
	FundingExtreme  float64
	ScoreCeiling    float64 // contribution granted by the extreme-oversold override
}

// Inputs carries everything one scoring pass may consult. Optional sources
// are pointers; nil means the check abstains this cycle.
type Inputs struct {
	Asset     string
	Base      indicators.Set
	Confirm   []indicators.Set
	Orderbook *models.Orderbook
	Funding   *float64
	Sentiment *models.SentimentBias
}

// Scorer fuses indicator, orderbook, funding and sentiment evidence into one
// directional signal per asset per cycle.
type Scorer struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates a scorer with the given thresholds.
func New(cfg Config, logger zerolog.Logger) *Scorer {
	if cfg.ScoreCeiling == 0 {
		cfg.ScoreCeiling = 4
	}
	return &Scorer{cfg: cfg, logger: logger.With().Str("component", "scorer").Logger()}
}

// Score produces the Signal for one asset. Contributions are summed in a
// fixed order (RSI, Bollinger, trend, volume, wall, funding, multi-timeframe,
// sentiment, extreme override) so identical inputs always yield identical
// output. Direction follows the sign of the net score; an exact zero is NONE.
func (s *Scorer) Score(in Inputs, state models.StrategyState) models.Signal {
	sig := models.Signal{
		Asset:     in.Asset,
		Direction: models.DirectionNone,
		Factors:   make(map[string]float64),
	}

	add := func(factor string, long bool, magnitude float64) {
		contribution := magnitude * state.Weight(factor)
		if long {
			sig.LongScore += contribution
			sig.Factors[factor] += contribution
		} else {
			sig.ShortScore += contribution
			sig.Factors[factor] -= contribution
		}
	}

	base := in.Base
	volumeConfirmed := base.VolumeOK && base.VolumeRatio >= s.cfg.VolumeMultiple

	// 1. RSI extremity, gated on abnormal volume like the Bollinger check:
	// mean-reversion evidence counts only when the move carries volume.
	if base.RSIOK && volumeConfirmed {
		if base.RSI < s.cfg.RSIOversold {
			add(FactorRSI, true, 1)
		} else if base.RSI > s.cfg.RSIOverbought {
			add(FactorRSI, false, 1)
		}
	}

	// 2. Price vs Bollinger Bands
	if base.BBOK && volumeConfirmed {
		if base.Price < base.BBLower {
			add(FactorBollinger, true, 1)
		} else if base.Price > base.BBUpper {
			add(FactorBollinger, false, 1)
		}
	}

	// 3. ADX trend gate with DI direction
	if base.ADXOK && base.ADX > s.cfg.ADXFloor {
		if base.PlusDI > base.MinusDI {
			add(FactorTrend, true, 1)
		} else if base.MinusDI > base.PlusDI {
			add(FactorTrend, false, 1)
		}
	}

	// 4. Volume confirmation as its own evidence: abnormal volume in a
	// directional bar confirms that direction.
	if volumeConfirmed {
		if base.ADXOK && base.PlusDI > base.MinusDI {
			add(FactorVolume, true, 0.5)
		} else if base.ADXOK && base.MinusDI > base.PlusDI {
			add(FactorVolume, false, 0.5)
		}
	}

	// 5. Orderbook wall: heavy resting volume near the mark biases price
	// away from the wall.
	if in.Orderbook != nil {
		if long, found := s.wallBias(*in.Orderbook); found {
			add(FactorWall, long, 1)
		}
	}

	// 6. Funding filter: an extreme rate penalizes the paying side; past
	// twice the extreme the expensive side is vetoed outright.
	vetoLong, vetoShort := false, false
	if in.Funding != nil {
		rate := *in.Funding
		if rate > s.cfg.FundingExtreme {
			add(FactorFunding, false, 1)
			vetoLong = rate > 2*s.cfg.FundingExtreme
		} else if rate < -s.cfg.FundingExtreme {
			add(FactorFunding, true, 1)
			vetoShort = rate < -2*s.cfg.FundingExtreme
		}
	}

	// 7. Multi-timeframe confirmation: RSI bias on each higher timeframe.
	for _, higher := range in.Confirm {
		if !higher.RSIOK {
			continue
		}
		if higher.RSI < 50 {
			add(FactorMultiTF, true, 1)
		} else if higher.RSI > 50 {
			add(FactorMultiTF, false, 1)
		}
	}

	// 8. Sentiment bias contributes, and a strong opposing verdict vetoes.
	if in.Sentiment != nil {
		switch in.Sentiment.Bias {
		case models.DirectionLong:
			add(FactorSentiment, true, math.Abs(in.Sentiment.Score))
		case models.DirectionShort:
			add(FactorSentiment, false, math.Abs(in.Sentiment.Score))
		}
	}

	// 9. Extreme oversold bounce: a deeply washed-out RSI on the base or a
	// higher timeframe forces long evidence strong enough to stand alone.
	if base.RSIOK && base.RSI < s.cfg.ExtremeRSI {
		add(FactorExtreme, true, s.cfg.ScoreCeiling)
	} else {
		for _, higher := range in.Confirm {
			if higher.RSIOK && higher.RSI < s.cfg.ExtremeRSI {
				add(FactorExtreme, true, s.cfg.ScoreCeiling)
				break
			}
		}
	}

	net := sig.LongScore - sig.ShortScore
	switch {
	case net > 0:
		sig.Direction = models.DirectionLong
		sig.Score = net
	case net < 0:
		sig.Direction = models.DirectionShort
		sig.Score = -net
	default:
		sig.Direction = models.DirectionNone
		sig.Score = 0
	}

	// Funding veto on the expensive side
	if (sig.Direction == models.DirectionLong && vetoLong) ||
		(sig.Direction == models.DirectionShort && vetoShort) {
		s.logger.Debug().Str("asset", in.Asset).Str("direction", string(sig.Direction)).
			Msg("Funding veto")
		sig.Direction = models.DirectionNone
	}

	// Sentiment veto against the macro trend
	if in.Sentiment != nil && sig.Direction != models.DirectionNone &&
		in.Sentiment.Bias == sig.Direction.Opposite() &&
		math.Abs(in.Sentiment.Score) >= 0.5 {
		s.logger.Debug().Str("asset", in.Asset).Str("direction", string(sig.Direction)).
			Float64("sentiment", in.Sentiment.Score).Msg("Sentiment veto")
		sig.Direction = models.DirectionNone
	}

	return sig
}

// wallBias scans resting volume within the configured price distance of the
// mid. A dominant ask wall biases short, a dominant bid wall biases long.
func (s *Scorer) wallBias(book models.Orderbook) (long bool, found bool) {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return false, false
	}
	mid := (book.Bids[0].Price + book.Asks[0].Price) / 2
	if mid <= 0 {
		return false, false
	}

	var bidVol, askVol float64
	for _, level := range book.Bids {
		if (mid-level.Price)/mid <= s.cfg.WallDistancePct {
			bidVol += level.Size
		}
	}
	for _, level := range book.Asks {
		if (level.Price-mid)/mid <= s.cfg.WallDistancePct {
			askVol += level.Size
		}
	}

	if askVol > 0 && bidVol >= s.cfg.WallRatio*askVol {
		return true, true // bid wall below: support, bias long
	}
	if bidVol > 0 && askVol >= s.cfg.WallRatio*bidVol {
		return false, true // ask wall above: resistance, bias short
	}
	return false, false
}

// Qualifies applies the sole gate to the sizing manager: score at or above
// the adaptive threshold, a real direction, no open position on the asset,
// a free slot under the global ceiling, and no adapter block.
func (s *Scorer) Qualifies(sig models.Signal, state models.StrategyState, hasOpenPosition bool, openCount, maxOpen int) bool {
	if sig.Direction == models.DirectionNone {
		return false
	}
	if sig.Score < state.ScoreThreshold {
		return false
	}
	if hasOpenPosition {
		return false
	}
	if openCount >= maxOpen {
		return false
	}
	if state.Blocked(sig.Asset) {
		return false
	}
	return true
}
