package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Strategy is the operator-tuned strategy document, loaded from YAML.
// Every scoring weight and threshold the engine uses is declared here rather
// than hard-coded; the adapter moves a few of them at runtime but only
// inside the hard bounds below.
type Strategy struct {
	Assets []string `yaml:"assets"`

	// Timeframes: base drives entries, confirm timeframes feed
	// multi-timeframe confirmation.
	BaseTimeframe     string   `yaml:"baseTimeframe"`
	ConfirmTimeframes []string `yaml:"confirmTimeframes"`
	LookbackCandles   int      `yaml:"lookbackCandles"`

	// Indicator periods.
	RSIPeriod    int     `yaml:"rsiPeriod"`
	BBPeriod     int     `yaml:"bbPeriod"`
	BBStdDev     float64 `yaml:"bbStdDev"`
	ADXPeriod    int     `yaml:"adxPeriod"`
	VolumePeriod int     `yaml:"volumePeriod"`

	// Scoring thresholds.
	RSIOversold     float64            `yaml:"rsiOversold"`
	RSIOverbought   float64            `yaml:"rsiOverbought"`
	ExtremeRSI      float64            `yaml:"extremeRsi"` // forced long bounce below this
	ADXFloor        float64            `yaml:"adxFloor"`
	VolumeMultiple  float64            `yaml:"volumeMultiple"`  // abnormal-volume confirmation
	WallRatio       float64            `yaml:"wallRatio"`       // one-sided book volume multiple
	WallDistancePct float64            `yaml:"wallDistancePct"` // price distance counted as "near"
	FundingExtreme  float64            `yaml:"fundingExtreme"`  // hourly rate that penalizes a side
	Weights         map[string]float64 `yaml:"weights"`         // contributor -> default weight

	// Score threshold: adapter-tuned, clamped to [Min,Max].
	ScoreThreshold    float64 `yaml:"scoreThreshold"`
	ScoreThresholdMin float64 `yaml:"scoreThresholdMin"`
	ScoreThresholdMax float64 `yaml:"scoreThresholdMax"`

	// Risk parameters.
	RiskPerTrade     float64        `yaml:"riskPerTrade"` // adapter-tuned, clamped
	RiskPerTradeMin  float64        `yaml:"riskPerTradeMin"`
	RiskPerTradeMax  float64        `yaml:"riskPerTradeMax"`
	Leverage         map[string]int `yaml:"leverage"` // per-asset tier
	DefaultLeverage  int            `yaml:"defaultLeverage"`
	MaxOpenPositions int            `yaml:"maxOpenPositions"`
	MaxNotionalMult  float64        `yaml:"maxNotionalMultiple"` // total open notional vs balance
	MinOrderNotional float64        `yaml:"minOrderNotional"`
	MaxDrawdown      float64        `yaml:"maxDrawdown"`

	// Exit thresholds (fractions of notional).
	StopLossPct        float64 `yaml:"stopLossPct"`
	TakeProfit1Pct     float64 `yaml:"takeProfit1Pct"`
	PartialCloseFrac   float64 `yaml:"partialCloseFraction"`
	TrailActivationPct float64 `yaml:"trailActivationPct"`
	TrailDistancePct   float64 `yaml:"trailDistancePct"`
	CloseRetryAttempts int     `yaml:"closeRetryAttempts"`

	// Adapter cadence.
	TradesPerAdaptation int     `yaml:"tradesPerAdaptation"`
	AdaptWindow         int     `yaml:"adaptWindow"` // trailing trades considered
	BlockWinRate        float64 `yaml:"blockWinRate"`
	BlockMinTrades      int     `yaml:"blockMinTrades"`
	BlockCooldownHours  int     `yaml:"blockCooldownHours"`

	// Loop timing.
	CycleIntervalSec  int `yaml:"cycleIntervalSec"`
	SentimentCacheMin int `yaml:"sentimentCacheMin"`
}

// ApplyDefaults fills zero values with the defaults the original operators ran.
func (s *Strategy) ApplyDefaults() {
	if len(s.Assets) == 0 {
		s.Assets = []string{"BTC", "ETH", "SOL"}
	}
	if s.BaseTimeframe == "" {
		s.BaseTimeframe = "15m"
	}
	if len(s.ConfirmTimeframes) == 0 {
		s.ConfirmTimeframes = []string{"1h", "4h"}
	}
	if s.LookbackCandles == 0 {
		s.LookbackCandles = 100
	}
	if s.RSIPeriod == 0 {
		s.RSIPeriod = 14
	}
	if s.BBPeriod == 0 {
		s.BBPeriod = 20
	}
	if s.BBStdDev == 0 {
		s.BBStdDev = 2.0
	}
	if s.ADXPeriod == 0 {
		s.ADXPeriod = 14
	}
	if s.VolumePeriod == 0 {
		s.VolumePeriod = 20
	}
	if s.RSIOversold == 0 {
		s.RSIOversold = 35
	}
	if s.RSIOverbought == 0 {
		s.RSIOverbought = 65
	}
	if s.ExtremeRSI == 0 {
		s.ExtremeRSI = 25
	}
	if s.ADXFloor == 0 {
		s.ADXFloor = 20
	}
	if s.VolumeMultiple == 0 {
		s.VolumeMultiple = 1.5
	}
	if s.WallRatio == 0 {
		s.WallRatio = 1.5
	}
	if s.WallDistancePct == 0 {
		s.WallDistancePct = 0.005
	}
	if s.FundingExtreme == 0 {
		s.FundingExtreme = 0.0001
	}
	if s.Weights == nil {
		s.Weights = map[string]float64{}
	}
	if s.ScoreThreshold == 0 {
		s.ScoreThreshold = 2
	}
	if s.ScoreThresholdMin == 0 {
		s.ScoreThresholdMin = 1
	}
	if s.ScoreThresholdMax == 0 {
		s.ScoreThresholdMax = 4
	}
	if s.RiskPerTrade == 0 {
		s.RiskPerTrade = 0.30
	}
	if s.RiskPerTradeMin == 0 {
		s.RiskPerTradeMin = 0.10
	}
	if s.RiskPerTradeMax == 0 {
		s.RiskPerTradeMax = 0.50
	}
	if s.DefaultLeverage == 0 {
		s.DefaultLeverage = 3
	}
	if s.MaxOpenPositions == 0 {
		s.MaxOpenPositions = 3
	}
	if s.MaxNotionalMult == 0 {
		s.MaxNotionalMult = 3.0
	}
	if s.MinOrderNotional == 0 {
		s.MinOrderNotional = 10
	}
	if s.MaxDrawdown == 0 {
		s.MaxDrawdown = 0.25
	}
	if s.StopLossPct == 0 {
		s.StopLossPct = 0.015
	}
	if s.TakeProfit1Pct == 0 {
		s.TakeProfit1Pct = 0.025
	}
	if s.PartialCloseFrac == 0 {
		s.PartialCloseFrac = 0.5
	}
	if s.TrailActivationPct == 0 {
		s.TrailActivationPct = 0.02
	}
	if s.TrailDistancePct == 0 {
		s.TrailDistancePct = 0.01
	}
	if s.CloseRetryAttempts == 0 {
		s.CloseRetryAttempts = 5
	}
	if s.TradesPerAdaptation == 0 {
		s.TradesPerAdaptation = 10
	}
	if s.AdaptWindow == 0 {
		s.AdaptWindow = 20
	}
	if s.BlockWinRate == 0 {
		s.BlockWinRate = 30
	}
	if s.BlockMinTrades == 0 {
		s.BlockMinTrades = 5
	}
	if s.BlockCooldownHours == 0 {
		s.BlockCooldownHours = 24
	}
	if s.CycleIntervalSec == 0 {
		s.CycleIntervalSec = 45
	}
	if s.SentimentCacheMin == 0 {
		s.SentimentCacheMin = 60
	}
}

// Validate checks the invariants the engine depends on.
func (s *Strategy) Validate() error {
	if len(s.Assets) == 0 {
		return fmt.Errorf("strategy: no assets configured")
	}
	if s.ScoreThresholdMin > s.ScoreThresholdMax {
		return fmt.Errorf("strategy: scoreThresholdMin %.2f > scoreThresholdMax %.2f", s.ScoreThresholdMin, s.ScoreThresholdMax)
	}
	if s.ScoreThreshold < s.ScoreThresholdMin || s.ScoreThreshold > s.ScoreThresholdMax {
		return fmt.Errorf("strategy: scoreThreshold %.2f outside [%.2f, %.2f]", s.ScoreThreshold, s.ScoreThresholdMin, s.ScoreThresholdMax)
	}
	if s.RiskPerTradeMin > s.RiskPerTradeMax {
		return fmt.Errorf("strategy: riskPerTradeMin %.2f > riskPerTradeMax %.2f", s.RiskPerTradeMin, s.RiskPerTradeMax)
	}
	if s.RiskPerTrade < s.RiskPerTradeMin || s.RiskPerTrade > s.RiskPerTradeMax {
		return fmt.Errorf("strategy: riskPerTrade %.2f outside [%.2f, %.2f]", s.RiskPerTrade, s.RiskPerTradeMin, s.RiskPerTradeMax)
	}
	if s.PartialCloseFrac <= 0 || s.PartialCloseFrac >= 1 {
		return fmt.Errorf("strategy: partialCloseFraction %.2f must be in (0, 1)", s.PartialCloseFrac)
	}
	if s.StopLossPct <= 0 || s.TakeProfit1Pct <= 0 || s.TrailActivationPct <= 0 || s.TrailDistancePct <= 0 {
		return fmt.Errorf("strategy: exit thresholds must be positive")
	}
	if s.MaxOpenPositions < 1 {
		return fmt.Errorf("strategy: maxOpenPositions must be at least 1")
	}
	if s.MaxDrawdown <= 0 || s.MaxDrawdown >= 1 {
		return fmt.Errorf("strategy: maxDrawdown %.2f must be in (0, 1)", s.MaxDrawdown)
	}
	return nil
}

// LoadStrategy reads the YAML strategy file, applies defaults and validates.
// A missing file yields the defaults.
func LoadStrategy(path string) (*Strategy, error) {
	var s Strategy
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing strategy file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading strategy file %s: %w", path, err)
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
