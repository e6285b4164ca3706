package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/perpbot/config"
	"github.com/Alias1177/perpbot/internal/adapter"
	"github.com/Alias1177/perpbot/internal/api/hyperliquid"
	"github.com/Alias1177/perpbot/internal/api/perplexity"
	"github.com/Alias1177/perpbot/internal/engine"
	"github.com/Alias1177/perpbot/internal/exits"
	"github.com/Alias1177/perpbot/internal/ledger"
	"github.com/Alias1177/perpbot/internal/notify"
	"github.com/Alias1177/perpbot/internal/risk"
	"github.com/Alias1177/perpbot/internal/scorer"
	"github.com/Alias1177/perpbot/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Config load failed")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(lvl)

	strategy, err := config.LoadStrategy(cfg.StrategyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Strategy load failed")
	}

	if cfg.AccountAddress == "" || cfg.APISecret == "" {
		log.Fatal().Msg("HL_ACCOUNT_ADDRESS and HL_API_SECRET must be set")
	}

	exchange, err := hyperliquid.NewClient(hyperliquid.ClientOptions{
		BaseURL:        cfg.ExchangeURL,
		AccountAddress: cfg.AccountAddress,
		APISecret:      cfg.APISecret,
		RequestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Exchange client init failed")
	}

	var sentiment models.SentimentProvider
	if cfg.PerplexityAPIKey != "" {
		sentiment = perplexity.NewClient(perplexity.ClientOptions{
			APIKey:   cfg.PerplexityAPIKey,
			Model:    cfg.PerplexityModel,
			CacheTTL: time.Duration(strategy.SentimentCacheMin) * time.Minute,
		})
	} else {
		log.Warn().Msg("PERPLEXITY_API_KEY not set, sentiment checks disabled")
	}

	tradeLedger, err := buildLedger(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Trade ledger init failed")
	}

	var notifier models.Notifier
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		notifier, err = notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram init failed, falling back to log notifier")
			notifier = notify.NewLog()
		}
	} else {
		notifier = notify.NewLog()
	}

	state, found, err := adapter.LoadState(cfg.StateFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Strategy state load failed")
	}
	if !found {
		state = models.StrategyState{
			ScoreThreshold: strategy.ScoreThreshold,
			RiskPerTrade:   strategy.RiskPerTrade,
			Leverage:       strategy.Leverage,
			Weights:        strategy.Weights,
			UpdatedAt:      time.Now(),
		}
		log.Info().Msg("No persisted strategy state, starting from configured defaults")
	} else {
		log.Info().
			Float64("score_threshold", state.ScoreThreshold).
			Float64("risk_per_trade", state.RiskPerTrade).
			Int("adaptations", state.AdaptationCount).
			Msg("Strategy state restored")
	}

	deps := engine.Deps{
		Exchange:  exchange,
		Sentiment: sentiment,
		Ledger:    tradeLedger,
		Notifier:  notifier,
		Scorer: scorer.New(scorer.Config{
			RSIOversold:     strategy.RSIOversold,
			RSIOverbought:   strategy.RSIOverbought,
			ExtremeRSI:      strategy.ExtremeRSI,
			ADXFloor:        strategy.ADXFloor,
			VolumeMultiple:  strategy.VolumeMultiple,
			WallRatio:       strategy.WallRatio,
			WallDistancePct: strategy.WallDistancePct,
			FundingExtreme:  strategy.FundingExtreme,
			ScoreCeiling:    strategy.ScoreThresholdMax,
		}, log.Logger),
		Sizing: risk.NewManager(risk.SizingConfig{
			MaxNotionalMultiple: strategy.MaxNotionalMult,
			MinOrderNotional:    strategy.MinOrderNotional,
			DefaultLeverage:     strategy.DefaultLeverage,
		}, log.Logger),
		Drawdown: risk.NewDrawdownGuard(strategy.MaxDrawdown, log.Logger),
		Exits: exits.NewManager(exits.Config{
			StopLossPct:        strategy.StopLossPct,
			TakeProfit1Pct:     strategy.TakeProfit1Pct,
			PartialCloseFrac:   strategy.PartialCloseFrac,
			TrailActivationPct: strategy.TrailActivationPct,
			TrailDistancePct:   strategy.TrailDistancePct,
			RetryAttempts:      strategy.CloseRetryAttempts,
		}, exchange, tradeLedger, notifier, log.Logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := engine.New(strategy, deps, state, cfg.StateFile, log.Logger)
	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Trading loop failed")
	}
}

// buildLedger picks the trade store: Postgres when configured, the local
// JSONL file otherwise.
func buildLedger(cfg *config.Config) (models.TradeLedger, error) {
	if cfg.UsesDatabase() {
		return ledger.NewPostgresLedger(ledger.ConnectionParams{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
	}
	return ledger.NewFileLedger(cfg.LedgerFile, log.Logger)
}
