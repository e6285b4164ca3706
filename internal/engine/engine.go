package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alias1177/perpbot/config"
	"github.com/Alias1177/perpbot/internal/adapter"
	"github.com/Alias1177/perpbot/internal/exits"
	"github.com/Alias1177/perpbot/internal/indicators"
	"github.com/Alias1177/perpbot/internal/risk"
	"github.com/Alias1177/perpbot/internal/scorer"
	"github.com/Alias1177/perpbot/models"
)

// Deps are the collaborators the engine drives. Everything that talks to the
// outside world sits behind an interface so cycles are testable end to end.
type Deps struct {
	Exchange  models.Exchange
	Sentiment models.SentimentProvider
	Ledger    models.TradeLedger
	Notifier  models.Notifier
	Scorer    *scorer.Scorer
	Sizing    *risk.Manager
	Drawdown  *risk.DrawdownGuard
	Exits     *exits.Manager
}

// Engine runs the trading loop: one goroutine, one cycle at a time. All
// position and strategy state is owned here; collaborators get read-only
// snapshots.
type Engine struct {
	cfg       *config.Strategy
	deps      Deps
	adaptCfg  adapter.Config
	stateFile string
	logger    zerolog.Logger

	state     models.StrategyState
	positions map[string]*models.Position
	now       func() time.Time
}

// New creates the engine around an initial strategy state (persisted or
// defaults).
func New(cfg *config.Strategy, deps Deps, state models.StrategyState, stateFile string, logger zerolog.Logger) *Engine {
	adaptCfg := adapter.Config{
		ScoreThresholdMin:   cfg.ScoreThresholdMin,
		ScoreThresholdMax:   cfg.ScoreThresholdMax,
		RiskPerTradeMin:     cfg.RiskPerTradeMin,
		RiskPerTradeMax:     cfg.RiskPerTradeMax,
		TradesPerAdaptation: cfg.TradesPerAdaptation,
		Window:              cfg.AdaptWindow,
		BlockWinRate:        cfg.BlockWinRate,
		BlockMinTrades:      cfg.BlockMinTrades,
		BlockCooldown:       time.Duration(cfg.BlockCooldownHours) * time.Hour,
	}
	return &Engine{
		cfg:       cfg,
		deps:      deps,
		adaptCfg:  adaptCfg,
		stateFile: stateFile,
		logger:    logger.With().Str("component", "engine").Logger(),
		// A restored state may predate tighter configured bounds.
		state:     adaptCfg.ClampToBounds(state),
		positions: make(map[string]*models.Position),
		now:       time.Now,
	}
}

// State returns the current strategy state snapshot.
func (e *Engine) State() models.StrategyState {
	return e.state.Clone()
}

// Run adopts any positions already live on the exchange, then cycles until
// the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.adoptPositions(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("Could not adopt exchange positions, starting empty")
	}

	interval := time.Duration(e.cfg.CycleIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info().
		Strs("assets", e.cfg.Assets).
		Dur("interval", interval).
		Float64("score_threshold", e.state.ScoreThreshold).
		Msg("Trading loop started")

	for {
		e.Cycle(ctx)
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Trading loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// adoptPositions rebuilds the tracked position map from the exchange after a
// restart. Exit progress (partial fills, trailing anchor) is lost; adopted
// positions restart the state machine from OPEN.
func (e *Engine) adoptPositions(ctx context.Context) error {
	open, err := e.deps.Exchange.GetOpenPositions(ctx)
	if err != nil {
		return err
	}
	for _, ep := range open {
		direction := models.DirectionLong
		if ep.Size < 0 {
			direction = models.DirectionShort
		}
		pos := &models.Position{
			Asset:      ep.Asset,
			Direction:  direction,
			EntryPrice: ep.EntryPrice,
			Size:       math.Abs(ep.Size),
			Leverage:   ep.Leverage,
			OpenedAt:   e.now(),
			Stage:      models.StageOpen,
		}
		e.positions[ep.Asset] = pos
		e.logger.Info().Str("asset", ep.Asset).Str("direction", string(direction)).
			Float64("entry", ep.EntryPrice).Float64("size", pos.Size).
			Msg("Adopted open position from exchange")
	}
	return nil
}

// Cycle runs one full pass: drawdown accounting, exit management for every
// open position, reconciliation against the exchange, an adaptation pass
// when due, then entry scanning. A failure in any per-asset step is isolated
// to that asset; a failure to read the balance skips the cycle.
func (e *Engine) Cycle(ctx context.Context) {
	balance, err := e.deps.Exchange.GetBalance(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Balance fetch failed, skipping cycle")
		return
	}

	drawdown, changed := e.deps.Drawdown.Update(balance)
	if changed {
		if e.deps.Drawdown.Paused() {
			e.deps.Notifier.DrawdownPaused(drawdown, e.deps.Drawdown.Peak(), balance)
		} else {
			e.deps.Notifier.DrawdownResumed(drawdown)
		}
	}

	e.manageExits(ctx)
	e.reconcile(ctx)
	e.adapt()

	if e.deps.Drawdown.Paused() {
		return
	}
	e.scanEntries(ctx, balance)
}

// manageExits steps the exit state machine for every tracked position.
func (e *Engine) manageExits(ctx context.Context) {
	for asset, pos := range e.positions {
		mark, err := e.deps.Exchange.GetMarkPrice(ctx, asset)
		if err != nil {
			e.logger.Warn().Err(err).Str("asset", asset).Msg("Mark price fetch failed, deferring exit check")
			continue
		}

		decision := e.deps.Exits.Evaluate(pos, mark)
		if decision.Action == exits.ActionNone {
			continue
		}

		if _, err := e.deps.Exits.Apply(ctx, pos, decision); err != nil {
			e.logger.Error().Err(err).Str("asset", asset).Msg("Exit application failed")
			continue
		}
		if pos.Stage == models.StageClosed {
			delete(e.positions, asset)
		}
	}
}

// reconcile drops tracked positions the exchange no longer holds: an
// exchange-side stop, liquidation or manual close happened out of band. The
// trade is recorded at the current mark so the ledger stays complete.
func (e *Engine) reconcile(ctx context.Context) {
	if len(e.positions) == 0 {
		return
	}

	open, err := e.deps.Exchange.GetOpenPositions(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Position reconciliation skipped")
		return
	}
	held := make(map[string]bool, len(open))
	for _, ep := range open {
		held[ep.Asset] = true
	}

	for asset, pos := range e.positions {
		if held[asset] {
			continue
		}

		exitPrice, err := e.deps.Exchange.GetMarkPrice(ctx, asset)
		if err != nil {
			exitPrice = pos.EntryPrice
		}
		trade := exits.BuildTrade(pos, exitPrice, models.ExitReasonManual, e.now())
		if err := e.deps.Ledger.Append(trade); err != nil {
			e.logger.Error().Err(err).Str("asset", asset).Msg("Ledger append failed for reconciled trade")
		}
		e.deps.Notifier.TradeClosed(trade)
		e.logger.Warn().Str("asset", asset).Float64("exit_price", exitPrice).
			Msg("Position closed outside the engine, reconciled from exchange")
		delete(e.positions, asset)
	}
}

// adapt runs a strategy adaptation pass when enough new trades accumulated,
// and persists the resulting state.
func (e *Engine) adapt() {
	count, err := e.deps.Ledger.Count()
	if err != nil {
		e.logger.Warn().Err(err).Msg("Ledger count failed, skipping adaptation")
		return
	}
	if !e.adaptCfg.ShouldAdapt(e.state, count) {
		return
	}

	window, err := e.deps.Ledger.Recent(e.adaptCfg.Window)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Ledger read failed, skipping adaptation")
		return
	}

	prev := e.state
	e.state = adapter.Adapt(prev, window, count, e.now(), e.adaptCfg)
	e.logger.Info().
		Float64("score_threshold", e.state.ScoreThreshold).
		Float64("risk_per_trade", e.state.RiskPerTrade).
		Int("blocked_assets", len(e.state.BlockedAssets)).
		Int("adaptations", e.state.AdaptationCount).
		Msg("Strategy adapted")

	if err := adapter.SaveState(e.stateFile, e.state); err != nil {
		e.logger.Error().Err(err).Msg("Strategy state persist failed")
	}
}

// scanEntries evaluates every configured asset for a new entry.
func (e *Engine) scanEntries(ctx context.Context, balance float64) {
	state := e.state.Clone()
	for _, asset := range e.cfg.Assets {
		if err := e.scanAsset(ctx, asset, balance, state); err != nil {
			switch {
			case models.IsRejected(err):
				e.logger.Warn().Err(err).Str("asset", asset).Msg("Order rejected")
			case models.IsTransient(err):
				e.logger.Warn().Err(err).Str("asset", asset).Msg("Transient failure, retrying next cycle")
			case errors.Is(err, risk.ErrBelowMinimum), errors.Is(err, models.ErrRiskCeiling):
				e.logger.Info().Err(err).Str("asset", asset).Msg("Entry skipped by risk limits")
			default:
				e.logger.Error().Err(err).Str("asset", asset).Msg("Entry scan failed")
			}
		}
	}
}

func (e *Engine) scanAsset(ctx context.Context, asset string, balance float64, state models.StrategyState) error {
	if _, open := e.positions[asset]; open {
		return nil
	}
	if len(e.positions) >= e.cfg.MaxOpenPositions || state.Blocked(asset) {
		return nil
	}

	in, err := e.collectInputs(ctx, asset)
	if err != nil {
		return err
	}

	sig := e.deps.Scorer.Score(*in, state)
	e.logger.Debug().Str("asset", asset).Str("direction", string(sig.Direction)).
		Float64("score", sig.Score).Msg("Scored")

	if !e.deps.Scorer.Qualifies(sig, state, false, len(e.positions), e.cfg.MaxOpenPositions) {
		return nil
	}

	price := in.Base.Price
	intent, err := e.deps.Sizing.ComputeIntent(sig, price, balance, e.openNotional(), state)
	if err != nil {
		return err
	}

	fill, err := e.deps.Exchange.SubmitOrder(ctx, intent.Asset, intent.Direction, intent.Size, intent.Leverage)
	if err != nil {
		return err
	}

	pos := &models.Position{
		Asset:      asset,
		Direction:  intent.Direction,
		EntryPrice: fill.Price,
		Size:       fill.Size,
		Leverage:   intent.Leverage,
		OpenedAt:   e.now(),
		Stage:      models.StageOpen,
	}
	e.positions[asset] = pos
	e.deps.Notifier.TradeOpened(*pos, sig.Score)
	e.logger.Info().Str("asset", asset).Str("direction", string(intent.Direction)).
		Float64("entry", fill.Price).Float64("size", fill.Size).
		Int("leverage", intent.Leverage).Float64("score", sig.Score).
		Msg("Position opened")
	return nil
}

// collectInputs gathers everything the scorer may consult for one asset.
// The base snapshot is mandatory; orderbook, funding and sentiment are
// optional evidence and abstain on failure.
func (e *Engine) collectInputs(ctx context.Context, asset string) (*scorer.Inputs, error) {
	params := indicators.Params{
		RSIPeriod:    e.cfg.RSIPeriod,
		BBPeriod:     e.cfg.BBPeriod,
		BBStdDev:     e.cfg.BBStdDev,
		ADXPeriod:    e.cfg.ADXPeriod,
		VolumePeriod: e.cfg.VolumePeriod,
	}

	base, err := e.deps.Exchange.GetMarketSnapshot(ctx, asset, e.cfg.BaseTimeframe, e.cfg.LookbackCandles)
	if err != nil {
		return nil, err
	}

	in := &scorer.Inputs{
		Asset: asset,
		Base:  indicators.Compute(base, params),
	}

	for _, tf := range e.cfg.ConfirmTimeframes {
		higher, err := e.deps.Exchange.GetMarketSnapshot(ctx, asset, tf, e.cfg.LookbackCandles)
		if err != nil {
			e.logger.Debug().Err(err).Str("asset", asset).Str("timeframe", tf).
				Msg("Confirmation snapshot unavailable")
			continue
		}
		in.Confirm = append(in.Confirm, indicators.Compute(higher, params))
	}

	if book, err := e.deps.Exchange.GetOrderbook(ctx, asset); err == nil {
		in.Orderbook = &book
	} else {
		e.logger.Debug().Err(err).Str("asset", asset).Msg("Orderbook unavailable")
	}

	if rate, err := e.deps.Exchange.GetFundingRate(ctx, asset); err == nil {
		in.Funding = &rate
	} else {
		e.logger.Debug().Err(err).Str("asset", asset).Msg("Funding rate unavailable")
	}

	if e.deps.Sentiment != nil {
		if bias, err := e.deps.Sentiment.GetBias(ctx, asset); err == nil {
			in.Sentiment = &bias
		} else {
			e.logger.Debug().Err(err).Str("asset", asset).Msg("Sentiment unavailable")
		}
	}

	return in, nil
}

// openNotional sums entry notional across tracked positions.
func (e *Engine) openNotional() float64 {
	var total float64
	for _, pos := range e.positions {
		total += pos.Notional()
	}
	return total
}
