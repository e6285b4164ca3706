package notify

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/perpbot/models"
)

// Telegram delivers trade and risk events to a chat. Sends are synchronous
// but failures only log: notification can never stall the trading loop.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger zerolog.Logger
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("initializing telegram bot: %w", err)
	}
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		logger: log.With().Str("component", "telegram_notifier").Logger(),
	}, nil
}

func (t *Telegram) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error().Err(err).Msg("Failed to send telegram message")
	}
}

// TradeOpened announces a new position.
func (t *Telegram) TradeOpened(pos models.Position, score float64) {
	emoji := "🟢"
	if pos.Direction == models.DirectionShort {
		emoji = "🔴"
	}
	t.send(fmt.Sprintf(
		"%s OPEN %s %s\nEntry: %.4f\nSize: %.4f (%dx)\nNotional: $%.2f\nScore: %.1f",
		emoji, pos.Direction, pos.Asset, pos.EntryPrice, pos.Size, pos.Leverage, pos.Notional(), score,
	))
}

// TradeClosed announces a fully closed trade with its outcome.
func (t *Telegram) TradeClosed(trade models.Trade) {
	emoji := "✅"
	if !trade.Win() {
		emoji = "❌"
	}
	held := trade.ClosedAt.Sub(trade.OpenedAt).Round(time.Minute)
	t.send(fmt.Sprintf(
		"%s CLOSED %s %s (%s)\nEntry: %.4f → Exit: %.4f\nPnL: %+.2f%%\nHeld: %s",
		emoji, trade.Direction, trade.Asset, trade.ExitReason,
		trade.EntryPrice, trade.ExitPrice, trade.PnlPct*100, held,
	))
}

// DrawdownPaused announces that entries are suspended.
func (t *Telegram) DrawdownPaused(drawdown, peak, balance float64) {
	t.send(fmt.Sprintf(
		"⚠️ TRADING PAUSED\nDrawdown: %.1f%%\nPeak: $%.2f → Now: $%.2f\nEntries suspended until recovery.",
		drawdown*100, peak, balance,
	))
}

// DrawdownResumed announces that entries are allowed again.
func (t *Telegram) DrawdownResumed(drawdown float64) {
	t.send(fmt.Sprintf("▶️ TRADING RESUMED\nDrawdown recovered to %.1f%%.", drawdown*100))
}

// PositionUnmanaged is the critical alert: a close kept failing and the
// position is live on the exchange without management.
func (t *Telegram) PositionUnmanaged(asset string, err error) {
	t.send(fmt.Sprintf(
		"🚨 UNMANAGED POSITION: %s\nRepeated close attempts failed: %v\nManual intervention required.",
		asset, err,
	))
}

// Log is the fallback notifier used when Telegram is not configured. Events
// land in the structured log instead.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates the log-only notifier.
func NewLog() *Log {
	return &Log{logger: log.With().Str("component", "notifier").Logger()}
}

func (l *Log) TradeOpened(pos models.Position, score float64) {
	l.logger.Info().
		Str("asset", pos.Asset).
		Str("direction", string(pos.Direction)).
		Float64("entry", pos.EntryPrice).
		Float64("size", pos.Size).
		Float64("score", score).
		Msg("Trade opened")
}

func (l *Log) TradeClosed(trade models.Trade) {
	l.logger.Info().
		Str("asset", trade.Asset).
		Str("reason", trade.ExitReason).
		Float64("pnl_pct", trade.PnlPct).
		Msg("Trade closed")
}

func (l *Log) DrawdownPaused(drawdown, peak, balance float64) {
	l.logger.Warn().
		Float64("drawdown", drawdown).
		Float64("peak", peak).
		Float64("balance", balance).
		Msg("Trading paused on drawdown")
}

func (l *Log) DrawdownResumed(drawdown float64) {
	l.logger.Info().Float64("drawdown", drawdown).Msg("Trading resumed")
}

func (l *Log) PositionUnmanaged(asset string, err error) {
	l.logger.Error().Err(err).Str("asset", asset).Msg("Position left unmanaged after failed closes")
}
