package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/perpbot/models"
)

// slippage is the worst acceptable deviation from mid when converting a
// market order into an aggressive IOC limit.
const slippage = 0.05

// Client talks to the Hyperliquid REST API: unauthenticated /info reads and
// signed /exchange actions.
type Client struct {
	http    *resty.Client
	signer  *Signer
	account string
	logger  zerolog.Logger

	mu   sync.Mutex
	meta map[string]assetMeta // coin -> perp index and size precision
}

// ClientOptions holds options for creating a new Hyperliquid client.
type ClientOptions struct {
	BaseURL        string
	AccountAddress string
	APISecret      string
	RequestTimeout time.Duration
}

// NewClient creates a Hyperliquid API client. The API secret is the private
// key of an API wallet approved for the account address.
func NewClient(options ClientOptions) (*Client, error) {
	if options.BaseURL == "" {
		options.BaseURL = "https://api.hyperliquid.xyz"
	}
	if options.RequestTimeout == 0 {
		options.RequestTimeout = 30 * time.Second
	}

	mainnet := !strings.Contains(options.BaseURL, "testnet")
	signer, err := NewSigner(options.APISecret, mainnet)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(options.BaseURL, "/")).
		SetTimeout(options.RequestTimeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    httpClient,
		signer:  signer,
		account: options.AccountAddress,
		logger:  log.With().Str("component", "hyperliquid_client").Logger(),
		meta:    make(map[string]assetMeta),
	}, nil
}

// info posts a query to /info and decodes the response into out.
func (c *Client) info(ctx context.Context, body any, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		Post("/info")
	return c.classify("info", resp, err)
}

// classify maps transport and status failures onto the engine's error
// taxonomy: network errors, 5xx and 429 are transient, the rest are not.
func (c *Client) classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &models.TransientError{Op: op, Err: err}
	}
	if resp.IsSuccess() {
		return nil
	}
	statusErr := fmt.Errorf("%s returned HTTP %d: %s", op, resp.StatusCode(), resp.String())
	if resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests {
		return &models.TransientError{Op: op, Err: statusErr}
	}
	return statusErr
}

// assetInfo resolves the perp index and size precision for a coin, fetching
// and caching the exchange meta on first use.
func (c *Client) assetInfo(ctx context.Context, asset string) (assetMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.meta[asset]; ok {
		return m, nil
	}

	var meta metaWire
	if err := c.info(ctx, map[string]string{"type": "meta"}, &meta); err != nil {
		return assetMeta{}, fmt.Errorf("fetching exchange meta: %w", err)
	}
	for i, entry := range meta.Universe {
		c.meta[entry.Name] = assetMeta{index: i, szDecimals: entry.SzDecimals}
	}

	m, ok := c.meta[asset]
	if !ok {
		return assetMeta{}, fmt.Errorf("unknown asset %q", asset)
	}
	return m, nil
}

// GetBalance returns the account value in USDC.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	var state clearinghouseState
	req := map[string]string{"type": "clearinghouseState", "user": c.account}
	if err := c.info(ctx, req, &state); err != nil {
		return 0, err
	}
	return parsePrice(state.MarginSummary.AccountValue)
}

// GetOpenPositions returns the exchange's view of open perp positions.
// Size is signed: positive long, negative short.
func (c *Client) GetOpenPositions(ctx context.Context) ([]models.ExchangePosition, error) {
	var state clearinghouseState
	req := map[string]string{"type": "clearinghouseState", "user": c.account}
	if err := c.info(ctx, req, &state); err != nil {
		return nil, err
	}

	positions := make([]models.ExchangePosition, 0, len(state.AssetPositions))
	for _, ap := range state.AssetPositions {
		szi, err := parsePrice(ap.Position.Szi)
		if err != nil {
			return nil, err
		}
		if szi == 0 {
			continue
		}
		entry, err := parsePrice(ap.Position.EntryPx)
		if err != nil {
			return nil, err
		}
		upnl, err := parsePrice(ap.Position.UnrealizedPnl)
		if err != nil {
			return nil, err
		}
		positions = append(positions, models.ExchangePosition{
			Asset:         ap.Position.Coin,
			Size:          szi,
			EntryPrice:    entry,
			UnrealizedPnl: upnl,
			Leverage:      ap.Position.Leverage.Value,
		})
	}
	return positions, nil
}

// GetMarketSnapshot fetches the most recent candles for one asset/timeframe.
func (c *Client) GetMarketSnapshot(ctx context.Context, asset, timeframe string, limit int) (models.MarketSnapshot, error) {
	interval, err := timeframeDuration(timeframe)
	if err != nil {
		return models.MarketSnapshot{}, err
	}

	end := time.Now()
	start := end.Add(-time.Duration(limit+1) * interval)
	req := map[string]any{
		"type": "candleSnapshot",
		"req": map[string]any{
			"coin":      asset,
			"interval":  timeframe,
			"startTime": start.UnixMilli(),
			"endTime":   end.UnixMilli(),
		},
	}

	var wire []candleWire
	if err := c.info(ctx, req, &wire); err != nil {
		return models.MarketSnapshot{}, err
	}
	if len(wire) == 0 {
		return models.MarketSnapshot{}, fmt.Errorf("no candles returned for %s %s", asset, timeframe)
	}

	candles := make([]models.Candle, 0, len(wire))
	for _, w := range wire {
		open, err := parsePrice(w.Open)
		if err != nil {
			return models.MarketSnapshot{}, err
		}
		high, err := parsePrice(w.High)
		if err != nil {
			return models.MarketSnapshot{}, err
		}
		low, err := parsePrice(w.Low)
		if err != nil {
			return models.MarketSnapshot{}, err
		}
		closePx, err := parsePrice(w.Close)
		if err != nil {
			return models.MarketSnapshot{}, err
		}
		volume, err := parsePrice(w.Volume)
		if err != nil {
			return models.MarketSnapshot{}, err
		}
		candles = append(candles, models.Candle{
			Timestamp: time.UnixMilli(w.OpenMillis),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    volume,
		})
	}

	snapshot := models.MarketSnapshot{Asset: asset, Timeframe: timeframe, Candles: candles}
	return snapshot.Trim(limit), nil
}

// GetOrderbook returns the visible book, best levels first.
func (c *Client) GetOrderbook(ctx context.Context, asset string) (models.Orderbook, error) {
	var wire l2BookWire
	req := map[string]string{"type": "l2Book", "coin": asset}
	if err := c.info(ctx, req, &wire); err != nil {
		return models.Orderbook{}, err
	}
	if len(wire.Levels) != 2 {
		return models.Orderbook{}, fmt.Errorf("malformed l2 book for %s", asset)
	}

	book := models.Orderbook{Asset: asset}
	for _, lvl := range wire.Levels[0] {
		px, err := parsePrice(lvl.Px)
		if err != nil {
			return models.Orderbook{}, err
		}
		sz, err := parsePrice(lvl.Sz)
		if err != nil {
			return models.Orderbook{}, err
		}
		book.Bids = append(book.Bids, models.OrderbookLevel{Price: px, Size: sz})
	}
	for _, lvl := range wire.Levels[1] {
		px, err := parsePrice(lvl.Px)
		if err != nil {
			return models.Orderbook{}, err
		}
		sz, err := parsePrice(lvl.Sz)
		if err != nil {
			return models.Orderbook{}, err
		}
		book.Asks = append(book.Asks, models.OrderbookLevel{Price: px, Size: sz})
	}
	return book, nil
}

// GetFundingRate returns the current hourly funding rate for the asset.
func (c *Client) GetFundingRate(ctx context.Context, asset string) (float64, error) {
	var raw []json.RawMessage
	if err := c.info(ctx, map[string]string{"type": "metaAndAssetCtxs"}, &raw); err != nil {
		return 0, err
	}
	if len(raw) != 2 {
		return 0, fmt.Errorf("malformed metaAndAssetCtxs response")
	}

	var meta metaWire
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return 0, fmt.Errorf("parsing meta: %w", err)
	}
	var ctxs []assetCtxWire
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return 0, fmt.Errorf("parsing asset contexts: %w", err)
	}

	for i, entry := range meta.Universe {
		if entry.Name == asset && i < len(ctxs) {
			return parsePrice(ctxs[i].Funding)
		}
	}
	return 0, fmt.Errorf("no funding context for %s", asset)
}

// GetMarkPrice returns the current mid price for the asset.
func (c *Client) GetMarkPrice(ctx context.Context, asset string) (float64, error) {
	var mids map[string]string
	if err := c.info(ctx, map[string]string{"type": "allMids"}, &mids); err != nil {
		return 0, err
	}
	px, ok := mids[asset]
	if !ok {
		return 0, fmt.Errorf("no mid price for %s", asset)
	}
	return parsePrice(px)
}

// SubmitOrder sets cross leverage and opens a position at market via an
// aggressive IOC limit. A fill is returned; exchange-side rejections come
// back as RejectedOrderError.
func (c *Client) SubmitOrder(ctx context.Context, asset string, direction models.Direction, size float64, leverage int) (models.Fill, error) {
	meta, err := c.assetInfo(ctx, asset)
	if err != nil {
		return models.Fill{}, err
	}

	if err := c.updateLeverage(ctx, meta.index, leverage); err != nil {
		// Leverage updates fail when a position already carries a different
		// tier; the order itself decides, so log and continue.
		c.logger.Warn().Err(err).Str("asset", asset).Int("leverage", leverage).Msg("Leverage update failed")
	}

	mid, err := c.GetMarkPrice(ctx, asset)
	if err != nil {
		return models.Fill{}, err
	}

	isBuy := direction == models.DirectionLong
	px := mid * (1 + slippage)
	if !isBuy {
		px = mid * (1 - slippage)
	}

	return c.placeOrder(ctx, asset, meta, isBuy, px, size, false)
}

// ClosePosition reduces the exchange-side position by fraction (0 < fraction
// <= 1) with a reduce-only market order.
func (c *Client) ClosePosition(ctx context.Context, asset string, fraction float64) (models.Fill, error) {
	if fraction <= 0 || fraction > 1 {
		return models.Fill{}, fmt.Errorf("close fraction %.4f out of range", fraction)
	}

	positions, err := c.GetOpenPositions(ctx)
	if err != nil {
		return models.Fill{}, err
	}
	var current *models.ExchangePosition
	for i := range positions {
		if positions[i].Asset == asset {
			current = &positions[i]
			break
		}
	}
	if current == nil {
		return models.Fill{}, &models.RejectedOrderError{Asset: asset, Reason: "no open position to close"}
	}

	meta, err := c.assetInfo(ctx, asset)
	if err != nil {
		return models.Fill{}, err
	}
	mid, err := c.GetMarkPrice(ctx, asset)
	if err != nil {
		return models.Fill{}, err
	}

	// Closing a long sells, closing a short buys.
	isBuy := current.Size < 0
	px := mid * (1 + slippage)
	if !isBuy {
		px = mid * (1 - slippage)
	}

	size := math.Abs(current.Size)
	if fraction < 1 {
		size *= fraction
	}

	return c.placeOrder(ctx, asset, meta, isBuy, px, size, true)
}

func (c *Client) placeOrder(ctx context.Context, asset string, meta assetMeta, isBuy bool, px, size float64, reduceOnly bool) (models.Fill, error) {
	size = roundSize(size, meta.szDecimals)
	if size <= 0 {
		return models.Fill{}, &models.RejectedOrderError{Asset: asset, Reason: "size rounds to zero"}
	}
	px = roundPrice(px, meta.szDecimals)

	action := orderAction{
		Type: "order",
		Orders: []orderWire{{
			Asset:      meta.index,
			IsBuy:      isBuy,
			LimitPx:    floatToWire(px),
			Size:       floatToWire(size),
			ReduceOnly: reduceOnly,
			Type:       orderTypeWire{Limit: limitTif{Tif: "Ioc"}},
		}},
		Grouping: "na",
	}

	resp, err := c.exchange(ctx, action)
	if err != nil {
		return models.Fill{}, err
	}

	if len(resp.Response.Data.Statuses) == 0 {
		return models.Fill{}, &models.RejectedOrderError{Asset: asset, Reason: "empty order status"}
	}
	status := resp.Response.Data.Statuses[0]
	switch {
	case status.Error != "":
		return models.Fill{}, &models.RejectedOrderError{Asset: asset, Reason: status.Error}
	case status.Filled != nil:
		fillPx, err := parsePrice(status.Filled.AvgPx)
		if err != nil {
			return models.Fill{}, err
		}
		fillSz, err := parsePrice(status.Filled.TotalSz)
		if err != nil {
			return models.Fill{}, err
		}
		return models.Fill{Asset: asset, Price: fillPx, Size: fillSz, FilledAt: time.Now()}, nil
	default:
		// IOC orders either fill or cancel; resting should not happen.
		return models.Fill{}, &models.RejectedOrderError{Asset: asset, Reason: "order did not fill"}
	}
}

func (c *Client) updateLeverage(ctx context.Context, assetIndex, leverage int) error {
	action := leverageAction{
		Type:     "updateLeverage",
		Asset:    assetIndex,
		IsCross:  true,
		Leverage: leverage,
	}
	_, err := c.exchange(ctx, action)
	return err
}

// exchange signs and posts an action, surfacing in-band "err" statuses.
func (c *Client) exchange(ctx context.Context, action any) (*exchangeResponse, error) {
	nonce := uint64(time.Now().UnixMilli())
	sig, err := c.signer.Sign(action, nonce)
	if err != nil {
		return nil, err
	}

	var out exchangeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(exchangeRequest{Action: action, Nonce: nonce, Signature: sig}).
		SetResult(&out).
		Post("/exchange")
	if err := c.classify("exchange", resp, err); err != nil {
		return nil, err
	}
	if out.Status != "ok" {
		return nil, fmt.Errorf("exchange action failed: %s", resp.String())
	}
	return &out, nil
}

// timeframeDuration maps a candle interval label to its duration.
func timeframeDuration(timeframe string) (time.Duration, error) {
	switch timeframe {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unsupported timeframe %q", timeframe)
}
