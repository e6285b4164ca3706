package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpClient "github.com/Alias1177/perpbot/internal/platform/http"
	"github.com/Alias1177/perpbot/models"
)

const apiURL = "https://api.perplexity.ai/chat/completions"

// Bias thresholds on the -1..1 score.
const (
	longThreshold  = 0.25
	shortThreshold = -0.25
)

var scoreLinePattern = regexp.MustCompile(`(?i)score[:\s]+([+-]?\d+\.?\d*)`)
var standaloneScorePattern = regexp.MustCompile(`(?:^|\s)([+-]?0\.\d+)(?:\s|$|\.)`)

var bullishWords = []string{
	"bullish", "recovery", "bounce", "support holding", "accumulation",
	"buying", "upside", "breakout", "rally", "momentum up",
}

var bearishWords = []string{
	"bearish", "breakdown", "crash", "capitulation", "sell-off",
	"declining", "downside", "dump", "lower", "weak",
}

// Client asks Perplexity for a directional market bias per asset. Verdicts
// are cached per asset so one model call covers many cycles.
type Client struct {
	apiKey     string
	model      string
	httpClient *httpClient.Client
	logger     zerolog.Logger

	cacheTTL time.Duration
	mu       sync.Mutex
	cache    map[string]cachedBias
}

type cachedBias struct {
	bias      models.SentimentBias
	fetchedAt time.Time
}

// ClientOptions holds options for creating a new Perplexity client.
type ClientOptions struct {
	APIKey         string
	Model          string
	RequestTimeout time.Duration
	CacheTTL       time.Duration
}

// NewClient creates a new Perplexity sentiment client.
func NewClient(options ClientOptions) *Client {
	if options.Model == "" {
		options.Model = "sonar"
	}
	if options.RequestTimeout == 0 {
		options.RequestTimeout = 45 * time.Second
	}
	if options.CacheTTL == 0 {
		options.CacheTTL = time.Hour
	}

	return &Client{
		apiKey: options.APIKey,
		model:  options.Model,
		httpClient: httpClient.NewClient(httpClient.ClientOptions{
			Timeout:        options.RequestTimeout,
			RequestsPerSec: 1,
		}),
		logger:   log.With().Str("component", "perplexity_client").Logger(),
		cacheTTL: options.CacheTTL,
		cache:    make(map[string]cachedBias),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GetBias returns the cached or freshly fetched directional bias for an
// asset. Callers treat errors as "no bias": sentiment never blocks a cycle.
func (c *Client) GetBias(ctx context.Context, asset string) (models.SentimentBias, error) {
	if c.apiKey == "" {
		return models.SentimentBias{Bias: models.DirectionNone}, nil
	}

	c.mu.Lock()
	if cached, ok := c.cache[asset]; ok && time.Since(cached.fetchedAt) < c.cacheTTL {
		c.mu.Unlock()
		return cached.bias, nil
	}
	c.mu.Unlock()

	analysis, err := c.analyze(ctx, asset)
	if err != nil {
		return models.SentimentBias{Bias: models.DirectionNone}, err
	}

	score := extractScore(analysis)
	bias := models.SentimentBias{Bias: biasFor(score), Score: score}

	c.logger.Info().
		Str("asset", asset).
		Str("bias", string(bias.Bias)).
		Float64("score", score).
		Msg("Sentiment verdict")

	c.mu.Lock()
	c.cache[asset] = cachedBias{bias: bias, fetchedAt: time.Now()}
	c.mu.Unlock()

	return bias, nil
}

func (c *Client) analyze(ctx context.Context, asset string) (string, error) {
	now := time.Now().UTC().Format("2006-01-02 15:04 UTC")
	prompt := fmt.Sprintf(
		"You are a crypto trading analyst. Analyze %s market conditions right now (%s). "+
			"Cover: price action, key support/resistance levels, recent news catalysts, "+
			"funding rates, whale activity, and macro factors. "+
			"Then give a directional score from -1.0 (very bearish) to +1.0 (very bullish). "+
			"Format your last line EXACTLY as: SCORE: [number]",
		asset, now,
	)

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.2,
		MaxTokens:   400,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.DoRequest(ctx, req)
	if err != nil {
		return "", fmt.Errorf("perplexity request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	var data chatResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("parsing JSON: %w", err)
	}
	if len(data.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}

	return data.Choices[0].Message.Content, nil
}

// extractScore pulls the -1..1 directional score out of the model's text.
// Tries the requested SCORE: line first, then a standalone decimal, then
// falls back to keyword counting.
func extractScore(text string) float64 {
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if match := scoreLinePattern.FindStringSubmatch(line); match != nil {
			if v, err := strconv.ParseFloat(match[1], 64); err == nil {
				return clampScore(v)
			}
		}
	}

	if matches := standaloneScorePattern.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		if v, err := strconv.ParseFloat(matches[len(matches)-1][1], 64); err == nil {
			return clampScore(v)
		}
	}

	lower := strings.ToLower(text)
	bulls, bears := 0, 0
	for _, w := range bullishWords {
		if strings.Contains(lower, w) {
			bulls++
		}
	}
	for _, w := range bearishWords {
		if strings.Contains(lower, w) {
			bears++
		}
	}

	switch {
	case bears > bulls:
		return -keywordScore(bears)
	case bulls > bears:
		return keywordScore(bulls)
	}
	return 0
}

func keywordScore(count int) float64 {
	switch {
	case count >= 4:
		return 0.6
	case count >= 2:
		return 0.4
	}
	return 0.2
}

func clampScore(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func biasFor(score float64) models.Direction {
	switch {
	case score >= longThreshold:
		return models.DirectionLong
	case score <= shortThreshold:
		return models.DirectionShort
	}
	return models.DirectionNone
}
