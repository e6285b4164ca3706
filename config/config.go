package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds process-level configuration loaded from the environment.
// Strategy tuning lives in the YAML file referenced by StrategyFile.
type Config struct {
	AccountAddress string `env:"HL_ACCOUNT_ADDRESS"`
	APISecret      string `env:"HL_API_SECRET"`
	ExchangeURL    string `env:"HL_API_URL" envDefault:"https://api.hyperliquid.xyz"`

	PerplexityAPIKey string `env:"PERPLEXITY_API_KEY"`
	PerplexityModel  string `env:"PERPLEXITY_MODEL" envDefault:"sonar"`

	TelegramToken  string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`

	// Optional Postgres mirror for the trade ledger.
	DBHost     string `env:"DB_HOST"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	StrategyFile   string `env:"STRATEGY_CONFIG" envDefault:"strategy.yaml"`
	LedgerFile     string `env:"LEDGER_FILE" envDefault:"trades.jsonl"`
	StateFile      string `env:"STATE_FILE" envDefault:"strategy_state.json"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	RequestTimeout int    `env:"REQUEST_TIMEOUT" envDefault:"30"` // seconds
}

// Load initializes configuration from environment variables.
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config
	cfg.AccountAddress = os.Getenv("HL_ACCOUNT_ADDRESS")
	cfg.APISecret = os.Getenv("HL_API_SECRET")
	cfg.ExchangeURL = getEnvWithDefault("HL_API_URL", "https://api.hyperliquid.xyz")
	cfg.PerplexityAPIKey = os.Getenv("PERPLEXITY_API_KEY")
	cfg.PerplexityModel = getEnvWithDefault("PERPLEXITY_MODEL", "sonar")
	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatID = getEnvInt64WithDefault("TELEGRAM_CHAT_ID", 0)
	cfg.DBHost = os.Getenv("DB_HOST")
	cfg.DBPort = getEnvWithDefault("DB_PORT", "5432")
	cfg.DBUser = os.Getenv("DB_USER")
	cfg.DBPassword = os.Getenv("DB_PASSWORD")
	cfg.DBName = os.Getenv("DB_NAME")
	cfg.DBSSLMode = getEnvWithDefault("DB_SSLMODE", "disable")
	cfg.StrategyFile = getEnvWithDefault("STRATEGY_CONFIG", "strategy.yaml")
	cfg.LedgerFile = getEnvWithDefault("LEDGER_FILE", "trades.jsonl")
	cfg.StateFile = getEnvWithDefault("STATE_FILE", "strategy_state.json")
	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")
	cfg.RequestTimeout = getEnvIntWithDefault("REQUEST_TIMEOUT", 30)

	return &cfg, nil
}

// UsesDatabase reports whether the optional Postgres ledger is configured.
func (c *Config) UsesDatabase() bool {
	return c.DBHost != "" && c.DBUser != "" && c.DBName != ""
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
