package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"triggerBot/internal/adapters/logger"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading Parameters
	FundingAsset        string   // Quote asset spent on buys and received on sells
	Recipient           string   // Passed through to the venue with every swap
	BothBandPct         float64  // Tolerance band for BOTH targets, in percent of the target price
	HighRiskAssets      []string // Assets always refused by the risk screen
	MaxSwapsPerDay      int      // 0 disables the daily limit
	DefaultTargetActive bool     // Active flag for seeded targets that omit it

	// Engine
	TickInterval time.Duration
	TickTimeout  time.Duration

	// Market Feed
	FeedRefreshInterval time.Duration
	FeedConcurrency     int
	FeedStaleAfter      time.Duration
	DepthLimit          int

	// Database
	DBPath      string
	TargetsFile string // Optional JSON seed file loaded into an empty registry

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string

	// Metrics
	MetricsAddr string // Empty disables the metrics server

	// Connection Settings
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Trading Parameters
	cfg.FundingAsset = strings.ToUpper(getEnv("FUNDING_ASSET", "USDT"))
	cfg.Recipient = getEnv("RECIPIENT", "")

	cfg.BothBandPct, err = getEnvAsFloatRequired("BOTH_BAND_PCT", 1.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BOTH_BAND_PCT: %v", err))
	} else if cfg.BothBandPct <= 0 || cfg.BothBandPct >= 100 {
		errs = append(errs, "BOTH_BAND_PCT must be between 0 and 100 (exclusive)")
	}

	cfg.HighRiskAssets = getEnvAsList("HIGH_RISK_ASSETS")

	cfg.MaxSwapsPerDay, err = getEnvAsIntRequired("MAX_SWAPS_PER_DAY", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_SWAPS_PER_DAY: %v", err))
	} else if cfg.MaxSwapsPerDay < 0 {
		errs = append(errs, "MAX_SWAPS_PER_DAY cannot be negative")
	}

	cfg.DefaultTargetActive = getEnvAsBool("DEFAULT_TARGET_ACTIVE", true)

	// Engine
	tickMs, err := getEnvAsIntRequired("TICK_INTERVAL_MS", 1000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TICK_INTERVAL_MS: %v", err))
	} else if tickMs <= 0 {
		errs = append(errs, "TICK_INTERVAL_MS must be positive")
	}
	cfg.TickInterval = time.Duration(tickMs) * time.Millisecond

	tickTimeout, err := getEnvAsIntRequired("TICK_TIMEOUT_SECONDS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TICK_TIMEOUT_SECONDS: %v", err))
	} else if tickTimeout <= 0 {
		errs = append(errs, "TICK_TIMEOUT_SECONDS must be positive")
	}
	cfg.TickTimeout = time.Duration(tickTimeout) * time.Second

	// Market Feed
	refreshMs, err := getEnvAsIntRequired("FEED_REFRESH_INTERVAL_MS", 1000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FEED_REFRESH_INTERVAL_MS: %v", err))
	} else if refreshMs <= 0 {
		errs = append(errs, "FEED_REFRESH_INTERVAL_MS must be positive")
	}
	cfg.FeedRefreshInterval = time.Duration(refreshMs) * time.Millisecond

	cfg.FeedConcurrency = getEnvAsInt("FEED_CONCURRENCY", 4)
	if cfg.FeedConcurrency <= 0 {
		errs = append(errs, "FEED_CONCURRENCY must be positive")
	}

	staleSeconds := getEnvAsInt("FEED_STALE_AFTER_SECONDS", 30)
	if staleSeconds < 0 {
		errs = append(errs, "FEED_STALE_AFTER_SECONDS cannot be negative")
	}
	cfg.FeedStaleAfter = time.Duration(staleSeconds) * time.Second

	cfg.DepthLimit = getEnvAsInt("DEPTH_LIMIT", 20)
	if cfg.DepthLimit <= 0 || cfg.DepthLimit > 5000 {
		errs = append(errs, "DEPTH_LIMIT must be between 1 and 5000")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trigger_bot.db")
	cfg.TargetsFile = getEnv("TARGETS_FILE", "")

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", logger.FormatText))
	switch cfg.LogFormat {
	case logger.FormatText, logger.FormatJSON, logger.FormatConsole:
	default:
		errs = append(errs, "LOG_FORMAT must be one of text, json, console")
	}

	// Metrics; set METRICS_ADDR to "off" to disable
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")
	if strings.EqualFold(cfg.MetricsAddr, "off") {
		cfg.MetricsAddr = ""
	}

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 1)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	maxReconnectSeconds := getEnvAsInt("MAX_RECONNECT_DELAY_SECONDS", 30)
	if maxReconnectSeconds < reconnectDelaySeconds {
		errs = append(errs, "MAX_RECONNECT_DELAY_SECONDS cannot be less than RECONNECT_DELAY_SECONDS")
	}
	cfg.MaxReconnectDelay = time.Duration(maxReconnectSeconds) * time.Second

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
