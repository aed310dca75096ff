package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	TrustedProxies     []string

	// Logging
	LogLevel  string
	LogFormat string

	// Persistence
	DataBackend  string
	SQLiteDBPath string
	SeedCSVPath  string

	// AMQP ingestion
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Redis digest publishing
	RedisURL       string
	DigestChannel  string
	DigestSchedule string

	// Google Sheets import
	GoogleSpreadsheetID string
	GoogleSheetName     string
	SheetSyncInterval   time.Duration

	// Forecast engine
	ForecastWindowSize    int
	ForecastConfidence    float64
	SeasonalWeight        float64
	CovariateMinSupport   int
	ForecastFallbackCV    float64
	ForecastFallbackWiden float64

	// Steadiness
	SteadinessDecay float64

	// Insight extraction
	InsightMinSupport int
	InsightNoiseFloor float64
	InsightMaxPValue  float64

	// Weekly earnings goal for goal progress and recommendations
	WeeklyGoal float64

	// Query cache
	CacheSize int
	CacheTTL  time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/steady.db"),
		SeedCSVPath:  getEnv("SEED_CSV", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "steady"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "earnings_periods"),

		RedisURL:       getEnv("REDIS_URL", ""),
		DigestChannel:  getEnv("DIGEST_CHANNEL", "steady:digest"),
		DigestSchedule: getEnv("DIGEST_SCHEDULE", "0 6 * * MON"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Earnings"),
		SheetSyncInterval:   getEnvDuration("SHEET_SYNC_INTERVAL", 0),

		ForecastWindowSize:    getEnvInt("FORECAST_WINDOW_SIZE", 12),
		ForecastConfidence:    getEnvFloat("FORECAST_CONFIDENCE", 0.80),
		SeasonalWeight:        getEnvFloat("FORECAST_SEASONAL_WEIGHT", 1.0),
		CovariateMinSupport:   getEnvInt("COVARIATE_MIN_SUPPORT", 8),
		ForecastFallbackCV:    getEnvFloat("FORECAST_FALLBACK_CV", 0.20),
		ForecastFallbackWiden: getEnvFloat("FORECAST_FALLBACK_WIDENING", 1.5),

		SteadinessDecay: getEnvFloat("STEADINESS_DECAY", 1.5),

		InsightMinSupport: getEnvInt("INSIGHT_MIN_SUPPORT", 5),
		InsightNoiseFloor: getEnvFloat("INSIGHT_NOISE_FLOOR", 5.0),
		InsightMaxPValue:  getEnvFloat("INSIGHT_MAX_P_VALUE", 0),

		WeeklyGoal: getEnvFloat("WEEKLY_GOAL", 0),

		CacheSize: getEnvInt("CACHE_SIZE", 256),
		CacheTTL:  getEnvDuration("CACHE_TTL", 10*time.Minute),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Redis URL if provided
	if c.RedisURL != "" {
		if parsedURL, err := url.Parse(c.RedisURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': %v", c.RedisURL, err))
		} else if parsedURL.Scheme != "redis" && parsedURL.Scheme != "rediss" {
			errors = append(errors, fmt.Sprintf("invalid Redis URL scheme '%s': must be 'redis' or 'rediss'", parsedURL.Scheme))
		}
		if c.DigestChannel == "" {
			errors = append(errors, "digest channel cannot be empty when Redis URL is provided")
		}
	}

	if c.WeeklyGoal < 0 {
		errors = append(errors, fmt.Sprintf("invalid weekly goal %v: must not be negative", c.WeeklyGoal))
	}

	if c.SheetSyncInterval < 0 {
		errors = append(errors, fmt.Sprintf("invalid sheet sync interval %v: must not be negative", c.SheetSyncInterval))
	} else if c.SheetSyncInterval > 0 && c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google spreadsheet ID is required when sheet sync is enabled")
	}

	if _, err := cron.ParseStandard(c.DigestSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid digest schedule '%s': %v", c.DigestSchedule, err))
	}

	// Engine tuning
	if c.ForecastWindowSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid forecast window size %d: must be at least 1", c.ForecastWindowSize))
	}
	if c.ForecastConfidence <= 0 || c.ForecastConfidence >= 1 {
		errors = append(errors, fmt.Sprintf("invalid forecast confidence %v: must be between 0 and 1 exclusive", c.ForecastConfidence))
	}
	if c.SeasonalWeight < 0 || c.SeasonalWeight > 1 {
		errors = append(errors, fmt.Sprintf("invalid seasonal weight %v: must be between 0 and 1", c.SeasonalWeight))
	}
	if c.CovariateMinSupport < 1 {
		errors = append(errors, fmt.Sprintf("invalid covariate min support %d: must be at least 1", c.CovariateMinSupport))
	}
	if c.ForecastFallbackCV <= 0 {
		errors = append(errors, fmt.Sprintf("invalid fallback CV %v: must be positive", c.ForecastFallbackCV))
	}
	if c.ForecastFallbackWiden < 1 {
		errors = append(errors, fmt.Sprintf("invalid fallback widening %v: must be at least 1", c.ForecastFallbackWiden))
	}
	if c.SteadinessDecay <= 0 {
		errors = append(errors, fmt.Sprintf("invalid steadiness decay %v: must be positive", c.SteadinessDecay))
	}
	if c.InsightMinSupport < 2 {
		errors = append(errors, fmt.Sprintf("invalid insight min support %d: must be at least 2", c.InsightMinSupport))
	}
	if c.InsightNoiseFloor < 0 {
		errors = append(errors, fmt.Sprintf("invalid insight noise floor %v: must be non-negative", c.InsightNoiseFloor))
	}
	if c.InsightMaxPValue < 0 || c.InsightMaxPValue > 1 {
		errors = append(errors, fmt.Sprintf("invalid insight max p-value %v: must be between 0 and 1", c.InsightMaxPValue))
	}

	// Cache
	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
