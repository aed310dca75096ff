package query

import (
	"time"

	"steady/internal/config"
	"steady/internal/forecast"
	"steady/internal/insights"
	"steady/internal/steadiness"
)

// Config bundles the engine configurations and the façade defaults.
type Config struct {
	Steadiness        steadiness.Config
	Forecast          forecast.Config
	Insights          insights.Config
	DefaultConfidence float64
	DefaultPeriods    int
	CacheSize         int
	CacheTTL          time.Duration

	// WeeklyGoal is the default goal of goal queries; zero disables goal
	// advice unless a request names one.
	WeeklyGoal float64
}

func DefaultConfig() Config {
	return Config{
		Steadiness:        steadiness.DefaultConfig(),
		Forecast:          forecast.DefaultConfig(),
		Insights:          insights.DefaultConfig(),
		DefaultConfidence: 0.8,
		DefaultPeriods:    12,
		CacheSize:         256,
		CacheTTL:          10 * time.Minute,
	}
}

// FromAppConfig maps environment configuration onto the engine settings.
func FromAppConfig(cfg *config.Config) Config {
	c := DefaultConfig()

	c.Steadiness.DecayConstant = cfg.SteadinessDecay

	c.Forecast.WindowSize = cfg.ForecastWindowSize
	c.Forecast.SeasonalWeight = cfg.SeasonalWeight
	c.Forecast.MinCovariateSupport = cfg.CovariateMinSupport
	c.Forecast.FallbackCV = cfg.ForecastFallbackCV
	c.Forecast.FallbackWidening = cfg.ForecastFallbackWiden

	c.Insights.MinSupport = cfg.InsightMinSupport
	c.Insights.NoiseFloor = cfg.InsightNoiseFloor
	c.Insights.MaxPValue = cfg.InsightMaxPValue

	c.DefaultConfidence = cfg.ForecastConfidence
	c.DefaultPeriods = cfg.ForecastWindowSize
	c.WeeklyGoal = cfg.WeeklyGoal
	c.CacheSize = cfg.CacheSize
	c.CacheTTL = cfg.CacheTTL
	return c
}
