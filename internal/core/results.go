package core

import "time"

const (
	ModeSeasonal ForecastMode = "seasonal"
	ModeTrailing ForecastMode = "trailing"
	ModeFallback ForecastMode = "fallback"
)

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

const (
	TrendImproving    TrendDirection = "improving"
	TrendDeclining    TrendDirection = "declining"
	TrendStable       TrendDirection = "stable"
	TrendInsufficient TrendDirection = "insufficient_data"
)

type (
	ForecastMode string

	Direction string

	TrendDirection string

	// Window describes the span of periods a statistic was computed over.
	Window struct {
		From    time.Time `json:"from"`
		To      time.Time `json:"to"`
		Periods int       `json:"periods"`
	}

	SteadinessSnapshot struct {
		Window                 Window  `json:"window"`
		Observed               int     `json:"observed"`
		Mean                   float64 `json:"mean"`
		StdDev                 float64 `json:"std_dev"`
		CoefficientOfVariation float64 `json:"coefficient_of_variation"`
		VolatilityPercent      float64 `json:"volatility_percent"`
		Score                  float64 `json:"score"`
		Min                    float64 `json:"min"`
		Max                    float64 `json:"max"`
	}

	TrendPoint struct {
		Window            Window  `json:"window"`
		VolatilityPercent float64 `json:"volatility_percent"`
		Score             float64 `json:"score"`
	}

	VolatilityTrend struct {
		Points    []TrendPoint   `json:"points"`
		Direction TrendDirection `json:"direction"`
		Change    float64        `json:"change"`
	}

	// Breakdown splits steadiness into its contributing consistencies.
	Breakdown struct {
		Overall          float64 `json:"overall"`
		HoursScore       float64 `json:"hours_score"`
		HoursCV          float64 `json:"hours_cv"`
		RateScore        float64 `json:"rate_score"`
		RateCV           float64 `json:"rate_cv"`
		MeanHourlyRate   float64 `json:"mean_hourly_rate"`
		ObservedPeriods  int     `json:"observed_periods"`
		PeriodsWithHours int     `json:"periods_with_hours"`
	}

	TargetPeriod struct {
		Start      time.Time  `json:"start"`
		End        time.Time  `json:"end"`
		Covariates Covariates `json:"covariates,omitempty"`
	}

	BasisWindow struct {
		From      time.Time  `json:"from"`
		To        time.Time  `json:"to"`
		Observed  int        `json:"observed"`
		PeriodIDs []PeriodID `json:"period_ids"`
	}

	// Adjustment records a multiplicative correction applied to the baseline.
	Adjustment struct {
		Source  string  `json:"source"`
		Feature string  `json:"feature"`
		Factor  float64 `json:"factor"`
	}

	ForecastResult struct {
		Target                 TargetPeriod           `json:"target"`
		PointEstimate          float64                `json:"point_estimate"`
		LowerBound             float64                `json:"lower_bound"`
		UpperBound             float64                `json:"upper_bound"`
		ConfidenceLevel        float64                `json:"confidence_level"`
		Z                      float64                `json:"z"`
		CoefficientOfVariation float64                `json:"coefficient_of_variation"`
		Baseline               float64                `json:"baseline"`
		Basis                  BasisWindow            `json:"basis"`
		Mode                   ForecastMode           `json:"mode"`
		Adjustments            []Adjustment           `json:"adjustments,omitempty"`
		Degraded               *InsufficientDataError `json:"degraded,omitempty"`
		LastObserved           float64                `json:"last_observed"`
		Change                 float64                `json:"change"`
		ChangePercent          float64                `json:"change_percent"`
		Direction              Direction              `json:"direction"`
		Outlook                string                 `json:"outlook"`
	}
)

// HalfWidth is the distance from the point estimate to the upper bound.
func (r ForecastResult) HalfWidth() float64 {
	return r.UpperBound - r.PointEstimate
}

func (r ForecastResult) IsDegraded() bool {
	return r.Degraded != nil
}
