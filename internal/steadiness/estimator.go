// Package steadiness turns a window of earnings periods into a volatility
// summary and a 0-100 steadiness score.
package steadiness

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"steady/internal/core"
)

type Config struct {
	// DecayConstant is k in score = 100·exp(-k·cv).
	DecayConstant float64
	// MinPeriods is the smallest number of observed periods a CV is computed from.
	MinPeriods int
	// TrendWindow is the number of observed periods per rolling trend point.
	TrendWindow int
	// TrendTolerance is the volatility change, in percentage points, below which a trend is stable.
	TrendTolerance float64
}

func DefaultConfig() Config {
	return Config{
		DecayConstant:  1.5,
		MinPeriods:     2,
		TrendWindow:    4,
		TrendTolerance: 1.0,
	}
}

func (c Config) Validate() error {
	if !(c.DecayConstant > 0) || math.IsInf(c.DecayConstant, 0) {
		return &core.InvalidConfigurationError{Field: "decay_constant", Constraint: "must be a positive finite number", Value: c.DecayConstant}
	}
	if c.MinPeriods < 2 {
		return &core.InvalidConfigurationError{Field: "min_periods", Constraint: "must be at least 2", Value: c.MinPeriods}
	}
	if c.TrendWindow < 2 {
		return &core.InvalidConfigurationError{Field: "trend_window", Constraint: "must be at least 2", Value: c.TrendWindow}
	}
	if c.TrendTolerance < 0 {
		return &core.InvalidConfigurationError{Field: "trend_tolerance", Constraint: "must be non-negative", Value: c.TrendTolerance}
	}
	return nil
}

type Estimator struct {
	cfg Config
}

func NewEstimator(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{cfg: cfg}, nil
}

func (e *Estimator) Config() Config { return e.cfg }

// Score maps a coefficient of variation onto (0, 100]. It is strictly
// decreasing in cv and equals 100 only for a perfectly flat history.
func (e *Estimator) Score(cv float64) float64 {
	if cv < 0 {
		cv = 0
	}
	return 100 * math.Exp(-e.cfg.DecayConstant*cv)
}

// CV returns the sample coefficient of variation of values.
func (e *Estimator) CV(values []float64) (float64, error) {
	if len(values) < e.cfg.MinPeriods {
		return 0, &core.InsufficientDataError{Constraint: "observed periods for volatility", Need: e.cfg.MinPeriods, Have: len(values)}
	}
	mean, std := stat.MeanStdDev(values, nil)
	if mean == 0 {
		return 0, &core.InsufficientDataError{Constraint: "non-zero mean earnings", Need: 1, Have: 0}
	}
	return std / mean, nil
}

// Estimate summarizes the observed periods in the window. Gaps count toward
// the window span but never toward the statistics.
func (e *Estimator) Estimate(periods []core.EarningsPeriod) (core.SteadinessSnapshot, error) {
	values := core.GrossValues(periods)
	if len(values) < e.cfg.MinPeriods {
		return core.SteadinessSnapshot{}, &core.InsufficientDataError{
			Constraint: "observed periods for volatility", Need: e.cfg.MinPeriods, Have: len(values),
		}
	}
	mean, std := stat.MeanStdDev(values, nil)
	if mean == 0 {
		return core.SteadinessSnapshot{}, &core.InsufficientDataError{Constraint: "non-zero mean earnings", Need: 1, Have: 0}
	}
	cv := std / mean
	return core.SteadinessSnapshot{
		Window:                 windowOf(periods),
		Observed:               len(values),
		Mean:                   mean,
		StdDev:                 std,
		CoefficientOfVariation: cv,
		VolatilityPercent:      cv * 100,
		Score:                  e.Score(cv),
		Min:                    floats.Min(values),
		Max:                    floats.Max(values),
	}, nil
}

func windowOf(periods []core.EarningsPeriod) core.Window {
	if len(periods) == 0 {
		return core.Window{}
	}
	return core.Window{
		From:    periods[0].Start,
		To:      periods[len(periods)-1].End,
		Periods: len(periods),
	}
}
