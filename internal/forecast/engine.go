// Package forecast projects the next period's gross earnings with a
// confidence interval derived from recent volatility.
package forecast

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"steady/internal/core"
	"steady/internal/insights"
	"steady/internal/steadiness"
)

type Config struct {
	// WindowSize is the number of most recent observed periods in the baseline.
	WindowSize int
	// SeasonalWeight blends the calendar-position factor: 0 ignores it, 1 applies it fully.
	SeasonalWeight float64
	// MinSeasonalSupport is the minimum number of past periods at the target's calendar position.
	MinSeasonalSupport int
	// MinCovariateSupport is the minimum support of an insight applied as an adjustment.
	MinCovariateSupport int
	// FallbackCV is used when the volatility of the basis window is undefined.
	FallbackCV float64
	// FallbackWidening multiplies the interval half-width of degraded forecasts.
	FallbackWidening float64
	// FlatTolerance is the change, in percent of the last period, reported as flat.
	FlatTolerance float64
}

func DefaultConfig() Config {
	return Config{
		WindowSize:          12,
		SeasonalWeight:      1,
		MinSeasonalSupport:  3,
		MinCovariateSupport: 8,
		FallbackCV:          0.20,
		FallbackWidening:    1.5,
		FlatTolerance:       5,
	}
}

func (c Config) Validate() error {
	switch {
	case c.WindowSize < 1:
		return &core.InvalidConfigurationError{Field: "window_size", Constraint: "must be at least 1", Value: c.WindowSize}
	case c.SeasonalWeight < 0 || c.SeasonalWeight > 1:
		return &core.InvalidConfigurationError{Field: "seasonal_weight", Constraint: "must be between 0 and 1", Value: c.SeasonalWeight}
	case c.MinSeasonalSupport < 1:
		return &core.InvalidConfigurationError{Field: "min_seasonal_support", Constraint: "must be at least 1", Value: c.MinSeasonalSupport}
	case c.MinCovariateSupport < 1:
		return &core.InvalidConfigurationError{Field: "min_covariate_support", Constraint: "must be at least 1", Value: c.MinCovariateSupport}
	case !(c.FallbackCV > 0):
		return &core.InvalidConfigurationError{Field: "fallback_cv", Constraint: "must be positive", Value: c.FallbackCV}
	case c.FallbackWidening < 1:
		return &core.InvalidConfigurationError{Field: "fallback_widening", Constraint: "must be at least 1", Value: c.FallbackWidening}
	case c.FlatTolerance < 0:
		return &core.InvalidConfigurationError{Field: "flat_tolerance", Constraint: "must be non-negative", Value: c.FlatTolerance}
	}
	return nil
}

type Engine struct {
	cfg       Config
	estimator *steadiness.Estimator
	extractor *insights.Extractor
}

func NewEngine(cfg Config, estimator *steadiness.Estimator, extractor *insights.Extractor) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if estimator == nil || extractor == nil {
		return nil, fmt.Errorf("forecast engine requires an estimator and an extractor")
	}
	return &Engine{cfg: cfg, estimator: estimator, extractor: extractor}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Forecast projects earnings for target from the periods that end at or
// before the target starts. Insights are extracted from the same history.
func (e *Engine) Forecast(history []core.EarningsPeriod, target core.TargetPeriod, confidence float64) (core.ForecastResult, error) {
	return e.ForecastWithInsights(history, target, confidence, nil)
}

// ForecastWithInsights reuses an insight set already extracted from history.
// A nil set is extracted on demand.
func (e *Engine) ForecastWithInsights(history []core.EarningsPeriod, target core.TargetPeriod, confidence float64, set *insights.Set) (core.ForecastResult, error) {
	if !(confidence > 0 && confidence < 1) {
		return core.ForecastResult{}, &core.InvalidConfigurationError{Field: "confidence", Constraint: "must be between 0 and 1 exclusive", Value: confidence}
	}
	if !target.End.After(target.Start) {
		return core.ForecastResult{}, &core.ValidationError{Field: "target", Constraint: "end must be after start"}
	}

	var observed []core.EarningsPeriod
	for _, p := range history {
		if p.Observed && !p.End.After(target.Start) {
			observed = append(observed, p)
		}
	}
	if len(observed) == 0 {
		return core.ForecastResult{}, &core.InsufficientDataError{Constraint: "observed periods before target", Need: 1, Have: 0}
	}

	window := observed
	if len(window) > e.cfg.WindowSize {
		window = window[len(window)-e.cfg.WindowSize:]
	}
	windowValues := core.GrossValues(window)

	res := core.ForecastResult{
		Target:          target,
		ConfidenceLevel: confidence,
		Z:               zScore(confidence),
		Basis:           basisOf(window),
		Mode:            core.ModeTrailing,
		Baseline:        stat.Mean(windowValues, nil),
	}
	widening := 1.0
	seasonal := 1.0

	if key, ok := calendarKey(target.Start, target.End.Sub(target.Start)); ok {
		same := samePosition(observed, key, core.GranularityOf(target.End.Sub(target.Start)))
		if len(same.at) >= e.cfg.MinSeasonalSupport {
			factor := 1.0
			if allMean := stat.Mean(same.all, nil); allMean > 0 {
				factor = stat.Mean(same.at, nil) / allMean
			}
			seasonal = 1 + e.cfg.SeasonalWeight*(factor-1)
			res.Mode = core.ModeSeasonal
			res.Adjustments = append(res.Adjustments, core.Adjustment{Source: "seasonal", Feature: key.String(), Factor: seasonal})
		} else {
			res.Degraded = &core.InsufficientDataError{
				Constraint: "periods at calendar position " + key.String(),
				Need:       e.cfg.MinSeasonalSupport,
				Have:       len(same.at),
			}
			// Without a seasonal profile the whole observed history is the fit.
			windowValues = core.GrossValues(observed)
			res.Mode = core.ModeFallback
			res.Basis = basisOf(observed)
			res.Baseline = stat.Mean(windowValues, nil)
			widening = e.cfg.FallbackWidening
		}
	}

	cv, err := e.estimator.CV(windowValues)
	if err != nil {
		cv = e.cfg.FallbackCV
		widening = e.cfg.FallbackWidening
		if res.Degraded == nil {
			res.Degraded = &core.InsufficientDataError{
				Constraint: "observed periods for volatility",
				Need:       e.estimator.Config().MinPeriods,
				Have:       len(windowValues),
			}
			res.Mode = core.ModeFallback
		}
	}
	res.CoefficientOfVariation = cv

	if set == nil {
		set = e.extractor.Extract(observed)
	}
	covariate := 1.0
	for _, in := range set.Active(target.Covariates, e.cfg.MinCovariateSupport) {
		f := 1 + in.EffectSize/100
		covariate *= f
		res.Adjustments = append(res.Adjustments, core.Adjustment{Source: string(in.Kind), Feature: in.Feature, Factor: f})
	}

	point := res.Baseline * seasonal * covariate
	if point < 0 {
		point = 0
	}
	half := point * cv * res.Z * widening
	res.PointEstimate = point
	res.LowerBound = math.Max(0, point-half)
	res.UpperBound = point + half

	last := observed[len(observed)-1].GrossValue()
	res.LastObserved = last
	res.Change = point - last
	if last > 0 {
		res.ChangePercent = res.Change / last * 100
	}
	res.Direction = e.direction(res.Change, last)
	res.Outlook = outlook(res, target.End.Sub(target.Start))
	return res, nil
}

func (e *Engine) direction(change, last float64) core.Direction {
	switch {
	case change == 0:
		return core.DirectionFlat
	case last > 0 && math.Abs(change/last*100) < e.cfg.FlatTolerance:
		return core.DirectionFlat
	case change > 0:
		return core.DirectionUp
	default:
		return core.DirectionDown
	}
}

// zScore is the two-sided standard normal quantile for confidence.
func zScore(confidence float64) float64 {
	return distuv.UnitNormal.Quantile((1 + confidence) / 2)
}

func basisOf(window []core.EarningsPeriod) core.BasisWindow {
	b := core.BasisWindow{Observed: len(window)}
	if len(window) == 0 {
		return b
	}
	b.From = window[0].Start
	b.To = window[len(window)-1].End
	b.PeriodIDs = make([]core.PeriodID, len(window))
	for i, p := range window {
		b.PeriodIDs[i] = p.ID
	}
	return b
}

func outlook(r core.ForecastResult, d time.Duration) string {
	var parts []string
	switch r.Direction {
	case core.DirectionUp:
		parts = append(parts, "rise")
		if r.ChangePercent >= 10 {
			parts[0] = "rise significantly"
		}
	case core.DirectionDown:
		parts = append(parts, "decrease")
	default:
		parts = append(parts, "remain stable")
	}
	parts = append(parts, horizon(d))

	seen := map[string]bool{}
	var reasons []string
	for _, a := range r.Adjustments {
		var reason string
		switch core.PatternKind(a.Source) {
		case core.KindWeather:
			reason = "rainy weather"
		case core.KindEvent:
			reason = "upcoming events"
		case core.KindGeographic:
			reason = "your zone mix"
		}
		if reason != "" && !seen[reason] {
			seen[reason] = true
			reasons = append(reasons, reason)
		}
	}
	if len(reasons) > 0 {
		parts = append(parts, "due to "+strings.Join(reasons, " and "))
	}
	return "Likely to " + strings.Join(parts, " ")
}

func horizon(d time.Duration) string {
	switch core.GranularityOf(d) {
	case core.Weekly:
		return "next week"
	case core.Daily:
		return "next day"
	default:
		return "next shift"
	}
}
