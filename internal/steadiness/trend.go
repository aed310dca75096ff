package steadiness

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"steady/internal/core"
)

// Trend computes volatility over a rolling window of observed periods and
// classifies how it moved from the first window to the last.
func (e *Estimator) Trend(periods []core.EarningsPeriod) (core.VolatilityTrend, error) {
	return e.TrendWithWindow(periods, e.cfg.TrendWindow)
}

// TrendWithWindow is Trend with an explicit rolling window length.
func (e *Estimator) TrendWithWindow(periods []core.EarningsPeriod, w int) (core.VolatilityTrend, error) {
	if w < 2 {
		return core.VolatilityTrend{Direction: core.TrendInsufficient}, &core.InvalidConfigurationError{Field: "window", Constraint: "must be at least 2", Value: w}
	}
	observed := core.ObservedOnly(periods)
	if len(observed) < w {
		return core.VolatilityTrend{Direction: core.TrendInsufficient}, &core.InsufficientDataError{
			Constraint: "observed periods for a volatility trend", Need: w, Have: len(observed),
		}
	}

	trend := core.VolatilityTrend{}
	for end := w; end <= len(observed); end++ {
		snap, err := e.Estimate(observed[end-w : end])
		if err != nil {
			// A zero-mean window carries no volatility signal.
			continue
		}
		trend.Points = append(trend.Points, core.TrendPoint{
			Window:            snap.Window,
			VolatilityPercent: snap.VolatilityPercent,
			Score:             snap.Score,
		})
	}

	switch len(trend.Points) {
	case 0:
		trend.Direction = core.TrendInsufficient
		return trend, &core.InsufficientDataError{Constraint: "windows with non-zero earnings", Need: 1, Have: 0}
	case 1:
		trend.Direction = core.TrendStable
		return trend, nil
	}

	first := trend.Points[0].VolatilityPercent
	last := trend.Points[len(trend.Points)-1].VolatilityPercent
	trend.Change = last - first
	switch {
	case trend.Change <= -e.cfg.TrendTolerance:
		trend.Direction = core.TrendImproving
	case trend.Change >= e.cfg.TrendTolerance:
		trend.Direction = core.TrendDeclining
	default:
		trend.Direction = core.TrendStable
	}
	return trend, nil
}

// Breakdown scores how consistent the hours worked and the hourly earning
// rate are, next to the overall earnings score.
func (e *Estimator) Breakdown(periods []core.EarningsPeriod) (core.Breakdown, error) {
	overall, err := e.Estimate(periods)
	if err != nil {
		return core.Breakdown{}, err
	}
	b := core.Breakdown{
		Overall:         overall.Score,
		ObservedPeriods: overall.Observed,
	}

	var hours, rates []float64
	for _, p := range periods {
		if !p.Observed || p.HoursActive <= 0 {
			continue
		}
		hours = append(hours, p.HoursActive)
		rates = append(rates, p.GrossValue()/p.HoursActive)
	}
	b.PeriodsWithHours = len(hours)
	if len(hours) < e.cfg.MinPeriods {
		return b, nil
	}

	hoursMean, hoursStd := stat.MeanStdDev(hours, nil)
	b.HoursCV = hoursStd / hoursMean
	b.HoursScore = e.Score(b.HoursCV)

	rateMean, rateStd := stat.MeanStdDev(rates, nil)
	b.MeanHourlyRate = rateMean
	if rateMean > 0 {
		b.RateCV = rateStd / rateMean
		b.RateScore = e.Score(b.RateCV)
	}
	return b, nil
}

// Percentile ranks score against a reference population: the share of the
// population scoring strictly lower. An empty population ranks at the median.
func Percentile(score float64, population []float64) float64 {
	if len(population) == 0 {
		return 50
	}
	lower := 0
	for _, s := range population {
		if s < score {
			lower++
		}
	}
	return math.Round(float64(lower) / float64(len(population)) * 100)
}

// ComparisonText frames a percentile for display.
func ComparisonText(percentile float64) string {
	p := int(math.Round(percentile))
	switch {
	case p >= 90:
		return "Exceptionally consistent - top 10% of drivers"
	case p >= 50:
		return fmt.Sprintf("More consistent than %d%% of drivers", p)
	case p >= 25:
		return fmt.Sprintf("Room to improve consistency - %s percentile", ordinal(p))
	default:
		return "High income variability - focus on building routine"
	}
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
