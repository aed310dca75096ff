package insights

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"steady/internal/core"
)

// feature partitions periods into present/absent; known=false leaves a
// period out of the comparison entirely.
type feature struct {
	name     string
	detail   core.InsightDetail
	classify func(p core.EarningsPeriod) (present, known bool)
}

func (x *Extractor) features(periods []core.EarningsPeriod) []feature {
	if len(periods) == 0 {
		return nil
	}
	var out []feature
	out = append(out, temporalFeatures(periods)...)
	out = append(out, x.covariateFeatures(periods)...)
	if f, ok := workloadFeature(periods); ok {
		out = append(out, f)
	}
	return out
}

// granularity is the most common period length class in periods.
func granularity(periods []core.EarningsPeriod) core.Granularity {
	counts := map[core.Granularity]int{}
	for _, p := range periods {
		counts[p.Granularity()]++
	}
	best := core.Weekly
	for _, g := range []core.Granularity{core.SubDaily, core.Daily, core.Weekly} {
		if counts[g] > counts[best] {
			best = g
		}
	}
	return best
}

func temporalFeatures(periods []core.EarningsPeriod) []feature {
	g := granularity(periods)
	if g == core.Weekly {
		return nil
	}
	var out []feature
	for d := time.Sunday; d <= time.Saturday; d++ {
		wd := d
		out = append(out, feature{
			name:   "weekday:" + strings.ToLower(wd.String()),
			detail: core.TemporalDetail{Unit: core.UnitWeekday, Weekday: wd},
			classify: func(p core.EarningsPeriod) (bool, bool) {
				if p.Granularity() == core.Weekly {
					return false, false
				}
				return p.Start.Weekday() == wd, true
			},
		})
	}
	if g != core.SubDaily {
		return out
	}
	for h := 0; h < 24; h++ {
		hour := h
		out = append(out, feature{
			name:   fmt.Sprintf("hour:%02d", hour),
			detail: core.TemporalDetail{Unit: core.UnitHour, Hour: hour},
			classify: func(p core.EarningsPeriod) (bool, bool) {
				if p.Granularity() != core.SubDaily {
					return false, false
				}
				return p.Start.Hour() == hour, true
			},
		})
	}
	return out
}

func (x *Extractor) covariateFeatures(periods []core.EarningsPeriod) []feature {
	names := map[string]struct{}{}
	for _, p := range periods {
		for name := range p.Covariates {
			names[name] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	slices.Sort(sorted)

	var out []feature
	for _, name := range sorted {
		if f, ok := x.covariateFeature(name, periods); ok {
			out = append(out, f)
		}
	}
	return out
}

func (x *Extractor) covariateFeature(name string, periods []core.EarningsPeriod) (feature, bool) {
	var detail core.InsightDetail
	var cond core.Condition
	switch {
	case name == core.CovRainfall:
		cond = core.Condition{Covariate: name, Threshold: 0}
		detail = core.WeatherDetail{Condition: cond}
	case name == core.CovHoliday:
		cond = core.Condition{Covariate: name, Threshold: 1, Inclusive: true}
		detail = core.EventDetail{Condition: cond}
	case name == core.CovLocalEvents:
		cond = core.Condition{Covariate: name, Threshold: 0}
		detail = core.EventDetail{Condition: cond}
	case strings.HasPrefix(name, core.ZonePrefix):
		cond = core.Condition{Covariate: name, Threshold: x.cfg.ZoneShare, Inclusive: true}
		detail = core.GeographicDetail{Zone: strings.TrimPrefix(name, core.ZonePrefix), Condition: cond}
	default:
		// Continuous signals such as search demand split at their median.
		median, ok := covariateMedian(name, periods)
		if !ok {
			return feature{}, false
		}
		cond = core.Condition{Covariate: name, Threshold: median}
		detail = core.EventDetail{Condition: cond}
	}
	return feature{
		name:   cond.String(),
		detail: detail,
		classify: func(p core.EarningsPeriod) (bool, bool) {
			return cond.Holds(p.Covariates)
		},
	}, true
}

func covariateMedian(name string, periods []core.EarningsPeriod) (float64, bool) {
	var values []float64
	for _, p := range periods {
		if v := p.Covariates.Get(name); v.Known {
			values = append(values, v.Value)
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	slices.Sort(values)
	return stat.Quantile(0.5, stat.Empirical, values, nil), true
}

func workloadFeature(periods []core.EarningsPeriod) (feature, bool) {
	hours := make([]float64, 0, len(periods))
	for _, p := range periods {
		hours = append(hours, p.HoursActive)
	}
	slices.Sort(hours)
	if hours[0] == hours[len(hours)-1] {
		return feature{}, false
	}
	median := stat.Quantile(0.5, stat.Empirical, hours, nil)
	return feature{
		name:   fmt.Sprintf("hours_active > %g", median),
		detail: core.WorkloadDetail{MedianHours: median},
		classify: func(p core.EarningsPeriod) (bool, bool) {
			return p.HoursActive > median, true
		},
	}, true
}
