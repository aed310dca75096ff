package query

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"steady/internal/core"
	"steady/internal/store"
)

var firstMonday = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

var twelveWeeks = []int64{840, 780, 920, 810, 950, 770, 890, 940, 820, 860, 880, 930}

func weekly(gross []int64) []core.EarningsPeriod {
	out := make([]core.EarningsPeriod, len(gross))
	for i, g := range gross {
		out[i] = core.EarningsPeriod{
			Start:       firstMonday.AddDate(0, 0, 7*i),
			End:         firstMonday.AddDate(0, 0, 7*(i+1)),
			Observed:    true,
			Gross:       decimal.NewFromInt(g),
			HoursActive: 35,
			Trips:       70,
		}
	}
	return out
}

func newService(t *testing.T, periods []core.EarningsPeriod, opts ...Option) (*Service, *store.Store) {
	t.Helper()
	s := store.New()
	if len(periods) > 0 {
		if _, err := s.AppendBatch(context.Background(), periods); err != nil {
			t.Fatalf("AppendBatch: %v", err)
		}
	}
	svc, err := NewService(s, DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, s
}

func TestGetSteadinessTwelveWeeks(t *testing.T) {
	svc, _ := newService(t, weekly(twelveWeeks))

	v, err := svc.GetSteadiness(context.Background(), SteadinessRequest{Periods: 12})
	if err != nil {
		t.Fatalf("GetSteadiness: %v", err)
	}
	// 10390 over twelve weeks.
	if math.Abs(v.Mean-865.83) > 0.01 {
		t.Errorf("mean = %.2f, want 865.83", v.Mean)
	}
	if math.Abs(v.CoefficientOfVariation-0.0721) > 0.0005 {
		t.Errorf("cv = %.4f, want 0.0721", v.CoefficientOfVariation)
	}
	if v.Score < 85 || v.Score > 100 {
		t.Errorf("score = %.1f, want high 80s or above", v.Score)
	}
	if v.Percentile != nil {
		t.Error("percentile set without a population")
	}
}

func TestGetSteadinessPopulation(t *testing.T) {
	svc, _ := newService(t, weekly(twelveWeeks))

	v, err := svc.GetSteadiness(context.Background(), SteadinessRequest{Population: []float64{40, 55, 60, 70, 95}})
	if err != nil {
		t.Fatalf("GetSteadiness: %v", err)
	}
	if v.Percentile == nil || *v.Percentile != 80 {
		t.Fatalf("percentile = %v, want 80", v.Percentile)
	}
	if v.Comparison != "More consistent than 80% of drivers" {
		t.Errorf("comparison = %q", v.Comparison)
	}

	_, err = svc.GetSteadiness(context.Background(), SteadinessRequest{Population: []float64{120}})
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("out-of-range population error = %v, want validation", err)
	}
}

func TestGetSteadinessRange(t *testing.T) {
	svc, _ := newService(t, weekly(twelveWeeks))

	r := core.Range{From: firstMonday, To: firstMonday.AddDate(0, 0, 21)}
	v, err := svc.GetSteadiness(context.Background(), SteadinessRequest{Range: &r})
	if err != nil {
		t.Fatalf("GetSteadiness: %v", err)
	}
	if v.Observed != 3 {
		t.Errorf("observed = %d, want 3", v.Observed)
	}
	if math.Abs(v.Mean-(840+780+920)/3.0) > 1e-9 {
		t.Errorf("mean = %v", v.Mean)
	}

	bad := core.Range{From: firstMonday, To: firstMonday}
	if _, err := svc.GetSteadiness(context.Background(), SteadinessRequest{Range: &bad}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("empty range error = %v, want validation", err)
	}
}

func TestSinglePeriod(t *testing.T) {
	svc, _ := newService(t, weekly([]int64{800}))
	ctx := context.Background()

	_, err := svc.GetSteadiness(ctx, SteadinessRequest{})
	var insufficient *core.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("GetSteadiness error = %v, want InsufficientDataError", err)
	}
	if insufficient.Need != 2 || insufficient.Have != 1 {
		t.Errorf("insufficient = %+v", insufficient)
	}

	fc, err := svc.GetForecast(ctx, time.Time{}, 0.8)
	if err != nil {
		t.Fatalf("GetForecast: %v", err)
	}
	if !fc.IsDegraded() || fc.Mode != core.ModeFallback {
		t.Errorf("mode = %s degraded = %v, want degraded fallback", fc.Mode, fc.IsDegraded())
	}
	if fc.PointEstimate != 800 || fc.HalfWidth() <= 0 {
		t.Errorf("forecast = %+v", fc.ForecastResult)
	}
}

func TestGetForecastTargetsNextPeriod(t *testing.T) {
	svc, s := newService(t, weekly(twelveWeeks))

	fc, err := svc.GetForecast(context.Background(), time.Time{}, 0.8)
	if err != nil {
		t.Fatalf("GetForecast: %v", err)
	}
	wantStart := firstMonday.AddDate(0, 0, 7*12)
	if !fc.Target.Start.Equal(wantStart) || !fc.Target.End.Equal(wantStart.AddDate(0, 0, 7)) {
		t.Errorf("target = %v..%v, want the thirteenth week", fc.Target.Start, fc.Target.End)
	}
	if fc.StoreVersion != s.Version() {
		t.Errorf("store version = %d, want %d", fc.StoreVersion, s.Version())
	}
	if !(fc.LowerBound <= fc.PointEstimate && fc.PointEstimate <= fc.UpperBound) {
		t.Errorf("bounds out of order: %v %v %v", fc.LowerBound, fc.PointEstimate, fc.UpperBound)
	}
	if rel := fc.HalfWidth() / fc.PointEstimate; rel >= 0.10 {
		t.Errorf("relative half-width = %.3f, want < 0.10", rel)
	}
}

func TestGetForecastAsOf(t *testing.T) {
	svc, _ := newService(t, weekly(twelveWeeks))

	// Wednesday of the fourth week: the fourth period is the latest started.
	asOf := firstMonday.AddDate(0, 0, 7*3+2)
	fc, err := svc.GetForecast(context.Background(), asOf, 0.8)
	if err != nil {
		t.Fatalf("GetForecast: %v", err)
	}
	if want := firstMonday.AddDate(0, 0, 7*4); !fc.Target.Start.Equal(want) {
		t.Errorf("target start = %v, want %v", fc.Target.Start, want)
	}
	if fc.Basis.Observed != 4 {
		t.Errorf("basis observed = %d, want 4", fc.Basis.Observed)
	}
	if fc.LastObserved != 810 {
		t.Errorf("last observed = %v, want 810", fc.LastObserved)
	}

	if _, err := svc.GetForecast(context.Background(), firstMonday.AddDate(0, 0, -1), 0.8); !errors.Is(err, core.ErrInsufficientData) {
		t.Errorf("as_of before history error = %v, want insufficient data", err)
	}
}

func TestGetForecastInvalidConfidence(t *testing.T) {
	svc, _ := newService(t, weekly(twelveWeeks))
	for _, c := range []float64{-0.1, 1, 1.5} {
		_, err := svc.GetForecast(context.Background(), time.Time{}, c)
		var cfgErr *core.InvalidConfigurationError
		if !errors.As(err, &cfgErr) || cfgErr.Field != "confidence" {
			t.Errorf("confidence %v: error = %v, want invalid confidence", c, err)
		}
	}
}

func TestGetForecastIdempotent(t *testing.T) {
	svc, _ := newService(t, weekly(twelveWeeks))
	ctx := context.Background()

	a, err := svc.GetForecast(ctx, time.Time{}, 0.9)
	if err != nil {
		t.Fatalf("GetForecast: %v", err)
	}
	// Rebuild the service so the second call cannot come from the cache.
	svc2, _ := newService(t, weekly(twelveWeeks))
	b, err := svc2.GetForecast(ctx, time.Time{}, 0.9)
	if err != nil {
		t.Fatalf("GetForecast: %v", err)
	}
	if a.PointEstimate != b.PointEstimate || a.LowerBound != b.LowerBound || a.UpperBound != b.UpperBound {
		t.Errorf("forecasts differ: %+v vs %+v", a.ForecastResult, b.ForecastResult)
	}
}

func TestCacheInvalidatedByCorrection(t *testing.T) {
	svc, s := newService(t, weekly(twelveWeeks))
	ctx := context.Background()

	before, err := svc.GetSteadiness(ctx, SteadinessRequest{})
	if err != nil {
		t.Fatalf("GetSteadiness: %v", err)
	}

	last, _ := s.Snapshot().Latest()
	vals := last.Values()
	vals.Gross = decimal.NewFromInt(2000)
	if _, err := s.Correct(ctx, last.ID, core.Correction{Values: vals, Reason: "bonus payout"}); err != nil {
		t.Fatalf("Correct: %v", err)
	}

	after, err := svc.GetSteadiness(ctx, SteadinessRequest{})
	if err != nil {
		t.Fatalf("GetSteadiness: %v", err)
	}
	if after.Mean <= before.Mean || after.Score >= before.Score {
		t.Errorf("stale steadiness after correction: before %+v after %+v", before, after)
	}

	fc, err := svc.GetForecast(ctx, time.Time{}, 0.8)
	if err != nil {
		t.Fatalf("GetForecast: %v", err)
	}
	if fc.LastObserved != 2000 {
		t.Errorf("forecast last observed = %v, want corrected 2000", fc.LastObserved)
	}
}

type fixedContext struct {
	cov   core.Covariates
	calls int
}

func (f *fixedContext) Covariates(context.Context, core.TargetPeriod) (core.Covariates, error) {
	f.calls++
	return f.cov, nil
}

func rainyDays(n int) []core.EarningsPeriod {
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	out := make([]core.EarningsPeriod, n)
	for i := range out {
		gross := int64(100)
		rain := 0.0
		if i%3 == 0 {
			gross = 130
			rain = 6
		}
		out[i] = core.EarningsPeriod{
			Start:       start.AddDate(0, 0, i),
			End:         start.AddDate(0, 0, i+1),
			Observed:    true,
			Gross:       decimal.NewFromInt(gross),
			HoursActive: 6,
			Trips:       12,
			Covariates:  core.Covariates{core.CovRainfall: core.Known(rain)},
		}
	}
	return out
}

func TestGetForecastUsesContextSource(t *testing.T) {
	src := &fixedContext{cov: core.Covariates{core.CovRainfall: core.Known(8)}}
	svc, _ := newService(t, rainyDays(36), WithContextSource(src))

	fc, err := svc.GetForecast(context.Background(), time.Time{}, 0.8)
	if err != nil {
		t.Fatalf("GetForecast: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("context source calls = %d, want 1", src.calls)
	}
	var weather bool
	for _, a := range fc.Adjustments {
		if a.Source == string(core.KindWeather) {
			weather = true
		}
	}
	if !weather {
		t.Errorf("no weather adjustment in %+v", fc.Adjustments)
	}

	dry, err := svc.GetForecast(context.Background(), time.Time{}, 0.8, WithCovariates(core.Covariates{core.CovRainfall: core.Known(0)}))
	if err != nil {
		t.Fatalf("GetForecast: %v", err)
	}
	if dry.PointEstimate >= fc.PointEstimate {
		t.Errorf("dry forecast %.2f should be below rainy %.2f", dry.PointEstimate, fc.PointEstimate)
	}
}

func TestGetInsights(t *testing.T) {
	svc, _ := newService(t, rainyDays(36))

	top, err := svc.GetInsights(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetInsights: %v", err)
	}
	if len(top) != 1 {
		t.Fatalf("insights = %d, want 1", len(top))
	}
	if top[0].Kind != core.KindWeather {
		t.Errorf("top insight kind = %s, want weather", top[0].Kind)
	}

	all, err := svc.GetInsights(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetInsights: %v", err)
	}
	again, _ := svc.GetInsights(context.Background(), 0)
	if len(all) != len(again) {
		t.Fatalf("insight count changed between calls")
	}
	for i := range all {
		if all[i].Feature != again[i].Feature {
			t.Errorf("rank %d: %s vs %s", i, all[i].Feature, again[i].Feature)
		}
	}
}

func TestGetInsightsEmptyStore(t *testing.T) {
	svc, _ := newService(t, nil)
	got, err := svc.GetInsights(context.Background(), 5)
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("GetInsights on empty store = %v, %v", got, err)
	}
}

func TestGetOverview(t *testing.T) {
	svc, s := newService(t, weekly(twelveWeeks))

	o, err := svc.GetOverview(context.Background(), time.Time{}, 0.8)
	if err != nil {
		t.Fatalf("GetOverview: %v", err)
	}
	if o.StoreVersion != s.Version() {
		t.Errorf("version = %d, want %d", o.StoreVersion, s.Version())
	}
	if o.Forecast == nil || o.Steadiness == nil {
		t.Fatalf("missing sections: %+v", o)
	}
	if len(o.Unavailable) != 0 {
		t.Errorf("unavailable = %v", o.Unavailable)
	}
	if o.Insights == nil {
		t.Error("insights should be an empty list, not nil")
	}
}

func TestGetOverviewPartial(t *testing.T) {
	svc, _ := newService(t, weekly([]int64{700}))

	o, err := svc.GetOverview(context.Background(), time.Time{}, 0.8)
	if err != nil {
		t.Fatalf("GetOverview: %v", err)
	}
	if o.Forecast == nil {
		t.Error("forecast should degrade, not disappear")
	}
	if o.Steadiness != nil {
		t.Error("steadiness should be unavailable with one period")
	}
	if _, ok := o.Unavailable["steadiness"]; !ok {
		t.Errorf("unavailable = %v, want steadiness entry", o.Unavailable)
	}
}

func TestGetOverviewInvalidConfidence(t *testing.T) {
	svc, _ := newService(t, weekly(twelveWeeks))
	if _, err := svc.GetOverview(context.Background(), time.Time{}, 2); !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Errorf("error = %v, want invalid configuration", err)
	}
}

func TestGetVolatilityTrendAndBreakdown(t *testing.T) {
	svc, _ := newService(t, weekly(twelveWeeks))
	ctx := context.Background()

	trend, err := svc.GetVolatilityTrend(ctx, SteadinessRequest{})
	if err != nil {
		t.Fatalf("GetVolatilityTrend: %v", err)
	}
	if len(trend.Points) != 9 {
		t.Errorf("trend points = %d, want 9", len(trend.Points))
	}

	b, err := svc.GetBreakdown(ctx, SteadinessRequest{})
	if err != nil {
		t.Fatalf("GetBreakdown: %v", err)
	}
	if b.HoursScore != 100 {
		t.Errorf("hours score = %v, want 100 for constant hours", b.HoursScore)
	}
}

func TestNewServiceRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Forecast.WindowSize = 0
	if _, err := NewService(store.New(), cfg); !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Errorf("error = %v, want invalid configuration", err)
	}

	cfg = DefaultConfig()
	cfg.DefaultConfidence = 1
	if _, err := NewService(store.New(), cfg); !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Errorf("error = %v, want invalid configuration", err)
	}
}

func TestStaticContext(t *testing.T) {
	sc := StaticContext{
		Default:  core.Covariates{core.CovHoliday: core.Known(0)},
		ByDate:   map[string]core.Covariates{"2025-04-01": {core.CovRainfall: core.Known(3)}},
		Expected: []string{core.CovLocalEvents},
	}
	target := core.TargetPeriod{Start: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)}
	cov, err := sc.Covariates(context.Background(), target)
	if err != nil {
		t.Fatalf("Covariates: %v", err)
	}
	if v := cov.Get(core.CovRainfall); !v.Known || v.Value != 3 {
		t.Errorf("rainfall = %+v", v)
	}
	if v := cov.Get(core.CovHoliday); !v.Known || v.Value != 0 {
		t.Errorf("holiday = %+v", v)
	}
	if v, present := cov[core.CovLocalEvents]; !present || v.Known {
		t.Errorf("local events = %+v present=%v, want explicit unknown", v, present)
	}
	if _, ok := sc.Default[core.CovRainfall]; ok {
		t.Error("Default was mutated")
	}
}

func TestSteadinessCacheScopedToAsOfView(t *testing.T) {
	history := append(append([]int64{}, twelveWeeks...), 100, 2000, 100, 2000)
	asOf := firstMonday.AddDate(0, 0, 7*11)

	tests := []struct {
		name          string
		overviewFirst bool
	}{
		{name: "steadiness then overview"},
		{name: "overview then steadiness", overviewFirst: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t, weekly(history))
			ctx := context.Background()

			var (
				full SteadinessView
				ov   Overview
				err  error
			)
			if tt.overviewFirst {
				ov, err = svc.GetOverview(ctx, asOf, 0.8)
				if err == nil {
					full, err = svc.GetSteadiness(ctx, SteadinessRequest{Periods: 12})
				}
			} else {
				full, err = svc.GetSteadiness(ctx, SteadinessRequest{Periods: 12})
				if err == nil {
					ov, err = svc.GetOverview(ctx, asOf, 0.8)
				}
			}
			if err != nil {
				t.Fatal(err)
			}
			if ov.Steadiness == nil {
				t.Fatalf("overview steadiness missing: %v", ov.Unavailable)
			}

			if math.Abs(ov.Steadiness.Mean-865.83) > 0.01 {
				t.Errorf("as_of mean = %.2f, want the first twelve weeks (865.83)", ov.Steadiness.Mean)
			}
			if full.CoefficientOfVariation <= ov.Steadiness.CoefficientOfVariation {
				t.Errorf("latest twelve cv = %.4f, as_of cv = %.4f; the volatile tail was not used",
					full.CoefficientOfVariation, ov.Steadiness.CoefficientOfVariation)
			}
		})
	}
}
