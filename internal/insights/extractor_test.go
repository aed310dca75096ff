package insights

import (
	"errors"
	"math"
	"testing"
	"time"

	"steady/internal/core"
)

var monday = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

// rainyDays builds n daily periods where every fourth day (offset 1) is rainy
// and earns 30% more than the dry baseline of the same slot.
func rainyDays(n int) []core.EarningsPeriod {
	out := make([]core.EarningsPeriod, n)
	for i := 0; i < n; i++ {
		gross := 100 + float64(i%3)*4
		rain := 0.0
		if i%4 == 1 {
			gross *= 1.3
			rain = 4.2
		}
		out[i] = core.EarningsPeriod{
			ID:          core.NewPeriodID(),
			Start:       monday.AddDate(0, 0, i),
			End:         monday.AddDate(0, 0, i+1),
			Observed:    true,
			Gross:       core.Amount(gross),
			HoursActive: 8,
			Trips:       20,
			Covariates:  core.Covariates{core.CovRainfall: core.Known(rain)},
		}
	}
	return out
}

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	x, err := NewExtractor(DefaultConfig())
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return x
}

func TestExtract_RainEffect(t *testing.T) {
	x := newExtractor(t)
	set := x.Extract(rainyDays(36))

	top := set.Top(1)
	if len(top) != 1 {
		t.Fatalf("expected an insight, got none")
	}
	rain := top[0]
	if rain.Kind != core.KindWeather {
		t.Fatalf("top insight kind = %s, want weather", rain.Kind)
	}
	if _, ok := rain.Detail.(core.WeatherDetail); !ok {
		t.Errorf("detail type = %T", rain.Detail)
	}
	if math.Abs(rain.EffectSize-30) > 0.01 {
		t.Errorf("effect = %.3f, want 30", rain.EffectSize)
	}
	if rain.SupportCount != 9 || rain.BaselineCount != 27 {
		t.Errorf("support=%d baseline=%d", rain.SupportCount, rain.BaselineCount)
	}
	if rain.Strength != core.Moderate {
		t.Errorf("strength = %s, want moderate", rain.Strength)
	}
	if rain.PValue <= 0 || rain.PValue >= 0.001 {
		t.Errorf("p-value = %g, expected a very small positive value", rain.PValue)
	}
}

func TestExtract_SmallSupportSuppressed(t *testing.T) {
	x := newExtractor(t)
	periods := rainyDays(36)
	// Two holidays earning 40% more: too few to report.
	for _, i := range []int{10, 22} {
		periods[i].Covariates[core.CovHoliday] = core.Known(1)
		periods[i].Gross = periods[i].Gross.Mul(core.Amount(1.4))
	}
	for i := range periods {
		if _, ok := periods[i].Covariates[core.CovHoliday]; !ok {
			periods[i].Covariates[core.CovHoliday] = core.Known(0)
		}
	}
	for in := range x.Extract(periods).All() {
		if in.Feature == "is_holiday >= 1" {
			t.Fatalf("holiday insight with support %d should be suppressed", in.SupportCount)
		}
	}
}

func TestExtract_UnknownCovariateExcluded(t *testing.T) {
	x := newExtractor(t)
	periods := rainyDays(36)
	// Rainfall was never recorded for the first four dry days.
	for _, i := range []int{0, 2, 3, 4} {
		periods[i].Covariates = core.Covariates{core.CovRainfall: {}}
	}
	set := x.Extract(periods)
	var found bool
	for in := range set.All() {
		if in.Kind == core.KindWeather {
			found = true
			if in.BaselineCount != 23 {
				t.Errorf("baseline = %d, want 23 (unknowns excluded)", in.BaselineCount)
			}
		}
	}
	if !found {
		t.Fatal("weather insight missing")
	}
}

func TestExtract_NoiseFloor(t *testing.T) {
	x := newExtractor(t)
	periods := rainyDays(36)
	for i := range periods {
		if i%4 == 1 {
			// 3% instead of 30%
			periods[i].Gross = core.Amount((100 + float64(i%3)*4) * 1.03)
		}
	}
	for in := range x.Extract(periods).All() {
		if in.Kind == core.KindWeather {
			t.Fatalf("effect %.1f%% below noise floor was emitted", in.EffectSize)
		}
	}
}

func TestExtract_WeeklyPeriodsHaveNoTemporalInsights(t *testing.T) {
	x := newExtractor(t)
	var periods []core.EarningsPeriod
	for i := 0; i < 20; i++ {
		gross := 800.0
		if i%2 == 0 {
			gross = 1000
		}
		periods = append(periods, core.EarningsPeriod{
			Start:       monday.AddDate(0, 0, 7*i),
			End:         monday.AddDate(0, 0, 7*(i+1)),
			Observed:    true,
			Gross:       core.Amount(gross),
			HoursActive: float64(30 + i%2),
		})
	}
	for in := range x.Extract(periods).All() {
		if in.Kind == core.KindTemporal {
			t.Fatalf("unexpected temporal insight %s for weekly data", in.Feature)
		}
	}
}

func TestExtract_WorkloadAndStrongStrength(t *testing.T) {
	x := newExtractor(t)
	var periods []core.EarningsPeriod
	for i := 0; i < 26; i++ {
		hours, gross := 25.0, 700.0
		if i%2 == 0 {
			hours, gross = 40, 1000
		}
		periods = append(periods, core.EarningsPeriod{
			Start:       monday.AddDate(0, 0, 7*i),
			End:         monday.AddDate(0, 0, 7*(i+1)),
			Observed:    true,
			Gross:       core.Amount(gross),
			HoursActive: hours,
		})
	}
	top := x.Extract(periods).Top(0)
	if len(top) != 1 {
		t.Fatalf("insights = %d, want 1", len(top))
	}
	w, ok := top[0].Detail.(core.WorkloadDetail)
	if !ok {
		t.Fatalf("detail = %T, want WorkloadDetail", top[0].Detail)
	}
	if w.MedianHours != 25 {
		t.Errorf("median hours = %v", w.MedianHours)
	}
	if top[0].Strength != core.Strong || top[0].SupportCount != 13 {
		t.Errorf("strength=%s support=%d", top[0].Strength, top[0].SupportCount)
	}
}

func TestSet_LazyAndRestartable(t *testing.T) {
	x := newExtractor(t)
	set := x.Extract(rainyDays(36))

	var first []string
	for in := range set.All() {
		first = append(first, in.Feature)
	}
	var second []string
	for in := range set.All() {
		second = append(second, in.Feature)
	}
	if len(first) == 0 || len(first) != len(second) {
		t.Fatalf("iterations differ: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("order differs at %d: %s vs %s", i, first[i], second[i])
		}
	}

	count := 0
	for range set.All() {
		count++
		break
	}
	if count != 1 {
		t.Errorf("early break yielded %d", count)
	}
}

func TestExtract_StableAcrossReextraction(t *testing.T) {
	x := newExtractor(t)
	periods := rainyDays(36)
	a := x.Extract(periods).Top(0)
	b := x.Extract(append([]core.EarningsPeriod(nil), periods...)).Top(0)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Feature != b[i].Feature || a[i].EffectSize != b[i].EffectSize {
			t.Fatalf("ranking changed at %d: %s vs %s", i, a[i].Feature, b[i].Feature)
		}
	}
}

func TestSet_Active(t *testing.T) {
	x := newExtractor(t)
	set := x.Extract(rainyDays(36))

	active := set.Active(core.Covariates{core.CovRainfall: core.Known(2)}, 8)
	if len(active) != 1 || active[0].Kind != core.KindWeather {
		t.Fatalf("active = %+v", active)
	}
	if got := set.Active(core.Covariates{core.CovRainfall: core.Known(0)}, 8); len(got) != 0 {
		t.Errorf("dry target activated %d insights", len(got))
	}
	if got := set.Active(core.Covariates{}, 8); len(got) != 0 {
		t.Errorf("unknown rainfall activated %d insights", len(got))
	}
	if got := set.Active(core.Covariates{core.CovRainfall: core.Known(2)}, 10); len(got) != 0 {
		t.Errorf("support gate ignored")
	}
}

func TestRankOrdering(t *testing.T) {
	x := newExtractor(t)
	in := []core.Insight{
		{Feature: "b", Strength: core.Weak, SupportCount: 20, EffectSize: 50},
		{Feature: "a", Strength: core.Moderate, SupportCount: 8, EffectSize: 12},
		{Feature: "d", Strength: core.Moderate, SupportCount: 9, EffectSize: -11},
		{Feature: "c", Strength: core.Moderate, SupportCount: 9, EffectSize: 15},
		{Feature: "e", Strength: core.Moderate, SupportCount: 9, EffectSize: 15},
	}
	got := x.rank(in)
	want := []string{"c", "e", "d", "a", "b"}
	for i, f := range want {
		if got[i].Feature != f {
			t.Fatalf("position %d = %s, want %s", i, got[i].Feature, f)
		}
	}
}

func TestNewExtractor_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSupport = 1
	_, err := NewExtractor(cfg)
	if !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}
}
