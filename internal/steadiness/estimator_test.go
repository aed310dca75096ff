package steadiness

import (
	"errors"
	"math"
	"testing"
	"time"

	"steady/internal/core"
)

var weeklyGross = []float64{840, 780, 920, 810, 950, 770, 890, 940, 820, 860, 880, 930}

func weeks(values ...float64) []core.EarningsPeriod {
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	out := make([]core.EarningsPeriod, len(values))
	for i, v := range values {
		out[i] = core.EarningsPeriod{
			ID:          core.NewPeriodID(),
			Start:       start.AddDate(0, 0, 7*i),
			End:         start.AddDate(0, 0, 7*(i+1)),
			Observed:    true,
			Gross:       core.Amount(v),
			HoursActive: 30,
		}
	}
	return out
}

func newEstimator(t *testing.T) *Estimator {
	t.Helper()
	e, err := NewEstimator(DefaultConfig())
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	return e
}

func TestEstimate_WeeklyHistory(t *testing.T) {
	e := newEstimator(t)
	snap, err := e.Estimate(weeks(weeklyGross...))
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if math.Abs(snap.Mean-865.83) > 0.01 {
		t.Errorf("mean = %.2f", snap.Mean)
	}
	if math.Abs(snap.CoefficientOfVariation-0.0721) > 0.001 {
		t.Errorf("cv = %.4f", snap.CoefficientOfVariation)
	}
	if math.Abs(snap.Score-89.75) > 0.1 {
		t.Errorf("score = %.2f", snap.Score)
	}
	if snap.Min != 770 || snap.Max != 950 {
		t.Errorf("range = [%v, %v]", snap.Min, snap.Max)
	}
	if snap.Observed != 12 || snap.Window.Periods != 12 {
		t.Errorf("observed=%d periods=%d", snap.Observed, snap.Window.Periods)
	}
}

func TestScore_Calibration(t *testing.T) {
	e := newEstimator(t)
	cases := []struct {
		cv       float64
		min, max float64
	}{
		{0.10, 80, 90},
		{0.30, 55, 70},
		{0.60, 35, 50},
	}
	for _, tc := range cases {
		got := e.Score(tc.cv)
		if got < tc.min || got > tc.max {
			t.Errorf("Score(%.2f) = %.1f, want in [%v, %v]", tc.cv, got, tc.min, tc.max)
		}
	}
}

func TestScore_BoundedAndMonotone(t *testing.T) {
	e := newEstimator(t)
	prev := e.Score(0)
	if prev != 100 {
		t.Fatalf("Score(0) = %v, want 100", prev)
	}
	for cv := 0.01; cv < 5; cv += 0.01 {
		s := e.Score(cv)
		if s < 0 || s > 100 {
			t.Fatalf("Score(%v) = %v out of bounds", cv, s)
		}
		if s >= prev {
			t.Fatalf("Score not strictly decreasing at cv=%v", cv)
		}
		prev = s
	}
}

func TestEstimate_InsufficientData(t *testing.T) {
	e := newEstimator(t)
	cases := []struct {
		name    string
		periods []core.EarningsPeriod
	}{
		{"empty", nil},
		{"single period", weeks(800)},
		{"zero mean", weeks(0, 0, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Estimate(tc.periods)
			var ide *core.InsufficientDataError
			if !errors.As(err, &ide) {
				t.Fatalf("expected InsufficientDataError, got %v", err)
			}
		})
	}
}

func TestEstimate_IgnoresGaps(t *testing.T) {
	e := newEstimator(t)
	ps := weeks(800, 0, 820)
	ps[1] = core.Gap(ps[1].Start, ps[1].End)
	snap, err := e.Estimate(ps)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Observed != 2 || snap.Window.Periods != 3 {
		t.Errorf("observed=%d window=%d", snap.Observed, snap.Window.Periods)
	}
	if snap.Mean != 810 {
		t.Errorf("mean = %v, want 810", snap.Mean)
	}
}

func TestNewEstimator_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DecayConstant = -1
	_, err := NewEstimator(cfg)
	var ice *core.InvalidConfigurationError
	if !errors.As(err, &ice) || ice.Field != "decay_constant" {
		t.Fatalf("expected decay_constant config error, got %v", err)
	}
}

func TestTrend(t *testing.T) {
	e := newEstimator(t)

	// Wild swings early, flat later.
	improving := weeks(500, 1100, 600, 1000, 800, 810, 805, 800, 802)
	tr, err := e.Trend(improving)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Direction != core.TrendImproving {
		t.Errorf("direction = %s, want improving (change %.1f)", tr.Direction, tr.Change)
	}
	if len(tr.Points) != 6 {
		t.Errorf("points = %d, want 6", len(tr.Points))
	}

	declining := weeks(800, 802, 805, 800, 810, 600, 1100, 500, 1000)
	tr, err = e.Trend(declining)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Direction != core.TrendDeclining {
		t.Errorf("direction = %s, want declining", tr.Direction)
	}

	tr, err = e.Trend(weeks(800, 810))
	if err == nil || tr.Direction != core.TrendInsufficient {
		t.Errorf("expected insufficient trend, got %+v err=%v", tr, err)
	}
}

func TestTrendWithWindow(t *testing.T) {
	e := newEstimator(t)
	ps := weeks(500, 1100, 600, 1000, 800, 810, 805, 800, 802)

	tr, err := e.TrendWithWindow(ps, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Points) != 7 {
		t.Errorf("points = %d, want 7", len(tr.Points))
	}

	if _, err := e.TrendWithWindow(ps, 1); !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Errorf("window 1: err = %v, want invalid configuration", err)
	}
}

func TestBreakdown(t *testing.T) {
	e := newEstimator(t)
	ps := weeks(800, 900, 850, 820)
	hours := []float64{30, 34, 32, 31}
	for i := range ps {
		ps[i].HoursActive = hours[i]
	}
	b, err := e.Breakdown(ps)
	if err != nil {
		t.Fatal(err)
	}
	if b.PeriodsWithHours != 4 {
		t.Errorf("periods with hours = %d", b.PeriodsWithHours)
	}
	if b.HoursScore <= 0 || b.HoursScore > 100 || b.RateScore <= 0 || b.RateScore > 100 {
		t.Errorf("scores out of range: %+v", b)
	}
	if b.MeanHourlyRate < 25 || b.MeanHourlyRate > 28 {
		t.Errorf("hourly rate = %.2f", b.MeanHourlyRate)
	}
}

func TestPercentileAndComparison(t *testing.T) {
	if p := Percentile(80, nil); p != 50 {
		t.Errorf("empty population percentile = %v, want 50", p)
	}
	pop := []float64{40, 50, 60, 70, 90}
	if p := Percentile(75, pop); p != 80 {
		t.Errorf("percentile = %v, want 80", p)
	}

	cases := []struct {
		p    float64
		want string
	}{
		{95, "Exceptionally consistent - top 10% of drivers"},
		{80, "More consistent than 80% of drivers"},
		{33, "Room to improve consistency - 33rd percentile"},
		{10, "High income variability - focus on building routine"},
	}
	for _, tc := range cases {
		if got := ComparisonText(tc.p); got != tc.want {
			t.Errorf("ComparisonText(%v) = %q, want %q", tc.p, got, tc.want)
		}
	}
}
