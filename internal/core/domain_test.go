package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func day(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestEarningsPeriodValidate(t *testing.T) {
	good := EarningsPeriod{
		Start:       day(3),
		End:         day(4),
		Observed:    true,
		Gross:       decimal.NewFromInt(120),
		HoursActive: 6,
		Trips:       14,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := Gap(day(4), day(5)).Validate(); err != nil {
		t.Fatalf("gap should be valid, got %v", err)
	}

	cases := []struct {
		name  string
		p     EarningsPeriod
		field string
	}{
		{"zero start", EarningsPeriod{End: day(4), Observed: true}, "start"},
		{"end before start", EarningsPeriod{Start: day(4), End: day(3), Observed: true}, "end"},
		{"empty range", EarningsPeriod{Start: day(4), End: day(4), Observed: true}, "end"},
		{"negative gross", EarningsPeriod{Start: day(3), End: day(4), Observed: true, Gross: decimal.NewFromInt(-1)}, "gross"},
		{"negative hours", EarningsPeriod{Start: day(3), End: day(4), Observed: true, HoursActive: -1}, "hours_active"},
		{"negative trips", EarningsPeriod{Start: day(3), End: day(4), Observed: true, Trips: -2}, "trips"},
		{"gap with earnings", EarningsPeriod{Start: day(3), End: day(4), Gross: decimal.NewFromInt(5)}, "observed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Errorf("field = %q, want %q", ve.Field, tc.field)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected errors.Is(err, ErrValidation)")
			}
		})
	}
}

func TestCovariatesUnknownIsNotZero(t *testing.T) {
	c := Covariates{CovRainfall: Known(0), CovHoliday: {}}
	if v := c.Get(CovRainfall); !v.Known || v.Value != 0 {
		t.Fatalf("rainfall should be a known zero, got %+v", v)
	}
	if c.Get(CovHoliday).Known {
		t.Fatalf("holiday should be unknown")
	}
	if c.Get("missing").Known {
		t.Fatalf("missing key should be unknown")
	}
	var nilCov Covariates
	if nilCov.Get(CovRainfall).Known {
		t.Fatalf("nil covariates should report unknown")
	}
}

func TestCovariatesJSON(t *testing.T) {
	in := Covariates{CovRainfall: Known(2.5), CovHoliday: {}}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Covariates
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Get(CovRainfall) != Known(2.5) {
		t.Errorf("rainfall = %+v", out.Get(CovRainfall))
	}
	v, ok := out[CovHoliday]
	if !ok || v.Known {
		t.Errorf("holiday should round-trip as explicit unknown, got %+v ok=%v", v, ok)
	}
}

func TestRangeOverlaps(t *testing.T) {
	a := Range{From: day(1), To: day(3)}
	cases := []struct {
		b    Range
		want bool
	}{
		{Range{From: day(3), To: day(4)}, false}, // touching
		{Range{From: day(2), To: day(4)}, true},
		{Range{From: day(1), To: day(2)}, true},
		{Range{From: day(4), To: day(5)}, false},
	}
	for i, tc := range cases {
		if got := a.Overlaps(tc.b); got != tc.want {
			t.Errorf("case %d: Overlaps = %v, want %v", i, got, tc.want)
		}
	}
}

func TestGranularityOf(t *testing.T) {
	if g := GranularityOf(time.Hour); g != SubDaily {
		t.Errorf("hour -> %s", g)
	}
	if g := GranularityOf(24 * time.Hour); g != Daily {
		t.Errorf("day -> %s", g)
	}
	if g := GranularityOf(7 * 24 * time.Hour); g != Weekly {
		t.Errorf("week -> %s", g)
	}
}

func TestWithValuesKeepsIdentity(t *testing.T) {
	p := EarningsPeriod{ID: NewPeriodID(), Start: day(3), End: day(4), Observed: true, Gross: decimal.NewFromInt(10)}
	q := p.WithValues(PeriodValues{Observed: true, Gross: decimal.NewFromInt(99)})
	if q.ID != p.ID || !q.Start.Equal(p.Start) || !q.End.Equal(p.End) {
		t.Fatalf("identity changed: %+v", q)
	}
	if !q.Gross.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("gross not replaced: %s", q.Gross)
	}
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&OverlapError{}, "overlap"},
		{&OrderingError{}, "ordering"},
		{&InsufficientDataError{}, "insufficient_data"},
		{&InvalidConfigurationError{Field: "confidence"}, "invalid_configuration"},
		{&ValidationError{}, "validation"},
		{&NotFoundError{}, "not_found"},
		{errors.New("disk full"), "internal"},
	}
	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Errorf("ErrorKind(%T) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestInsightCondition(t *testing.T) {
	in := Insight{Kind: KindWeather, Detail: WeatherDetail{Condition: Condition{Covariate: CovRainfall}}}
	c, ok := in.Condition()
	if !ok || c.Covariate != CovRainfall {
		t.Fatalf("expected rainfall condition, got %+v ok=%v", c, ok)
	}
	present, known := c.Holds(Covariates{CovRainfall: Known(3)})
	if !present || !known {
		t.Errorf("rain should be present")
	}
	_, known = c.Holds(Covariates{})
	if known {
		t.Errorf("missing rainfall should be unknown")
	}
	temporal := Insight{Kind: KindTemporal, Detail: TemporalDetail{Unit: UnitWeekday, Weekday: time.Saturday}}
	if _, ok := temporal.Condition(); ok {
		t.Errorf("temporal insight has no covariate condition")
	}
}
