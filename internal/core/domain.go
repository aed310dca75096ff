package core

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Well-known covariate names. Zone shares use the ZonePrefix followed by the zone name.
const (
	CovRainfall    = "rainfall_mm"
	CovHoliday     = "is_holiday"
	CovLocalEvents = "local_event_count"
	CovDemandIndex = "search_demand_index"
	ZonePrefix     = "zone_"
)

const (
	SubDaily Granularity = "sub_daily"
	Daily    Granularity = "daily"
	Weekly   Granularity = "weekly"
)

type (
	PeriodID string

	Granularity string

	// CovariateValue is a single exogenous reading. Known=false means the
	// value was never supplied, which is distinct from a zero reading.
	CovariateValue struct {
		Value float64
		Known bool
	}

	Covariates map[string]CovariateValue

	// Range is the half-open interval [From, To).
	Range struct {
		From time.Time `json:"from"`
		To   time.Time `json:"to"`
	}

	// PeriodValues holds the mutable part of a period; corrections replace it wholesale.
	PeriodValues struct {
		Observed    bool            `json:"observed"`
		Gross       decimal.Decimal `json:"gross"`
		HoursActive float64         `json:"hours_active"`
		Trips       int             `json:"trips"`
		Covariates  Covariates      `json:"covariates,omitempty"`
	}

	EarningsPeriod struct {
		ID          PeriodID        `json:"id"`
		Start       time.Time       `json:"start"`
		End         time.Time       `json:"end"`
		Observed    bool            `json:"observed"`
		Gross       decimal.Decimal `json:"gross"`
		HoursActive float64         `json:"hours_active"`
		Trips       int             `json:"trips"`
		Covariates  Covariates      `json:"covariates,omitempty"`
	}

	Correction struct {
		Values PeriodValues `json:"values"`
		Reason string       `json:"reason"`
	}

	CorrectionRecord struct {
		PeriodID PeriodID     `json:"period_id"`
		Before   PeriodValues `json:"before"`
		After    PeriodValues `json:"after"`
		Reason   string       `json:"reason"`
		At       time.Time    `json:"at"`
	}
)

// NewPeriodID returns a fresh random identifier.
func NewPeriodID() PeriodID {
	return PeriodID(uuid.NewString())
}

// ParsePeriodID accepts only canonical UUID strings.
func ParsePeriodID(s string) (PeriodID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", &ValidationError{Field: "id", Constraint: "must be a UUID"}
	}
	return PeriodID(u.String()), nil
}

func (id PeriodID) String() string { return string(id) }

// Known returns a known covariate reading.
func Known(v float64) CovariateValue {
	return CovariateValue{Value: v, Known: true}
}

// Get returns the named reading; a missing key is reported as unknown.
func (c Covariates) Get(name string) CovariateValue {
	if c == nil {
		return CovariateValue{}
	}
	return c[name]
}

// Names returns the covariate names in sorted order.
func (c Covariates) Names() []string {
	names := make([]string, 0, len(c))
	for k := range c {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (c Covariates) Clone() Covariates {
	if c == nil {
		return nil
	}
	out := make(Covariates, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// MarshalJSON writes known readings as numbers and unknown ones as null.
func (c Covariates) MarshalJSON() ([]byte, error) {
	m := make(map[string]*float64, len(c))
	for k, v := range c {
		if v.Known {
			val := v.Value
			m[k] = &val
		} else {
			m[k] = nil
		}
	}
	return json.Marshal(m)
}

func (c *Covariates) UnmarshalJSON(data []byte) error {
	var m map[string]*float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(Covariates, len(m))
	for k, v := range m {
		if v == nil {
			out[k] = CovariateValue{}
			continue
		}
		out[k] = Known(*v)
	}
	*c = out
	return nil
}

func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// Overlaps reports whether the two half-open ranges share any instant.
func (r Range) Overlaps(o Range) bool {
	return r.From.Before(o.To) && o.From.Before(r.To)
}

func (r Range) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return &ValidationError{Field: "range", Constraint: "from and to are required"}
	}
	if !r.To.After(r.From) {
		return &ValidationError{Field: "range", Constraint: "to must be after from"}
	}
	return nil
}

// GranularityOf classifies a period length.
func GranularityOf(d time.Duration) Granularity {
	switch {
	case d < 24*time.Hour:
		return SubDaily
	case d < 7*24*time.Hour:
		return Daily
	default:
		return Weekly
	}
}

func (p EarningsPeriod) Range() Range {
	return Range{From: p.Start, To: p.End}
}

func (p EarningsPeriod) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

func (p EarningsPeriod) Granularity() Granularity {
	return GranularityOf(p.Duration())
}

// GrossValue returns gross earnings as a float for statistics.
func (p EarningsPeriod) GrossValue() float64 {
	return p.Gross.InexactFloat64()
}

func (p EarningsPeriod) Values() PeriodValues {
	return PeriodValues{
		Observed:    p.Observed,
		Gross:       p.Gross,
		HoursActive: p.HoursActive,
		Trips:       p.Trips,
		Covariates:  p.Covariates.Clone(),
	}
}

// WithValues returns a copy of p carrying v; identity and range are kept.
func (p EarningsPeriod) WithValues(v PeriodValues) EarningsPeriod {
	p.Observed = v.Observed
	p.Gross = v.Gross
	p.HoursActive = v.HoursActive
	p.Trips = v.Trips
	p.Covariates = v.Covariates.Clone()
	return p
}

// Gap builds an unobserved period covering [start, end).
func Gap(start, end time.Time) EarningsPeriod {
	return EarningsPeriod{Start: start.UTC(), End: end.UTC()}
}

func (p EarningsPeriod) Validate() error {
	if p.Start.IsZero() {
		return &ValidationError{Field: "start", Constraint: "required"}
	}
	if p.End.IsZero() {
		return &ValidationError{Field: "end", Constraint: "required"}
	}
	if !p.End.After(p.Start) {
		return &ValidationError{Field: "end", Constraint: "must be after start"}
	}
	return p.Values().Validate()
}

func (v PeriodValues) Validate() error {
	if v.Gross.IsNegative() {
		return &ValidationError{Field: "gross", Constraint: "must be non-negative"}
	}
	if v.HoursActive < 0 || math.IsNaN(v.HoursActive) || math.IsInf(v.HoursActive, 0) {
		return &ValidationError{Field: "hours_active", Constraint: "must be a non-negative number"}
	}
	if v.Trips < 0 {
		return &ValidationError{Field: "trips", Constraint: "must be non-negative"}
	}
	if !v.Observed && (!v.Gross.IsZero() || v.HoursActive != 0 || v.Trips != 0) {
		return &ValidationError{Field: "observed", Constraint: "a gap cannot carry earnings, hours or trips"}
	}
	for name, cv := range v.Covariates {
		if name == "" {
			return &ValidationError{Field: "covariates", Constraint: "names must be non-empty"}
		}
		if cv.Known && (math.IsNaN(cv.Value) || math.IsInf(cv.Value, 0)) {
			return &ValidationError{Field: "covariates." + name, Constraint: "must be finite"}
		}
	}
	return nil
}

func (c Correction) Validate() error {
	if c.Reason == "" {
		return &ValidationError{Field: "reason", Constraint: "required"}
	}
	return c.Values.Validate()
}

// ObservedOnly filters out gaps, preserving order.
func ObservedOnly(periods []EarningsPeriod) []EarningsPeriod {
	out := make([]EarningsPeriod, 0, len(periods))
	for _, p := range periods {
		if p.Observed {
			out = append(out, p)
		}
	}
	return out
}

// GrossValues extracts gross earnings of observed periods.
func GrossValues(periods []EarningsPeriod) []float64 {
	out := make([]float64, 0, len(periods))
	for _, p := range periods {
		if p.Observed {
			out = append(out, p.GrossValue())
		}
	}
	return out
}
