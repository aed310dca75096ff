package core

import (
	"fmt"
	"math"
	"time"
)

const (
	KindTemporal   PatternKind = "temporal"
	KindGeographic PatternKind = "geographic"
	KindWeather    PatternKind = "weather"
	KindEvent      PatternKind = "event"
	KindWorkload   PatternKind = "workload"
)

const (
	Weak Strength = iota
	Moderate
	Strong
)

const (
	UnitWeekday TemporalUnit = "weekday"
	UnitHour    TemporalUnit = "hour"
)

type (
	PatternKind string

	Strength int

	TemporalUnit string

	// Condition marks a covariate as present when its value exceeds Threshold,
	// or reaches it when Inclusive is set.
	Condition struct {
		Covariate string  `json:"covariate"`
		Threshold float64 `json:"threshold"`
		Inclusive bool    `json:"inclusive"`
	}

	// InsightDetail is implemented only by the detail structs in this package.
	InsightDetail interface {
		PatternKind() PatternKind
		sealed()
	}

	TemporalDetail struct {
		Unit    TemporalUnit `json:"unit"`
		Weekday time.Weekday `json:"weekday"`
		Hour    int          `json:"hour"`
	}

	WeatherDetail struct {
		Condition Condition `json:"condition"`
	}

	EventDetail struct {
		Condition Condition `json:"condition"`
	}

	GeographicDetail struct {
		Zone      string    `json:"zone"`
		Condition Condition `json:"condition"`
	}

	WorkloadDetail struct {
		MedianHours float64 `json:"median_hours"`
	}

	Insight struct {
		Kind          PatternKind   `json:"kind"`
		Feature       string        `json:"feature"`
		EffectSize    float64       `json:"effect_size"`
		SupportCount  int           `json:"support_count"`
		BaselineCount int           `json:"baseline_count"`
		PresentMean   float64       `json:"present_mean"`
		BaselineMean  float64       `json:"baseline_mean"`
		PValue        float64       `json:"p_value"`
		Strength      Strength      `json:"strength"`
		Detail        InsightDetail `json:"detail"`
	}
)

func (TemporalDetail) PatternKind() PatternKind   { return KindTemporal }
func (WeatherDetail) PatternKind() PatternKind    { return KindWeather }
func (EventDetail) PatternKind() PatternKind      { return KindEvent }
func (GeographicDetail) PatternKind() PatternKind { return KindGeographic }
func (WorkloadDetail) PatternKind() PatternKind   { return KindWorkload }

func (TemporalDetail) sealed()   {}
func (WeatherDetail) sealed()    {}
func (EventDetail) sealed()      {}
func (GeographicDetail) sealed() {}
func (WorkloadDetail) sealed()   {}

func (s Strength) String() string {
	switch s {
	case Strong:
		return "strong"
	case Moderate:
		return "moderate"
	default:
		return "weak"
	}
}

func (s Strength) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Strength) UnmarshalText(b []byte) error {
	switch string(b) {
	case "strong":
		*s = Strong
	case "moderate":
		*s = Moderate
	case "weak":
		*s = Weak
	default:
		return fmt.Errorf("unknown strength %q", b)
	}
	return nil
}

// Holds reports whether the condition is met. known is false when the
// covariate is absent or unknown, in which case present is meaningless.
func (c Condition) Holds(cov Covariates) (present bool, known bool) {
	v := cov.Get(c.Covariate)
	if !v.Known {
		return false, false
	}
	if c.Inclusive {
		return v.Value >= c.Threshold, true
	}
	return v.Value > c.Threshold, true
}

func (c Condition) String() string {
	op := ">"
	if c.Inclusive {
		op = ">="
	}
	return fmt.Sprintf("%s %s %g", c.Covariate, op, c.Threshold)
}

// Condition returns the covariate condition behind a covariate-driven insight.
func (i Insight) Condition() (Condition, bool) {
	switch d := i.Detail.(type) {
	case WeatherDetail:
		return d.Condition, true
	case EventDetail:
		return d.Condition, true
	case GeographicDetail:
		return d.Condition, true
	default:
		return Condition{}, false
	}
}

// Headline renders a one-line description of the pattern.
func (i Insight) Headline() string {
	dir := "higher"
	if i.EffectSize < 0 {
		dir = "lower"
	}
	pct := math.Round(math.Abs(i.EffectSize))
	switch d := i.Detail.(type) {
	case TemporalDetail:
		if d.Unit == UnitHour {
			return fmt.Sprintf("Earnings are %.0f%% %s in the %02d:00 hour", pct, dir, d.Hour)
		}
		return fmt.Sprintf("Earnings are %.0f%% %s on %ss", pct, dir, d.Weekday)
	case WeatherDetail:
		return fmt.Sprintf("Earnings are %.0f%% %s in rainy periods", pct, dir)
	case EventDetail:
		return fmt.Sprintf("Earnings are %.0f%% %s when %s", pct, dir, d.Condition)
	case GeographicDetail:
		return fmt.Sprintf("Earnings are %.0f%% %s when mostly driving in %s", pct, dir, d.Zone)
	case WorkloadDetail:
		return fmt.Sprintf("Earnings are %.0f%% %s in periods over %.1f active hours", pct, dir, d.MedianHours)
	default:
		return fmt.Sprintf("Earnings are %.0f%% %s when %s", pct, dir, i.Feature)
	}
}
