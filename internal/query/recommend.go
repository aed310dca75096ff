package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"steady/internal/core"
	"steady/internal/metrics"
	"steady/internal/store"
)

const defaultRecommendations = 5

type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Recommendation is one action, with the extra gross earnings expected
// from following it.
type Recommendation struct {
	Priority       Priority `json:"priority"`
	Type           string   `json:"type"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	ExpectedImpact float64  `json:"expected_impact"`
}

// RecommendationRequest asks for actions for the period after AsOf.
// A zero Goal uses the configured weekly goal and skips goal advice when
// none is configured. Top <= 0 returns the default count.
type RecommendationRequest struct {
	AsOf time.Time
	Goal float64
	Top  int
}

type Recommendations struct {
	Target          *core.TargetPeriod `json:"target,omitempty"`
	Goal            *GoalProgress      `json:"goal,omitempty"`
	Recommendations []Recommendation   `json:"recommendations"`
	StoreVersion    uint64             `json:"store_version"`
}

// GetRecommendations ranks actions drawn from the forecast, the insights
// active for the forecast target and progress toward the weekly goal.
// They are ordered by priority, then by expected impact.
func (s *Service) GetRecommendations(ctx context.Context, req RecommendationRequest) (Recommendations, error) {
	defer metrics.ObserveQuery("recommendations", time.Now())

	goal := req.Goal
	if goal < 0 {
		return Recommendations{}, &core.InvalidConfigurationError{Field: "goal", Constraint: "must be positive", Value: goal}
	}
	if goal == 0 {
		goal = s.cfg.WeeklyGoal
	}
	top := req.Top
	if top <= 0 {
		top = defaultRecommendations
	}

	snap := s.source.Snapshot()
	out := Recommendations{StoreVersion: snap.Version(), Recommendations: []Recommendation{}}
	view := snap
	if !req.AsOf.IsZero() {
		view = snap.Until(req.AsOf)
	}

	var recs []Recommendation
	fc, err := s.forecast(ctx, snap, req.AsOf, 0)
	switch {
	case err == nil:
		target := fc.Target
		out.Target = &target
		recs = append(recs, s.contextRecommendations(view, fc)...)
		if r, ok := forecastRecommendation(fc); ok {
			recs = append(recs, r)
		}
	case errors.Is(err, core.ErrInsufficientData):
	default:
		return Recommendations{}, err
	}
	if latest, ok := view.Latest(); ok {
		recs = append(recs, patternRecommendations(s.insightsFor(view, latest.ID).Top(0))...)
	}

	if goal > 0 {
		asOf := req.AsOf
		if asOf.IsZero() {
			asOf = s.now()
		}
		progress := goalProgress(view, goal, asOf.UTC())
		out.Goal = &progress
		if r, ok := goalRecommendation(progress, s.hourlyRate(view)); ok {
			recs = append(recs, r)
		}
	}

	rankRecommendations(recs)
	if len(recs) > top {
		recs = recs[:top]
	}
	if len(recs) > 0 {
		out.Recommendations = recs
	}
	return out, nil
}

func rankRecommendations(recs []Recommendation) {
	slices.SortStableFunc(recs, func(a, b Recommendation) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		if c := cmp.Compare(b.ExpectedImpact, a.ExpectedImpact); c != 0 {
			return c
		}
		return cmp.Compare(a.Title, b.Title)
	})
}

// contextRecommendations turns the favourable insights whose condition
// holds for the forecast target into actions.
func (s *Service) contextRecommendations(view *store.Snapshot, fc ForecastView) []Recommendation {
	latest, ok := view.Latest()
	if !ok {
		return nil
	}
	var out []Recommendation
	for _, in := range s.insightsFor(view, latest.ID).Active(fc.Target.Covariates, s.cfg.Forecast.MinCovariateSupport) {
		if in.EffectSize <= 0 {
			continue
		}
		priority := PriorityMedium
		if in.Kind == core.KindEvent {
			priority = PriorityHigh
		}
		out = append(out, Recommendation{
			Priority:       priority,
			Type:           string(in.Kind),
			Title:          fmt.Sprintf("Work the period starting %s", fc.Target.Start.Format("Mon 2 Jan")),
			Description:    in.Headline() + ", and the condition holds for the coming period.",
			ExpectedImpact: core.Amount(fc.Baseline * in.EffectSize / 100).InexactFloat64(),
		})
	}
	return out
}

// patternRecommendations suggests the best calendar slot and the
// workload pattern, when either pays above the baseline.
func patternRecommendations(ranked []core.Insight) []Recommendation {
	var out []Recommendation
	var timing, workload bool
	for _, in := range ranked {
		if in.EffectSize <= 0 {
			continue
		}
		gain := core.Amount(in.PresentMean - in.BaselineMean).InexactFloat64()
		switch d := in.Detail.(type) {
		case core.TemporalDetail:
			if timing {
				continue
			}
			timing = true
			slot := d.Weekday.String() + " shifts"
			if d.Unit == core.UnitHour {
				slot = fmt.Sprintf("%02d:00 shifts", d.Hour)
			}
			out = append(out, Recommendation{
				Priority:       PriorityMedium,
				Type:           "timing",
				Title:          "Maximize " + slot,
				Description:    fmt.Sprintf("%s (%s pattern, %d periods).", in.Headline(), in.Strength, in.SupportCount),
				ExpectedImpact: gain,
			})
		case core.WorkloadDetail:
			if workload {
				continue
			}
			workload = true
			out = append(out, Recommendation{
				Priority:       PriorityLow,
				Type:           "workload",
				Title:          fmt.Sprintf("Plan periods over %.1f active hours", d.MedianHours),
				Description:    in.Headline() + ".",
				ExpectedImpact: gain,
			})
		}
	}
	return out
}

// forecastRecommendation flags a coming period expected to fall below
// the last one.
func forecastRecommendation(fc ForecastView) (Recommendation, bool) {
	if fc.Direction != core.DirectionDown || fc.IsDegraded() {
		return Recommendation{}, false
	}
	return Recommendation{
		Priority:       PriorityLow,
		Type:           "forecast",
		Title:          "Expect a slower period",
		Description:    fmt.Sprintf("The next period is forecast at %.2f, %.0f%% below the last.", fc.PointEstimate, math.Abs(fc.ChangePercent)),
		ExpectedImpact: core.Amount(-fc.Change).InexactFloat64(),
	}, true
}

func goalRecommendation(g GoalProgress, hourly float64) (Recommendation, bool) {
	switch {
	case g.Remaining <= 0:
		return Recommendation{}, false
	case !g.OnTrack:
		r := Recommendation{
			Priority:       PriorityHigh,
			Type:           "goal",
			Title:          fmt.Sprintf("%.2f from your weekly goal", g.Remaining),
			Description:    fmt.Sprintf("Focus on your best-paying slots over the next %d days.", g.DaysLeft),
			ExpectedImpact: g.Remaining,
		}
		if hourly > 0 {
			hours := math.Ceil(g.Remaining / hourly)
			r.Title = fmt.Sprintf("Add %.0f hours to reach your goal", hours)
			r.Description = fmt.Sprintf("At your recent %.2f an hour, %.0f more hours over the next %d days close the %.2f gap.", hourly, hours, g.DaysLeft, g.Remaining)
		}
		return r, true
	case g.ProgressPercent > 90:
		return Recommendation{
			Priority:       PriorityLow,
			Type:           "goal",
			Title:          "Ahead of schedule",
			Description:    fmt.Sprintf("Only %.2f to go; keep the current pace.", g.Remaining),
			ExpectedImpact: g.Remaining,
		}, true
	default:
		return Recommendation{}, false
	}
}

// hourlyRate is gross per active hour over the default window of
// observed periods that report hours.
func (s *Service) hourlyRate(view *store.Snapshot) float64 {
	var gross, hours float64
	for _, p := range view.LastObserved(s.cfg.DefaultPeriods) {
		if p.HoursActive > 0 {
			gross += p.GrossValue()
			hours += p.HoursActive
		}
	}
	if hours == 0 {
		return 0
	}
	return gross / hours
}
