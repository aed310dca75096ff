package query

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"steady/internal/core"
	"steady/internal/metrics"
)

// Overview combines the forecast, the steadiness of the default window and
// the top insights, all computed from one snapshot. Goal progress is
// included when a weekly goal is configured. A section that lacks
// data is left empty and its reason recorded in Unavailable.
type Overview struct {
	StoreVersion uint64            `json:"store_version"`
	Forecast     *ForecastView     `json:"forecast,omitempty"`
	Steadiness   *SteadinessView   `json:"steadiness,omitempty"`
	Insights     []core.Insight    `json:"insights"`
	Goal         *GoalProgress     `json:"goal,omitempty"`
	Unavailable  map[string]string `json:"unavailable,omitempty"`
}

const overviewInsights = 3

// GetOverview runs the three views concurrently over the same snapshot.
func (s *Service) GetOverview(ctx context.Context, asOf time.Time, confidence float64) (Overview, error) {
	defer metrics.ObserveQuery("overview", time.Now())

	snap := s.source.Snapshot()
	out := Overview{StoreVersion: snap.Version(), Insights: []core.Insight{}}

	var (
		fc      ForecastView
		st      SteadinessView
		fcErr   error
		stErr   error
		ranking []core.Insight
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fc, fcErr = s.forecast(gctx, snap, asOf, confidence)
		return fatal(fcErr)
	})
	g.Go(func() error {
		view := snap
		if !asOf.IsZero() {
			view = snap.Until(asOf)
		}
		st, stErr = s.steadinessOf(view, SteadinessRequest{Periods: s.cfg.DefaultPeriods})
		return fatal(stErr)
	})
	g.Go(func() error {
		view := snap
		if !asOf.IsZero() {
			view = snap.Until(asOf)
		}
		if latest, ok := view.Latest(); ok {
			ranking = s.insightsFor(view, latest.ID).Top(overviewInsights)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}

	if fcErr == nil {
		out.Forecast = &fc
	} else {
		out.unavailable("forecast", fcErr)
	}
	if stErr == nil {
		out.Steadiness = &st
	} else {
		out.unavailable("steadiness", stErr)
	}
	if ranking != nil {
		out.Insights = ranking
	}
	if s.cfg.WeeklyGoal > 0 {
		at := asOf
		if at.IsZero() {
			at = s.now()
		}
		view := snap
		if !asOf.IsZero() {
			view = snap.Until(asOf)
		}
		g := goalProgress(view, s.cfg.WeeklyGoal, at.UTC())
		out.Goal = &g
	}
	return out, nil
}

func (o *Overview) unavailable(section string, err error) {
	if o.Unavailable == nil {
		o.Unavailable = make(map[string]string)
	}
	o.Unavailable[section] = err.Error()
}

// fatal lets insufficient data through as a partial overview.
func fatal(err error) error {
	if errors.Is(err, core.ErrInsufficientData) {
		return nil
	}
	return err
}
