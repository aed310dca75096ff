package query

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"steady/internal/core"
	"steady/internal/metrics"
	"steady/internal/store"
)

// onTrackRatio is the share of the required daily pace that still counts
// as on track.
const onTrackRatio = 0.9

// GoalProgress measures earnings of the calendar week (Monday to Sunday,
// UTC) containing as_of against a weekly goal.
type GoalProgress struct {
	Goal            float64   `json:"goal_amount"`
	Current         float64   `json:"current_amount"`
	Remaining       float64   `json:"remaining"`
	ProgressPercent int       `json:"progress_percent"`
	DaysLeft        int       `json:"days_left"`
	OnTrack         bool      `json:"on_track"`
	WeekStart       time.Time `json:"week_start"`
	WeekEnd         time.Time `json:"week_end"`
	AsOf            time.Time `json:"as_of"`
	Message         string    `json:"message"`
	StoreVersion    uint64    `json:"store_version"`
}

// GetGoalProgress reports progress toward goal at asOf. A zero goal uses
// the configured weekly goal; a zero asOf means now.
func (s *Service) GetGoalProgress(ctx context.Context, goal float64, asOf time.Time) (GoalProgress, error) {
	defer metrics.ObserveQuery("goal", time.Now())
	goal, err := s.resolveGoal(goal)
	if err != nil {
		return GoalProgress{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	return goalProgress(s.source.Snapshot(), goal, asOf.UTC()), nil
}

func (s *Service) resolveGoal(goal float64) (float64, error) {
	if goal == 0 {
		goal = s.cfg.WeeklyGoal
	}
	if !(goal > 0) {
		return 0, &core.InvalidConfigurationError{Field: "goal", Constraint: "must be positive; pass goal or set WEEKLY_GOAL", Value: goal}
	}
	return goal, nil
}

// weekOf returns the Monday 00:00 UTC that starts the week containing t.
func weekOf(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
}

// goalProgress prorates periods that straddle the week start or asOf by
// the share of their duration inside [week start, asOf).
func goalProgress(snap *store.Snapshot, goal float64, asOf time.Time) GoalProgress {
	start := weekOf(asOf)
	out := GoalProgress{
		Goal:         goal,
		WeekStart:    start,
		WeekEnd:      start.AddDate(0, 0, 7),
		AsOf:         asOf,
		StoreVersion: snap.Version(),
	}

	earned := decimal.Zero
	if asOf.After(start) {
		elapsed := core.Range{From: start, To: asOf}
		for _, p := range snap.Query(elapsed) {
			if !p.Observed {
				continue
			}
			from, to := p.Start, p.End
			if from.Before(start) {
				from = start
			}
			if to.After(asOf) {
				to = asOf
			}
			share := to.Sub(from).Seconds() / p.Duration().Seconds()
			earned = earned.Add(p.Gross.Mul(decimal.NewFromFloat(share)))
		}
	}
	out.Current = earned.Round(2).InexactFloat64()
	out.Remaining = math.Max(0, core.Amount(goal-out.Current).InexactFloat64())
	out.ProgressPercent = min(int(math.Round(out.Current/goal*100)), 100)

	daysIn := int(asOf.Sub(start) / (24 * time.Hour))
	out.DaysLeft = max(6-daysIn, 0)

	elapsedDays := math.Max(asOf.Sub(start).Hours()/24, 1)
	out.OnTrack = out.Current/elapsedDays >= onTrackRatio*goal/7

	out.Message = goalMessage(out)
	return out
}

func goalMessage(g GoalProgress) string {
	switch {
	case g.ProgressPercent >= 100:
		return fmt.Sprintf("Goal reached: %.2f earned this week.", g.Current)
	case g.ProgressPercent >= 90:
		return fmt.Sprintf("Almost there: %.2f more reaches the goal.", g.Remaining)
	case g.OnTrack:
		return fmt.Sprintf("On track: %d%% of the goal with %d days left.", g.ProgressPercent, g.DaysLeft)
	case g.DaysLeft > 0:
		return fmt.Sprintf("%.2f to go: about %.2f a day catches up.", g.Remaining, g.Remaining/float64(g.DaysLeft))
	default:
		return fmt.Sprintf("Week closing with %.2f of the %.2f goal.", g.Current, g.Goal)
	}
}
