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

// days returns consecutive daily periods from firstMonday.
func days(gross ...int64) []core.EarningsPeriod {
	out := make([]core.EarningsPeriod, len(gross))
	for i, g := range gross {
		out[i] = core.EarningsPeriod{
			Start:       firstMonday.AddDate(0, 0, i),
			End:         firstMonday.AddDate(0, 0, i+1),
			Observed:    true,
			Gross:       decimal.NewFromInt(g),
			HoursActive: 6,
			Trips:       12,
		}
	}
	return out
}

func newGoalService(t *testing.T, periods []core.EarningsPeriod, weeklyGoal float64, opts ...Option) *Service {
	t.Helper()
	s := store.New()
	if len(periods) > 0 {
		if _, err := s.AppendBatch(context.Background(), periods); err != nil {
			t.Fatalf("AppendBatch: %v", err)
		}
	}
	cfg := DefaultConfig()
	cfg.WeeklyGoal = weeklyGoal
	svc, err := NewService(s, cfg, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestGetGoalProgress(t *testing.T) {
	thursday := firstMonday.AddDate(0, 0, 3)

	tests := []struct {
		name        string
		goal        float64
		asOf        time.Time
		wantCurrent float64
		wantPercent int
		wantLeft    int
		wantOnTrack bool
		wantMessage string
	}{
		{
			name: "behind pace", goal: 1000, asOf: thursday,
			wantCurrent: 300, wantPercent: 30, wantLeft: 3,
			wantMessage: "700.00 to go: about 233.33 a day catches up.",
		},
		{
			name: "on pace", goal: 700, asOf: thursday,
			wantCurrent: 300, wantPercent: 43, wantLeft: 3, wantOnTrack: true,
			wantMessage: "On track: 43% of the goal with 3 days left.",
		},
		{
			name: "reached", goal: 250, asOf: thursday,
			wantCurrent: 300, wantPercent: 100, wantLeft: 3, wantOnTrack: true,
			wantMessage: "Goal reached: 300.00 earned this week.",
		},
		{
			name: "period in progress is prorated", goal: 1000, asOf: firstMonday.AddDate(0, 0, 2).Add(12 * time.Hour),
			wantCurrent: 250, wantPercent: 25, wantLeft: 4,
			wantMessage: "750.00 to go: about 187.50 a day catches up.",
		},
		{
			name: "start of week", goal: 1000, asOf: firstMonday,
			wantCurrent: 0, wantPercent: 0, wantLeft: 6,
			wantMessage: "1000.00 to go: about 166.67 a day catches up.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The previous Sunday must not count toward this week.
			history := append([]core.EarningsPeriod{{
				Start:    firstMonday.AddDate(0, 0, -1),
				End:      firstMonday,
				Observed: true,
				Gross:    decimal.NewFromInt(500),
			}}, days(100, 100, 100, 100)...)
			svc := newGoalService(t, history, 0)

			g, err := svc.GetGoalProgress(context.Background(), tt.goal, tt.asOf)
			if err != nil {
				t.Fatalf("GetGoalProgress: %v", err)
			}
			if math.Abs(g.Current-tt.wantCurrent) > 1e-9 {
				t.Errorf("current = %.2f, want %.2f", g.Current, tt.wantCurrent)
			}
			if want := math.Max(0, tt.goal-tt.wantCurrent); math.Abs(g.Remaining-want) > 1e-9 {
				t.Errorf("remaining = %.2f, want %.2f", g.Remaining, want)
			}
			if g.ProgressPercent != tt.wantPercent || g.DaysLeft != tt.wantLeft || g.OnTrack != tt.wantOnTrack {
				t.Errorf("percent/left/on track = %d/%d/%v, want %d/%d/%v",
					g.ProgressPercent, g.DaysLeft, g.OnTrack, tt.wantPercent, tt.wantLeft, tt.wantOnTrack)
			}
			if g.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", g.Message, tt.wantMessage)
			}
			if !g.WeekStart.Equal(firstMonday) || !g.WeekEnd.Equal(firstMonday.AddDate(0, 0, 7)) {
				t.Errorf("week = %v..%v", g.WeekStart, g.WeekEnd)
			}
		})
	}
}

func TestGetGoalProgressSkipsGaps(t *testing.T) {
	history := days(100, 100)
	history[1] = core.Gap(history[1].Start, history[1].End)
	svc := newGoalService(t, history, 0)

	g, err := svc.GetGoalProgress(context.Background(), 500, firstMonday.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("GetGoalProgress: %v", err)
	}
	if g.Current != 100 {
		t.Errorf("current = %.2f, want 100", g.Current)
	}
}

func TestGetGoalProgressDefaults(t *testing.T) {
	sunday := firstMonday.AddDate(0, 0, 6).Add(20 * time.Hour)
	svc := newGoalService(t, days(100, 100, 100, 100, 100, 100, 100), 900,
		WithClock(func() time.Time { return sunday }))

	g, err := svc.GetGoalProgress(context.Background(), 0, time.Time{})
	if err != nil {
		t.Fatalf("GetGoalProgress: %v", err)
	}
	if g.Goal != 900 {
		t.Errorf("goal = %v, want the configured 900", g.Goal)
	}
	if !g.AsOf.Equal(sunday) || g.DaysLeft != 0 {
		t.Errorf("as_of = %v days left = %d, want the clock and 0", g.AsOf, g.DaysLeft)
	}

	unset := newGoalService(t, days(100), 0)
	_, err = unset.GetGoalProgress(context.Background(), 0, firstMonday.AddDate(0, 0, 1))
	var cfgErr *core.InvalidConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "goal" {
		t.Errorf("error = %v, want invalid goal", err)
	}
}

func TestGetOverviewIncludesGoal(t *testing.T) {
	svc := newGoalService(t, days(100, 100, 100, 100), 700)

	o, err := svc.GetOverview(context.Background(), firstMonday.AddDate(0, 0, 3), 0)
	if err != nil {
		t.Fatalf("GetOverview: %v", err)
	}
	if o.Goal == nil {
		t.Fatal("overview has no goal section with a configured weekly goal")
	}
	// The fourth day starts at as_of and adds nothing yet.
	if o.Goal.Current != 300 {
		t.Errorf("goal current = %.2f, want 300", o.Goal.Current)
	}

	plain, _ := newService(t, days(100, 100))
	if o, err := plain.GetOverview(context.Background(), time.Time{}, 0); err != nil || o.Goal != nil {
		t.Errorf("overview goal = %+v, %v; want none without a goal", o.Goal, err)
	}
}
