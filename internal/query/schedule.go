package query

import (
	"cmp"
	"context"
	"slices"
	"time"

	"steady/internal/core"
	"steady/internal/metrics"
	"steady/internal/store"
)

// minSlotSupport is the number of periods a slot needs before its hourly
// rate is trusted.
const minSlotSupport = 2

// ScheduleRequest asks for the slots that reach Target within
// AvailableHours of work.
type ScheduleRequest struct {
	Target         float64
	AvailableHours float64
}

// ScheduleSlot is a recurring calendar slot: a weekday for daily
// history, a weekday and start hour for shorter periods.
type ScheduleSlot struct {
	Day        string  `json:"day"`
	Hour       *int    `json:"hour,omitempty"`
	Hours      float64 `json:"hours"`
	HourlyRate float64 `json:"hourly_rate"`
	Expected   float64 `json:"expected"`
	Support    int     `json:"support"`

	weekday time.Weekday
}

type Schedule struct {
	Target         float64        `json:"target"`
	AvailableHours float64        `json:"available_hours"`
	Slots          []ScheduleSlot `json:"slots"`
	TotalHours     float64        `json:"total_hours"`
	TotalExpected  float64        `json:"total_expected"`
	ReachesTarget  bool           `json:"reaches_target"`
	Confidence     string         `json:"confidence"`
	StoreVersion   uint64         `json:"store_version"`
}

// GetOptimalSchedule fills the available hours greedily with the
// best-paying slots in the history until the target is reached. Each
// slot contributes at most its typical active hours.
func (s *Service) GetOptimalSchedule(ctx context.Context, req ScheduleRequest) (Schedule, error) {
	defer metrics.ObserveQuery("schedule", time.Now())
	if !(req.Target > 0) {
		return Schedule{}, &core.ValidationError{Field: "target", Constraint: "must be positive"}
	}
	if !(req.AvailableHours > 0) {
		return Schedule{}, &core.ValidationError{Field: "hours", Constraint: "must be positive"}
	}

	snap := s.source.Snapshot()
	slots := rateSlots(snap.Periods())
	if len(slots) == 0 {
		return Schedule{}, &core.InsufficientDataError{
			Constraint: "daily or shorter periods with active hours per slot",
			Need:       minSlotSupport,
			Have:       0,
		}
	}

	out := Schedule{
		Target:         req.Target,
		AvailableHours: req.AvailableHours,
		Slots:          []ScheduleSlot{},
		Confidence:     s.scheduleConfidence(snap),
		StoreVersion:   snap.Version(),
	}
	left := req.AvailableHours
	for _, slot := range slots {
		if left <= 0 || out.TotalExpected >= req.Target {
			break
		}
		slot.Hours = min(slot.Hours, left)
		slot.Expected = core.Amount(slot.HourlyRate * slot.Hours).InexactFloat64()
		left -= slot.Hours
		out.TotalHours += slot.Hours
		out.TotalExpected += slot.Expected
		out.Slots = append(out.Slots, slot)
	}
	out.TotalExpected = core.Amount(out.TotalExpected).InexactFloat64()
	out.ReachesTarget = out.TotalExpected >= req.Target

	slices.SortStableFunc(out.Slots, func(a, b ScheduleSlot) int {
		if c := cmp.Compare(isoDay(a.weekday), isoDay(b.weekday)); c != 0 {
			return c
		}
		return cmp.Compare(hourOf(a), hourOf(b))
	})
	return out, nil
}

type slotKey struct {
	weekday time.Weekday
	hour    int
}

// rateSlots groups observed periods with active hours by slot, best
// hourly rate first.
func rateSlots(periods []core.EarningsPeriod) []ScheduleSlot {
	type acc struct {
		gross, hours float64
		n            int
	}
	groups := map[slotKey]*acc{}
	for _, p := range periods {
		if !p.Observed || p.HoursActive <= 0 {
			continue
		}
		k := slotKey{weekday: p.Start.Weekday(), hour: -1}
		switch p.Granularity() {
		case core.SubDaily:
			k.hour = p.Start.Hour()
		case core.Daily:
		default:
			continue
		}
		a := groups[k]
		if a == nil {
			a = &acc{}
			groups[k] = a
		}
		a.gross += p.GrossValue()
		a.hours += p.HoursActive
		a.n++
	}

	var out []ScheduleSlot
	for k, a := range groups {
		if a.n < minSlotSupport {
			continue
		}
		slot := ScheduleSlot{
			Day:        k.weekday.String(),
			Hours:      a.hours / float64(a.n),
			HourlyRate: core.Amount(a.gross / a.hours).InexactFloat64(),
			Support:    a.n,
			weekday:    k.weekday,
		}
		if k.hour >= 0 {
			h := k.hour
			slot.Hour = &h
		}
		out = append(out, slot)
	}
	slices.SortFunc(out, func(a, b ScheduleSlot) int {
		if c := cmp.Compare(b.HourlyRate, a.HourlyRate); c != 0 {
			return c
		}
		if c := cmp.Compare(isoDay(a.weekday), isoDay(b.weekday)); c != 0 {
			return c
		}
		return cmp.Compare(hourOf(a), hourOf(b))
	})
	return out
}

// scheduleConfidence grades recent volatility: below 0.10 is high, below
// 0.20 medium, anything else or too little history low.
func (s *Service) scheduleConfidence(snap *store.Snapshot) string {
	cv, err := s.estimator.CV(core.GrossValues(snap.LastObserved(s.cfg.DefaultPeriods)))
	switch {
	case err != nil:
		return "low"
	case cv < 0.10:
		return "high"
	case cv < 0.20:
		return "medium"
	default:
		return "low"
	}
}

// isoDay orders Monday first.
func isoDay(d time.Weekday) int { return (int(d) + 6) % 7 }

func hourOf(s ScheduleSlot) int {
	if s.Hour == nil {
		return -1
	}
	return *s.Hour
}
