package forecast

import (
	"fmt"
	"strings"
	"time"

	"steady/internal/core"
)

// position identifies a recurring calendar slot: a weekday for daily
// periods, an hour of day for shorter ones.
type position struct {
	unit    core.TemporalUnit
	weekday time.Weekday
	hour    int
}

func (p position) String() string {
	if p.unit == core.UnitHour {
		return fmt.Sprintf("hour:%02d", p.hour)
	}
	return "weekday:" + strings.ToLower(p.weekday.String())
}

// calendarKey returns the slot of a period starting at start. Weekly and
// longer periods have no slot.
func calendarKey(start time.Time, d time.Duration) (position, bool) {
	switch core.GranularityOf(d) {
	case core.SubDaily:
		return position{unit: core.UnitHour, hour: start.Hour()}, true
	case core.Daily:
		return position{unit: core.UnitWeekday, weekday: start.Weekday()}, true
	default:
		return position{}, false
	}
}

type positionValues struct {
	at  []float64
	all []float64
}

// samePosition collects gross earnings of periods with granularity g, split
// into those at key and all of them.
func samePosition(periods []core.EarningsPeriod, key position, g core.Granularity) positionValues {
	var v positionValues
	for _, p := range periods {
		if !p.Observed || p.Granularity() != g {
			continue
		}
		v.all = append(v.all, p.GrossValue())
		if k, ok := calendarKey(p.Start, p.Duration()); ok && k == key {
			v.at = append(v.at, p.GrossValue())
		}
	}
	return v
}
