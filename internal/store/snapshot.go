package store

import (
	"sort"
	"time"

	"steady/internal/core"
)

// Snapshot is a read-only view of the log at one version.
type Snapshot struct {
	periods []core.EarningsPeriod
	index   map[core.PeriodID]int
	version uint64
}

func (s *Snapshot) Version() uint64 { return s.version }

func (s *Snapshot) Len() int { return len(s.periods) }

// Periods returns every period, gaps included.
func (s *Snapshot) Periods() []core.EarningsPeriod {
	return append([]core.EarningsPeriod(nil), s.periods...)
}

func (s *Snapshot) Observed() []core.EarningsPeriod {
	return core.ObservedOnly(s.periods)
}

func (s *Snapshot) Get(id core.PeriodID) (core.EarningsPeriod, bool) {
	i, ok := s.index[id]
	if !ok || i >= len(s.periods) {
		return core.EarningsPeriod{}, false
	}
	return s.periods[i], true
}

// Latest returns the chronologically last period, gap or not.
func (s *Snapshot) Latest() (core.EarningsPeriod, bool) {
	if len(s.periods) == 0 {
		return core.EarningsPeriod{}, false
	}
	return s.periods[len(s.periods)-1], true
}

// LastObserved returns up to n of the most recent observed periods, oldest first.
func (s *Snapshot) LastObserved(n int) []core.EarningsPeriod {
	if n <= 0 {
		return nil
	}
	out := make([]core.EarningsPeriod, 0, n)
	for i := len(s.periods) - 1; i >= 0 && len(out) < n; i-- {
		if s.periods[i].Observed {
			out = append(out, s.periods[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Last returns up to n of the most recent periods, gaps included, oldest first.
func (s *Snapshot) Last(n int) []core.EarningsPeriod {
	if n <= 0 {
		return nil
	}
	if n > len(s.periods) {
		n = len(s.periods)
	}
	return append([]core.EarningsPeriod(nil), s.periods[len(s.periods)-n:]...)
}

// Query returns the periods overlapping r in chronological order.
func (s *Snapshot) Query(r core.Range) []core.EarningsPeriod {
	i := sort.Search(len(s.periods), func(i int) bool { return s.periods[i].End.After(r.From) })
	out := []core.EarningsPeriod{}
	for ; i < len(s.periods) && s.periods[i].Start.Before(r.To); i++ {
		out = append(out, s.periods[i])
	}
	return out
}

// Until returns a snapshot restricted to the periods starting at or before t.
// It keeps the version so derived caches stay keyed to the same data.
func (s *Snapshot) Until(t time.Time) *Snapshot {
	i := sort.Search(len(s.periods), func(i int) bool { return s.periods[i].Start.After(t) })
	if i == len(s.periods) {
		return s
	}
	return &Snapshot{periods: s.periods[:i:i], index: s.index, version: s.version}
}
