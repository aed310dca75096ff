package store

import (
	"sort"
	"time"

	"steady/internal/core"
)

// Tx stages writes against the committed log. It is only valid inside the
// Update callback that created it.
type Tx struct {
	store     *Store
	at        time.Time
	appended  []core.EarningsPeriod
	corrected map[core.PeriodID]core.EarningsPeriod
	order     []core.PeriodID
	records   []core.CorrectionRecord
}

// Append validates p against the log plus everything staged so far.
func (tx *Tx) Append(p core.EarningsPeriod) (core.EarningsPeriod, error) {
	p.Start = p.Start.UTC()
	p.End = p.End.UTC()
	p.Covariates = p.Covariates.Clone()
	if err := p.Validate(); err != nil {
		return core.EarningsPeriod{}, err
	}
	if p.ID == "" {
		p.ID = core.NewPeriodID()
	} else if _, exists := tx.Get(p.ID); exists {
		return core.EarningsPeriod{}, &core.ValidationError{Field: "id", Constraint: "already stored: " + string(p.ID)}
	}

	if other, ok := tx.overlapping(p.Range()); ok {
		return core.EarningsPeriod{}, &core.OverlapError{Incoming: p.Range(), Existing: other.ID, Against: other.Range()}
	}
	if last, ok := tx.Last(); ok && p.Start.Before(last.End) {
		return core.EarningsPeriod{}, &core.OrderingError{Incoming: p.Start, LastEnd: last.End}
	}

	tx.appended = append(tx.appended, p)
	return p, nil
}

// Correct replaces the mutable values of a committed or staged period.
func (tx *Tx) Correct(id core.PeriodID, c core.Correction) (core.EarningsPeriod, error) {
	if err := c.Validate(); err != nil {
		return core.EarningsPeriod{}, err
	}
	current, ok := tx.Get(id)
	if !ok {
		return core.EarningsPeriod{}, &core.NotFoundError{ID: id}
	}
	updated := current.WithValues(c.Values)

	staged := false
	for i := range tx.appended {
		if tx.appended[i].ID == id {
			tx.appended[i] = updated
			staged = true
			break
		}
	}
	if !staged {
		if tx.corrected == nil {
			tx.corrected = make(map[core.PeriodID]core.EarningsPeriod)
		}
		if _, seen := tx.corrected[id]; !seen {
			tx.order = append(tx.order, id)
		}
		tx.corrected[id] = updated
	}

	tx.records = append(tx.records, core.CorrectionRecord{
		PeriodID: id,
		Before:   current.Values(),
		After:    updated.Values(),
		Reason:   c.Reason,
		At:       tx.at,
	})
	return updated, nil
}

// Get returns the staged or committed version of a period.
func (tx *Tx) Get(id core.PeriodID) (core.EarningsPeriod, bool) {
	for _, p := range tx.appended {
		if p.ID == id {
			return p, true
		}
	}
	if p, ok := tx.corrected[id]; ok {
		return p, true
	}
	if i, ok := tx.store.index[id]; ok {
		return tx.store.periods[i], true
	}
	return core.EarningsPeriod{}, false
}

// Last returns the chronologically last period, staged or committed.
func (tx *Tx) Last() (core.EarningsPeriod, bool) {
	if n := len(tx.appended); n > 0 {
		return tx.appended[n-1], true
	}
	if n := len(tx.store.periods); n > 0 {
		return tx.store.periods[n-1], true
	}
	return core.EarningsPeriod{}, false
}

func (tx *Tx) overlapping(r core.Range) (core.EarningsPeriod, bool) {
	committed := tx.store.periods
	i := sort.Search(len(committed), func(i int) bool { return committed[i].End.After(r.From) })
	if i < len(committed) && committed[i].Range().Overlaps(r) {
		return committed[i], true
	}
	for _, p := range tx.appended {
		if p.Range().Overlaps(r) {
			return p, true
		}
	}
	return core.EarningsPeriod{}, false
}

func (tx *Tx) changeset() Changeset {
	cs := Changeset{
		Appended:    append([]core.EarningsPeriod(nil), tx.appended...),
		Corrections: append([]core.CorrectionRecord(nil), tx.records...),
	}
	for _, id := range tx.order {
		cs.Corrected = append(cs.Corrected, tx.corrected[id])
	}
	return cs
}
