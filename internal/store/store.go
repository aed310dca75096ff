// Package store holds the authoritative, append-only log of earnings periods.
//
// Writes go through Update, which stages changes in a Tx, validates them
// against the committed log, hands them to the Journal and only then makes
// them visible. Reads go through Snapshot, an immutable view that is safe to
// share between goroutines.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"steady/internal/core"
)

// Changeset is what a committed transaction adds to the log.
type Changeset struct {
	Appended    []core.EarningsPeriod
	Corrections []core.CorrectionRecord
	Corrected   []core.EarningsPeriod
	Version     uint64
}

func (c Changeset) Empty() bool {
	return len(c.Appended) == 0 && len(c.Corrections) == 0
}

// Journal persists committed changes. A journal error aborts the commit.
type Journal interface {
	Commit(ctx context.Context, cs Changeset) error
}

type Option func(*Store)

func WithJournal(j Journal) Option {
	return func(s *Store) { s.journal = j }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	mu          sync.RWMutex
	periods     []core.EarningsPeriod
	index       map[core.PeriodID]int
	corrections []core.CorrectionRecord
	version     uint64
	journal     Journal
	now         func() time.Time
}

func New(opts ...Option) *Store {
	s := &Store{
		index: make(map[core.PeriodID]int),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the store content with previously journaled state. It does
// not write to the journal.
func (s *Store) Load(periods []core.EarningsPeriod, corrections []core.CorrectionRecord) error {
	ordered := make([]core.EarningsPeriod, len(periods))
	copy(ordered, periods)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start.Before(ordered[j].Start) })

	index := make(map[core.PeriodID]int, len(ordered))
	for i, p := range ordered {
		if p.ID == "" {
			return &core.ValidationError{Field: "id", Constraint: "loaded periods must carry an id"}
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("loading period %s: %w", p.ID, err)
		}
		if i > 0 && p.Start.Before(ordered[i-1].End) {
			return &core.OverlapError{Incoming: p.Range(), Existing: ordered[i-1].ID, Against: ordered[i-1].Range()}
		}
		if _, dup := index[p.ID]; dup {
			return &core.ValidationError{Field: "id", Constraint: "duplicate id " + string(p.ID)}
		}
		index[p.ID] = i
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = ordered
	s.index = index
	s.corrections = append([]core.CorrectionRecord(nil), corrections...)
	s.version++
	return nil
}

// Update runs fn inside a write transaction. Changes staged on tx become
// visible atomically when fn returns nil and the journal accepts them; on
// any error nothing changes.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) (Changeset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{store: s, at: s.now().UTC()}
	if err := fn(tx); err != nil {
		return Changeset{}, err
	}
	cs := tx.changeset()
	if cs.Empty() {
		return cs, nil
	}
	cs.Version = s.version + 1

	if s.journal != nil {
		if err := s.journal.Commit(ctx, cs); err != nil {
			return Changeset{}, fmt.Errorf("journal commit: %w", err)
		}
	}

	s.apply(tx)
	s.version = cs.Version
	return cs, nil
}

// Append stores one period and returns it with its assigned id.
func (s *Store) Append(ctx context.Context, p core.EarningsPeriod) (core.EarningsPeriod, error) {
	var stored core.EarningsPeriod
	_, err := s.Update(ctx, func(tx *Tx) error {
		var err error
		stored, err = tx.Append(p)
		return err
	})
	return stored, err
}

// AppendBatch stores all periods or none of them.
func (s *Store) AppendBatch(ctx context.Context, ps []core.EarningsPeriod) ([]core.EarningsPeriod, error) {
	cs, err := s.Update(ctx, func(tx *Tx) error {
		for i, p := range ps {
			if _, err := tx.Append(p); err != nil {
				return fmt.Errorf("period %d: %w", i, err)
			}
		}
		return nil
	})
	return cs.Appended, err
}

// Correct replaces the values of a stored period and logs the change.
func (s *Store) Correct(ctx context.Context, id core.PeriodID, c core.Correction) (core.EarningsPeriod, error) {
	var corrected core.EarningsPeriod
	_, err := s.Update(ctx, func(tx *Tx) error {
		var err error
		corrected, err = tx.Correct(id, c)
		return err
	})
	return corrected, err
}

// Query returns the periods overlapping r in chronological order.
func (s *Store) Query(r core.Range) []core.EarningsPeriod {
	return s.Snapshot().Query(r)
}

func (s *Store) CorrectionLog() []core.CorrectionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.CorrectionRecord, len(s.corrections))
	copy(out, s.corrections)
	return out
}

func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.periods)
}

// Snapshot returns an immutable view of the committed log.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Snapshot{
		periods: s.periods[:len(s.periods):len(s.periods)],
		index:   s.index,
		version: s.version,
	}
}

// apply must be called with the write lock held. Corrections copy the
// backing array and the index so that outstanding snapshots never observe
// the change.
func (s *Store) apply(tx *Tx) {
	if len(tx.corrected) > 0 {
		periods := make([]core.EarningsPeriod, len(s.periods), len(s.periods)+len(tx.appended))
		copy(periods, s.periods)
		for id, p := range tx.corrected {
			periods[s.index[id]] = p
		}
		s.periods = periods
		s.corrections = append(s.corrections, tx.records...)
	}
	if len(tx.appended) > 0 {
		index := make(map[core.PeriodID]int, len(s.index)+len(tx.appended))
		for id, i := range s.index {
			index[id] = i
		}
		for _, p := range tx.appended {
			index[p.ID] = len(s.periods)
			s.periods = append(s.periods, p)
		}
		s.index = index
	}
}
