// Package ingest turns external earnings records into periods the store
// accepts: it parses CSV exports and pre-validates batches so that
// malformed input is rejected before it reaches the store.
package ingest

import (
	"fmt"
	"slices"

	"steady/internal/core"
)

// Validate checks a batch the way the store would, without touching it:
// every period must be valid on its own, and the batch must be in
// chronological order with no period overlapping its predecessor.
func Validate(periods []core.EarningsPeriod) error {
	if len(periods) == 0 {
		return &core.ValidationError{Field: "periods", Constraint: "batch must not be empty"}
	}
	for i, p := range periods {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("period %d: %w", i, err)
		}
		if i == 0 {
			continue
		}
		prev := periods[i-1]
		if p.Range().Overlaps(prev.Range()) {
			return fmt.Errorf("period %d: %w", i, &core.OverlapError{Incoming: p.Range(), Existing: prev.ID, Against: prev.Range()})
		}
		if p.Start.Before(prev.End) {
			return fmt.Errorf("period %d: %w", i, &core.OrderingError{Incoming: p.Start, LastEnd: prev.End})
		}
	}
	return nil
}

// SortByStart orders periods chronologically in place.
func SortByStart(periods []core.EarningsPeriod) {
	slices.SortStableFunc(periods, func(a, b core.EarningsPeriod) int {
		return a.Start.Compare(b.Start)
	})
}
