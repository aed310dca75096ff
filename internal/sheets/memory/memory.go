package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"steady/internal/core"
	"steady/internal/ingest"
	"steady/internal/sheets"
)

var (
	_ sheets.PeriodReader  = (*Store)(nil)
	_ sheets.SummaryWriter = (*Store)(nil)
)

type Store struct {
	mu        sync.Mutex
	periods   []core.EarningsPeriod
	summaries []sheets.SummaryRow
}

func New(periods []core.EarningsPeriod) *Store {
	return &Store{periods: append([]core.EarningsPeriod(nil), periods...)}
}

// NewFromFile seeds the store from a CSV export. A missing file yields an
// empty store.
func NewFromFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(nil), nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	periods, err := ingest.ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return New(periods), nil
}

func (s *Store) ReadPeriods(_ context.Context) ([]core.EarningsPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.EarningsPeriod(nil), s.periods...), nil
}

// Add appends rows to the source, as if a driver had typed them in.
func (s *Store) Add(periods ...core.EarningsPeriod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = append(s.periods, periods...)
}

// AppendSummary stores the row and returns a synthetic row reference.
func (s *Store) AppendSummary(_ context.Context, row sheets.SummaryRow) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, row)
	return fmt.Sprintf("mem:%d", len(s.summaries)), nil
}

func (s *Store) Summaries() []sheets.SummaryRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.SummaryRow(nil), s.summaries...)
}
