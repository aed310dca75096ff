// Package services holds the write-side orchestration around the record
// store: validation, journaling, metrics and change notification.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"steady/internal/core"
	"steady/internal/ingest"
	"steady/internal/log"
	"steady/internal/metrics"
	"steady/internal/store"
)

// Notifier announces committed changesets. Notification failures never
// fail a write.
type Notifier interface {
	NotifyChange(ctx context.Context, cs store.Changeset) error
}

// Closer is anything the ledger owns and must release on shutdown.
type Closer interface {
	Close() error
}

// Ledger orchestrates writes to the record store.
type Ledger struct {
	store    *store.Store
	notifier Notifier
	logger   *log.StructuredLogger
	closers  []Closer
}

type LedgerOption func(*Ledger)

func WithNotifier(n Notifier) LedgerOption {
	return func(l *Ledger) { l.notifier = n }
}

func WithLogger(logger *log.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = log.NewStructuredLogger(logger) }
}

// WithCloser registers a resource released by Close, in registration order.
func WithCloser(c Closer) LedgerOption {
	return func(l *Ledger) {
		if c != nil {
			l.closers = append(l.closers, c)
		}
	}
}

func NewLedger(s *store.Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:  s,
		logger: log.NewStructuredLogger(log.New(log.DefaultConfig()).WithComponent(log.ComponentLedger)),
	}
	for _, opt := range opts {
		opt(l)
	}
	metrics.StoreVersion.Set(float64(s.Version()))
	return l
}

// Append validates and stores a batch atomically. Periods are sorted by
// start time first, so callers may submit them in any order.
func (l *Ledger) Append(ctx context.Context, periods []core.EarningsPeriod) ([]core.EarningsPeriod, error) {
	batch := make([]core.EarningsPeriod, len(periods))
	copy(batch, periods)
	ingest.SortByStart(batch)

	if err := ingest.Validate(batch); err != nil {
		l.rejected(ctx, "Rejected earnings batch", err, log.OpValidate)
		return nil, err
	}

	stored, err := l.store.AppendBatch(ctx, batch)
	if err != nil {
		l.rejected(ctx, "Failed to append earnings batch", err, log.OpAppend)
		return nil, fmt.Errorf("append periods: %w", err)
	}

	version := l.store.Version()
	metrics.PeriodsAppended.Add(float64(len(stored)))
	metrics.StoreVersion.Set(float64(version))
	l.logger.LogPeriodsAppended(ctx, stored, version)

	l.notify(ctx, store.Changeset{Appended: stored, Version: version})
	return stored, nil
}

// Correct replaces the values of a stored period.
func (l *Ledger) Correct(ctx context.Context, id core.PeriodID, c core.Correction) (core.EarningsPeriod, error) {
	var corrected core.EarningsPeriod
	cs, err := l.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		corrected, err = tx.Correct(id, c)
		return err
	})
	if err != nil {
		l.rejected(ctx, "Failed to correct earnings period", err, log.OpCorrect)
		return core.EarningsPeriod{}, fmt.Errorf("correct period %s: %w", id, err)
	}

	metrics.CorrectionsApplied.Add(float64(len(cs.Corrections)))
	metrics.StoreVersion.Set(float64(cs.Version))
	for _, rec := range cs.Corrections {
		l.logger.LogCorrection(ctx, rec, cs.Version)
	}

	l.notify(ctx, cs)
	return corrected, nil
}

func (l *Ledger) Store() *store.Store { return l.store }

func (l *Ledger) rejected(ctx context.Context, msg string, err error, op string) {
	metrics.WritesRejected.WithLabelValues(core.ErrorKind(err)).Inc()
	l.logger.LogError(ctx, msg, err, log.ComponentLedger, op, nil)
}

func (l *Ledger) notify(ctx context.Context, cs store.Changeset) {
	if l.notifier == nil || cs.Empty() {
		return
	}
	if err := l.notifier.NotifyChange(ctx, cs); err != nil {
		slog.WarnContext(ctx, "Failed to publish change notification",
			"version", cs.Version,
			"error", err)
	}
}

// Close releases every registered resource and reports all failures.
func (l *Ledger) Close() error {
	var errs []error
	for _, c := range l.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close ledger: %w", errors.Join(errs...))
	}
	return nil
}
