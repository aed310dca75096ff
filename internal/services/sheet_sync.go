package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"steady/internal/core"
	"steady/internal/ingest"
	"steady/internal/sheets"
)

// SheetSyncConfig holds configuration for the sheet sync processor
type SheetSyncConfig struct {
	// PollInterval is how often the sheet is read (default: 15m)
	PollInterval time.Duration

	// BatchSize is the max number of periods committed per append (default: 200)
	BatchSize int
}

func DefaultSheetSyncConfig() SheetSyncConfig {
	return SheetSyncConfig{
		PollInterval: 15 * time.Minute,
		BatchSize:    200,
	}
}

// SyncResult summarizes one pass over the sheet.
type SyncResult struct {
	Read     int
	Appended int
	Skipped  int
}

// SheetSyncProcessor imports new rows of an earnings sheet into the ledger.
// Rows that end at or before the latest stored period are treated as
// already imported.
type SheetSyncProcessor struct {
	ledger *Ledger
	reader sheets.PeriodReader
	config SheetSyncConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSheetSyncProcessor(ledger *Ledger, reader sheets.PeriodReader, config SheetSyncConfig) *SheetSyncProcessor {
	if config.BatchSize < 1 {
		config.BatchSize = DefaultSheetSyncConfig().BatchSize
	}
	return &SheetSyncProcessor{
		ledger: ledger,
		reader: reader,
		config: config,
	}
}

// Start begins the polling loop. Returns an error if already running.
func (p *SheetSyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sheet sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sheet sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for the current pass to finish.
func (p *SheetSyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sheet sync processor stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sheet sync processor stop timed out")
		return ctx.Err()
	}
}

func (p *SheetSyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SheetSyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.syncLogged(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.syncLogged(ctx)
		}
	}
}

func (p *SheetSyncProcessor) syncLogged(ctx context.Context) {
	res, err := p.SyncOnce(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Sheet sync failed", "error", err, "appended", res.Appended)
		return
	}
	if res.Appended > 0 {
		slog.InfoContext(ctx, "Sheet sync imported periods",
			"read", res.Read,
			"appended", res.Appended,
			"skipped", res.Skipped)
	}
}

// SyncOnce reads the sheet and appends the rows newer than the store.
func (p *SheetSyncProcessor) SyncOnce(ctx context.Context) (SyncResult, error) {
	periods, err := p.reader.ReadPeriods(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("read sheet: %w", err)
	}
	ingest.SortByStart(periods)

	fresh := periods
	if last, ok := p.ledger.Store().Snapshot().Latest(); ok {
		fresh = newerThan(periods, last)
	}
	res := SyncResult{Read: len(periods), Skipped: len(periods) - len(fresh)}

	for start := 0; start < len(fresh); start += p.config.BatchSize {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}
		end := min(start+p.config.BatchSize, len(fresh))
		stored, err := p.ledger.Append(ctx, fresh[start:end])
		if err != nil {
			return res, fmt.Errorf("append rows %d-%d: %w", start, end-1, err)
		}
		res.Appended += len(stored)
	}
	return res, nil
}

// newerThan returns the tail of sorted periods that starts at or after the
// end of last.
func newerThan(periods []core.EarningsPeriod, last core.EarningsPeriod) []core.EarningsPeriod {
	for i, p := range periods {
		if !p.Start.Before(last.End) {
			return periods[i:]
		}
	}
	return nil
}
