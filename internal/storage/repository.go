package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"steady/internal/core"
	"steady/internal/log"
	"steady/internal/store"

	_ "modernc.org/sqlite"
)

// SQLiteRepository journals committed store changes to a SQLite database
// and restores them on startup.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var _ store.Journal = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable; used by readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Commit writes a changeset in a single transaction. Appended periods are
// inserted before correction records so that the log references resolve.
func (r *SQLiteRepository) Commit(ctx context.Context, cs store.Changeset) error {
	if cs.Empty() {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	version := int64(cs.Version)

	for _, p := range cs.Appended {
		row, err := periodRow(p, version)
		if err != nil {
			return err
		}
		if err := q.InsertPeriod(ctx, row); err != nil {
			return fmt.Errorf("insert period %s: %w", p.ID, err)
		}
	}

	for _, p := range cs.Corrected {
		row, err := periodRow(p, version)
		if err != nil {
			return err
		}
		n, err := q.UpdatePeriodValues(ctx, row)
		if err != nil {
			return fmt.Errorf("update period %s: %w", p.ID, err)
		}
		if n == 0 {
			return &core.NotFoundError{ID: p.ID}
		}
	}

	for _, c := range cs.Corrections {
		row, err := correctionRow(c, version)
		if err != nil {
			return err
		}
		if err := q.InsertCorrection(ctx, row); err != nil {
			return fmt.Errorf("insert correction for %s: %w", c.PeriodID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.DebugContext(ctx, "Changeset journaled",
		log.FieldComponent, log.ComponentStorage,
		"version", cs.Version,
		"appended", len(cs.Appended),
		"corrections", len(cs.Corrections))
	return nil
}

func (r *SQLiteRepository) ListPeriods(ctx context.Context) ([]core.EarningsPeriod, error) {
	rows, err := r.queries.ListPeriods(ctx)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}

	periods := make([]core.EarningsPeriod, 0, len(rows))
	for _, row := range rows {
		p, err := row.toPeriod()
		if err != nil {
			return nil, fmt.Errorf("decode period %s: %w", row.ID, err)
		}
		periods = append(periods, p)
	}
	return periods, nil
}

func (r *SQLiteRepository) ListCorrections(ctx context.Context) ([]core.CorrectionRecord, error) {
	rows, err := r.queries.ListCorrections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list corrections: %w", err)
	}

	records := make([]core.CorrectionRecord, 0, len(rows))
	for _, row := range rows {
		c, err := row.toRecord()
		if err != nil {
			return nil, fmt.Errorf("decode correction %d: %w", row.ID, err)
		}
		records = append(records, c)
	}
	return records, nil
}

// Restore loads the journaled log into s.
func (r *SQLiteRepository) Restore(ctx context.Context, s *store.Store) error {
	periods, err := r.ListPeriods(ctx)
	if err != nil {
		return err
	}
	corrections, err := r.ListCorrections(ctx)
	if err != nil {
		return err
	}
	if err := s.Load(periods, corrections); err != nil {
		return fmt.Errorf("load store: %w", err)
	}

	slog.InfoContext(ctx, "Store restored from SQLite",
		log.FieldComponent, log.ComponentStorage,
		"periods", len(periods),
		"corrections", len(corrections),
		"version", s.Version())
	return nil
}

func periodRow(p core.EarningsPeriod, version int64) (EarningsPeriodRow, error) {
	cov, err := encodeCovariates(p.Covariates)
	if err != nil {
		return EarningsPeriodRow{}, fmt.Errorf("encode covariates of %s: %w", p.ID, err)
	}
	return EarningsPeriodRow{
		ID:          string(p.ID),
		StartUnix:   p.Start.UnixNano(),
		EndUnix:     p.End.UnixNano(),
		Observed:    p.Observed,
		Gross:       p.Gross.String(),
		HoursActive: p.HoursActive,
		Trips:       int64(p.Trips),
		Covariates:  cov,
		Version:     version,
	}, nil
}

func (row EarningsPeriodRow) toPeriod() (core.EarningsPeriod, error) {
	gross, err := decimal.NewFromString(row.Gross)
	if err != nil {
		return core.EarningsPeriod{}, fmt.Errorf("gross: %w", err)
	}
	var cov core.Covariates
	if err := json.Unmarshal([]byte(row.Covariates), &cov); err != nil {
		return core.EarningsPeriod{}, fmt.Errorf("covariates: %w", err)
	}
	if len(cov) == 0 {
		cov = nil
	}
	return core.EarningsPeriod{
		ID:          core.PeriodID(row.ID),
		Start:       time.Unix(0, row.StartUnix).UTC(),
		End:         time.Unix(0, row.EndUnix).UTC(),
		Observed:    row.Observed,
		Gross:       gross,
		HoursActive: row.HoursActive,
		Trips:       int(row.Trips),
		Covariates:  cov,
	}, nil
}

func correctionRow(c core.CorrectionRecord, version int64) (PeriodCorrectionRow, error) {
	before, err := json.Marshal(c.Before)
	if err != nil {
		return PeriodCorrectionRow{}, fmt.Errorf("encode previous values of %s: %w", c.PeriodID, err)
	}
	after, err := json.Marshal(c.After)
	if err != nil {
		return PeriodCorrectionRow{}, fmt.Errorf("encode corrected values of %s: %w", c.PeriodID, err)
	}
	return PeriodCorrectionRow{
		PeriodID:      string(c.PeriodID),
		Reason:        c.Reason,
		BeforeValues:  string(before),
		AfterValues:   string(after),
		CorrectedUnix: c.At.UnixNano(),
		Version:       version,
	}, nil
}

func (row PeriodCorrectionRow) toRecord() (core.CorrectionRecord, error) {
	rec := core.CorrectionRecord{
		PeriodID: core.PeriodID(row.PeriodID),
		Reason:   row.Reason,
		At:       time.Unix(0, row.CorrectedUnix).UTC(),
	}
	if err := json.Unmarshal([]byte(row.BeforeValues), &rec.Before); err != nil {
		return core.CorrectionRecord{}, fmt.Errorf("previous values: %w", err)
	}
	if err := json.Unmarshal([]byte(row.AfterValues), &rec.After); err != nil {
		return core.CorrectionRecord{}, fmt.Errorf("corrected values: %w", err)
	}
	return rec, nil
}

func encodeCovariates(c core.Covariates) (string, error) {
	if len(c) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
