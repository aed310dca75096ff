package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type EarningsPeriodRow struct {
	ID          string
	StartUnix   int64
	EndUnix     int64
	Observed    bool
	Gross       string
	HoursActive float64
	Trips       int64
	Covariates  string
	Version     int64
}

type PeriodCorrectionRow struct {
	ID            int64
	PeriodID      string
	Reason        string
	BeforeValues  string
	AfterValues   string
	CorrectedUnix int64
	Version       int64
}

const insertPeriod = `
INSERT INTO earnings_periods (id, start_unix_nano, end_unix_nano, observed, gross, hours_active, trips, covariates, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertPeriod(ctx context.Context, arg EarningsPeriodRow) error {
	_, err := q.db.ExecContext(ctx, insertPeriod,
		arg.ID,
		arg.StartUnix,
		arg.EndUnix,
		arg.Observed,
		arg.Gross,
		arg.HoursActive,
		arg.Trips,
		arg.Covariates,
		arg.Version,
	)
	return err
}

const updatePeriodValues = `
UPDATE earnings_periods
SET observed = ?, gross = ?, hours_active = ?, trips = ?, covariates = ?, version = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`

func (q *Queries) UpdatePeriodValues(ctx context.Context, arg EarningsPeriodRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updatePeriodValues,
		arg.Observed,
		arg.Gross,
		arg.HoursActive,
		arg.Trips,
		arg.Covariates,
		arg.Version,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listPeriods = `
SELECT id, start_unix_nano, end_unix_nano, observed, gross, hours_active, trips, covariates, version
FROM earnings_periods
ORDER BY start_unix_nano
`

func (q *Queries) ListPeriods(ctx context.Context) ([]EarningsPeriodRow, error) {
	rows, err := q.db.QueryContext(ctx, listPeriods)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []EarningsPeriodRow
	for rows.Next() {
		var i EarningsPeriodRow
		if err := rows.Scan(
			&i.ID,
			&i.StartUnix,
			&i.EndUnix,
			&i.Observed,
			&i.Gross,
			&i.HoursActive,
			&i.Trips,
			&i.Covariates,
			&i.Version,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertCorrection = `
INSERT INTO period_corrections (period_id, reason, before_values, after_values, corrected_unix_nano, version)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertCorrection(ctx context.Context, arg PeriodCorrectionRow) error {
	_, err := q.db.ExecContext(ctx, insertCorrection,
		arg.PeriodID,
		arg.Reason,
		arg.BeforeValues,
		arg.AfterValues,
		arg.CorrectedUnix,
		arg.Version,
	)
	return err
}

const listCorrections = `
SELECT id, period_id, reason, before_values, after_values, corrected_unix_nano, version
FROM period_corrections
ORDER BY id
`

func (q *Queries) ListCorrections(ctx context.Context) ([]PeriodCorrectionRow, error) {
	rows, err := q.db.QueryContext(ctx, listCorrections)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PeriodCorrectionRow
	for rows.Next() {
		var i PeriodCorrectionRow
		if err := rows.Scan(
			&i.ID,
			&i.PeriodID,
			&i.Reason,
			&i.BeforeValues,
			&i.AfterValues,
			&i.CorrectedUnix,
			&i.Version,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countPeriods = `SELECT COUNT(*) FROM earnings_periods`

func (q *Queries) CountPeriods(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countPeriods)
	var count int64
	err := row.Scan(&count)
	return count, err
}
