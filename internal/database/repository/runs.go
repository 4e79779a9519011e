package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jask/vendrecon/internal/database"
)

// RunRepo records pipeline executions.
type RunRepo struct{ db *sql.DB }

func NewRunRepo(db *sql.DB) *RunRepo { return &RunRepo{db: db} }

// Start inserts a run in the running state.
func (r *RunRepo) Start(ctx context.Context, run ImportRun) error {
	files, err := json.Marshal(run.Files)
	if err != nil {
		return err
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = database.Now()
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO import_runs(id, files, started_at, status)
	VALUES(?, ?, ?, ?)
	`, run.ID, string(files), run.StartedAt.UTC(), RunRunning)
	return err
}

// Finish stores the final counters and status of a run.
func (r *RunRepo) Finish(ctx context.Context, run ImportRun) error {
	finished := database.Now()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	coverage, _ := run.MappingCoverage.Float64()
	res, err := r.db.ExecContext(ctx, `
	UPDATE import_runs SET
	 finished_at = ?, raw_rows = ?, skipped_rows = ?, total_transactions = ?, duplicates_removed = ?,
	 inserted = ?, ignored = ?, mapping_coverage = ?, total_revenue_cents = ?, unmapped_revenue_cents = ?,
	 status = ?, error = ?
	WHERE id = ?
	`, finished, run.RawRows, run.SkippedRows, run.TotalTransactions, run.DuplicatesRemoved,
		run.Inserted, run.Ignored, coverage, toCents(run.TotalRevenue), toCents(run.UnmappedRevenue),
		run.Status, run.Error, run.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("import run %s not found", run.ID)
	}
	return nil
}

const runColumns = `id, files, started_at, finished_at, raw_rows, skipped_rows, total_transactions,
 duplicates_removed, inserted, ignored, mapping_coverage, total_revenue_cents, unmapped_revenue_cents,
 status, error`

// Get returns a run by id, or nil when it does not exist.
func (r *RunRepo) Get(ctx context.Context, id string) (*ImportRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM import_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// List returns the most recent runs first.
func (r *RunRepo) List(ctx context.Context, limit int) ([]ImportRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM import_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ImportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(s scanner) (ImportRun, error) {
	var (
		run               ImportRun
		files             string
		finished          sql.NullTime
		coverage          float64
		revenue, unmapped int64
		errText           sql.NullString
	)
	if err := s.Scan(&run.ID, &files, &run.StartedAt, &finished, &run.RawRows, &run.SkippedRows,
		&run.TotalTransactions, &run.DuplicatesRemoved, &run.Inserted, &run.Ignored, &coverage,
		&revenue, &unmapped, &run.Status, &errText); err != nil {
		return ImportRun{}, err
	}
	if err := json.Unmarshal([]byte(files), &run.Files); err != nil {
		return ImportRun{}, fmt.Errorf("decode run files: %w", err)
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	if errText.Valid {
		msg := errText.String
		run.Error = &msg
	}
	run.MappingCoverage = decimal.NewFromFloat(coverage).Round(1)
	run.TotalRevenue, run.UnmappedRevenue = fromCents(revenue), fromCents(unmapped)
	return run, nil
}
