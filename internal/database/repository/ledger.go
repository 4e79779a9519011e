package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/vendrecon/internal/catalog"
	"github.com/jask/vendrecon/internal/database"
	"github.com/jask/vendrecon/internal/reconcile"
	"github.com/jask/vendrecon/internal/source"
)

const ledgerColumns = `dedup_key, run_id, date, occurred_at, location, master_sku, master_name, product_family,
 type, revenue_cents, cost_cents, quantity, profit_cents, gross_margin_percent, mapping_tier,
 source_system, raw_product_name, raw_location, raw_machine, transaction_id, payment_method, created_at`

// LedgerRepo stores reconciled records keyed by dedup key.
type LedgerRepo struct {
	db     *sql.DB
	driver string
}

func NewLedgerRepo(db *sql.DB, driver string) *LedgerRepo {
	return &LedgerRepo{db: db, driver: driver}
}

// UpsertBatch inserts records in one transaction. Records whose dedup key already exists are
// ignored, which makes re-ingesting an export a no-op.
func (r *LedgerRepo) UpsertBatch(ctx context.Context, runID string, records []reconcile.Record) (inserted, ignored int, err error) {
	verb := "INSERT OR IGNORE"
	if r.driver == database.DriverMySQL {
		verb = "INSERT IGNORE"
	}
	query := verb + ` INTO ledger(` + ledgerColumns + `)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err = database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		now := database.Now()
		for _, rec := range records {
			if rec.DedupKey == "" {
				return fmt.Errorf("record %s/%s has no dedup key", rec.System, rec.TransactionID)
			}
			margin, _ := rec.Margin.Float64()
			res, err := stmt.ExecContext(ctx,
				rec.DedupKey, runID, rec.Date, rec.Timestamp.UTC(), rec.Location, rec.SKU, rec.Name,
				rec.Family, rec.Type, toCents(rec.Revenue), toCents(rec.Cost), rec.Quantity,
				toCents(rec.Profit), margin, string(rec.Tier), string(rec.System), rec.RawProductName,
				rec.RawLocation, rec.RawMachine, rec.TransactionID, rec.PaymentMethod, now)
			if err != nil {
				return fmt.Errorf("insert %s: %w", rec.DedupKey, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n > 0 {
				inserted++
			} else {
				ignored++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, ignored, nil
}

func (f LedgerFilter) where() (string, []interface{}) {
	var where []string
	var args []interface{}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From.Format(time.DateOnly))
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.To.Format(time.DateOnly))
	}
	if len(f.Locations) > 0 {
		where = append(where, "location IN ("+strings.TrimSuffix(strings.Repeat("?,", len(f.Locations)), ",")+")")
		for _, l := range f.Locations {
			args = append(args, l)
		}
	}
	if f.Tier != "" {
		where = append(where, "mapping_tier = ?")
		args = append(args, f.Tier)
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// List returns ledger rows in time order.
func (r *LedgerRepo) List(ctx context.Context, f LedgerFilter) ([]LedgerEntry, error) {
	where, args := f.where()
	query := "SELECT " + ledgerColumns + " FROM ledger" + where + " ORDER BY occurred_at ASC, dedup_key ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Totals sums revenue and profit over the rows matching f.
func (r *LedgerRepo) Totals(ctx context.Context, f LedgerFilter) (LedgerTotals, error) {
	where, args := f.where()
	row := r.db.QueryRowContext(ctx, `
	SELECT COUNT(*),
	 COALESCE(SUM(revenue_cents), 0),
	 COALESCE(SUM(CASE WHEN mapping_tier = 'unmapped' THEN revenue_cents ELSE 0 END), 0),
	 COALESCE(SUM(profit_cents), 0)
	FROM ledger`+where, args...)
	var (
		t                         LedgerTotals
		revenue, unmapped, profit int64
	)
	if err := row.Scan(&t.Rows, &revenue, &unmapped, &profit); err != nil {
		return LedgerTotals{}, err
	}
	t.Revenue, t.UnmappedRevenue, t.Profit = fromCents(revenue), fromCents(unmapped), fromCents(profit)
	return t, nil
}

// Count returns the number of stored rows.
func (r *LedgerRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger`).Scan(&n)
	return n, err
}

// Locations lists the distinct canonical locations.
func (r *LedgerRepo) Locations(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT location FROM ledger ORDER BY location`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLedgerEntry(s scanner) (LedgerEntry, error) {
	var (
		e                     LedgerEntry
		revenue, cost, profit int64
		margin                float64
		tier, system          string
	)
	if err := s.Scan(&e.DedupKey, &e.RunID, &e.Date, &e.Timestamp, &e.Location, &e.SKU, &e.Name,
		&e.Family, &e.Type, &revenue, &cost, &e.Quantity, &profit, &margin, &tier, &system,
		&e.RawProductName, &e.RawLocation, &e.RawMachine, &e.TransactionID, &e.PaymentMethod,
		&e.CreatedAt); err != nil {
		return LedgerEntry{}, err
	}
	e.Revenue, e.Cost, e.Profit = fromCents(revenue), fromCents(cost), fromCents(profit)
	e.Margin = decimal.NewFromFloat(margin).Round(1)
	e.Tier = catalog.Tier(tier)
	e.System = source.System(system)
	return e, nil
}
