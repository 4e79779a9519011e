package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/vendrecon/internal/catalog"
	"github.com/jask/vendrecon/internal/database"
	"github.com/jask/vendrecon/internal/reconcile"
	"github.com/jask/vendrecon/internal/source"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := database.SQLiteDSN(filepath.Join(t.TempDir(), "test.db"))
	version, err := database.RunMigrations(database.DriverSQLite, dsn)
	require.NoError(t, err)
	require.EqualValues(t, 2, version)

	db, err := database.Open(database.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ledgerRecord(key, date, loc string, revenue string, tier catalog.Tier) reconcile.Record {
	ts, _ := time.Parse(time.DateOnly, date)
	rev := dec(revenue)
	cost := dec("1.00")
	if tier == catalog.TierUnmapped {
		cost = decimal.Zero
	}
	profit, margin := reconcile.Margin(rev, cost, 1)
	return reconcile.Record{
		Date: date, Timestamp: ts.Add(9 * time.Hour), Location: loc, SKU: "SKU001", Name: "Cola",
		Type: "Beverage", Revenue: rev, Cost: cost, Quantity: 1, Profit: profit, Margin: margin,
		Tier: tier, System: source.Nayax, RawProductName: "Coke", DedupKey: key,
	}
}

func TestLedgerUpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewLedgerRepo(setupDB(t), database.DriverSQLite)
	batch := []reconcile.Record{
		ledgerRecord("k1", "2025-01-05", "The Met", "4.50", catalog.TierDirect),
		ledgerRecord("k2", "2025-01-06", "West Bank", "2.00", catalog.TierDirect),
		ledgerRecord("k3", "2025-01-07", "The Met", "9.75", catalog.TierUnmapped),
	}

	inserted, ignored, err := repo.UpsertBatch(ctx, "run-1", batch)
	require.NoError(t, err)
	require.Equal(t, 3, inserted)
	require.Equal(t, 0, ignored)

	inserted, ignored, err = repo.UpsertBatch(ctx, "run-2", batch)
	require.NoError(t, err)
	require.Equal(t, 0, inserted)
	require.Equal(t, 3, ignored)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	totals, err := repo.Totals(ctx, LedgerFilter{})
	require.NoError(t, err)
	require.Equal(t, 3, totals.Rows)
	require.True(t, totals.Revenue.Equal(dec("16.25")))
	require.True(t, totals.UnmappedRevenue.Equal(dec("9.75")))
	require.True(t, totals.Coverage().Equal(dec("40")), totals.Coverage().String())
}

func TestLedgerUpsertRejectsMissingKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewLedgerRepo(setupDB(t), database.DriverSQLite)
	good := ledgerRecord("k1", "2025-01-05", "The Met", "4.50", catalog.TierDirect)
	bad := ledgerRecord("", "2025-01-05", "The Met", "1.00", catalog.TierDirect)

	_, _, err := repo.UpsertBatch(ctx, "run-1", []reconcile.Record{good, bad})
	require.Error(t, err)
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "failed batch is rolled back")
}

func TestLedgerListFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewLedgerRepo(setupDB(t), database.DriverSQLite)
	_, _, err := repo.UpsertBatch(ctx, "run-1", []reconcile.Record{
		ledgerRecord("k1", "2025-01-05", "The Met", "4.50", catalog.TierDirect),
		ledgerRecord("k2", "2025-01-06", "West Bank", "2.00", catalog.TierDirect),
		ledgerRecord("k3", "2025-01-07", "The Met", "9.75", catalog.TierUnmapped),
		ledgerRecord("k4", "2025-02-01", "Depot", "1.25", catalog.TierFamily),
	})
	require.NoError(t, err)

	from := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	got, err := repo.List(ctx, LedgerFilter{From: from, To: to})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "k2", got[0].DedupKey)
	require.Equal(t, "run-1", got[0].RunID)
	require.True(t, got[0].Revenue.Equal(dec("2.00")))
	require.True(t, got[0].Margin.Equal(dec("50")))
	require.Equal(t, source.Nayax, got[0].System)
	require.True(t, got[0].Timestamp.Equal(time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)))

	got, err = repo.List(ctx, LedgerFilter{Locations: []string{"The Met", "Depot"}})
	require.NoError(t, err)
	require.Len(t, got, 3)

	got, err = repo.List(ctx, LedgerFilter{Tier: string(catalog.TierUnmapped)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, catalog.TierUnmapped, got[0].Tier)
	require.Equal(t, "SKU001", got[0].SKU)

	got, err = repo.List(ctx, LedgerFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)

	locations, err := repo.Locations(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Depot", "The Met", "West Bank"}, locations)

	totals, err := repo.Totals(ctx, LedgerFilter{Locations: []string{"The Met"}})
	require.NoError(t, err)
	require.Equal(t, 2, totals.Rows)
	require.True(t, totals.Revenue.Equal(dec("14.25")))
}

func TestRunRepo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRunRepo(setupDB(t))
	started := time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Start(ctx, ImportRun{ID: "run-1", Files: []string{"a.csv", "b.xlsx"}, StartedAt: started}))

	run, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	require.Equal(t, RunRunning, run.Status)
	require.Nil(t, run.FinishedAt)
	require.Equal(t, []string{"a.csv", "b.xlsx"}, run.Files)

	msg := "batch 3: disk full"
	require.NoError(t, repo.Finish(ctx, ImportRun{
		ID: "run-1", RawRows: 10, SkippedRows: 1, TotalTransactions: 8, DuplicatesRemoved: 1,
		Inserted: 5, Ignored: 0, MappingCoverage: dec("99.9"), TotalRevenue: dec("20.50"),
		UnmappedRevenue: dec("0.02"), Status: RunPartial, Error: &msg,
	}))
	run, err = repo.Get(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, RunPartial, run.Status)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, msg, *run.Error)
	require.True(t, run.MappingCoverage.Equal(dec("99.9")))
	require.True(t, run.TotalRevenue.Equal(dec("20.50")))
	require.Equal(t, 5, run.Inserted)

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
	require.Error(t, repo.Finish(ctx, ImportRun{ID: "nope", Status: RunFailed}))

	runs, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}
