package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/vendrecon/internal/catalog"
	"github.com/jask/vendrecon/internal/database"
	"github.com/jask/vendrecon/internal/database/repository"
	"github.com/jask/vendrecon/internal/source"
	"github.com/jask/vendrecon/internal/testdata"
)

func TestPipelineGeneratedScenario(t *testing.T) {
	t.Parallel()

	ex, err := testdata.Generate(testdata.Scenario{
		Seed:          7,
		Rows:          400,
		Duplicates:    12,
		UnmappedEvery: 25,
		ZeroEvery:     40,
	})
	require.NoError(t, err)

	entries, warnings, err := catalogFrom(t, ex.Catalog)
	require.NoError(t, err)
	require.Empty(t, warnings)

	ctx := context.Background()
	db := setupDB(t)
	store := repository.NewLedgerRepo(db, database.DriverSQLite)
	p := &Pipeline{
		Catalog:   entries,
		Store:     store,
		BatchSize: 64,
		SourceOptions: func(source.System) source.Options {
			return source.Options{Location: time.UTC}
		},
	}
	req := Request{Inputs: []Input{
		{Name: "usat_transaction_log.xlsx", Data: ex.Cantaloupe},
		{Name: "DynamicTransactionsMonitorMega.csv", Data: ex.Nayax},
		{Name: "Product Sales Details.csv", Data: ex.Haha},
	}}

	sum, err := p.Run(ctx, req)
	require.NoError(t, err)
	want := ex.Want
	require.Equal(t, want.RawRows, sum.RawRows)
	require.Zero(t, sum.SkippedRows)
	require.Equal(t, want.ZeroValueDropped, sum.ZeroValueDropped)
	require.Equal(t, want.DuplicatesRemoved, sum.DuplicatesRemoved)
	require.Equal(t, want.Transactions, sum.TotalTransactions)
	require.Equal(t, want.UnmappedRows, sum.UnmappedRows)
	require.True(t, want.Revenue.Equal(sum.TotalRevenue), "%s != %s", want.Revenue, sum.TotalRevenue)
	require.True(t, want.UnmappedRevenue.Equal(sum.UnmappedRevenue))
	require.Len(t, sum.Unmapped, 1)
	require.Equal(t, testdata.UnmappedProduct, sum.Unmapped[0].ProductName)
	require.Equal(t, want.UnmappedRows, sum.Unmapped[0].TransactionCount)
	require.Equal(t, (want.Transactions+63)/64, sum.BatchesCommitted)
	require.Equal(t, want.Transactions, sum.Inserted)

	again, err := p.Run(ctx, req)
	require.NoError(t, err)
	require.Zero(t, again.Inserted)
	require.Equal(t, want.Transactions, again.Ignored)
}

func catalogFrom(t *testing.T, data []byte) ([]catalog.Entry, []string, error) {
	t.Helper()
	path := writeTemp(t, "catalog.csv", data)
	entries, warnings, err := catalog.Load(path)
	msgs := make([]string, 0, len(warnings))
	for _, w := range warnings {
		msgs = append(msgs, w.Message)
	}
	return entries, msgs, err
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}
