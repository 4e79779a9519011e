package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/vendrecon/internal/service"
)

const (
	cliCatalog = "Master_SKU,Master_Name,Product_Family,Type,Cost,Haha_AI_Name\n" +
		"SKU001,Cola,Soda,Beverage,1.00,Cola\n"
	cliExport = "Order number,Product,Payment time,Device number,Sales volume,Amount Received\n" +
		"HA-1,Yasso Frozen Greek Yogurt Bar,2025-01-05 12:00:00,D-77,1,3.25\n" +
		"HA-2,Cola,2025-01-05 12:10:00,D-77,2,5.00\n" +
		"HA-2,Cola,2025-01-05 12:10:00,D-77,2,5.00\n"
)

// The CLI reads HOME and VENDRECON_* env vars, so these tests do not run in parallel.
func TestCLIIngestLedgerReset(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	write := func(name, data string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
		return path
	}
	common := []string{
		"--db", filepath.Join(dir, "data", "vendrecon.db"),
		"--log-level", "error",
	}
	ctx := context.Background()

	var out, errOut bytes.Buffer
	args := append([]string{"ingest", "--json", "--timezone", "UTC",
		"--catalog", write("catalog.csv", cliCatalog),
		"--ledger", filepath.Join(dir, "ledger.parquet"),
	}, common...)
	args = append(args, write("product_sales_details.csv", cliExport))
	require.Equal(t, 0, run(ctx, args, &out, &errOut), errOut.String())

	var sum service.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &sum))
	require.Equal(t, 2, sum.TotalTransactions)
	require.Equal(t, 1, sum.DuplicatesRemoved)
	require.Equal(t, 2, sum.Inserted)
	require.True(t, sum.UnmappedRevenue.Equal(decimal.RequireFromString("3.25")))
	_, err := os.Stat(filepath.Join(dir, "ledger.parquet"))
	require.NoError(t, err)

	out.Reset()
	require.Equal(t, 0, run(ctx, append([]string{"ledger", "--json", "--from", "2025-01-05", "--to", "2025-01-05"}, common...), &out, &errOut), errOut.String())
	var listed struct {
		Rows   []json.RawMessage `json:"rows"`
		Totals struct {
			Rows int
		} `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &listed))
	require.Len(t, listed.Rows, 2)
	require.Equal(t, 2, listed.Totals.Rows)

	out.Reset()
	require.Equal(t, 0, run(ctx, append([]string{"ledger"}, common...), &out, &errOut))
	require.Contains(t, out.String(), "SKU001")

	require.Equal(t, 1, run(ctx, append([]string{"reset"}, common...), &out, &errOut))
	out.Reset()
	require.Equal(t, 0, run(ctx, append([]string{"reset", "--yes"}, common...), &out, &errOut))
	require.Contains(t, out.String(), "cleared")
}

func TestCLIUsage(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	var out, errOut bytes.Buffer
	require.Equal(t, 2, run(context.Background(), nil, &out, &errOut))
	require.Contains(t, errOut.String(), "Usage:")
	require.Equal(t, 2, run(context.Background(), []string{"export"}, &out, &errOut))
	require.Equal(t, 0, run(context.Background(), []string{"help"}, &out, &errOut))
	require.Contains(t, out.String(), "vendrecon ingest")

	errOut.Reset()
	require.Equal(t, 1, run(context.Background(), []string{"ingest", "--system", "vendsoft", "x.csv"}, &out, &errOut))
	require.Contains(t, errOut.String(), "unknown source system")
}
