package ledger

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/jask/vendrecon/internal/reconcile"
)

// WriteCSV writes a header row and one row per record. Fields containing the delimiter,
// quotes or newlines are quoted.
func WriteCSV(w io.Writer, records []reconcile.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(Values(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// UnmappedColumns is the header of the unmapped products report.
var UnmappedColumns = []string{"productName", "sourceIdentifier", "revenue", "revenueShare", "transactionCount", "firstSeen", "lastSeen", "suggestion"}

// WriteUnmapped writes the unmapped products report as CSV, replacing any previous report.
func WriteUnmapped(path string, report []reconcile.UnmappedProduct) error {
	return writeAtomic(path, func(f *os.File) error {
		cw := csv.NewWriter(f)
		if err := cw.Write(UnmappedColumns); err != nil {
			return err
		}
		for _, p := range report {
			row := []string{
				p.ProductName,
				p.Source,
				p.Revenue.StringFixed(2),
				p.RevenueShare.StringFixed(1),
				strconv.Itoa(p.TransactionCount),
				p.FirstSeen.Format("2006-01-02"),
				p.LastSeen.Format("2006-01-02"),
				p.Suggestion,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}
