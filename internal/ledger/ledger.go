// Package ledger serializes reconciled records to files with a fixed, versioned column order.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jask/vendrecon/internal/reconcile"
)

// SchemaVersion changes whenever Columns changes.
const SchemaVersion = 1

// Columns is the ledger column order.
var Columns = []string{
	"date",
	"location",
	"masterSKU",
	"masterName",
	"productFamily",
	"type",
	"revenue",
	"cost",
	"quantity",
	"profit",
	"grossMarginPercent",
	"mappingTier",
}

// Format is a ledger file encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatXLSX    Format = "xlsx"
)

// ParseFormat accepts a format name; empty means csv.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatParquet:
		return FormatParquet, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unknown ledger format %q", s)
}

// FormatFor picks the format from a file extension, defaulting to csv.
func FormatFor(path string) Format {
	f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return FormatCSV
	}
	return f
}

// Values renders r in Columns order.
func Values(r reconcile.Record) []string {
	return []string{
		r.Date,
		r.Location,
		r.SKU,
		r.Name,
		r.Family,
		r.Type,
		r.Revenue.StringFixed(2),
		r.Cost.StringFixed(2),
		strconv.Itoa(r.Quantity),
		r.Profit.StringFixed(2),
		r.Margin.StringFixed(1),
		string(r.Tier),
	}
}

// WriteFile replaces the ledger at path with records. The file is written beside the
// destination and renamed into place, so readers see either the old or the new ledger.
func WriteFile(path string, format Format, records []reconcile.Record) error {
	switch format {
	case FormatCSV:
		return writeAtomic(path, func(f *os.File) error { return WriteCSV(f, records) })
	case FormatParquet:
		return writeAtomic(path, func(f *os.File) error { return writeParquet(f, records) })
	case FormatXLSX:
		return writeAtomic(path, func(f *os.File) error { return writeXLSX(f, records) })
	}
	return fmt.Errorf("unknown ledger format %q", format)
}

func writeAtomic(path string, write func(f *os.File) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = write(tmp); err != nil {
		return fmt.Errorf("write ledger %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
