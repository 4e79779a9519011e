package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/jask/vendrecon/internal/source"
	"github.com/jask/vendrecon/internal/tabular"
)

// Load reads the catalog from a CSV or XLSX file. Rows failing validation are skipped with
// a warning. A missing file returns an error wrapping fs.ErrNotExist.
func Load(path string) ([]Entry, []tabular.Warning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	rows, err := tabular.Open(f, tabular.Config{
		Format:    tabular.FormatFor(path),
		Delimiter: tabular.DelimiterFor(path),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	defer rows.Close()

	var (
		entries  []Entry
		warnings []tabular.Warning
	)
	for rows.Next() {
		row := rows.Row()
		e, err := entryFromRow(row)
		if err != nil {
			warnings = append(warnings, tabular.Warning{Line: row.Line, Message: err.Error()})
			continue
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return entries, append(rows.Warnings(), warnings...), nil
}

func entryFromRow(row tabular.Row) (Entry, error) {
	e := Entry{
		SKU:     strings.TrimSpace(column(row, "Master_SKU", "SKU")),
		Name:    strings.TrimSpace(column(row, "Master_Name", "Name")),
		Family:  strings.TrimSpace(column(row, "Product_Family", "Family")),
		Type:    strings.TrimSpace(column(row, "Type", "Category")),
		Aliases: make(map[source.System]string),
	}
	if e.SKU == "" && e.Name == "" {
		return Entry{}, errors.New("catalog row has no SKU or name")
	}
	if e.Name == "" {
		e.Name = e.SKU
	}
	if raw := strings.TrimSpace(column(row, "Cost", "Unit_Cost")); raw != "" {
		cost, err := source.ParseAmount(raw)
		if err != nil {
			return Entry{}, fmt.Errorf("catalog %s: cost %q: %w", e.SKU, raw, err)
		}
		// Ledger money is kept in cents; profit must be computed from the stored cost.
		e.Cost, e.HasCost = cost.Round(2), true
	} else {
		e.Cost = decimal.Zero
	}
	for _, sys := range source.Systems() {
		if alias := strings.TrimSpace(column(row, sys.Label()+"_Name")); alias != "" {
			e.Aliases[sys] = alias
		}
	}
	if err := e.Validate(); err != nil {
		return Entry{}, fmt.Errorf("catalog %s: %s", e.SKU, describe(err))
	}
	return e, nil
}

// column returns the first non-empty value among the candidate header names. Underscores
// and spaces are interchangeable.
func column(row tabular.Row, names ...string) string {
	for _, name := range names {
		for _, n := range []string{name, strings.ReplaceAll(name, "_", " ")} {
			if v := row.Get(n); v != "" {
				return v
			}
		}
	}
	return ""
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, ve := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", ve.Field(), ve.Tag()))
	}
	return strings.Join(parts, ", ")
}
