package location

import (
	"fmt"
	"os"

	"github.com/jask/vendrecon/internal/tabular"
)

// LoadAliases reads a raw_name,display_name table from CSV or XLSX. A missing file is
// reported with an error wrapping fs.ErrNotExist so callers can downgrade it to a warning.
func LoadAliases(path string) ([]Alias, []tabular.Warning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open location aliases: %w", err)
	}
	defer f.Close()

	rows, err := tabular.Open(f, tabular.Config{
		Format:    tabular.FormatFor(path),
		Delimiter: tabular.DelimiterFor(path),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("read location aliases %s: %w", path, err)
	}
	defer rows.Close()

	var (
		out      []Alias
		warnings []tabular.Warning
	)
	for rows.Next() {
		row := rows.Row()
		a := Alias{Raw: row.Get("raw_name"), Display: row.Get("display_name")}
		if a.Raw == "" && a.Display == "" {
			// Older tables use the header names without underscores.
			a = Alias{Raw: row.Get("raw name"), Display: row.Get("display name")}
		}
		if a.Raw == "" || a.Display == "" {
			warnings = append(warnings, tabular.Warning{Line: row.Line, Message: "alias row missing raw or display name"})
			continue
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read location aliases %s: %w", path, err)
	}
	return out, append(rows.Warnings(), warnings...), nil
}
