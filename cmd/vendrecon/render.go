package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jask/vendrecon/internal/database/repository"
	"github.com/jask/vendrecon/internal/service"
)

const maxListed = 10

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func kv(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

func renderSummary(sum service.Summary) string {
	coverage := sum.MappingCoverage.InexactFloat64()
	lines := []string{
		titleStyle.Render("Ingest " + sum.RunID),
		"",
		kv("Raw rows", strconv.Itoa(sum.RawRows)),
		kv("Skipped rows", strconv.Itoa(sum.SkippedRows)),
		kv("Zero-value dropped", strconv.Itoa(sum.ZeroValueDropped)),
		kv("Transactions", strconv.Itoa(sum.TotalTransactions)),
		kv("Duplicates removed", strconv.Itoa(sum.DuplicatesRemoved)),
		kv("Tiers", fmt.Sprintf("%d direct / %d family / %d unmapped", sum.Direct, sum.Family, sum.UnmappedRows)),
		kv("Revenue", "$"+sum.TotalRevenue.StringFixed(2)),
		kv("Profit", "$"+sum.TotalProfit.StringFixed(2)),
		lipgloss.JoinHorizontal(lipgloss.Top,
			labelStyle.Render("Mapping coverage"),
			coverageStyle(coverage).Render(sum.MappingCoverage.StringFixed(1)+"%")),
		kv("Unmapped revenue", "$"+sum.UnmappedRevenue.StringFixed(2)),
	}
	if sum.BatchesTotal > 0 {
		store := fmt.Sprintf("%d inserted, %d already present (%d/%d batches)",
			sum.Inserted, sum.Ignored, sum.BatchesCommitted, sum.BatchesTotal)
		if sum.Partial {
			store = errStyle.Render("partial: ") + store
		}
		lines = append(lines, kv("Store", store))
	}
	if sum.LedgerPath != "" {
		lines = append(lines, kv("Ledger", sum.LedgerPath))
	}

	blocks := []string{sectionStyle.Render(strings.Join(lines, "\n"))}

	if len(sum.Files) > 0 {
		rows := []string{headerStyle.Render("Files")}
		for _, f := range sum.Files {
			if f.Lookup {
				rows = append(rows, fmt.Sprintf("%s %s  %d rows, %s",
					accentStyle.Render(string(f.System)), f.Name, f.Rows, mutedStyle.Render("prices order details")))
				continue
			}
			rows = append(rows, fmt.Sprintf("%s %s  %d rows, %d transactions, %d skipped",
				accentStyle.Render(string(f.System)), f.Name, f.Rows, f.Transactions, f.Skipped))
		}
		blocks = append(blocks, sectionStyle.Render(strings.Join(rows, "\n")))
	}

	if len(sum.Unmapped) > 0 {
		rows := []string{headerStyle.Render("Top unmapped products")}
		for i, p := range sum.Unmapped {
			if i == maxListed {
				rows = append(rows, mutedStyle.Render(fmt.Sprintf("… %d more", len(sum.Unmapped)-maxListed)))
				break
			}
			line := fmt.Sprintf("$%s  %s  (%d tx, %s)", p.Revenue.StringFixed(2), p.ProductName, p.TransactionCount, p.Source)
			if p.Suggestion != "" {
				line += mutedStyle.Render("  did you mean " + p.Suggestion + "?")
			}
			rows = append(rows, line)
		}
		blocks = append(blocks, sectionStyle.Render(strings.Join(rows, "\n")))
	}

	var notes []string
	if len(sum.UnmappedLocations) > 0 {
		notes = append(notes, warnStyle.Render("Locations without alias: ")+strings.Join(sum.UnmappedLocations, ", "))
	}
	for _, c := range sum.CatalogCollisions {
		notes = append(notes, warnStyle.Render("catalog: ")+c)
	}
	for i, w := range sum.Warnings {
		if i == maxListed {
			notes = append(notes, mutedStyle.Render(fmt.Sprintf("… %d more warnings", len(sum.Warnings)-maxListed)))
			break
		}
		notes = append(notes, warnStyle.Render("warning: ")+w)
	}
	if len(notes) > 0 {
		blocks = append(blocks, strings.Join(notes, "\n"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}

func renderLedger(entries []repository.LedgerEntry, totals repository.LedgerTotals) string {
	widths := []int{10, 20, 10, 28, 8, 8, 8, 8}
	cell := func(i int, s string) string {
		w := widths[i]
		if len([]rune(s)) > w {
			s = string([]rune(s)[:w-1]) + "…"
		}
		return lipgloss.NewStyle().Width(w).MarginRight(1).Render(s)
	}
	row := func(vals ...string) string {
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = cell(i, v)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}

	lines := []string{headerStyle.Render(row("Date", "Location", "SKU", "Name", "Revenue", "Profit", "Margin", "Tier"))}
	for _, e := range entries {
		lines = append(lines, row(e.Date, e.Location, e.SKU, e.Name,
			e.Revenue.StringFixed(2), e.Profit.StringFixed(2), e.Margin.StringFixed(1), string(e.Tier)))
	}
	footer := []string{
		kv("Rows", strconv.Itoa(totals.Rows)),
		kv("Revenue", "$"+totals.Revenue.StringFixed(2)),
		kv("Profit", "$"+totals.Profit.StringFixed(2)),
		kv("Mapping coverage", totals.Coverage().StringFixed(1)+"%"),
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		strings.Join(lines, "\n"),
		sectionStyle.Render(strings.Join(footer, "\n")),
	)
}
