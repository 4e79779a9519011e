// Package testdata generates synthetic provider exports with known totals for scale tests.
package testdata

import (
	"bytes"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// UnmappedProduct is the product name generated exports use for rows with no catalog entry.
const UnmappedProduct = "Yasso Frozen Greek Yogurt Bar"

type product struct {
	SKU, Name, Family, Type string
	Cost, Price             string
	Cantaloupe, Nayax, Haha string
}

var products = []product{
	{"SKU001", "Cola", "Soda", "Beverage", "1.00", "2.25", "Coca Cola 16.9oz", "Coke", "Cola"},
	{"SKU002", "Diet Cola", "Soda", "Beverage", "1.00", "2.25", "Diet Coke 16.9oz", "Diet Coke", "Diet Cola"},
	{"SKU003", "Trail Mix", "Variety Pack", "Snack", "0.80", "3.00", "Trail Mix 2oz", "Trail Mix", "Trail Mix"},
	{"SKU004", "KIND Bar", "Bars", "Snack", "1.20", "2.75", "KIND Dark Choc", "KIND Bar", "Kind bar"},
	{"SKU005", "Water", "", "Beverage", "0.45", "1.50", "Dasani 20oz", "Water", "Water"},
}

// Scenario sizes a generated set of exports.
type Scenario struct {
	Seed int64
	// Rows per provider, duplicates excluded.
	Rows int
	// Duplicates is the number of rows re-emitted verbatim in the Nayax and Haha exports each.
	Duplicates int
	// UnmappedEvery makes every n-th row an unmapped product; 0 disables.
	UnmappedEvery int
	// ZeroEvery adds a zero-value housekeeping row to the Cantaloupe export after every n-th
	// row; 0 disables.
	ZeroEvery int
	Start     time.Time
}

// Want is what a correct pipeline reports for the generated exports.
type Want struct {
	RawRows           int
	Transactions      int
	DuplicatesRemoved int
	ZeroValueDropped  int
	UnmappedRows      int
	Revenue           decimal.Decimal
	UnmappedRevenue   decimal.Decimal
}

// Exports holds one generated file per provider plus the catalog and the expected totals.
type Exports struct {
	Catalog    []byte
	Cantaloupe []byte // xlsx
	Nayax      []byte // csv
	Haha       []byte // csv
	Want       Want
}

type line struct {
	at     time.Time
	name   string
	qty    int
	amount decimal.Decimal
}

// Generate builds a scenario. Timestamps are UTC and two minutes apart within a provider;
// each provider uses its own machine, so no two distinct rows share a dedup key.
func Generate(sc Scenario) (Exports, error) {
	if sc.Start.IsZero() {
		sc.Start = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	}
	if sc.Duplicates > sc.Rows {
		return Exports{}, fmt.Errorf("duplicates %d exceed rows %d", sc.Duplicates, sc.Rows)
	}
	rng := rand.New(rand.NewSource(sc.Seed))
	var ex Exports
	want := &ex.Want

	gen := func(pick func(p product) string) []line {
		lines := make([]line, 0, sc.Rows)
		for i := 0; i < sc.Rows; i++ {
			p := products[rng.Intn(len(products))]
			name := pick(p)
			qty := 1 + rng.Intn(3)
			amount := decimal.RequireFromString(p.Price).Mul(decimal.NewFromInt(int64(qty)))
			if sc.UnmappedEvery > 0 && (i+1)%sc.UnmappedEvery == 0 {
				name = UnmappedProduct
				want.UnmappedRows++
				want.UnmappedRevenue = want.UnmappedRevenue.Add(amount)
			}
			want.Revenue = want.Revenue.Add(amount)
			lines = append(lines, line{at: sc.Start.Add(time.Duration(i) * 2 * time.Minute), name: name, qty: qty, amount: amount})
		}
		want.Transactions += len(lines)
		return lines
	}

	var err error
	if ex.Cantaloupe, err = cantaloupe(gen(func(p product) string { return p.Cantaloupe }), sc.ZeroEvery, want); err != nil {
		return Exports{}, err
	}
	ex.Nayax = nayax(gen(func(p product) string { return p.Nayax }), sc.Duplicates, want)
	ex.Haha = haha(gen(func(p product) string { return p.Haha }), sc.Duplicates, want)
	ex.Catalog = catalog()
	return ex, nil
}

func catalog() []byte {
	var b strings.Builder
	b.WriteString("Master_SKU,Master_Name,Product_Family,Type,Cost,Cantaloupe_Name,Nayax_Name,Haha_AI_Name\n")
	for _, p := range products {
		fmt.Fprintf(&b, "%s,%s,%s,%s,%s,%s,%s,%s\n", p.SKU, p.Name, p.Family, p.Type, p.Cost, p.Cantaloupe, p.Nayax, p.Haha)
	}
	return []byte(b.String())
}

func cantaloupe(lines []line, zeroEvery int, want *Want) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"USAT Transaction Log"},
		{"Generated"},
		{"Timestamp", "Location", "Machine", "Product", "Slot", "Price", "Quantity", "Total", "CC"},
	}
	for i, l := range lines {
		unit := l.amount.Div(decimal.NewFromInt(int64(l.qty)))
		rows = append(rows, []any{l.at.Format(time.DateTime), "[6] The Met", "VM 101", l.name, "A1",
			unit.InexactFloat64(), l.qty, l.amount.InexactFloat64(), "Visa"})
		if zeroEvery > 0 && (i+1)%zeroEvery == 0 {
			rows = append(rows, []any{l.at.Add(time.Minute).Format(time.DateTime), "[6] The Met", "VM 101", l.name, "A1", 0, 1, 0, ""})
			want.ZeroValueDropped++
		}
	}
	want.RawRows += len(rows) - 3
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func nayax(lines []line, dups int, want *Want) []byte {
	var b strings.Builder
	b.WriteString("Dynamic Transactions Monitor Mega\n\n")
	b.WriteString("Transaction ID,Machine Name,Location,Product Selection Info,Settlement Value (Vend Price),Authorization Value,Currency,Machine Authorization Time,Payment Method (Source)\n")
	total := decimal.Zero
	row := func(i int, l line) {
		fmt.Fprintf(&b, "%d,[44] Lobby 2210,Lobby,%s(A%d %s),%s,%s,USD,%s,Credit Card\n",
			9000+i, l.name, 1+i%9, l.amount.StringFixed(2), l.amount.StringFixed(2), l.amount.StringFixed(2), l.at.Format("01/02/2006 15:04:05"))
		total = total.Add(l.amount)
	}
	for i, l := range lines {
		row(i, l)
	}
	for i := 0; i < dups; i++ {
		row(i, lines[i])
	}
	fmt.Fprintf(&b, ",,,,%s,,Total,,\n", total.StringFixed(2))
	want.RawRows += len(lines) + dups
	want.DuplicatesRemoved += dups
	return []byte(b.String())
}

func haha(lines []line, dups int, want *Want) []byte {
	var b strings.Builder
	b.WriteString("Order number,Product,Payment time,Device number,Location,Sales volume,Amount Received\n")
	row := func(i int, l line) {
		fmt.Fprintf(&b, "HA-%d,%s,%s,D-77,West Bank,%d,%s\n", i, l.name, l.at.Format(time.DateTime), l.qty, l.amount.StringFixed(2))
	}
	for i, l := range lines {
		row(i, l)
	}
	for i := 0; i < dups; i++ {
		row(i, lines[i])
	}
	want.RawRows += len(lines) + dups
	want.DuplicatesRemoved += dups
	return []byte(b.String())
}
