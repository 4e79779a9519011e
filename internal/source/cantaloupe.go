package source

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jask/vendrecon/internal/tabular"
)

// cantaloupe reads the USAT transaction log: a title row and a date-range row precede the
// header. Empty Location cells fall back to the Machine column during normalization.
type cantaloupe struct{ base }

func newCantaloupe(opts Options) *cantaloupe {
	cfg := tabular.Config{Format: tabular.FormatSpreadsheet, SkipRows: 2}
	return &cantaloupe{newBase(Cantaloupe, cfg, true, opts)}
}

func (c *cantaloupe) Extract(rows *tabular.Rows) (Batch, error) {
	return c.extract(rows, c.parse)
}

func (c *cantaloupe) parse(row tabular.Row) (Transaction, bool, error) {
	stamp := strings.TrimSpace(row.Get("Timestamp"))
	if stamp == "" || strings.EqualFold(stamp, "timestamp") {
		// Blank trailers and repeated header rows.
		return Transaction{}, false, nil
	}
	ts, err := ParseTimestamp(stamp, c.loc)
	if err != nil {
		return Transaction{}, false, err
	}
	qty, err := parseQuantity(row.Get("Quantity"))
	if err != nil {
		return Transaction{}, false, err
	}
	amount, err := c.amount(row, qty)
	if err != nil {
		return Transaction{}, false, err
	}
	payment := strings.TrimSpace(row.Get("CC"))
	if payment == "" {
		payment = "Card"
	}
	return Transaction{
		Timestamp:      ts,
		RawLocation:    strings.TrimSpace(row.Get("Location")),
		RawMachine:     strings.TrimSpace(row.Get("Machine")),
		RawProductName: strings.TrimSpace(row.Get("Product")),
		Amount:         amount,
		Quantity:       qty,
		TransactionID:  fmt.Sprintf("%s_%s_%s", stamp, row.Get("Machine"), row.Get("Slot")),
		PaymentMethod:  payment,
	}, true, nil
}

// amount uses Total, or Price x Quantity when the export leaves Total blank.
func (c *cantaloupe) amount(row tabular.Row, qty int) (decimal.Decimal, error) {
	if total := strings.TrimSpace(row.Get("Total")); total != "" {
		d, err := ParseAmount(total)
		if err != nil {
			return decimal.Zero, fmt.Errorf("total %q: %w", total, err)
		}
		return d, nil
	}
	price := strings.TrimSpace(row.Get("Price"))
	if price == "" {
		return decimal.Zero, fmt.Errorf("row has neither total nor price")
	}
	d, err := ParseAmount(price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price %q: %w", price, err)
	}
	return d.Mul(decimal.NewFromInt(int64(qty))), nil
}
