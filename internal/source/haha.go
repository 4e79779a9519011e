package source

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jask/vendrecon/internal/tabular"
)

const (
	productDetailsColumn = "Product details"
	unknownItem          = "Unknown Item"
)

// HahaReport is the layout of a Haha AI export.
type HahaReport int

const (
	HahaUnknownReport HahaReport = iota
	// HahaSalesDetails is "Product Sales Details": one row per product line of an order.
	HahaSalesDetails
	// HahaOrderDetails is "Order details": one row per order, products comma separated.
	HahaOrderDetails
)

// DetectHahaReport guesses the Haha AI layout from a file name.
func DetectHahaReport(filename string) HahaReport {
	squashed := squashName(filename)
	switch {
	case strings.Contains(squashed, "orderdetails"):
		return HahaOrderDetails
	case strings.Contains(squashed, "productsalesdetails"):
		return HahaSalesDetails
	}
	return HahaUnknownReport
}

// haha reads both Haha AI layouts. The layout is chosen by the header: Order details exports
// carry a "Product details" column.
type haha struct {
	base
	details SalesDetails
}

func newHaha(opts Options) *haha {
	cfg := tabular.Config{Format: tabular.FormatSpreadsheet}
	return &haha{base: newBase(HahaAI, cfg, false, opts), details: opts.SalesDetails}
}

func (h *haha) Extract(rows *tabular.Rows) (Batch, error) {
	if rows.Has(productDetailsColumn) {
		return h.extractLines(rows, h.parseOrder)
	}
	return h.extract(rows, h.parse)
}

func (h *haha) parse(row tabular.Row) (Transaction, bool, error) {
	order := strings.TrimSpace(row.Get("Order number"))
	if order == "" {
		return Transaction{}, false, fmt.Errorf("missing order number")
	}
	ts, err := ParseTimestamp(firstOf(row, "Payment time", "Creation time"), h.loc)
	if err != nil {
		return Transaction{}, false, err
	}
	qty, err := parseQuantity(row.Get("Sales volume"))
	if err != nil {
		return Transaction{}, false, err
	}
	raw := firstOf(row, "Amount Received", "Amount")
	amount, err := ParseAmount(raw)
	if err != nil {
		return Transaction{}, false, fmt.Errorf("amount %q: %w", raw, err)
	}
	return Transaction{
		Timestamp:      ts,
		RawLocation:    firstOf(row, "Location", "Site"),
		RawMachine:     strings.TrimSpace(row.Get("Device number")),
		RawProductName: strings.TrimSpace(row.Get("Product")),
		Amount:         amount,
		Quantity:       qty,
		TransactionID:  order,
		PaymentMethod:  firstOf(row, "Payment method"),
	}, true, nil
}

// parseOrder splits an Order details row into one transaction per distinct product. Products
// found in the sales details keep their own amount and quantity; the rest share what is left
// of the order total, weighted by how often they are listed.
func (h *haha) parseOrder(row tabular.Row) ([]Transaction, bool, error) {
	order := strings.TrimSpace(row.Get("Order number"))
	if order == "" {
		return nil, false, fmt.Errorf("missing order number")
	}
	ts, err := ParseTimestamp(firstOf(row, "Payment time", "Creation time"), h.loc)
	if err != nil {
		return nil, false, err
	}
	received := decimal.Zero
	if raw := firstOf(row, "Amount Received", "Amount"); raw != "" {
		if received, err = ParseAmount(raw); err != nil {
			return nil, false, fmt.Errorf("amount %q: %w", raw, err)
		}
	}

	items := orderItems(row.Get(productDetailsColumn))
	txs := make([]Transaction, len(items))
	matched := decimal.Zero
	var open []int
	units := 0
	for i, it := range items {
		txs[i] = Transaction{
			Timestamp:      ts,
			RawLocation:    firstOf(row, "Location", "Site"),
			RawMachine:     strings.TrimSpace(row.Get("Device number")),
			RawProductName: it.name,
			Quantity:       it.count,
			TransactionID:  fmt.Sprintf("%s_%d", order, i),
			PaymentMethod:  firstOf(row, "Payment method"),
		}
		if line, ok := h.details.Lookup(order, it.name); ok {
			txs[i].Amount = line.Amount
			if line.Quantity > 0 {
				txs[i].Quantity = line.Quantity
			}
			matched = matched.Add(line.Amount)
			continue
		}
		open = append(open, i)
		units += it.count
	}

	remaining := received.Sub(matched)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	if len(open) > 0 {
		perUnit := remaining.Div(decimal.NewFromInt(int64(units)))
		left := remaining
		for j, i := range open {
			if j == len(open)-1 {
				txs[i].Amount = left
				break
			}
			// Truncating keeps the last share non-negative; it absorbs the cents.
			share := perUnit.Mul(decimal.NewFromInt(int64(txs[i].Quantity))).Truncate(2)
			txs[i].Amount = share
			left = left.Sub(share)
		}
	}
	return txs, true, nil
}

type orderItem struct {
	name  string
	count int
}

// orderItems splits a "Product details" cell. Repeats of one product collapse into a single
// item so the order's lines never share a dedup key.
func orderItems(cell string) []orderItem {
	var items []orderItem
	seen := make(map[string]int)
	for _, part := range strings.Split(cell, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		key := normalizeProduct(name)
		if i, ok := seen[key]; ok {
			items[i].count++
			continue
		}
		seen[key] = len(items)
		items = append(items, orderItem{name: name, count: 1})
	}
	if len(items) == 0 {
		items = []orderItem{{name: unknownItem, count: 1}}
	}
	return items
}

// SalesLine is the amount and quantity of one product within one order.
type SalesLine struct {
	Amount   decimal.Decimal
	Quantity int
}

// SalesDetails indexes Product Sales Details lines by order number and product name. Order
// details exports only carry an order total; this prices their items.
type SalesDetails map[string]SalesLine

func normalizeProduct(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func salesKey(order, product string) string {
	return strings.TrimSpace(order) + "||" + normalizeProduct(product)
}

// Lookup returns the summed line of product in order.
func (d SalesDetails) Lookup(order, product string) (SalesLine, bool) {
	line, ok := d[salesKey(order, product)]
	return line, ok
}

// ReadSalesDetails adds the lines of a Product Sales Details export to d, summing repeated
// order and product pairs; d must be non-nil. It returns the number of data rows read. Rows
// without an order number or product, or with an unreadable amount or quantity, are left out
// with a warning.
func ReadSalesDetails(rows *tabular.Rows, d SalesDetails) (int, []tabular.Warning, error) {
	n := 0
	var warnings []tabular.Warning
	warn := func(line int, format string, args ...any) {
		warnings = append(warnings, tabular.Warning{Line: line, Message: fmt.Sprintf(format, args...)})
	}
	for rows.Next() {
		row := rows.Row()
		n++
		order := strings.TrimSpace(row.Get("Order number"))
		product := strings.TrimSpace(row.Get("Product"))
		if order == "" || product == "" {
			warn(row.Line, "sales details line without order number or product")
			continue
		}
		amount := decimal.Zero
		if raw := firstOf(row, "Amount Received", "Amount"); raw != "" {
			var err error
			if amount, err = ParseAmount(raw); err != nil {
				warn(row.Line, "amount %q: %s", raw, err)
				continue
			}
		}
		qty, err := parseQuantity(row.Get("Sales volume"))
		if err != nil {
			warn(row.Line, "%s", err)
			continue
		}
		key := salesKey(order, product)
		line := d[key]
		line.Amount = line.Amount.Add(amount)
		line.Quantity += qty
		d[key] = line
	}
	if err := rows.Err(); err != nil {
		return n, nil, err
	}
	return n + rows.Skipped(), append(rows.Warnings(), warnings...), nil
}
