package source

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jask/vendrecon/internal/tabular"
)

const nayaxAmountColumn = "Settlement Value (Vend Price)"

var selectionSuffix = regexp.MustCompile(`\s*\([^()]*\)\s*$`)

// nayax reads DynamicTransactionsMonitorMega CSV exports. The banner is one or two lines
// depending on the export version, so the header is located by its settlement column.
type nayax struct{ base }

func newNayax(opts Options) *nayax {
	cfg := tabular.Config{Format: tabular.FormatDelimited, HeaderMarker: nayaxAmountColumn}
	return &nayax{newBase(Nayax, cfg, false, opts)}
}

func (n *nayax) Extract(rows *tabular.Rows) (Batch, error) {
	return n.extract(rows, n.parse)
}

func (n *nayax) parse(row tabular.Row) (Transaction, bool, error) {
	if strings.EqualFold(strings.TrimSpace(row.Get("Currency")), "Total") {
		return Transaction{}, false, nil
	}
	id := strings.TrimSpace(row.Get("Transaction ID"))
	if id == "" {
		return Transaction{}, false, fmt.Errorf("missing transaction id")
	}
	ts, err := ParseTimestamp(firstOf(row, "Machine Authorization Time", "Authorization Time"), n.loc)
	if err != nil {
		return Transaction{}, false, err
	}
	raw := firstOf(row, nayaxAmountColumn, "Authorization Value")
	amount, err := ParseAmount(raw)
	if err != nil {
		return Transaction{}, false, fmt.Errorf("amount %q: %w", raw, err)
	}
	product := selectionSuffix.ReplaceAllString(strings.TrimSpace(row.Get("Product Selection Info")), "")
	return Transaction{
		Timestamp:      ts,
		RawLocation:    strings.TrimSpace(row.Get("Location")),
		RawMachine:     strings.TrimSpace(row.Get("Machine Name")),
		RawProductName: strings.TrimSpace(product),
		Amount:         amount,
		Quantity:       1,
		TransactionID:  id,
		PaymentMethod:  strings.TrimSpace(row.Get("Payment Method (Source)")),
	}, true, nil
}

func firstOf(row tabular.Row, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(row.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
