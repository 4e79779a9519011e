// Package source turns provider exports into intermediate transactions. Each provider has an
// Adapter; the tabular framing differs per provider, the output contract does not.
package source

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/vendrecon/internal/tabular"
)

// ErrUnknownSource is returned when a provider cannot be determined.
var ErrUnknownSource = errors.New("unknown source system")

// Transaction is one sale extracted from one export row, before catalog resolution.
type Transaction struct {
	Timestamp      time.Time
	RawLocation    string
	RawMachine     string
	System         System
	RawProductName string
	Amount         decimal.Decimal // total charged for the line
	Quantity       int
	TransactionID  string
	PaymentMethod  string
	Line           int
	// DropIfZero marks providers that emit zero-value housekeeping rows.
	DropIfZero bool
}

// Batch is the result of extracting one export.
type Batch struct {
	System       System
	Transactions []Transaction
	// Rows counts data rows read, malformed ones included.
	Rows     int
	Skipped  int
	Warnings []tabular.Warning
}

func (b *Batch) skip(line int, format string, args ...any) {
	b.Skipped++
	b.Warnings = append(b.Warnings, tabular.Warning{Line: line, Message: fmt.Sprintf(format, args...)})
}

// Adapter extracts transactions for one provider.
type Adapter interface {
	System() System
	Config() tabular.Config
	Extract(rows *tabular.Rows) (Batch, error)
}

// Options tune an adapter. Nil and zero fields keep the provider defaults.
type Options struct {
	Location      *time.Location
	SkipRows      *int
	Delimiter     rune
	DropZeroValue *bool
	// SalesDetails prices the items of Haha AI Order details exports; nil splits each order
	// total evenly.
	SalesDetails  SalesDetails
}

// For returns the adapter of a provider.
func For(system System, opts Options) (Adapter, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	switch system {
	case Cantaloupe:
		return newCantaloupe(opts), nil
	case Nayax:
		return newNayax(opts), nil
	case HahaAI:
		return newHaha(opts), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, system)
}

var nameSquasher = strings.NewReplacer("_", "", "-", "", " ", "")

func squashName(filename string) string {
	return nameSquasher.Replace(strings.ToLower(filepath.Base(filename)))
}

// Detect guesses the provider from an export's file name.
func Detect(filename string) (System, error) {
	squashed := squashName(filename)
	switch {
	case strings.Contains(squashed, "usat"), strings.Contains(squashed, "transactionlog"),
		strings.Contains(squashed, "cantaloupe"):
		return Cantaloupe, nil
	case strings.Contains(squashed, "dynamic"), strings.Contains(squashed, "mega"),
		strings.Contains(squashed, "nayax"):
		return Nayax, nil
	case strings.Contains(squashed, "productsalesdetails"), strings.Contains(squashed, "orderdetails"),
		strings.Contains(squashed, "haha"):
		return HahaAI, nil
	}
	return "", fmt.Errorf("%w: cannot detect provider from %q", ErrUnknownSource, filepath.Base(filename))
}

// base carries the pieces shared by every adapter.
type base struct {
	system   System
	cfg      tabular.Config
	loc      *time.Location
	dropZero bool
}

func newBase(system System, cfg tabular.Config, dropZero bool, opts Options) base {
	if opts.SkipRows != nil {
		cfg.SkipRows = *opts.SkipRows
	}
	if opts.Delimiter != 0 {
		cfg.Delimiter = opts.Delimiter
	}
	if opts.DropZeroValue != nil {
		dropZero = *opts.DropZeroValue
	}
	return base{system: system, cfg: cfg, loc: opts.Location, dropZero: dropZero}
}

func (b base) System() System         { return b.system }
func (b base) Config() tabular.Config { return b.cfg }

// rowFunc parses one row. ok=false with a nil error means the row is not a sale (summary or
// header echo) and is ignored without counting.
type rowFunc func(row tabular.Row) (tx Transaction, ok bool, err error)

// linesFunc is a rowFunc for exports that list several products on one row.
type linesFunc func(row tabular.Row) (txs []Transaction, ok bool, err error)

func (f rowFunc) lines(row tabular.Row) ([]Transaction, bool, error) {
	tx, ok, err := f(row)
	if err != nil || !ok {
		return nil, ok, err
	}
	return []Transaction{tx}, true, nil
}

func (b base) extract(rows *tabular.Rows, parse rowFunc) (Batch, error) {
	return b.extractLines(rows, parse.lines)
}

// extractLines validates every transaction of a row; one bad line skips the whole row so an
// order is never half ingested.
func (b base) extractLines(rows *tabular.Rows, parse linesFunc) (Batch, error) {
	batch := Batch{System: b.system}
	for rows.Next() {
		row := rows.Row()
		txs, ok, err := parse(row)
		if err == nil && !ok {
			continue
		}
		batch.Rows++
		if err == nil {
			err = validate(txs)
		}
		if err != nil {
			batch.skip(row.Line, "%s", err)
			continue
		}
		for _, tx := range txs {
			if tx.Quantity < 1 {
				tx.Quantity = 1
			}
			tx.System = b.system
			tx.Line = row.Line
			tx.DropIfZero = b.dropZero
			batch.Transactions = append(batch.Transactions, tx)
		}
	}
	if err := rows.Err(); err != nil {
		return batch, err
	}
	batch.Skipped += rows.Skipped()
	batch.Rows += rows.Skipped()
	batch.Warnings = append(rows.Warnings(), batch.Warnings...)
	return batch, nil
}

func validate(txs []Transaction) error {
	for _, tx := range txs {
		if tx.RawProductName == "" {
			return errors.New("missing product name")
		}
		if tx.Amount.IsNegative() {
			return fmt.Errorf("negative amount %s", tx.Amount)
		}
	}
	return nil
}

// parseQuantity accepts "2", "2.0" and blanks (1).
func parseQuantity(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("quantity %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(0)) || d.Sign() < 0 {
		return 0, fmt.Errorf("quantity %q is not a whole number", s)
	}
	return int(d.IntPart()), nil
}
