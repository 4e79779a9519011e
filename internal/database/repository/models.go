package repository

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/vendrecon/internal/reconcile"
)

// LedgerEntry is a stored ledger row.
type LedgerEntry struct {
	reconcile.Record
	RunID     string
	CreatedAt time.Time
}

// LedgerFilter narrows ledger queries. Zero values mean no filter; From and To are inclusive
// calendar dates.
type LedgerFilter struct {
	From      time.Time
	To        time.Time
	Locations []string
	Tier      string
	Limit     int
}

// LedgerTotals aggregates the rows matching a filter.
type LedgerTotals struct {
	Rows            int
	Revenue         decimal.Decimal
	UnmappedRevenue decimal.Decimal
	Profit          decimal.Decimal
}

// Coverage is the mapped share of revenue in percent, rounded to one decimal.
func (t LedgerTotals) Coverage() decimal.Decimal {
	if t.Revenue.IsZero() {
		return decimal.Zero
	}
	return t.Revenue.Sub(t.UnmappedRevenue).Div(t.Revenue).Mul(decimal.NewFromInt(100)).Round(1)
}

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunPartial   = "partial"
	RunFailed    = "failed"
)

// ImportRun is one pipeline execution.
type ImportRun struct {
	ID                string
	Files             []string
	StartedAt         time.Time
	FinishedAt        *time.Time
	RawRows           int
	SkippedRows       int
	TotalTransactions int
	DuplicatesRemoved int
	Inserted          int
	Ignored           int
	MappingCoverage   decimal.Decimal
	TotalRevenue      decimal.Decimal
	UnmappedRevenue   decimal.Decimal
	Status            string
	Error             *string
}

func toCents(d decimal.Decimal) int64 { return d.Round(2).Shift(2).IntPart() }

func fromCents(c int64) decimal.Decimal { return decimal.New(c, -2) }
