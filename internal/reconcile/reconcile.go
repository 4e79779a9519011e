// Package reconcile resolves intermediate transactions against the catalog and computes
// ledger records with profit and margin.
package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/vendrecon/internal/catalog"
	"github.com/jask/vendrecon/internal/location"
	"github.com/jask/vendrecon/internal/source"
)

var hundred = decimal.NewFromInt(100)

// Record is one canonical ledger transaction. Cost is per unit.
type Record struct {
	Date      string    `json:"date"`
	Timestamp time.Time `json:"timestamp"`
	Location  string    `json:"location"`
	SKU       string    `json:"masterSKU"`
	Name      string    `json:"masterName"`
	Family    string    `json:"productFamily"`
	Type      string    `json:"type"`

	Revenue  decimal.Decimal `json:"revenue"`
	Cost     decimal.Decimal `json:"cost"`
	Quantity int             `json:"quantity"`
	Profit   decimal.Decimal `json:"profit"`
	Margin   decimal.Decimal `json:"grossMarginPercent"`

	Tier           catalog.Tier  `json:"mappingTier"`
	System         source.System `json:"sourceSystem"`
	RawProductName string        `json:"rawProductName"`
	RawLocation    string        `json:"rawLocation"`
	RawMachine     string        `json:"rawMachine"`
	TransactionID  string        `json:"transactionId"`
	PaymentMethod  string        `json:"paymentMethod"`
	DedupKey       string        `json:"dedupKey"`
}

// Engine holds the per-run lookups. A nil Index resolves everything as unmapped; a nil
// Locations normalizes with cleanup only.
type Engine struct {
	Index     *catalog.Index
	Locations *location.Normalizer
}

// Reconcile maps transactions to ledger records, dropping zero-value rows from providers that
// emit housekeeping lines. The order of txs is preserved.
func (e *Engine) Reconcile(txs []source.Transaction) ([]Record, Stats) {
	idx, norm := e.Index, e.Locations
	if idx == nil {
		idx = catalog.NewIndex(nil)
	}
	if norm == nil {
		norm = location.New(nil)
	}
	records := make([]Record, 0, len(txs))
	dropped := 0
	for _, tx := range txs {
		if tx.DropIfZero && tx.Amount.IsZero() {
			dropped++
			continue
		}
		records = append(records, record(idx, norm, tx))
	}
	stats := Summarize(records)
	stats.ZeroValueDropped = dropped
	return records, stats
}

func record(idx *catalog.Index, norm *location.Normalizer, tx source.Transaction) Record {
	res := idx.Resolve(tx.System, tx.RawProductName)
	qty := tx.Quantity
	if qty < 1 {
		qty = 1
	}
	profit, margin := Margin(tx.Amount, res.Cost, qty)
	return Record{
		Date:           tx.Timestamp.Format(time.DateOnly),
		Timestamp:      tx.Timestamp,
		Location:       norm.Normalize(tx.RawLocation, tx.RawMachine),
		SKU:            res.SKU,
		Name:           res.Name,
		Family:         res.Family,
		Type:           res.Type,
		Revenue:        tx.Amount,
		Cost:           res.Cost,
		Quantity:       qty,
		Profit:         profit,
		Margin:         margin,
		Tier:           res.Tier,
		System:         tx.System,
		RawProductName: tx.RawProductName,
		RawLocation:    tx.RawLocation,
		RawMachine:     tx.RawMachine,
		TransactionID:  tx.TransactionID,
		PaymentMethod:  tx.PaymentMethod,
	}
}

// Margin returns revenue - unitCost*qty and the gross margin percent rounded to one decimal.
// The margin is zero when revenue is zero.
func Margin(revenue, unitCost decimal.Decimal, qty int) (profit, marginPercent decimal.Decimal) {
	profit = revenue.Sub(unitCost.Mul(decimal.NewFromInt(int64(qty))))
	if revenue.IsZero() {
		return profit, decimal.Zero
	}
	return profit, profit.Div(revenue).Mul(hundred).Round(1)
}
