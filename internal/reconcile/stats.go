package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/vendrecon/internal/catalog"
	"github.com/jask/vendrecon/internal/source"
)

// Stats aggregates a record set.
type Stats struct {
	Direct           int             `json:"direct"`
	Family           int             `json:"family"`
	Unmapped         int             `json:"unmapped"`
	ZeroValueDropped int             `json:"zeroValueDropped"`
	TotalRevenue     decimal.Decimal `json:"totalRevenue"`
	UnmappedRevenue  decimal.Decimal `json:"unmappedRevenue"`
	TotalProfit      decimal.Decimal `json:"totalProfit"`
}

// Summarize counts tiers and sums revenue and profit.
func Summarize(records []Record) Stats {
	var s Stats
	for _, r := range records {
		switch r.Tier {
		case catalog.TierDirect:
			s.Direct++
		case catalog.TierFamily:
			s.Family++
		default:
			s.Unmapped++
			s.UnmappedRevenue = s.UnmappedRevenue.Add(r.Revenue)
		}
		s.TotalRevenue = s.TotalRevenue.Add(r.Revenue)
		s.TotalProfit = s.TotalProfit.Add(r.Profit)
	}
	return s
}

// Coverage is the percentage of revenue mapped at the direct or family tier, rounded to one
// decimal. An empty set has zero coverage.
func (s Stats) Coverage() decimal.Decimal {
	if s.TotalRevenue.IsZero() {
		return decimal.Zero
	}
	mapped := s.TotalRevenue.Sub(s.UnmappedRevenue)
	return mapped.Div(s.TotalRevenue).Mul(hundred).Round(1)
}

// UnmappedProduct is one line of the operator report.
type UnmappedProduct struct {
	ProductName      string          `json:"productName"`
	Source           string          `json:"sourceIdentifier"`
	Revenue          decimal.Decimal `json:"revenue"`
	// RevenueShare is the product's percentage of total run revenue, one decimal.
	RevenueShare     decimal.Decimal `json:"revenueShare"`
	TransactionCount int             `json:"transactionCount"`
	FirstSeen        time.Time       `json:"firstSeen"`
	LastSeen         time.Time       `json:"lastSeen"`
	Suggestion       string          `json:"suggestion,omitempty"`
}

// UnmappedReport groups unmapped records by product name, highest revenue first. idx may be
// nil, in which case no suggestions are made.
func UnmappedReport(records []Record, idx *catalog.Index) []UnmappedProduct {
	type group struct {
		p       UnmappedProduct
		systems map[source.System]struct{}
	}
	groups := make(map[string]*group)
	var order []string
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Revenue)
		if r.Tier != catalog.TierUnmapped {
			continue
		}
		name := strings.TrimSpace(r.RawProductName)
		g := groups[name]
		if g == nil {
			g = &group{
				p:       UnmappedProduct{ProductName: name, FirstSeen: r.Timestamp, LastSeen: r.Timestamp},
				systems: make(map[source.System]struct{}),
			}
			groups[name] = g
			order = append(order, name)
		}
		g.p.Revenue = g.p.Revenue.Add(r.Revenue)
		g.p.TransactionCount++
		if r.Timestamp.Before(g.p.FirstSeen) {
			g.p.FirstSeen = r.Timestamp
		}
		if r.Timestamp.After(g.p.LastSeen) {
			g.p.LastSeen = r.Timestamp
		}
		g.systems[r.System] = struct{}{}
	}

	out := make([]UnmappedProduct, 0, len(order))
	for _, name := range order {
		g := groups[name]
		systems := make([]string, 0, len(g.systems))
		for s := range g.systems {
			systems = append(systems, string(s))
		}
		sort.Strings(systems)
		g.p.Source = strings.Join(systems, ",")
		if !total.IsZero() {
			g.p.RevenueShare = g.p.Revenue.Div(total).Mul(hundred).Round(1)
		}
		if idx != nil {
			g.p.Suggestion, _ = idx.Suggest(name)
		}
		out = append(out, g.p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Revenue.GreaterThan(out[j].Revenue)
	})
	return out
}
