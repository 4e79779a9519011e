package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"github.com/jask/vendrecon/internal/source"
)

// Tier records how a product identity was resolved.
type Tier string

const (
	TierDirect   Tier = "direct"
	TierFamily   Tier = "family"
	TierUnmapped Tier = "unmapped"
)

// Resolution is the catalog identity assigned to one raw product name.
type Resolution struct {
	SKU    string
	Name   string
	Family string
	Type   string
	Cost   decimal.Decimal // per unit
	Tier   Tier
}

// Collision reports a catalog value claimed by more than one entry. The first entry in file
// order keeps it.
type Collision struct {
	Kind    string        `json:"kind"` // sku, alias or name
	System  source.System `json:"system,omitempty"`
	Value   string        `json:"value"`
	Kept    string        `json:"kept_sku"`
	Ignored string        `json:"ignored_sku"`
}

func (c Collision) String() string {
	if c.System != "" {
		return fmt.Sprintf("%s %q (%s) claimed by %s and %s", c.Kind, c.Value, c.System, c.Kept, c.Ignored)
	}
	return fmt.Sprintf("%s %q claimed by %s and %s", c.Kind, c.Value, c.Kept, c.Ignored)
}

// Index is the read-only lookup structure built once per run from the catalog.
type Index struct {
	entries    []Entry
	aliases    map[source.System]map[string]int
	names      map[string]int
	families   map[string]Resolution
	collisions []Collision
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

// NewIndex builds the alias, name and family lookups.
func NewIndex(entries []Entry) *Index {
	idx := &Index{
		aliases:  make(map[source.System]map[string]int),
		names:    make(map[string]int),
		families: make(map[string]Resolution),
	}
	skus := make(map[string]int)
	for _, e := range entries {
		if prev, ok := skus[e.SKU]; ok {
			idx.collisions = append(idx.collisions, Collision{Kind: "sku", Value: e.SKU, Kept: idx.entries[prev].SKU, Ignored: e.SKU})
			continue
		}
		i := len(idx.entries)
		e.Cost = e.Cost.Round(2)
		idx.entries = append(idx.entries, e)
		skus[e.SKU] = i

		idx.claim(idx.names, "name", "", e.Name, i)
		for _, sys := range source.Systems() {
			alias, ok := e.Aliases[sys]
			if !ok || alias == "" {
				continue
			}
			m := idx.aliases[sys]
			if m == nil {
				m = make(map[string]int)
				idx.aliases[sys] = m
			}
			idx.claim(m, "alias", sys, alias, i)
		}
	}
	idx.buildFamilies()
	return idx
}

func (idx *Index) claim(m map[string]int, kind string, sys source.System, value string, i int) {
	key := strings.TrimSpace(value)
	if prev, ok := m[key]; ok {
		if prev != i {
			idx.collisions = append(idx.collisions, Collision{
				Kind: kind, System: sys, Value: key,
				Kept: idx.entries[prev].SKU, Ignored: idx.entries[i].SKU,
			})
		}
		return
	}
	m[key] = i
}

func (idx *Index) buildFamilies() {
	type acc struct {
		sum    decimal.Decimal
		n      int64
		types  map[string]int
		order  []string
		family string
	}
	byFamily := make(map[string]*acc)
	var labels []string
	for _, e := range idx.entries {
		if e.Family == "" {
			continue
		}
		a := byFamily[e.Family]
		if a == nil {
			a = &acc{types: make(map[string]int), family: e.Family}
			byFamily[e.Family] = a
			labels = append(labels, e.Family)
		}
		if e.HasCost && e.Cost.IsPositive() {
			a.sum = a.sum.Add(e.Cost)
			a.n++
		}
		if t := strings.TrimSpace(e.Type); t != "" {
			if a.types[t] == 0 {
				a.order = append(a.order, t)
			}
			a.types[t]++
		}
	}
	for _, label := range labels {
		a := byFamily[label]
		cost := decimal.Zero
		if a.n > 0 {
			cost = a.sum.Div(decimal.NewFromInt(a.n)).Round(2)
		}
		typ := UnknownType
		best := 0
		for _, t := range a.order {
			if a.types[t] > best {
				typ, best = t, a.types[t]
			}
		}
		idx.families[label] = Resolution{
			SKU:    FamilySKU(label),
			Name:   label,
			Family: label,
			Type:   typ,
			Cost:   cost,
			Tier:   TierFamily,
		}
	}
}

// FamilySKU is the representative identifier of a product family, e.g. FAMILY_VARIETY_PACK.
func FamilySKU(family string) string {
	return "FAMILY_" + strings.Trim(nonAlnum.ReplaceAllString(strings.ToUpper(family), "_"), "_")
}

// Resolve maps a raw product name reported by system to a catalog identity. Direct aliases
// are tried before master names, then family labels; anything else is unmapped.
func (idx *Index) Resolve(system source.System, rawName string) Resolution {
	name := strings.TrimSpace(rawName)
	if name != "" {
		if i, ok := idx.aliases[system][name]; ok {
			return idx.direct(i)
		}
		if i, ok := idx.names[name]; ok {
			return idx.direct(i)
		}
		if fam, ok := idx.families[name]; ok {
			return fam
		}
	}
	return Resolution{
		SKU:  UnmappedSKU,
		Name: rawName,
		Type: UnknownType,
		Cost: decimal.Zero,
		Tier: TierUnmapped,
	}
}

func (idx *Index) direct(i int) Resolution {
	e := idx.entries[i]
	return Resolution{
		SKU:    e.SKU,
		Name:   e.Name,
		Family: e.Family,
		Type:   e.TypeOrUnknown(),
		Cost:   e.Cost,
		Tier:   TierDirect,
	}
}

// Suggest returns the catalog name closest to rawName by edit distance, for the unmapped
// report. ok is false when nothing is reasonably close.
func (idx *Index) Suggest(rawName string) (string, bool) {
	target := strings.ToUpper(strings.TrimSpace(rawName))
	if target == "" {
		return "", false
	}
	best, bestDist := "", -1
	consider := func(candidate, display string) {
		d := levenshtein.ComputeDistance(target, strings.ToUpper(candidate))
		if bestDist < 0 || d < bestDist || (d == bestDist && display < best) {
			best, bestDist = display, d
		}
	}
	for _, e := range idx.entries {
		consider(e.Name, e.Name)
		for _, alias := range e.Aliases {
			consider(alias, e.Name)
		}
	}
	for label := range idx.families {
		consider(label, label)
	}
	if bestDist < 0 || float64(bestDist) > 0.4*float64(len(target)) {
		return "", false
	}
	return best, true
}

// Collisions lists values claimed by more than one entry.
func (idx *Index) Collisions() []Collision {
	return append([]Collision(nil), idx.collisions...)
}

// Len is the number of distinct catalog entries.
func (idx *Index) Len() int { return len(idx.entries) }

// Families lists family resolutions sorted by label.
func (idx *Index) Families() []Resolution {
	out := make([]Resolution, 0, len(idx.families))
	for _, r := range idx.families {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Family < out[j].Family })
	return out
}
