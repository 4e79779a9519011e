// Package location maps the site strings found in POS exports to display names.
package location

import (
	"regexp"
	"sort"
	"strings"
)

// Unknown is used when neither the raw location nor its fallback carries a name.
const Unknown = "Unknown"

var (
	bracketID     = regexp.MustCompile(`^\s*\[(\d+)\]\s*`)
	trailingDigit = regexp.MustCompile(`\s*\d{3,}$`)
)

// Alias maps a raw site string to its display name.
type Alias struct {
	Raw     string `json:"raw_name"`
	Display string `json:"display_name"`
}

// Normalizer resolves raw location strings. It is built once per run and is not safe for
// concurrent use because it records unmapped names.
type Normalizer struct {
	aliases  map[string]string
	unmapped map[string]int
}

// New builds a normalizer from an alias table. Later duplicates of a raw name are ignored.
func New(aliases []Alias) *Normalizer {
	n := &Normalizer{
		aliases:  make(map[string]string, len(aliases)*2),
		unmapped: make(map[string]int),
	}
	for _, a := range aliases {
		display := strings.TrimSpace(a.Display)
		if display == "" {
			continue
		}
		if key := aliasKey(a.Raw); key != "" {
			if _, ok := n.aliases[key]; !ok {
				n.aliases[key] = display
			}
		}
	}
	// Display names map to themselves so normalizing a canonical name is a no-op.
	for _, display := range n.aliases {
		key := aliasKey(display)
		if _, ok := n.aliases[key]; !ok {
			n.aliases[key] = display
		}
	}
	return n
}

// Normalize returns the display name for raw. When raw is empty the name is derived from
// fallback (usually the machine column), e.g. "[12] Site Name" gives "Site Name".
func (n *Normalizer) Normalize(raw, fallback string) string {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		fb := strings.TrimSpace(fallback)
		if loc := bracketID.FindStringIndex(fb); loc != nil && strings.TrimSpace(fb[loc[1]:]) != "" {
			candidate = strings.TrimSpace(fb[loc[1]:])
		} else {
			candidate = fb
		}
	}
	if display, ok := n.aliases[aliasKey(candidate)]; ok {
		return display
	}

	cleaned := Clean(candidate)
	if cleaned == "" {
		return Unknown
	}
	if display, ok := n.aliases[aliasKey(cleaned)]; ok {
		return display
	}
	n.unmapped[cleaned]++
	return cleaned
}

// Unmapped lists cleaned names that had no alias entry, most frequent first.
func (n *Normalizer) Unmapped() []string {
	out := make([]string, 0, len(n.unmapped))
	for name := range n.unmapped {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := n.unmapped[out[i]], n.unmapped[out[j]]
		if ci != cj {
			return ci > cj
		}
		return out[i] < out[j]
	})
	return out
}

// Len reports the number of alias keys, display self-aliases included.
func (n *Normalizer) Len() int { return len(n.aliases) }

// Clean strips bracketed numeric prefixes and trailing site codes of three or more digits.
// Clean(Clean(s)) == Clean(s).
func Clean(s string) string {
	s = strings.TrimSpace(s)
	for {
		next := strings.TrimSpace(bracketID.ReplaceAllString(s, ""))
		next = strings.TrimSpace(trailingDigit.ReplaceAllString(next, ""))
		if next == s {
			return s
		}
		s = next
	}
}

// SiteID returns the numeric id of a "[123] Name" string.
func SiteID(s string) (string, bool) {
	m := bracketID.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func aliasKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
