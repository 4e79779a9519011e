// Package dedup fingerprints ledger records so re-submitted transactions collapse to one.
package dedup

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/jask/vendrecon/internal/location"
	"github.com/jask/vendrecon/internal/reconcile"
)

// DefaultResolution is the timestamp granularity of the key.
const DefaultResolution = time.Minute

// Options configure key construction.
type Options struct {
	// Resolution truncates timestamps; zero means DefaultResolution.
	Resolution time.Duration
}

func (o Options) resolution() time.Duration {
	if o.Resolution <= 0 {
		return DefaultResolution
	}
	return o.Resolution
}

// Key returns the composite fingerprint time|machine|product|revenue. Records differing only
// in timestamp (beyond the resolution) never share a key.
func Key(r reconcile.Record, opts Options) string {
	res := opts.resolution()
	stamp := r.Timestamp.UTC().Truncate(res)
	layout := "2006-01-02T15:04Z"
	if res < time.Minute {
		layout = "2006-01-02T15:04:05Z"
	}
	return strings.Join([]string{
		stamp.Format(layout),
		MachineID(r),
		Slug(r.RawProductName),
		r.Revenue.StringFixed(2),
	}, "|")
}

// MachineID prefers a bracketed numeric site id from the machine or location string, then an
// alphanumeric slug of the machine, raw location or canonical location.
func MachineID(r reconcile.Record) string {
	for _, s := range []string{r.RawMachine, r.RawLocation} {
		if id, ok := location.SiteID(s); ok {
			return id
		}
	}
	for _, s := range []string{r.RawMachine, r.RawLocation, r.Location} {
		if slug := Slug(s); slug != "" {
			return slug
		}
	}
	return "unknown"
}

// Slug lowercases s, strips combining marks and keeps letters and digits of any script, so
// "Crème Brûlée" gives "cremebrulee" and "可口可乐" stays "可口可乐".
func Slug(s string) string {
	var b strings.Builder
	for _, c := range norm.NFKD.String(s) {
		if unicode.Is(unicode.Mn, c) {
			continue
		}
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			b.WriteRune(unicode.ToLower(c))
		}
	}
	return b.String()
}

// Deduplicate stamps each record with its key and drops later records whose key was already
// seen. It returns the kept records in input order and the number removed.
func Deduplicate(records []reconcile.Record, opts Options) ([]reconcile.Record, int) {
	seen := make(map[string]struct{}, len(records))
	kept := make([]reconcile.Record, 0, len(records))
	for _, r := range records {
		r.DedupKey = Key(r, opts)
		if _, dup := seen[r.DedupKey]; dup {
			continue
		}
		seen[r.DedupKey] = struct{}{}
		kept = append(kept, r)
	}
	return kept, len(records) - len(kept)
}
