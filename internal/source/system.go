package source

import (
	"fmt"
	"strings"
)

// System identifies an upstream POS telemetry provider.
type System string

const (
	Cantaloupe System = "cantaloupe"
	Nayax      System = "nayax"
	HahaAI     System = "haha_ai"
)

// Systems lists every supported provider in catalog column order.
func Systems() []System { return []System{Cantaloupe, HahaAI, Nayax} }

// ParseSystem accepts the system names used in config and on the command line.
func ParseSystem(s string) (System, error) {
	switch strings.ToLower(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(s))) {
	case "cantaloupe", "usat":
		return Cantaloupe, nil
	case "nayax":
		return Nayax, nil
	case "haha_ai", "haha", "hahaai":
		return HahaAI, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// Label is the provider's display name; catalog alias columns are "<Label>_Name".
func (s System) Label() string {
	switch s {
	case Cantaloupe:
		return "Cantaloupe"
	case Nayax:
		return "Nayax"
	case HahaAI:
		return "Haha_AI"
	}
	return string(s)
}
