package source

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var errEmptyAmount = errors.New("empty amount")

var amountCleaner = strings.NewReplacer("$", "", ",", "", " ", "", " ", "", "USD", "", "usd", "")

// ParseAmount parses currency text such as "$1,234.50", "4.5" or "(2.00)".
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = amountCleaner.Replace(s)
	if s == "" || s == "-" {
		return decimal.Zero, errEmptyAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}
