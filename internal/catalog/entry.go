// Package catalog holds the master product catalog and resolves raw POS product names to it.
package catalog

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/jask/vendrecon/internal/source"
)

// UnmappedSKU is reserved for products that match nothing in the catalog.
const UnmappedSKU = "UNMAPPED"

// UnknownType is used when a product has no type.
const UnknownType = "Unknown"

// Entry is one catalog row. Cost is per unit.
type Entry struct {
	SKU     string                   `json:"master_sku" validate:"required,max=64,ne=UNMAPPED"`
	Name    string                   `json:"master_name" validate:"required"`
	Family  string                   `json:"product_family"`
	Type    string                   `json:"type"`
	Cost    decimal.Decimal          `json:"cost" validate:"gte=0"`
	HasCost bool                     `json:"has_cost"`
	Aliases map[source.System]string `json:"aliases"`
}

// TypeOrUnknown returns the entry type, defaulting to UnknownType.
func (e Entry) TypeOrUnknown() string {
	if t := strings.TrimSpace(e.Type); t != "" {
		return t
	}
	return UnknownType
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Validate checks the entry's required fields and cost bounds.
func (e Entry) Validate() error {
	return validate.Struct(e)
}
