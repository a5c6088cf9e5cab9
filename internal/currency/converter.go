// Package currency converts document amounts into the tenant's base currency
// for threshold matching.
package currency

import "fmt"

// StaticConverter converts using a fixed rate table from configuration.
// Rates are expressed as base-currency units per one unit of the foreign
// currency. Good enough for threshold matching; a live-rate adapter can
// replace it behind the same interface.
type StaticConverter struct {
	base  string
	rates map[string]float64
}

// NewStaticConverter creates a converter for the given base currency and rates
func NewStaticConverter(base string, rates map[string]float64) *StaticConverter {
	return &StaticConverter{
		base:  base,
		rates: rates,
	}
}

// ToBase converts an amount into the base currency
func (c *StaticConverter) ToBase(amount float64, cur string) (float64, error) {
	if cur == "" || cur == c.base {
		return amount, nil
	}
	rate, ok := c.rates[cur]
	if !ok {
		return 0, fmt.Errorf("no conversion rate configured for currency %s", cur)
	}
	return amount * rate, nil
}

// Base returns the configured base currency code
func (c *StaticConverter) Base() string {
	return c.base
}
