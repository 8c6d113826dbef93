package normalize

import (
	"math"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// FilterByPrice keeps variants priced within [min, max]. With neither bound
// set the input is returned as is; with either set, unpriced variants drop.
func FilterByPrice(variants []Variant, minPrice, maxPrice *float64) []Variant {
	if minPrice == nil && maxPrice == nil {
		return variants
	}
	return lo.Filter(variants, func(v Variant, _ int) bool {
		if v.Price == nil {
			return false
		}
		if minPrice != nil && *v.Price < *minPrice {
			return false
		}
		if maxPrice != nil && *v.Price > *maxPrice {
			return false
		}
		return true
	})
}

// FormatMoney renders a price with two decimals, or "—" when absent.
func FormatMoney(price *float64) string {
	if price == nil || math.IsNaN(*price) || math.IsInf(*price, 0) {
		return "—"
	}
	return decimal.NewFromFloat(*price).StringFixed(2)
}
