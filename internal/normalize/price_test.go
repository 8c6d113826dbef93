package normalize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func pricePtr(f float64) *float64 { return &f }

func TestFilterByPrice(t *testing.T) {
	t.Parallel()

	variants := []Variant{
		{VariantID: "a", Price: pricePtr(5)},
		{VariantID: "b", Price: pricePtr(10)},
		{VariantID: "c"},
		{VariantID: "d", Price: pricePtr(20)},
	}
	ids := func(vs []Variant) []string {
		out := make([]string, 0, len(vs))
		for _, v := range vs {
			out = append(out, v.VariantID)
		}
		return out
	}

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(FilterByPrice(variants, nil, nil)))
	assert.Equal(t, []string{"b", "d"}, ids(FilterByPrice(variants, pricePtr(10), nil)))
	assert.Equal(t, []string{"a", "b"}, ids(FilterByPrice(variants, nil, pricePtr(10))))
	assert.Equal(t, []string{"b"}, ids(FilterByPrice(variants, pricePtr(6), pricePtr(19.99))))
	assert.Empty(t, FilterByPrice(variants, pricePtr(30), nil))
}

func TestFormatMoney(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "—", FormatMoney(nil))
	assert.Equal(t, "—", FormatMoney(pricePtr(math.NaN())))
	assert.Equal(t, "0.00", FormatMoney(pricePtr(0)))
	assert.Equal(t, "120.50", FormatMoney(pricePtr(120.5)))
	assert.Equal(t, "19.99", FormatMoney(pricePtr(19.99)))
	assert.Equal(t, "1.01", FormatMoney(pricePtr(1.005)))
}
