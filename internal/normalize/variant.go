// Package normalize adapts loosely-typed commerce payloads into canonical
// records. Nothing here returns an error: missing or malformed fields degrade
// to nil, and entries without an identity are dropped.
package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"storedash/internal/lookup"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

type RefType string

const (
	RefVariant RefType = "variant"
	RefProduct RefType = "product"

	productRefPrefix = "product:"
)

// Variant is the canonical, purchasable unit of a product.
type Variant struct {
	ProductID        *string           `json:"productId"`
	ProductName      string            `json:"productName"`
	CategoryName     *string           `json:"categoryName"`
	VariantID        string            `json:"variantId" jsonschema:"minLength=1"`
	Name             string            `json:"name"`
	SKU              *string           `json:"sku"`
	Color            *string           `json:"color"`
	Size             *string           `json:"size"`
	Price            *float64          `json:"price" jsonschema:"minimum=0"`
	Stock            *int              `json:"stock"`
	Status           *string           `json:"status"`
	IsActive         bool              `json:"isActive"`
	Attributes       map[string]string `json:"attributes"`
	ImageURL         *string           `json:"imageUrl"`
	ProductImageURL  *string           `json:"productImageUrl"`
	IsDefaultVariant bool              `json:"isDefaultVariant"`
	RefType          RefType           `json:"refType" jsonschema:"enum=variant,enum=product"`
	NeedsResolution  bool              `json:"needsResolution"`
	Raw              json.RawMessage   `json:"raw,omitempty"`
}

// Options controls ExtractVariants.
type Options struct {
	// IncludeDefault synthesizes one product-level variant when no real
	// variant survives extraction.
	IncludeDefault bool
	// Now stamps placeholder identities. Defaults to time.Now.
	Now func() time.Time
}

var (
	variantArrayPaths = []string{"variants.data", "variants", "skus.data", "skus", "options.variants"}
	variantIDPaths    = []string{"id", "variant_id", "variantId"}
	fallbackIDPaths   = []string{"default_variant_id", "defaultVariantId", "variant_id", "variantId"}
	variantPricePaths = []string{"price", "sale_price", "regular_price", "base_price"}
	productPricePaths = []string{"price", "sale_price", "regular_price"}
	variantStockPaths = []string{"stock_quantity", "quantity", "stock", "inventory_quantity"}
	productStockPaths = []string{"stock_quantity", "quantity", "stock"}
	unlimitedPaths    = []string{"unlimited_quantity", "unlimited"}
	availablePaths    = []string{"is_available", "available"}
	statusPaths       = []string{"status", "state", "product_status"}
	namePaths         = []string{"name", "title"}
	attributePaths    = []string{"attributes", "options", "values"}
	variantSKUPaths   = []string{"sku", "sku_code", "skuCode", "code", "barcode", "identifier"}
	productSKUPaths   = []string{"sku", "sku_code", "skuCode"}

	blockedStatuses = []string{"draft", "hidden", "deleted", "unavailable"}
	colorAliases    = []string{"color", "colour", "لون"}
	sizeAliases     = []string{"size", "مقاس"}
)

// ExtractVariants maps a product payload to canonical variants in source
// order. Calling it twice on the same payload (with the same Now) yields equal
// results.
func ExtractVariants(product []byte, opts Options) []Variant {
	return extractVariants(parse(product), opts)
}

func extractVariants(product gjson.Result, opts Options) []Variant {
	entries, _ := lookup.FirstArray(product, variantArrayPaths...)

	productID := ExtractProductID(product)
	pname := extractName(product)
	category := ExtractCategoryName(product)
	productImage := FirstImageURL(product)

	out := make([]Variant, 0, len(entries))
	for _, entry := range entries {
		variantID, ok := lookup.FirstString(entry, variantIDPaths...)
		if !ok {
			continue
		}

		stock := firstInt(entry, variantStockPaths...)
		unlimited, _ := lookup.FirstFunc(entry, lookup.Bool, unlimitedPaths...)
		status := lowerTrim(firstStringValue(entry, statusPaths...))
		if status == "" {
			status = lowerTrim(firstStringValue(product, "status"))
		}

		price := firstAmount(entry, variantPricePaths...)
		if price == nil {
			price = firstAmount(product, "price")
		}

		name, _ := lookup.FirstString(entry, namePaths...)
		if name == "" {
			name = pname
		}

		attrSource := lookup.First(entry, attributePaths...)
		if !attrSource.Exists() {
			attrSource = lookup.First(product, "options")
		}
		attrs := parseAttributes(attrSource)

		image := FirstImageURL(entry)
		if image == nil {
			image = productImage
		}

		out = append(out, Variant{
			ProductID:       productID,
			ProductName:     pname,
			CategoryName:    category,
			VariantID:       variantID,
			Name:            name,
			SKU:             extractSKU(entry, product),
			Color:           attrs.pick(colorAliases),
			Size:            attrs.pick(sizeAliases),
			Price:           price,
			Stock:           stock,
			Status:          nonEmpty(status),
			IsActive:        isActive(available(entry), status, stock, unlimited),
			Attributes:      attrs.toMap(),
			ImageURL:        image,
			ProductImageURL: productImage,
			RefType:         RefVariant,
			Raw:             json.RawMessage(entry.Raw),
		})
	}

	if len(out) > 0 || !opts.IncludeDefault {
		return out
	}
	return []Variant{defaultVariant(product, opts)}
}

// defaultVariant stands in for a product that exposes no usable variants.
func defaultVariant(product gjson.Result, opts Options) Variant {
	productID := ExtractProductID(product)
	fallbackID, _ := lookup.FirstString(product, fallbackIDPaths...)

	var variantID string
	switch {
	case productID != nil:
		variantID = productRefPrefix + *productID
	case fallbackID != "":
		variantID = fallbackID
	default:
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		variantID = productRefPrefix + strconv.FormatInt(now().UnixMilli(), 10)
	}

	refType := RefVariant
	if strings.HasPrefix(variantID, productRefPrefix) {
		refType = RefProduct
	}

	stock := firstInt(product, productStockPaths...)
	unlimited, _ := lookup.FirstFunc(product, lookup.Bool, unlimitedPaths...)
	status := lowerTrim(firstStringValue(product, "status"))
	name := extractName(product)
	image := FirstImageURL(product)

	return Variant{
		ProductID:        productID,
		ProductName:      name,
		CategoryName:     ExtractCategoryName(product),
		VariantID:        variantID,
		Name:             name,
		SKU:              extractSKU(gjson.Result{}, product),
		Price:            firstAmount(product, productPricePaths...),
		Stock:            stock,
		Status:           nonEmpty(status),
		IsActive:         isActive(available(product), status, stock, unlimited),
		Attributes:       map[string]string{},
		ImageURL:         image,
		ProductImageURL:  image,
		IsDefaultVariant: true,
		RefType:          refType,
		NeedsResolution:  productID == nil && fallbackID == "",
		Raw:              json.RawMessage(product.Raw),
	}
}

// NormalizeVariantPayload maps a single-variant endpoint payload, optionally
// wrapped in "data". It reports false when the payload carries no variant id.
func NormalizeVariantPayload(raw []byte) (Variant, bool) {
	doc := parse(raw)
	v := doc
	if data := doc.Get("data"); data.IsObject() {
		v = data
	}
	if !v.IsObject() {
		return Variant{}, false
	}
	variantID, ok := lookup.FirstString(v, variantIDPaths...)
	if !ok {
		return Variant{}, false
	}

	stock := firstInt(v, variantStockPaths...)
	unlimited, _ := lookup.FirstFunc(v, lookup.Bool, unlimitedPaths...)
	status := lowerTrim(firstStringValue(v, statusPaths...))
	attrs := parseAttributes(lookup.First(v, attributePaths...))
	productName, _ := lookup.FirstString(v, "product_name", "productName")
	name, _ := lookup.FirstString(v, namePaths...)

	return Variant{
		ProductID:   firstString(v, "product_id", "productId"),
		ProductName: productName,
		VariantID:   variantID,
		Name:        name,
		SKU:         extractSKU(v, gjson.Result{}),
		Color:       attrs.pick(colorAliases),
		Size:        attrs.pick(sizeAliases),
		Price:       firstAmount(v, variantPricePaths...),
		Stock:       stock,
		Status:      nonEmpty(status),
		IsActive:    isActive(available(v), status, stock, unlimited),
		Attributes:  attrs.toMap(),
		ImageURL:    FirstImageURL(v),
		RefType:     RefVariant,
		Raw:         json.RawMessage(v.Raw),
	}, true
}

// isActive: available, visible and not out of stock. Unlimited stock is never
// out of stock; unknown stock is not either.
func isActive(available bool, status string, stock *int, unlimited bool) bool {
	outOfStock := !unlimited && stock != nil && *stock <= 0
	visible := !lo.Contains(blockedStatuses, status)
	return available && visible && !outOfStock
}

// available is false only on an explicit false.
func available(entity gjson.Result) bool {
	v, ok := lookup.FirstFunc(entity, lookup.Bool, availablePaths...)
	return !ok || v
}

// amount is lookup.Amount restricted to non-negative values.
func amount(r gjson.Result) (float64, bool) {
	f, ok := lookup.Amount(r)
	return f, ok && f >= 0
}

func extractSKU(variant, product gjson.Result) *string {
	if sku, ok := lookup.FirstString(variant, variantSKUPaths...); ok {
		return &sku
	}
	return firstString(product, productSKUPaths...)
}

func extractName(product gjson.Result) string {
	name, _ := lookup.FirstString(product, namePaths...)
	return name
}

func lowerTrim(s string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(strings.TrimSpace(s)))
}

func parse(raw []byte) gjson.Result {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}
	}
	return gjson.ParseBytes(raw)
}

func firstStringValue(doc gjson.Result, paths ...string) string {
	s, _ := lookup.FirstString(doc, paths...)
	return s
}

func firstString(doc gjson.Result, paths ...string) *string {
	if s, ok := lookup.FirstString(doc, paths...); ok {
		return &s
	}
	return nil
}

func firstInt(doc gjson.Result, paths ...string) *int {
	if n, ok := lookup.FirstFunc(doc, lookup.Int, paths...); ok {
		return &n
	}
	return nil
}

func firstAmount(doc gjson.Result, paths ...string) *float64 {
	if f, ok := lookup.FirstFunc(doc, amount, paths...); ok {
		return &f
	}
	return nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
