package normalize

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Ref is either a Resolved variant, whose identity is stable, or an
// Unresolved placeholder that needs a product-detail fetch to confirm it.
type Ref interface {
	Variant() Variant
	sealed()
}

type Resolved struct{ V Variant }

type Unresolved struct{ V Variant }

func (r Resolved) Variant() Variant   { return r.V }
func (r Unresolved) Variant() Variant { return r.V }
func (Resolved) sealed()              {}
func (Unresolved) sealed()            {}

// RefOf classifies v by its NeedsResolution flag.
func RefOf(v Variant) Ref {
	if v.NeedsResolution {
		return Unresolved{V: v}
	}
	return Resolved{V: v}
}

// ProductLoader fetches the detail payload of one product.
type ProductLoader interface {
	ProductDetails(ctx context.Context, productID string) (json.RawMessage, error)
}

// Resolve upgrades an Unresolved ref using the product's detail payload. It is
// best-effort: any failure returns ref unchanged.
func Resolve(ctx context.Context, ref Ref, loader ProductLoader) Ref {
	u, ok := ref.(Unresolved)
	if !ok || loader == nil {
		return ref
	}
	if u.V.ProductID == nil || *u.V.ProductID == "" {
		return ref
	}

	raw, err := loader.ProductDetails(ctx, *u.V.ProductID)
	if err != nil {
		slog.DebugContext(ctx, "variant resolution failed", "product_id", *u.V.ProductID, "error", err)
		return ref
	}
	for _, v := range ExtractVariants(raw, Options{IncludeDefault: true}) {
		if !v.NeedsResolution {
			return Resolved{V: v}
		}
	}
	return ref
}

// ResolveVariant is Resolve for callers holding a plain Variant.
func ResolveVariant(ctx context.Context, v Variant, loader ProductLoader) Variant {
	return Resolve(ctx, RefOf(v), loader).Variant()
}
