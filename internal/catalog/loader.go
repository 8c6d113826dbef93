package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"storedash/internal/api"
	"storedash/internal/cache"
	"storedash/internal/normalize"

	"golang.org/x/sync/singleflight"
)

type productFetcher interface {
	ProductDetails(ctx context.Context, productID string) (json.RawMessage, error)
}

// DetailsLoader serves product details from a bounded cache and collapses
// concurrent fetches of the same id into one request.
type DetailsLoader struct {
	fetcher productFetcher
	cache   cache.Cache[string, json.RawMessage]
	group   singleflight.Group
}

var _ normalize.ProductLoader = (*DetailsLoader)(nil)

func NewDetailsLoader(fetcher productFetcher, c cache.Cache[string, json.RawMessage]) *DetailsLoader {
	return &DetailsLoader{fetcher: fetcher, cache: c}
}

// Cached returns a previously loaded product without fetching.
func (l *DetailsLoader) Cached(productID string) (json.RawMessage, bool) {
	raw, err := l.cache.Get(productID)
	return raw, err == nil
}

// ProductDetails returns cached details or fetches them. The shared fetch runs
// under the first caller's context; a waiter whose leader was cancelled starts
// a fresh fetch instead of inheriting the abort.
func (l *DetailsLoader) ProductDetails(ctx context.Context, productID string) (json.RawMessage, error) {
	for {
		if raw, err := l.cache.Get(productID); err == nil {
			return raw, nil
		} else if !errors.Is(err, cache.ErrNotFound) {
			return nil, err
		}

		ch := l.group.DoChan(productID, func() (any, error) {
			raw, err := l.fetcher.ProductDetails(ctx, productID)
			if err != nil {
				return nil, err
			}
			l.cache.Put(productID, raw)
			return raw, nil
		})

		select {
		case <-ctx.Done():
			return nil, api.ContextError(ctx, http.MethodGet, productsPath+"/"+productID)
		case res := <-ch:
			if res.Err != nil {
				if api.IsAborted(res.Err) && ctx.Err() == nil {
					slog.DebugContext(ctx, "shared product fetch was cancelled, retrying", "product_id", productID)
					continue
				}
				return nil, res.Err
			}
			return res.Val.(json.RawMessage), nil
		}
	}
}
