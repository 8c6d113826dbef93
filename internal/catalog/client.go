// Package catalog calls the commerce product endpoints and hands payloads to
// the normalizer.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"storedash/internal/api"
	"storedash/internal/lookup"
	"storedash/internal/normalize"

	"github.com/tidwall/gjson"
)

const (
	productsPath = "/api/products"
	variantsPath = "/api/products/variants"

	StatusAll = "all"
)

var ErrEmptyProduct = errors.New("empty product payload")

var noCache = map[string]string{"Cache-Control": "no-cache"}

// Options wires the catalog to the session. TokenSource is read on every call
// so a logout takes effect immediately.
type Options struct {
	TokenSource    func() string
	OnUnauthorized func()
}

type Client struct {
	api  *api.Client
	opts Options
}

func New(client *api.Client, opts Options) *Client {
	return &Client{api: client, opts: opts}
}

// ListParams are the upstream filters. Blank values are not sent.
type ListParams struct {
	Page     int
	PerPage  int
	Status   string
	Category string
	Search   string
}

// Query renders p as request query values; blank entries are dropped by the
// api client.
func (p ListParams) Query() map[string]any {
	q := map[string]any{
		"page":     max(p.Page, 1),
		"per_page": nil,
		"status":   nil,
		"category": nil,
		"search":   strings.TrimSpace(p.Search),
		"keyword":  strings.TrimSpace(p.Search),
	}
	if p.PerPage > 0 {
		q["per_page"] = p.PerPage
	}
	if status := strings.TrimSpace(p.Status); status != "" && status != StatusAll {
		q["status"] = status
	}
	if category := DigitsOnly(p.Category); category != "" {
		if n, err := strconv.Atoi(category); err == nil {
			q["category"] = n
		} else {
			q["category"] = category
		}
	}
	return q
}

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func (c *Client) token() string {
	if c.opts.TokenSource == nil {
		return ""
	}
	return c.opts.TokenSource()
}

// ListProducts fetches one page of products.
func (c *Client) ListProducts(ctx context.Context, params ListParams) (*normalize.Listing, error) {
	raw, err := c.api.RequestAuthed(ctx, productsPath, api.RequestOptions{
		Token:   c.token(),
		Query:   params.Query(),
		Headers: noCache,
	}, c.opts.OnUnauthorized)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	listing := normalize.ParseListing(raw)
	slog.DebugContext(ctx, "listed products", "page", params.Page, "items", len(listing.Items))
	return &listing, nil
}

// ProductDetails fetches one product, unwrapping "data", "product" or
// "data.data" envelopes.
func (c *Client) ProductDetails(ctx context.Context, productID string) (json.RawMessage, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, errors.New("product ID is required")
	}

	raw, err := c.api.RequestAuthed(ctx, productsPath+"/"+url.PathEscape(productID), api.RequestOptions{
		Token:   c.token(),
		Headers: noCache,
	}, c.opts.OnUnauthorized)
	if err != nil {
		return nil, fmt.Errorf("product %s details: %w", productID, err)
	}

	product, ok := unwrapProduct(raw)
	if !ok {
		return nil, fmt.Errorf("product %s details: %w", productID, ErrEmptyProduct)
	}
	return product, nil
}

func unwrapProduct(raw []byte) (json.RawMessage, bool) {
	if !gjson.ValidBytes(raw) {
		return nil, false
	}
	doc := gjson.ParseBytes(raw)
	product, ok := lookup.FirstFunc(doc, func(r gjson.Result) (gjson.Result, bool) {
		return r, r.IsObject()
	}, "data", "product")
	if !ok {
		return nil, false
	}
	// {"data":{"data":{...}}}
	if inner := product.Get("data"); inner.IsObject() && normalize.ExtractProductID(product) == nil {
		product = inner
	}
	return json.RawMessage(product.Raw), true
}

// VariantDetails fetches a single variant and normalizes it.
func (c *Client) VariantDetails(ctx context.Context, variantID string) (normalize.Variant, error) {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return normalize.Variant{}, errors.New("variant ID is required")
	}

	raw, err := c.api.RequestAuthed(ctx, variantsPath+"/"+url.PathEscape(variantID), api.RequestOptions{
		Token:   c.token(),
		Headers: noCache,
	}, c.opts.OnUnauthorized)
	if err != nil {
		return normalize.Variant{}, fmt.Errorf("variant %s details: %w", variantID, err)
	}

	v, ok := normalize.NormalizeVariantPayload(raw)
	if !ok {
		return normalize.Variant{}, fmt.Errorf("variant %s details: empty variant payload", variantID)
	}
	return v, nil
}

// ValidateToken checks a candidate token with the smallest possible listing
// request. OnUnauthorized is not called for a rejected candidate.
func (c *Client) ValidateToken(ctx context.Context, token string) error {
	_, err := c.api.Request(ctx, productsPath, api.RequestOptions{
		Token: token,
		Query: map[string]any{"page": 1, "per_page": 1},
	})
	if err != nil {
		if api.StatusOf(err) == http.StatusUnauthorized || api.StatusOf(err) == http.StatusForbidden {
			return fmt.Errorf("token rejected: %w", err)
		}
		return fmt.Errorf("validate token: %w", err)
	}
	return nil
}
