// Package media reads the public media directory and manages a merchant's
// own uploaded assets.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"storedash/internal/api"
	"storedash/internal/cache"
	"storedash/internal/lookup"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

const (
	publicPath   = "/api/public/media"
	merchantPath = "/api/media"

	adminKeyHeader = "x-media-admin-key"

	DefaultSort       = "lastAt_desc"
	DefaultTop        = 6
	DefaultLatest     = 10
	DefaultSyncLimit  = 120
	ResourceTypeAll   = "all"
	defaultStoreLimit = 24
)

var ErrNoAdminKey = errors.New("media admin key is not configured")

type Options struct {
	// AdminKey unlocks blob downloads and deletes on the public endpoints.
	AdminKey       string
	TokenSource    func() string
	OnUnauthorized func()
	// BlobCache may be nil, in which case blobs are fetched every time.
	BlobCache cache.Cache[string, *api.Blob]
}

type Client struct {
	api  *api.Client
	opts Options
}

func New(client *api.Client, opts Options) *Client {
	return &Client{api: client, opts: opts}
}

type StoresParams struct {
	Query string
	Sort  string
	Page  int
	Limit int
}

type AssetsParams struct {
	ResourceType string
	Query        string
	Page         int
	Limit        int
}

func (p AssetsParams) query() map[string]any {
	rt := strings.TrimSpace(p.ResourceType)
	if rt == ResourceTypeAll {
		rt = ""
	}
	return map[string]any{
		"resourceType": rt,
		"q":            strings.TrimSpace(p.Query),
		"page":         max(p.Page, 1),
		"limit":        limit(p.Limit),
	}
}

func limit(n int) int {
	if n <= 0 {
		return defaultStoreLimit
	}
	return n
}

func (c *Client) token() string {
	if c.opts.TokenSource == nil {
		return ""
	}
	return c.opts.TokenSource()
}

// Stores lists stores that have uploaded media.
func (c *Client) Stores(ctx context.Context, params StoresParams) (*StoresPage, error) {
	sort := strings.TrimSpace(params.Sort)
	if sort == "" {
		sort = DefaultSort
	}
	raw, err := c.api.Request(ctx, publicPath+"/stores", api.RequestOptions{
		Query: map[string]any{
			"q":     strings.TrimSpace(params.Query),
			"sort":  sort,
			"page":  max(params.Page, 1),
			"limit": limit(params.Limit),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list media stores: %w", err)
	}

	doc := gjson.ParseBytes(raw)
	items, _ := lookup.FirstArray(doc, "stores", "items", "data")
	return &StoresPage{
		Total:  num(doc, "total"),
		Stores: lo.Map(items, func(r gjson.Result, _ int) StoreSummary { return parseStoreSummary(r) }),
	}, nil
}

// Overview returns directory-wide counters, the most recent uploader and the
// latest assets.
func (c *Client) Overview(ctx context.Context, top, latestLimit int) (*Overview, error) {
	if top <= 0 {
		top = DefaultTop
	}
	if latestLimit <= 0 {
		latestLimit = DefaultLatest
	}
	raw, err := c.api.Request(ctx, publicPath+"/overview", api.RequestOptions{
		Query: map[string]any{"top": top, "latestLimit": latestLimit},
	})
	if err != nil {
		return nil, fmt.Errorf("media overview: %w", err)
	}

	doc := gjson.ParseBytes(raw)
	stats := doc.Get("stats")
	ov := &Overview{
		Stats: Stats{
			TotalStores: num(stats, "totalStores"),
			TotalAssets: num(stats, "totalAssets"),
			FirstAt:     str(stats, "firstAt"),
			LastAt:      str(stats, "lastAt"),
		},
		LatestAssets: parseAssets(doc, "latestAssets"),
	}
	if last := doc.Get("highlights.lastUploader"); last.IsObject() {
		s := parseStoreSummary(last)
		ov.LastUploader = &s
	}
	return ov, nil
}

// StoreAssets pages through one store's public assets.
func (c *Client) StoreAssets(ctx context.Context, storeID string, params AssetsParams) (*AssetsPage, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, errors.New("store ID is required")
	}
	raw, err := c.api.Request(ctx, publicPath+"/stores/"+url.PathEscape(storeID)+"/assets", api.RequestOptions{
		Query: params.query(),
	})
	if err != nil {
		return nil, fmt.Errorf("store %s assets: %w", storeID, err)
	}
	return parseAssetsPage(gjson.ParseBytes(raw), storeID), nil
}

// MerchantAssets pages through the signed-in merchant's assets.
func (c *Client) MerchantAssets(ctx context.Context, params AssetsParams) (*AssetsPage, error) {
	raw, err := c.api.RequestAuthed(ctx, merchantPath+"/assets", api.RequestOptions{
		Token: c.token(),
		Query: params.query(),
	}, c.opts.OnUnauthorized)
	if err != nil {
		return nil, fmt.Errorf("merchant assets: %w", err)
	}
	return parseAssetsPage(gjson.ParseBytes(raw), ""), nil
}

func parseAssetsPage(doc gjson.Result, storeID string) *AssetsPage {
	page := &AssetsPage{
		Total:   num(doc, "total"),
		Items:   parseAssets(doc, "items", "assets", "data"),
		StoreID: str(doc, "storeId", "store.storeId"),
	}
	if page.StoreID == "" {
		page.StoreID = storeID
	}
	if store := doc.Get("store"); store.IsObject() {
		info := parseStoreInfo(store)
		page.Store = &info
	}
	if summary := doc.Get("summary"); summary.IsObject() {
		s := parseStoreSummary(summary)
		if s.StoreID == "" {
			s.StoreID = page.StoreID
		}
		page.Summary = &s
	}
	return page
}

// Sync asks the backend to pull the merchant's assets from the media host.
func (c *Client) Sync(ctx context.Context, resourceType string, maxResults int) (*SyncResult, error) {
	resourceType = strings.TrimSpace(resourceType)
	if resourceType == "" {
		resourceType = ResourceTypeAll
	}
	if maxResults <= 0 {
		maxResults = DefaultSyncLimit
	}
	raw, err := c.api.RequestAuthed(ctx, merchantPath+"/sync", api.RequestOptions{
		Method: http.MethodPost,
		Token:  c.token(),
		Body:   map[string]any{"resourceType": resourceType, "maxResults": maxResults},
	}, c.opts.OnUnauthorized)
	if err != nil {
		return nil, fmt.Errorf("media sync: %w", err)
	}

	res := &SyncResult{Errors: []string{}}
	for _, e := range gjson.GetBytes(raw, "errors").Array() {
		if s, ok := lookup.FirstString(e, "message", "error"); ok {
			res.Errors = append(res.Errors, s)
		} else if s, ok := lookup.String(e); ok {
			res.Errors = append(res.Errors, s)
		} else {
			res.Errors = append(res.Errors, e.Raw)
		}
	}
	if len(res.Errors) > 0 {
		slog.WarnContext(ctx, "media sync reported errors", "count", len(res.Errors))
	}
	return res, nil
}

func (c *Client) adminHeaders() (map[string]string, error) {
	key := strings.TrimSpace(c.opts.AdminKey)
	if key == "" {
		return nil, ErrNoAdminKey
	}
	return map[string]string{adminKeyHeader: key}, nil
}

// AssetBlob downloads an asset's bytes. Results are cached by asset id.
func (c *Client) AssetBlob(ctx context.Context, assetID string) (*api.Blob, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return nil, errors.New("asset ID is required")
	}
	if c.opts.BlobCache != nil {
		if blob, err := c.opts.BlobCache.Get(assetID); err == nil {
			return blob, nil
		}
	}
	headers, err := c.adminHeaders()
	if err != nil {
		return nil, err
	}

	blob, err := c.api.RequestBlob(ctx, publicPath+"/assets/"+url.PathEscape(assetID)+"/blob", api.RequestOptions{
		Headers: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("asset %s blob: %w", assetID, err)
	}
	if c.opts.BlobCache != nil {
		c.opts.BlobCache.Put(assetID, blob)
	}
	return blob, nil
}

// DeleteAsset removes an asset from the public directory.
func (c *Client) DeleteAsset(ctx context.Context, assetID string) error {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return errors.New("asset ID is required")
	}
	headers, err := c.adminHeaders()
	if err != nil {
		return err
	}

	if _, err := c.api.Request(ctx, publicPath+"/assets/"+url.PathEscape(assetID), api.RequestOptions{
		Method:  http.MethodDelete,
		Headers: headers,
	}); err != nil {
		return fmt.Errorf("delete asset %s: %w", assetID, err)
	}
	if c.opts.BlobCache != nil {
		c.opts.BlobCache.Remove(assetID)
	}
	slog.InfoContext(ctx, "deleted media asset", "asset_id", assetID)
	return nil
}
