package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storedash/internal/api"
	"storedash/internal/cache"
	"storedash/internal/config"
)

func newCatalog(t *testing.T, handler http.HandlerFunc, opts Options) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := api.New(config.APIConfig{BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	return New(client, opts)
}

func TestListProducts_SendsFilters(t *testing.T) {
	t.Parallel()

	var captured *http.Request
	c := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r
		_, _ = w.Write([]byte(`{"data":[{"id":1},{"id":2}],"pagination":{"total":95}}`))
	}, Options{TokenSource: func() string { return "tok" }})

	listing, err := c.ListProducts(context.Background(), ListParams{
		Page:     3,
		PerPage:  20,
		Status:   "sale",
		Category: "cat-12",
		Search:   " shirt ",
	})
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(listing.Items) != 2 || listing.Pagination == nil || *listing.Pagination.Total != 95 {
		t.Fatalf("unexpected listing: %+v", listing)
	}

	q := captured.URL.Query()
	want := map[string]string{"page": "3", "per_page": "20", "status": "sale", "category": "12", "search": "shirt", "keyword": "shirt"}
	for k, v := range want {
		if q.Get(k) != v {
			t.Fatalf("query %s = %q, want %q (raw %s)", k, q.Get(k), v, captured.URL.RawQuery)
		}
	}
	if captured.Header.Get("Authorization") != "Bearer tok" {
		t.Fatalf("missing bearer token")
	}
	if captured.Header.Get("Cache-Control") != "no-cache" {
		t.Fatalf("missing cache-control header")
	}
}

func TestListParams_OmitsBlankFilters(t *testing.T) {
	t.Parallel()

	var rawQuery string
	c := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"data":[]}`))
	}, Options{})

	if _, err := c.ListProducts(context.Background(), ListParams{Page: 0, PerPage: 50, Status: StatusAll, Category: "abc", Search: "   "}); err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if rawQuery != "page=1&per_page=50" {
		t.Fatalf("unexpected query: %s", rawQuery)
	}
}

func TestListProducts_UnauthorizedCallsHook(t *testing.T) {
	t.Parallel()

	var called atomic.Int32
	c := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, Options{OnUnauthorized: func() { called.Add(1) }})

	_, err := c.ListProducts(context.Background(), ListParams{Page: 1})
	if !api.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if called.Load() != 1 {
		t.Fatalf("expected hook to run once, got %d", called.Load())
	}
}

func TestProductDetails_Unwraps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "data", body: `{"data":{"id":7,"name":"x"}}`, want: `{"id":7,"name":"x"}`},
		{name: "product", body: `{"product":{"id":7}}`, want: `{"id":7}`},
		{name: "data.data", body: `{"data":{"data":{"id":7}}}`, want: `{"id":7}`},
	}

	for _, tc := range tests {
		c := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/products/7" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			_, _ = w.Write([]byte(tc.body))
		}, Options{})

		got, err := c.ProductDetails(context.Background(), " 7 ")
		if err != nil {
			t.Fatalf("%s: ProductDetails: %v", tc.name, err)
		}
		if string(got) != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestProductDetails_EmptyPayload(t *testing.T) {
	t.Parallel()

	for _, body := range []string{``, `{"data":null}`, `{"data":[]}`, `{"id":7}`} {
		c := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}, Options{})

		if _, err := c.ProductDetails(context.Background(), "7"); !errors.Is(err, ErrEmptyProduct) {
			t.Fatalf("body %q: expected ErrEmptyProduct, got %v", body, err)
		}
	}
}

func TestVariantDetails(t *testing.T) {
	t.Parallel()

	c := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/products/variants/v1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":{"id":"v1","product_id":"p1","price":12,"stock_quantity":4}}`))
	}, Options{})

	v, err := c.VariantDetails(context.Background(), "v1")
	if err != nil {
		t.Fatalf("VariantDetails: %v", err)
	}
	if v.VariantID != "v1" || v.Price == nil || *v.Price != 12 || !v.IsActive {
		t.Fatalf("unexpected variant: %+v", v)
	}
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	var hook atomic.Int32
	c := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("per_page") != "1" || r.URL.Query().Get("page") != "1" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}, Options{OnUnauthorized: func() { hook.Add(1) }})

	if err := c.ValidateToken(context.Background(), "good"); err != nil {
		t.Fatalf("expected good token to validate: %v", err)
	}
	if err := c.ValidateToken(context.Background(), "bad"); !api.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if hook.Load() != 0 {
		t.Fatalf("validation must not trigger the unauthorized hook")
	}
}

type countingFetcher struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
}

func (f *countingFetcher) ProductDetails(ctx context.Context, productID string) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil, api.ContextError(ctx, http.MethodGet, "/api/products/"+productID)
	}
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"id":"` + productID + `"}`), nil
}

func (f *countingFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newLoader(t *testing.T, f *countingFetcher) *DetailsLoader {
	t.Helper()

	c, err := cache.New[string, json.RawMessage](8)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	return NewDetailsLoader(f, c)
}

func TestDetailsLoader_CachesAndDeduplicates(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{delay: 30 * time.Millisecond}
	l := newLoader(t, f)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			raw, err := l.ProductDetails(context.Background(), "p1")
			if err != nil || string(raw) != `{"id":"p1"}` {
				t.Errorf("unexpected result %s %v", raw, err)
			}
		}()
	}
	wg.Wait()

	if _, err := l.ProductDetails(context.Background(), "p1"); err != nil {
		t.Fatalf("cached read failed: %v", err)
	}
	if f.Calls() != 1 {
		t.Fatalf("expected a single upstream fetch, got %d", f.Calls())
	}
	if _, ok := l.Cached("p1"); !ok {
		t.Fatalf("expected p1 to be cached")
	}
}

func TestDetailsLoader_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{err: errors.New("boom")}
	l := newLoader(t, f)

	for range 2 {
		if _, err := l.ProductDetails(context.Background(), "p1"); err == nil {
			t.Fatalf("expected error")
		}
	}
	if f.Calls() != 2 {
		t.Fatalf("expected failures to be retried, got %d calls", f.Calls())
	}
}

func TestDetailsLoader_CancelledCallerIsAborted(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{delay: time.Second}
	l := newLoader(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := l.ProductDetails(ctx, "p1")
	if !api.IsAborted(err) {
		t.Fatalf("expected aborted error, got %v", err)
	}
	if _, ok := l.Cached("p1"); ok {
		t.Fatalf("aborted fetch must not populate the cache")
	}
}
