package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"storedash/internal/config"
)

func newTestClient(t *testing.T, srv *httptest.Server, retries int) *Client {
	t.Helper()

	c, err := New(config.APIConfig{
		BaseURL:    srv.URL + "/",
		RetryMax:   retries,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return c
}

func TestRequest_BuildsQueryAndHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/products" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("search") != "shirt" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		for _, key := range []string{"status", "category", "keyword"} {
			if q.Has(key) {
				t.Errorf("expected %s to be omitted, got %q", key, q.Get(key))
			}
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("unexpected accept header: %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing request id")
		}
		if got := r.Header.Get("Cache-Control"); got != "no-cache" {
			t.Errorf("unexpected cache-control header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	var nilString *string
	c := newTestClient(t, srv, 0)
	body, err := c.Request(context.Background(), "/api/products", RequestOptions{
		Token: "tok",
		Query: map[string]any{
			"page":     2,
			"search":   "shirt",
			"status":   "",
			"category": nil,
			"keyword":  nilString,
		},
		Headers: map[string]string{"Cache-Control": "no-cache"},
	})
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if string(body) != `{"data":[]}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestRequest_NoTokenNoAuthorization(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Errorf("authorization header should be absent")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	body, err := newTestClient(t, srv, 0).Request(context.Background(), "/ping", RequestOptions{})
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if body != nil {
		t.Fatalf("expected nil body for empty response, got %q", body)
	}
}

func TestRequest_SendsJSONBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("unexpected content type: %q", got)
		}
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		if buf.String() != `{"maxResults":120}` {
			t.Errorf("unexpected body: %s", buf.String())
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 0).Request(context.Background(), "/api/media/sync", RequestOptions{
		Method: "post",
		Body:   map[string]int{"maxResults": 120},
	})
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
}

func TestRequest_HTTPErrorExtractsNestedFields(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"message":"bad filter","code":"E_FILTER","details":{"field":"status"}}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 0).Request(context.Background(), "/api/products", RequestOptions{})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if apiErr.Kind != KindHTTP || apiErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected kind/status: %s %d", apiErr.Kind, apiErr.Status)
	}
	if apiErr.KindName() != "HTTP_422" {
		t.Fatalf("unexpected kind name: %s", apiErr.KindName())
	}
	if apiErr.Message != "bad filter" || apiErr.Code != "E_FILTER" {
		t.Fatalf("unexpected message/code: %q %q", apiErr.Message, apiErr.Code)
	}
	details, ok := apiErr.Details.(map[string]any)
	if !ok || details["field"] != "status" {
		t.Fatalf("unexpected details: %#v", apiErr.Details)
	}
}

func TestRequest_HTTPErrorFallsBackToStatusText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<html>nope</html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 0).Request(context.Background(), "/missing", RequestOptions{})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Message != "Not Found" {
		t.Fatalf("unexpected message: %q", apiErr.Message)
	}
	if apiErr.Details != "<html>nope</html>" {
		t.Fatalf("unexpected details: %#v", apiErr.Details)
	}
}

func TestRequest_RateLimitNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"slow down"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 3).Request(context.Background(), "/api/products", RequestOptions{})
	if StatusOf(err) != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one call, got %d", got)
	}
	if UserMessage(err) != MsgRateLimited {
		t.Fatalf("unexpected user message: %q", UserMessage(err))
	}
}

func TestRequest_RetriesGatewayErrorsOnGet(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body, err := newTestClient(t, srv, 2).Request(context.Background(), "/api/products", RequestOptions{})
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if string(body) != `{"ok":true}` || calls.Load() != 2 {
		t.Fatalf("unexpected result %s after %d calls", body, calls.Load())
	}
}

func TestRequest_DoesNotRetryPost(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 2).Request(context.Background(), "/api/media/sync", RequestOptions{Method: http.MethodPost})
	if StatusOf(err) != http.StatusBadGateway {
		t.Fatalf("expected 502, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one call, got %d", calls.Load())
	}
}

func TestRequest_InvalidJSON(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 500)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(long))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 0).Request(context.Background(), "/api/products", RequestOptions{})
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindInvalidJSON {
		t.Fatalf("expected invalid JSON error, got %v", err)
	}
	details, ok := apiErr.Details.(InvalidJSONDetails)
	if !ok {
		t.Fatalf("unexpected details type %T", apiErr.Details)
	}
	if details.ContentType != "text/html" || len(details.Sample) != 300 {
		t.Fatalf("unexpected details: %q %d", details.ContentType, len(details.Sample))
	}
}

func TestRequest_CancelledIsAborted(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(t, srv, 2).Request(ctx, "/slow", RequestOptions{})
	if !IsAborted(err) {
		t.Fatalf("expected aborted error, got %v", err)
	}
	if UserMessage(err) != MsgAborted {
		t.Fatalf("unexpected message %q", UserMessage(err))
	}
}

func TestRequest_DeadlineIsNetworkError(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, srv, 0).Request(ctx, "/slow", RequestOptions{})
	if KindOf(err) != KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestRequest_ConnectionRefusedIsNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, srv, 0)
	srv.Close()

	_, err := c.Request(context.Background(), "/api/products", RequestOptions{})
	if KindOf(err) != KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
	if UserMessage(err) != MsgNetwork {
		t.Fatalf("unexpected message %q", UserMessage(err))
	}
}

func TestRequestAuthed_CallsOnUnauthorized(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message":"token expired"}`))
		}))

		var called int
		_, err := newTestClient(t, srv, 0).RequestAuthed(context.Background(), "/api/products", RequestOptions{Token: "old"}, func() {
			called++
		})
		srv.Close()

		if StatusOf(err) != status {
			t.Fatalf("expected status %d, got %v", status, err)
		}
		if called != 1 {
			t.Fatalf("expected onUnauthorized once for %d, got %d", status, called)
		}
	}
}

func TestRequestAuthed_OtherErrorsSkipCallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 0).RequestAuthed(context.Background(), "/api/products", RequestOptions{}, func() {
		t.Fatalf("onUnauthorized should not be called")
	})
	if StatusOf(err) != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %v", err)
	}
}

func TestRequestBlob(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-media-admin-key") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	blob, err := c.RequestBlob(context.Background(), "/api/public/media/assets/a1/blob", RequestOptions{
		Headers: map[string]string{"x-media-admin-key": "secret"},
	})
	if err != nil {
		t.Fatalf("RequestBlob returned error: %v", err)
	}
	if blob.ContentType != "image/png" || len(blob.Data) != 4 {
		t.Fatalf("unexpected blob: %+v", blob)
	}

	_, err = c.RequestBlob(context.Background(), "/api/public/media/assets/a1/blob", RequestOptions{})
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := New(config.APIConfig{BaseURL: "  "}); err == nil {
		t.Fatalf("expected error for blank base URL")
	}
}

func TestNew_NgrokHeader(t *testing.T) {
	t.Parallel()

	c, err := New(config.APIConfig{BaseURL: "https://abc.ngrok-free.app/"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if !c.ngrok || c.BaseURL() != "https://abc.ngrok-free.app" {
		t.Fatalf("unexpected client: %+v", c)
	}
}
