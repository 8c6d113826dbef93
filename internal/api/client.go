package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storedash/internal/config"
	"storedash/internal/lookup"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxBodyBytes = 16 << 20
	sampleLen           = 300
)

// Client issues JSON and blob requests against the upstream API and turns
// every failure into an *Error.
type Client struct {
	baseURL    string
	ngrok      bool
	maxBody    int64
	httpClient *retryablehttp.Client
	tracer     trace.Tracer
	logger     *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// RequestOptions mirrors the per-call knobs of the upstream contract.
// Query values that are nil, nil pointers or blank strings are omitted.
type RequestOptions struct {
	Method  string
	Token   string
	Query   map[string]any
	Body    any
	Headers map[string]string
}

// Blob is a raw, non-JSON response body.
type Blob struct {
	ContentType string
	Data        []byte
}

// New creates a client for the API rooted at cfg.BaseURL.
func New(cfg config.APIConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("API base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse API base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	c := &Client{
		baseURL: baseURL,
		ngrok:   strings.Contains(baseURL, "ngrok"),
		maxBody: maxBody,
		tracer:  otel.Tracer("storedash/internal/api"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = httpClient
	rc.RetryMax = max(cfg.RetryMax, 0)
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.CheckRetry = retryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = c.logger
	c.httpClient = rc

	return c, nil
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request performs a JSON request. It returns nil for an empty success body
// and the raw JSON otherwise.
func (c *Client) Request(ctx context.Context, path string, opts RequestOptions) (json.RawMessage, error) {
	resp, err := c.do(ctx, path, opts, "application/json")
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(resp.body)) == 0 {
		return nil, nil
	}
	if !json.Valid(resp.body) {
		return nil, &Error{
			Kind:    KindInvalidJSON,
			Method:  resp.method,
			Path:    path,
			Status:  resp.status,
			Code:    string(KindInvalidJSON),
			Message: "invalid JSON response from API",
			Details: InvalidJSONDetails{
				ContentType: resp.contentType,
				Sample:      sample(resp.body),
			},
		}
	}
	return resp.body, nil
}

// RequestAuthed behaves like Request and additionally calls onUnauthorized
// when upstream answers 401 or 403. The error is still returned.
func (c *Client) RequestAuthed(ctx context.Context, path string, opts RequestOptions, onUnauthorized func()) (json.RawMessage, error) {
	body, err := c.Request(ctx, path, opts)
	if err != nil && onUnauthorized != nil && IsUnauthorized(err) {
		onUnauthorized()
	}
	return body, err
}

// RequestBlob fetches a binary body with the same error taxonomy as Request.
func (c *Client) RequestBlob(ctx context.Context, path string, opts RequestOptions) (*Blob, error) {
	resp, err := c.do(ctx, path, opts, "*/*")
	if err != nil {
		return nil, err
	}
	return &Blob{ContentType: resp.contentType, Data: resp.body}, nil
}

type response struct {
	method      string
	status      int
	contentType string
	body        []byte
}

func (c *Client) do(ctx context.Context, path string, opts RequestOptions, accept string) (*response, error) {
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := c.tracer.Start(ctx, "api "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	target, err := c.buildURL(path, opts.Query)
	if err != nil {
		return nil, fmt.Errorf("build request URL: %w", err)
	}

	var payload []byte
	if opts.Body != nil {
		payload, err = json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(withMethod(ctx, method), method, target, payload)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}
	if c.ngrok {
		req.Header.Set("ngrok-skip-browser-warning", "1")
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	c.logger.DebugContext(ctx, "calling upstream API", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(span, transportError(ctx, method, path, err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, c.fail(span, transportError(ctx, method, path, fmt.Errorf("read response: %w", err)))
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	out := &response{
		method:      method,
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := statusError(method, path, resp, body)
		c.logger.WarnContext(ctx, "upstream API returned an error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"code", apiErr.Code,
		)
		return nil, c.fail(span, apiErr)
	}

	return out, nil
}

func (c *Client) fail(span trace.Span, err *Error) *Error {
	span.SetAttributes(attribute.String("storedash.error.kind", err.KindName()))
	if err.Kind != KindAborted {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.KindName())
	}
	return err
}

func (c *Client) buildURL(path string, query map[string]any) (string, error) {
	raw := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		raw = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		values := u.Query()
		for k, v := range query {
			if s, ok := queryValue(v); ok {
				values.Set(k, s)
			}
		}
		u.RawQuery = values.Encode()
	}
	return u.String(), nil
}

func queryValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case *string:
		if t == nil {
			return "", false
		}
		return queryValue(*t)
	case int:
		return strconv.Itoa(t), true
	case *int:
		if t == nil {
			return "", false
		}
		return strconv.Itoa(*t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case *float64:
		if t == nil {
			return "", false
		}
		return strconv.FormatFloat(*t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case fmt.Stringer:
		return queryValue(t.String())
	default:
		return queryValue(fmt.Sprint(t))
	}
}

func transportError(ctx context.Context, method, path string, err error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return &Error{
			Kind:    KindAborted,
			Method:  method,
			Path:    path,
			Code:    string(KindAborted),
			Message: "request cancelled",
			Err:     err,
		}
	}
	return &Error{
		Kind:    KindNetwork,
		Method:  method,
		Path:    path,
		Code:    string(KindNetwork),
		Message: "network error while calling API",
		Details: map[string]string{"message": err.Error()},
		Err:     err,
	}
}

// ContextError classifies a finished context the way an interrupted request
// is classified: cancellation is KindAborted, anything else KindNetwork.
func ContextError(ctx context.Context, method, path string) *Error {
	return transportError(ctx, method, path, ctx.Err())
}

// statusError extracts message, code and details from the several error
// shapes upstream services use.
func statusError(method, path string, resp *http.Response, body []byte) *Error {
	apiErr := &Error{
		Kind:   KindHTTP,
		Method: method,
		Path:   path,
		Status: resp.StatusCode,
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && gjson.ValidBytes(trimmed) {
		doc := gjson.ParseBytes(trimmed)
		apiErr.Message, _ = lookup.FirstString(doc, "message", "error.message", "meta.message", "error")
		apiErr.Code, _ = lookup.FirstString(doc, "code", "meta.code", "error.code")
		if details := lookup.First(doc, "details", "meta.details", "error.details"); details.Exists() {
			apiErr.Details = details.Value()
		} else {
			apiErr.Details = doc.Value()
		}
	} else if len(trimmed) > 0 {
		apiErr.Details = sample(trimmed)
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if apiErr.Message == "" {
		apiErr.Message = "request failed"
	}
	return apiErr
}

func sample(body []byte) string {
	runes := []rune(string(body))
	if len(runes) > sampleLen {
		runes = runes[:sampleLen]
	}
	return string(runes)
}

type methodKey struct{}

func withMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, methodKey{}, method)
}

func idempotent(ctx context.Context) bool {
	method, _ := ctx.Value(methodKey{}).(string)
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// retryPolicy retries idempotent requests on connection failures and on
// gateway-class statuses. 429 is surfaced, never retried.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if !idempotent(ctx) {
		return false, nil
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, nil
	default:
		return false, nil
	}
}
