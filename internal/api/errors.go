package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies every failure produced by Client. Callers branch on Kind
// and Status, never on raw bodies.
type Kind string

const (
	KindNetwork     Kind = "NETWORK_ERROR"
	KindAborted     Kind = "REQUEST_ABORTED"
	KindInvalidJSON Kind = "INVALID_JSON"
	KindHTTP        Kind = "HTTP"
)

// Error is the single failure shape returned by Client.
type Error struct {
	Kind   Kind
	Method string
	Path   string
	// Status is the HTTP status; 0 for transport failures.
	Status int
	// Code, Message and Details are extracted best-effort from the upstream body.
	Code    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Method, e.Path, e.KindName())
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil && e.Kind != KindHTTP {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindName renders HTTP failures as HTTP_<status>.
func (e *Error) KindName() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("HTTP_%d", e.Status)
	}
	return string(e.Kind)
}

// IsUnauthorized reports a 401 or 403 response.
func (e *Error) IsUnauthorized() bool {
	return e.Kind == KindHTTP && (e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
}

// InvalidJSONDetails is attached to KindInvalidJSON errors.
type InvalidJSONDetails struct {
	ContentType string `json:"contentType,omitempty"`
	Sample      string `json:"sample"`
}

// KindOf returns the Kind of err, or "" when err did not come from Client.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsAborted reports whether err means a newer request superseded this one.
// Such errors are discarded, never shown.
func IsAborted(err error) bool {
	return KindOf(err) == KindAborted
}

// IsUnauthorized reports whether err is a 401/403 from upstream.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.IsUnauthorized()
}
