package api

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	MsgAborted      = "Request cancelled."
	MsgNetwork      = "Network problem while calling the API. Please try again."
	MsgInvalidJSON  = "The server returned a response that could not be understood. Please try again."
	MsgUnauthorized = "Not authorized. Sign in again and retry."
	MsgNotFound     = "The resource was not found or has moved."
	MsgRateLimited  = "Rate limit reached (429). Please retry shortly."
	MsgServer       = "The server had a problem. Please try again in a moment."
	MsgUnexpected   = "An unexpected error occurred."

	maxMessageLen = 180
)

// UserMessage maps err to a human-readable message. Rate limiting, server
// failures and authorization failures each get their own wording; other HTTP
// failures fall back to the upstream message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return clampMessage(err.Error())
	}

	switch apiErr.Kind {
	case KindAborted:
		return MsgAborted
	case KindNetwork:
		return MsgNetwork
	case KindInvalidJSON:
		return MsgInvalidJSON
	}

	switch status := apiErr.Status; {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return MsgUnauthorized
	case status == http.StatusNotFound:
		return MsgNotFound
	case status == http.StatusTooManyRequests:
		return MsgRateLimited
	case status >= http.StatusInternalServerError:
		return MsgServer
	}

	if msg := clampMessage(apiErr.Message); msg != "" {
		return msg
	}
	return MsgUnexpected
}

func clampMessage(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxMessageLen {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxMessageLen-1])) + "…"
}
