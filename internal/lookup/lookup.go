// Package lookup resolves loosely-typed upstream JSON fields by trying a fixed,
// ordered list of candidate paths and taking the first usable value.
//
// Paths use gjson syntax ("variants.data", "categories.0.name").
package lookup

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// First returns the value at the first path that exists and is neither null
// nor a blank string. The zero Result is returned when nothing matches.
func First(doc gjson.Result, paths ...string) gjson.Result {
	for _, path := range paths {
		r := doc.Get(path)
		if present(r) {
			return r
		}
	}
	return gjson.Result{}
}

// FirstFunc returns the first candidate that convert accepts.
func FirstFunc[T any](doc gjson.Result, convert func(gjson.Result) (T, bool), paths ...string) (T, bool) {
	for _, path := range paths {
		r := doc.Get(path)
		if !present(r) {
			continue
		}
		if v, ok := convert(r); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// FirstString is FirstFunc with String.
func FirstString(doc gjson.Result, paths ...string) (string, bool) {
	return FirstFunc(doc, String, paths...)
}

// FirstArray returns the first candidate holding a JSON array.
func FirstArray(doc gjson.Result, paths ...string) ([]gjson.Result, bool) {
	return FirstFunc(doc, func(r gjson.Result) ([]gjson.Result, bool) {
		if !r.IsArray() {
			return nil, false
		}
		return r.Array(), true
	}, paths...)
}

func present(r gjson.Result) bool {
	if !r.Exists() || r.Type == gjson.Null {
		return false
	}
	if r.Type == gjson.String && strings.TrimSpace(r.Str) == "" {
		return false
	}
	return true
}

// String stringifies scalar strings and numbers, trimmed. Objects, arrays,
// booleans and blanks are not identifiers.
func String(r gjson.Result) (string, bool) {
	switch r.Type {
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		return s, s != ""
	case gjson.Number:
		s := strings.TrimSpace(r.Raw)
		if !integerLiteral(s) {
			s = strconv.FormatFloat(r.Num, 'f', -1, 64)
		}
		if s == "-0" {
			s = "0"
		}
		return s, s != ""
	default:
		return "", false
	}
}

// integerLiteral reports whether s is a plain JSON integer, which is kept
// verbatim so ids beyond float precision survive.
func integerLiteral(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

// Amount reads a monetary amount from a bare number, a numeric string, or an
// object exposing "amount" or "value". Non-finite values are absent.
func Amount(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return finite(r.Num)
	case gjson.String:
		return parseFloat(r.Str)
	case gjson.JSON:
		if r.IsObject() {
			return FirstFunc(r, Amount, "amount", "value")
		}
	}
	return 0, false
}

// Int reads a finite numeric value and floors it, saturating at the int range.
func Int(r gjson.Result) (int, bool) {
	var (
		f  float64
		ok bool
	)
	switch r.Type {
	case gjson.Number:
		f, ok = finite(r.Num)
	case gjson.String:
		f, ok = parseFloat(r.Str)
	}
	if !ok {
		return 0, false
	}
	switch f = math.Floor(f); {
	case f >= math.MaxInt:
		return math.MaxInt, true
	case f <= math.MinInt:
		return math.MinInt, true
	}
	return int(f), true
}

// Bool reads JSON booleans only.
func Bool(r gjson.Result) (bool, bool) {
	switch r.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	default:
		return false, false
	}
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
