// Package cache holds small in-process caches keyed by upstream ids. Values
// for a given id are interchangeable, so writers race freely and the last
// write wins.
package cache

import "errors"

var ErrNotFound = errors.New("cache entry not found")

type Cache[K comparable, V any] interface {
	Get(key K) (V, error)
	Put(key K, value V)
	Remove(key K)
	Len() int
}
