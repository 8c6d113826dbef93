package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Bounded keeps at most capacity entries and evicts the oldest write first.
// Reads do not refresh an entry. It is safe for concurrent use.
type Bounded[K comparable, V any] struct {
	entries *lru.Cache[K, V]
}

var _ Cache[string, []byte] = (*Bounded[string, []byte])(nil)

func New[K comparable, V any](capacity int) (*Bounded[K, V], error) {
	entries, err := lru.New[K, V](capacity)
	if err != nil {
		return nil, fmt.Errorf("create bounded cache: %w", err)
	}
	return &Bounded[K, V]{entries: entries}, nil
}

func (c *Bounded[K, V]) Get(key K) (V, error) {
	value, ok := c.entries.Peek(key)
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	return value, nil
}

func (c *Bounded[K, V]) Put(key K, value V) {
	c.entries.Add(key, value)
}

func (c *Bounded[K, V]) Remove(key K) {
	c.entries.Remove(key)
}

func (c *Bounded[K, V]) Len() int {
	return c.entries.Len()
}

func (c *Bounded[K, V]) Purge() {
	c.entries.Purge()
}
