package clientcache

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache holds SDK clients keyed by a config fingerprint. Concurrent misses
// for the same key share one factory call.
type Cache[T any] struct {
	clients sync.Map
	group   singleflight.Group
}

// NewCache creates an empty cache.
func NewCache[T any]() *Cache[T] {
	return &Cache[T]{}
}

// GetOrCreate returns the client for key, building it with factory on first use.
// A failed factory call is not cached.
func (c *Cache[T]) GetOrCreate(key string, factory func() (T, error)) (T, error) {
	if cached, ok := c.clients.Load(key); ok {
		return cached.(T), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if cached, ok := c.clients.Load(key); ok {
			return cached, nil
		}
		client, err := factory()
		if err != nil {
			return nil, err
		}
		c.clients.Store(key, client)
		return client, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Delete drops the client for key.
func (c *Cache[T]) Delete(key string) {
	c.clients.Delete(key)
}

// Len counts cached clients.
func (c *Cache[T]) Len() int {
	n := 0
	c.clients.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// Clear drops every client.
func (c *Cache[T]) Clear() {
	c.clients.Clear()
}

// Fingerprint derives a cache key from connection settings. The API key is
// hashed so it never appears in logs that print the key.
func Fingerprint(baseURL, apiKey string, headers map[string]string) string {
	h := sha256.New()
	keySum := sha256.Sum256([]byte(apiKey))
	h.Write([]byte(baseURL))
	h.Write([]byte{0})
	h.Write(keySum[:8])
	for _, name := range slices.Sorted(maps.Keys(headers)) {
		h.Write([]byte{0})
		h.Write([]byte(name + "=" + headers[name]))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
