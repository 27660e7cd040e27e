package clientcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type client struct{ id int }

func TestGetOrCreateBuildsOnce(t *testing.T) {
	cache := NewCache[*client]()
	var built atomic.Int32

	var wg sync.WaitGroup
	results := make([]*client, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := cache.GetOrCreate("k", func() (*client, error) {
				return &client{id: int(built.Add(1))}, nil
			})
			require.NoError(t, err)
			results[i] = c
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, built.Load())
	for _, c := range results {
		assert.Same(t, results[0], c)
	}
	assert.Equal(t, 1, cache.Len())
}

func TestGetOrCreateDoesNotCacheErrors(t *testing.T) {
	cache := NewCache[*client]()

	_, err := cache.GetOrCreate("k", func() (*client, error) { return nil, errors.New("no key") })
	require.Error(t, err)
	assert.Zero(t, cache.Len())

	c, err := cache.GetOrCreate("k", func() (*client, error) { return &client{id: 7}, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, c.id)

	cache.Delete("k")
	assert.Zero(t, cache.Len())
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("https://openrouter.ai/api/v1", "sk-1", map[string]string{"X-Title": "a", "HTTP-Referer": "b"})
	b := Fingerprint("https://openrouter.ai/api/v1", "sk-1", map[string]string{"HTTP-Referer": "b", "X-Title": "a"})
	c := Fingerprint("https://openrouter.ai/api/v1", "sk-2", nil)

	assert.Equal(t, a, b, "header order does not matter")
	assert.NotEqual(t, a, c)
	assert.NotContains(t, c, "sk-2")
	assert.Len(t, a, 32)
}
