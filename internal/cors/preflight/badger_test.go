// SPDX-License-Identifier: MIT

package preflight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBadgerCache(t *testing.T) *BadgerCache {
	t.Helper()
	cache, err := OpenBadgerCache(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestBadgerCachePutGet(t *testing.T) {
	t.Parallel()

	cache := openBadgerCache(t)
	key := testKey(t, "https://api.example.com/v1", false)

	_, ok := cache.Get(key)
	assert.False(t, ok)

	cache.Put(key, freshResult(time.Minute))
	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, []string{"PUT"}, got.Methods)
}

func TestBadgerCacheExpiredResultRejected(t *testing.T) {
	t.Parallel()

	cache := openBadgerCache(t)
	key := testKey(t, "https://api.example.com/v1", false)

	cache.Put(key, freshResult(50*time.Millisecond))
	// The stored Expiry is the authority even before Badger's TTL fires.
	cache.now = func() time.Time { return time.Now().Add(time.Second) }
	_, ok := cache.Get(key)
	assert.False(t, ok)
}

func TestBadgerCachePrivateNetworkInvalidation(t *testing.T) {
	t.Parallel()

	cache := openBadgerCache(t)
	std := testKey(t, "https://api.example.com/v1", false)
	pna := testKey(t, "https://api.example.com/v1", true)

	cache.Put(std, freshResult(time.Minute))
	cache.Put(pna, freshResult(time.Minute))

	cache.InvalidatePrivateNetwork(std)
	_, ok := cache.Get(pna)
	assert.False(t, ok)
	_, ok = cache.Get(std)
	assert.True(t, ok)
}

func TestBadgerCacheClear(t *testing.T) {
	t.Parallel()

	cache := openBadgerCache(t)
	cache.Put(testKey(t, "https://a.example.com/", false), freshResult(time.Minute))
	cache.Clear()
	_, ok := cache.Get(testKey(t, "https://a.example.com/", false))
	assert.False(t, ok)
}
