// SPDX-License-Identifier: MIT

package preflight

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
)

func testKey(t *testing.T, rawURL string, privateNetwork bool) Key {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	origin, err := cors.ParseOrigin("https://example.com")
	require.NoError(t, err)
	return NewKey(origin, u, cors.CredentialsOmit, privateNetwork)
}

func freshResult(ttl time.Duration) *Result {
	return &Result{Methods: []string{"PUT"}, Expiry: time.Now().Add(ttl)}
}

func TestMemoryCachePutGet(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache(0)
	key := testKey(t, "https://api.example.com/v1", false)

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, freshResult(time.Minute))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []string{"PUT"}, got.Methods)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Puts)
	assert.Equal(t, 1, stats.Size)
}

func TestMemoryCacheExpiry(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache(0)
	key := testKey(t, "https://api.example.com/v1", false)
	c.Put(key, freshResult(-time.Second))

	_, ok := c.Get(key)
	assert.False(t, ok, "expired entry must miss")

	assert.Equal(t, 1, c.deleteExpired())
	assert.Equal(t, int64(1), c.Stats().Evictions)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestMemoryCachePrivateNetworkNamespace(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache(0)
	std := testKey(t, "https://api.example.com/v1", false)
	pna := testKey(t, "https://api.example.com/v1", true)

	// A grant stored under the PNA namespace must never satisfy an
	// ordinary lookup, and the other way around.
	c.Put(pna, freshResult(time.Minute))
	_, ok := c.Get(std)
	assert.False(t, ok)

	c.Put(std, freshResult(time.Minute))
	got, ok := c.Get(pna)
	require.True(t, ok)
	assert.NotNil(t, got)

	c.InvalidatePrivateNetwork(std)
	_, ok = c.Get(pna)
	assert.False(t, ok, "PNA variant must be dropped")
	_, ok = c.Get(std)
	assert.True(t, ok, "ordinary entry survives PNA invalidation")
}

func TestMemoryCacheClear(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache(0)
	c.Put(testKey(t, "https://a.example.com/", false), freshResult(time.Minute))
	c.Put(testKey(t, "https://b.example.com/", false), freshResult(time.Minute))
	c.Clear()
	assert.Equal(t, 0, c.Stats().Size)
}

func TestMemoryCacheJanitor(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache(10 * time.Millisecond)
	defer c.Stop()
	c.Put(testKey(t, "https://a.example.com/", false), freshResult(time.Millisecond))

	assert.Eventually(t, func() bool {
		return c.Stats().Size == 0
	}, time.Second, 10*time.Millisecond)
}

func TestNoopCache(t *testing.T) {
	t.Parallel()

	c := NewNoopCache()
	key := testKey(t, "https://api.example.com/", false)
	c.Put(key, freshResult(time.Minute))
	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestKeyString(t *testing.T) {
	t.Parallel()

	std := testKey(t, "https://api.example.com/v1", false)
	pna := testKey(t, "https://api.example.com/v1", true)
	assert.NotEqual(t, std.String(), pna.String())
	assert.Contains(t, std.String(), "preflight:std:")
	assert.Contains(t, pna.String(), "preflight:pna:")
}
