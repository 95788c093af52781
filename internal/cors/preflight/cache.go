// SPDX-License-Identifier: MIT

// Package preflight implements the preflight controller: it decides when
// an OPTIONS check is required, executes it, interprets the
// Access-Control-Allow-* response headers, and caches successful results.
// Private-network-access attempts live in a disjoint key namespace and are
// never written back, so a PNA result can never satisfy an ordinary lookup
// or the other way around.
package preflight

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
)

// Key identifies one cached preflight result.
type Key struct {
	Origin         string
	URL            string
	Credentials    cors.CredentialsMode
	PrivateNetwork bool
}

// NewKey derives the cache key for a request leg.
func NewKey(origin cors.Origin, u *url.URL, credentials cors.CredentialsMode, privateNetwork bool) Key {
	return Key{
		Origin:         origin.Serialize(),
		URL:            u.String(),
		Credentials:    credentials,
		PrivateNetwork: privateNetwork,
	}
}

// String renders the key for use in external stores.
func (k Key) String() string {
	ns := "std"
	if k.PrivateNetwork {
		ns = "pna"
	}
	return fmt.Sprintf("preflight:%s:%s:%s:%s", ns, k.Credentials, k.Origin, k.URL)
}

// Cache stores successful preflight results. Implementations must be safe
// for concurrent use; same-key insert races resolve to last writer wins.
type Cache interface {
	Get(key Key) (*Result, bool)
	Put(key Key, result *Result)

	// InvalidatePrivateNetwork drops any entry for the PNA variant of key,
	// keeping an in-progress PNA attempt from observing stale state.
	InvalidatePrivateNetwork(key Key)

	Clear()
}

// Stats holds cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Puts      int64
	Evictions int64
	Size      int
}

type memoryEntry struct {
	result *Result
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[Key]*memoryEntry
	stats   Stats
	janitor *janitor
}

// NewMemoryCache creates an in-memory cache. A positive cleanupInterval
// starts a janitor goroutine that evicts expired results.
func NewMemoryCache(cleanupInterval time.Duration) *memoryCache {
	c := &memoryCache{entries: make(map[Key]*memoryEntry)}
	if cleanupInterval > 0 {
		c.janitor = &janitor{interval: cleanupInterval, stop: make(chan struct{})}
		go c.janitor.run(c)
	}
	return c
}

func (c *memoryCache) Get(key Key) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.result.Expired(time.Now()) {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.result, true
}

func (c *memoryCache) Put(key Key, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &memoryEntry{result: result}
	c.stats.Puts++
}

func (c *memoryCache) InvalidatePrivateNetwork(key Key) {
	key.PrivateNetwork = true
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*memoryEntry)
}

// Stats returns a snapshot of the counters.
func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := c.stats
	stats.Size = len(c.entries)
	return stats
}

func (c *memoryCache) deleteExpired() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for key, e := range c.entries {
		if e.result.Expired(now) {
			delete(c.entries, key)
			count++
		}
	}
	c.stats.Evictions += int64(count)
	return count
}

// Stop terminates the janitor goroutine.
func (c *memoryCache) Stop() {
	if c.janitor != nil {
		close(c.janitor.stop)
	}
}

type janitor struct {
	interval time.Duration
	stop     chan struct{}
}

func (j *janitor) run(c *memoryCache) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}

// noopCache disables preflight caching entirely.
type noopCache struct{}

// NewNoopCache returns a cache that never stores anything.
func NewNoopCache() Cache { return noopCache{} }

func (noopCache) Get(Key) (*Result, bool)      { return nil, false }
func (noopCache) Put(Key, *Result)             {}
func (noopCache) InvalidatePrivateNetwork(Key) {}
func (noopCache) Clear()                       {}
