package main

import (
	"sync"
	"time"
)

// ResultCache provides thread-safe TTL caching of deliberation results,
// keyed by question and mode. Results are terminal, immutable artifacts,
// so entries are shared rather than deep-copied.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	result   *DeliberationResult
	storedAt time.Time
}

// NewResultCache creates a result cache with the specified TTL
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// cacheKey joins question and mode into one lookup key. The separator is a
// byte that cannot appear in a validated question.
func cacheKey(question string, mode Mode) string {
	return string(mode) + "\x00" + question
}

// Get retrieves a cached result if present and not expired
func (c *ResultCache) Get(question string, mode Mode) (*DeliberationResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey(question, mode)]
	if !ok {
		return nil, false
	}

	if time.Since(entry.storedAt) > c.ttl {
		return nil, false
	}

	return entry.result, true
}

// Set stores a result and opportunistically prunes expired entries
func (c *ResultCache) Set(question string, mode Mode, result *DeliberationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if time.Since(entry.storedAt) > c.ttl {
			delete(c.entries, key)
		}
	}

	c.entries[cacheKey(question, mode)] = cacheEntry{
		result:   result,
		storedAt: time.Now(),
	}
}

// Clear removes all cached results
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}

// Size returns the number of cached results, expired entries included
func (c *ResultCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
