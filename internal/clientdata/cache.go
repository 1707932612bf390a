package clientdata

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type cacheEntry struct {
	data      json.RawMessage
	storedAt  time.Time
	expiresAt time.Time
}

// Cache is the in-memory tier. One RWMutex guards the map; entries are
// replaced wholesale and never mutated in place.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewCache creates an empty in-memory cache
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func cacheKey(table, key string) string {
	return table + "\x00" + key
}

// Store saves data with expiration = now + ttl
func (c *Cache) Store(table, key string, data interface{}, ttl time.Duration) error {
	if err := validateTable(table); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	now := c.now()
	c.mu.Lock()
	c.entries[cacheKey(table, key)] = cacheEntry{data: raw, storedAt: now, expiresAt: now.Add(ttl)}
	c.mu.Unlock()
	return nil
}

// GetIfFresh returns data only while it has not expired; nil otherwise.
func (c *Cache) GetIfFresh(table, key string) (json.RawMessage, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}
	c.mu.RLock()
	e, ok := c.entries[cacheKey(table, key)]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, nil
	}
	return e.data, nil
}

// Get returns data regardless of expiration, with the time it was stored.
func (c *Cache) Get(table, key string) (json.RawMessage, time.Time, error) {
	if err := validateTable(table); err != nil {
		return nil, time.Time{}, err
	}
	c.mu.RLock()
	e, ok := c.entries[cacheKey(table, key)]
	c.mu.RUnlock()
	if !ok {
		return nil, time.Time{}, nil
	}
	return e.data, e.storedAt, nil
}

// Delete removes a specific entry.
func (c *Cache) Delete(table, key string) error {
	if err := validateTable(table); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.entries, cacheKey(table, key))
	c.mu.Unlock()
	return nil
}

// DeleteExpired drops every expired entry and returns how many were removed.
func (c *Cache) DeleteExpired() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries, fresh or stale
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
