package directory

import (
	"context"
	"sync"
	"time"
)

// Cache stores device records by normalized email. Implementations must
// never return an entry older than their TTL.
type Cache interface {
	Get(ctx context.Context, email string) (DeviceRecord, bool)
	Set(ctx context.Context, email string, rec DeviceRecord)
}

type memoryEntry struct {
	rec     DeviceRecord
	expires time.Time
}

// MemoryCache is a process-local TTL cache. Entries are replaced whole and
// never mutated in place.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryCache returns a cache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemoryCache) Get(_ context.Context, email string) (DeviceRecord, bool) {
	c.mu.RLock()
	e, ok := c.entries[email]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		return DeviceRecord{}, false
	}
	return e.rec.clone(), true
}

func (c *MemoryCache) Set(_ context.Context, email string, rec DeviceRecord) {
	e := memoryEntry{rec: rec.clone(), expires: c.now().Add(c.ttl)}
	c.mu.Lock()
	c.entries[email] = e
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Prune drops expired entries and returns how many were removed.
func (c *MemoryCache) Prune() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// RunPruner prunes every interval until ctx is done.
func (c *MemoryCache) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Prune()
		}
	}
}
