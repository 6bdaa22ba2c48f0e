package gate

import (
	"sync"
	"time"
)

// CheckKind names one of the gate's checks for caching purposes
type CheckKind string

const (
	CheckBackfill CheckKind = "backfill"
	CheckDevice   CheckKind = "device"
	CheckBaseline CheckKind = "baseline"
)

// cacheEntry is one cached verdict. Entries for time-based checks carry the
// anchor timestamp instead of a frozen verdict, so elapsed time is recomputed
// on every read and a user becomes eligible the moment a cooldown ends, not
// when the TTL happens to expire.
type cacheEntry struct {
	verdict   Verdict
	anchor    *time.Time
	expiresAt time.Time
}

// verdictCache is a per-process, TTL-bounded verdict cache. It is an
// optimization only: a miss always falls back to the authoritative check.
type verdictCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newVerdictCache(ttl time.Duration) *verdictCache {
	return &verdictCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(userID string, kind CheckKind) string {
	return userID + ":" + string(kind)
}

func (c *verdictCache) get(userID string, kind CheckKind, now time.Time) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey(userID, kind)]
	if !ok || now.After(e.expiresAt) {
		return cacheEntry{}, false
	}
	return e, true
}

func (c *verdictCache) set(userID string, kind CheckKind, v Verdict, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(userID, kind)] = cacheEntry{verdict: v, expiresAt: now.Add(c.ttl)}
}

// setAnchored caches a time anchor rather than a verdict
func (c *verdictCache) setAnchored(userID string, kind CheckKind, anchor time.Time, now time.Time) {
	a := anchor
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(userID, kind)] = cacheEntry{anchor: &a, expiresAt: now.Add(c.ttl)}
}

// invalidate drops all cached verdicts for a user
func (c *verdictCache) invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, kind := range []CheckKind{CheckBackfill, CheckDevice, CheckBaseline} {
		delete(c.entries, cacheKey(userID, kind))
	}
}
