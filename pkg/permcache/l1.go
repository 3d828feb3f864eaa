package permcache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/quillhub/quillhub/pkg/permissions"
)

// cachedDecision is the value stored in both cache tiers. Found=false
// records the authoritative absence of a grant (a negative entry), which
// shields the store from repeated lookups of unshared pages. Drive-scope
// entries carry the derived Allowed boolean instead of a Decision.
type cachedDecision struct {
	Found    bool                            `json:"found"`
	Decision *permissions.PermissionDecision `json:"decision,omitempty"`
	Allowed  bool                            `json:"allowed,omitempty"`
}

type l1Entry struct {
	value     cachedDecision
	expiresAt time.Time
}

func (e *l1Entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// L1Cache is the process-local tier: a bounded LRU with per-entry TTLs.
// Per-entry expiry (rather than the expirable LRU variant's single TTL)
// is what lets negative entries live shorter than positive ones.
//
// Expired entries are dropped lazily on read and swept periodically; an
// expired entry is never served.
type L1Cache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *l1Entry]
	max   int
}

// NewL1Cache creates a bounded in-process cache holding at most
// maxEntries decisions.
func NewL1Cache(maxEntries int) (*L1Cache, error) {
	cache, err := lru.New[string, *l1Entry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &L1Cache{cache: cache, max: maxEntries}, nil
}

// Get returns the cached decision for key, or false when the key is
// absent or expired. An expired entry is removed on the way out.
func (c *L1Cache) Get(key string) (cachedDecision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache.Get(key)
	if !ok {
		return cachedDecision{}, false
	}
	if entry.expired(time.Now()) {
		c.cache.Remove(key)
		return cachedDecision{}, false
	}
	return entry.value, true
}

// Set stores a decision under key for ttl. The oldest entry is evicted
// when the cache is full.
func (c *L1Cache) Set(key string, value cachedDecision, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(key, &l1Entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
}

// Delete removes a single key.
func (c *L1Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(key)
}

// DeleteByUser removes every entry belonging to userID, in both scopes.
// Returns the number of entries removed.
func (c *L1Cache) DeleteByUser(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.cache.Keys() {
		_, uid, _, ok := parseKey(key)
		if ok && uid == userID {
			c.cache.Remove(key)
			removed++
		}
	}
	return removed
}

// DeleteByDrive removes every drive-access entry for driveID and every
// page entry for the drive's pages, across all users. Returns the number
// of entries removed.
func (c *L1Cache) DeleteByDrive(driveID string, pageIDs []string) int {
	pages := make(map[string]struct{}, len(pageIDs))
	for _, id := range pageIDs {
		pages[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.cache.Keys() {
		scope, _, objectID, ok := parseKey(key)
		if !ok {
			continue
		}
		switch scope {
		case scopeDrive:
			if objectID == driveID {
				c.cache.Remove(key)
				removed++
			}
		case scopePage:
			if _, hit := pages[objectID]; hit {
				c.cache.Remove(key)
				removed++
			}
		}
	}
	return removed
}

// RemoveExpired drops every expired entry and returns how many were
// removed. Called by the background sweeper so that entries no one reads
// do not pin LRU slots until eviction.
func (c *L1Cache) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, key := range c.cache.Keys() {
		if entry, ok := c.cache.Peek(key); ok && entry.expired(now) {
			c.cache.Remove(key)
			removed++
		}
	}
	return removed
}

// Purge empties the cache.
func (c *L1Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

// Len returns the current number of entries, expired ones included.
func (c *L1Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// Cap returns the configured maximum number of entries.
func (c *L1Cache) Cap() int {
	return c.max
}
