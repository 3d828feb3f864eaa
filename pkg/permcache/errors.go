package permcache

import "errors"

var (
	// ErrCacheMiss is returned by a cache tier when the key is absent.
	// Callers fall through to the next tier; it never reaches API users.
	ErrCacheMiss = errors.New("permcache: cache miss")

	// ErrTierUnavailable is returned when a cache tier cannot be reached.
	// Tiers fail open: resolution continues against the next tier and
	// ultimately the store.
	ErrTierUnavailable = errors.New("permcache: cache tier unavailable")

	// ErrStoreUnavailable is returned when the authoritative store cannot
	// answer. The store fails closed: no decision is served, cached or
	// otherwise, because a stale allow is worse than a refused request.
	ErrStoreUnavailable = errors.New("permcache: permission store unavailable")

	// ErrInvalidKey is returned for identifiers that cannot form a cache
	// key, before any tier is consulted.
	ErrInvalidKey = errors.New("permcache: invalid cache key")
)
