package permcache

import (
	"fmt"
	"testing"
	"time"

	"github.com/quillhub/quillhub/pkg/permissions"
)

func positiveEntry() cachedDecision {
	return cachedDecision{
		Found:    true,
		Decision: &permissions.PermissionDecision{CanView: true},
	}
}

func TestL1Cache_SetGet(t *testing.T) {
	cache, err := NewL1Cache(10)
	if err != nil {
		t.Fatalf("NewL1Cache failed: %v", err)
	}

	cache.Set("perm:page:user-1:page-1", positiveEntry(), time.Minute)

	value, ok := cache.Get("perm:page:user-1:page-1")
	if !ok {
		t.Fatal("Expected hit")
	}
	if !value.Found || value.Decision == nil || !value.Decision.CanView {
		t.Errorf("Unexpected value: %+v", value)
	}

	if _, ok := cache.Get("perm:page:user-1:page-other"); ok {
		t.Error("Expected miss for unknown key")
	}
}

func TestL1Cache_LazyExpiry(t *testing.T) {
	cache, _ := NewL1Cache(10)

	// Already expired on insert.
	cache.Set("perm:page:user-1:page-1", positiveEntry(), -time.Second)

	if _, ok := cache.Get("perm:page:user-1:page-1"); ok {
		t.Fatal("Expected expired entry to be a miss")
	}
	if cache.Len() != 0 {
		t.Errorf("Expected expired entry to be removed on read, len = %d", cache.Len())
	}
}

func TestL1Cache_EvictsOldestWhenFull(t *testing.T) {
	cache, _ := NewL1Cache(3)

	for i := 0; i < 4; i++ {
		cache.Set(fmt.Sprintf("perm:page:user-1:page-%d", i), positiveEntry(), time.Minute)
	}

	if cache.Len() != 3 {
		t.Fatalf("Expected len 3, got %d", cache.Len())
	}
	if _, ok := cache.Get("perm:page:user-1:page-0"); ok {
		t.Error("Expected oldest entry to be evicted")
	}
	if _, ok := cache.Get("perm:page:user-1:page-3"); !ok {
		t.Error("Expected newest entry to survive")
	}
}

func TestL1Cache_GetPromotesAgainstEviction(t *testing.T) {
	cache, _ := NewL1Cache(3)

	for i := 0; i < 3; i++ {
		cache.Set(fmt.Sprintf("perm:page:user-1:page-%d", i), positiveEntry(), time.Minute)
	}

	// Touch the oldest entry so it is no longer the eviction candidate.
	if _, ok := cache.Get("perm:page:user-1:page-0"); !ok {
		t.Fatal("Expected hit on oldest entry")
	}

	cache.Set("perm:page:user-1:page-3", positiveEntry(), time.Minute)

	if _, ok := cache.Get("perm:page:user-1:page-0"); !ok {
		t.Error("Expected recently-read entry to survive eviction")
	}
	if _, ok := cache.Get("perm:page:user-1:page-1"); ok {
		t.Error("Expected least-recently-used entry to be evicted")
	}
}

func TestL1Cache_DeleteByUser(t *testing.T) {
	cache, _ := NewL1Cache(10)

	cache.Set("perm:page:user-1:page-1", positiveEntry(), time.Minute)
	cache.Set("perm:drive:user-1:drive-1", cachedDecision{Found: true, Allowed: true}, time.Minute)
	cache.Set("perm:page:user-2:page-1", positiveEntry(), time.Minute)

	removed := cache.DeleteByUser("user-1")
	if removed != 2 {
		t.Errorf("Expected 2 removals, got %d", removed)
	}
	if _, ok := cache.Get("perm:page:user-1:page-1"); ok {
		t.Error("Expected user-1 page entry to be gone")
	}
	if _, ok := cache.Get("perm:drive:user-1:drive-1"); ok {
		t.Error("Expected user-1 drive entry to be gone")
	}
	if _, ok := cache.Get("perm:page:user-2:page-1"); !ok {
		t.Error("Expected user-2 entry to survive")
	}
}

func TestL1Cache_DeleteByDrive(t *testing.T) {
	cache, _ := NewL1Cache(10)

	cache.Set("perm:drive:user-1:drive-1", cachedDecision{Found: true, Allowed: true}, time.Minute)
	cache.Set("perm:drive:user-2:drive-1", cachedDecision{Found: true}, time.Minute)
	cache.Set("perm:drive:user-1:drive-2", cachedDecision{Found: true, Allowed: true}, time.Minute)
	cache.Set("perm:page:user-1:page-1", positiveEntry(), time.Minute)
	cache.Set("perm:page:user-2:page-2", positiveEntry(), time.Minute)
	cache.Set("perm:page:user-1:page-9", positiveEntry(), time.Minute)

	removed := cache.DeleteByDrive("drive-1", []string{"page-1", "page-2"})
	if removed != 4 {
		t.Errorf("Expected 4 removals, got %d", removed)
	}
	if _, ok := cache.Get("perm:drive:user-1:drive-2"); !ok {
		t.Error("Expected entry for another drive to survive")
	}
	if _, ok := cache.Get("perm:page:user-1:page-9"); !ok {
		t.Error("Expected entry for a page outside the drive to survive")
	}
}

func TestL1Cache_RemoveExpired(t *testing.T) {
	cache, _ := NewL1Cache(10)

	cache.Set("perm:page:user-1:page-1", positiveEntry(), -time.Second)
	cache.Set("perm:page:user-1:page-2", positiveEntry(), -time.Second)
	cache.Set("perm:page:user-1:page-3", positiveEntry(), time.Minute)

	removed := cache.RemoveExpired()
	if removed != 2 {
		t.Errorf("Expected 2 removals, got %d", removed)
	}
	if cache.Len() != 1 {
		t.Errorf("Expected 1 live entry, got %d", cache.Len())
	}
}

func TestL1Cache_PurgeAndCap(t *testing.T) {
	cache, _ := NewL1Cache(5)

	cache.Set("perm:page:user-1:page-1", positiveEntry(), time.Minute)
	cache.Purge()

	if cache.Len() != 0 {
		t.Errorf("Expected empty cache after purge, len = %d", cache.Len())
	}
	if cache.Cap() != 5 {
		t.Errorf("Cap() = %d, expected 5", cache.Cap())
	}
}
