package permcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quillhub/quillhub/pkg/config"
	"github.com/quillhub/quillhub/pkg/observability"
	"github.com/quillhub/quillhub/pkg/permissions"
)

// Store is the read surface the cache sits in front of. It is satisfied
// by *permissions.PostgresStore; the interface keeps this package
// ignorant of the database.
type Store interface {
	GetPagePermission(ctx context.Context, userID, pageID string) (*permissions.PermissionDecision, error)
	GetPagePermissionsBatch(ctx context.Context, userID string, pageIDs []string) (map[string]*permissions.PermissionDecision, error)
	GetDriveAccess(ctx context.Context, userID, driveID string) (bool, error)
	ListDrivePages(ctx context.Context, driveID string) ([]string, error)
}

// ResolveOptions tune a single resolution.
type ResolveOptions struct {
	// BypassCache skips both cache tiers and reads the store directly.
	// The fresh result still refills the tiers.
	BypassCache bool

	// Timeout overrides the configured store timeout when positive.
	Timeout time.Duration
}

// Stats is the snapshot returned by Service.Stats.
type Stats struct {
	MemoryEntries      int     `json:"memoryEntries"`
	RedisAvailable     bool    `json:"redisAvailable"`
	MaxMemoryEntries   int     `json:"maxMemoryEntries"`
	MemoryUsagePercent float64 `json:"memoryUsagePercent"`
}

// Service resolves authorization decisions through two cache tiers in
// front of the permission store, and owns the invalidation that keeps
// them honest.
//
// Tier failures degrade to misses; a store failure is the only error a
// read can return. Invalidation purges the shared tier first, then the
// local tier, then broadcasts, so no ordering lets a peer refill from
// stale shared data.
type Service struct {
	store   Store
	l1      *L1Cache
	l2      *L2Cache
	bus     Bus
	cfg     config.CacheConfig
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService wires the tiers together. metrics may be nil.
func NewService(store Store, l1 *L1Cache, l2 *L2Cache, bus Bus, cfg config.CacheConfig, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:   store,
		l1:      l1,
		l2:      l2,
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Start subscribes to the invalidation bus so remote mutations purge
// this process's local tier.
func (s *Service) Start(ctx context.Context) error {
	return s.bus.Start(ctx, s.handleRemoteInvalidation)
}

// Close stops the bus subscription.
func (s *Service) Close() error {
	return s.bus.Close()
}

// Resolve returns the permission decision for a (user, page) pair, or
// nil when the user holds no grant. The only error conditions are an
// invalid identifier and an unreachable store.
func (s *Service) Resolve(ctx context.Context, userID, pageID string, opts *ResolveOptions) (*permissions.PermissionDecision, error) {
	key, err := PageKey(userID, pageID)
	if err != nil {
		return nil, err
	}

	if opts == nil || !opts.BypassCache {
		if value, ok := s.lookupTiers(ctx, key); ok {
			return value.pageDecision(), nil
		}
	}

	storeCtx, cancel := s.storeContext(ctx, opts)
	defer cancel()

	start := time.Now()
	decision, err := s.store.GetPagePermission(storeCtx, userID, pageID)
	s.recordStoreQuery("get_page_permission", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	value := cachedDecision{Found: decision != nil, Decision: decision}
	s.fill(ctx, key, value, scopePage)
	return value.pageDecision(), nil
}

// ResolveBatch resolves many pages for one user. Tier misses are
// collected and answered with a single store query, never one per page.
// Pages without a grant are absent from the result.
func (s *Service) ResolveBatch(ctx context.Context, userID string, pageIDs []string, opts *ResolveOptions) (map[string]*permissions.PermissionDecision, error) {
	result := make(map[string]*permissions.PermissionDecision, len(pageIDs))
	if len(pageIDs) == 0 {
		return result, nil
	}

	// Deduplicate while validating, keeping key order aligned.
	seen := make(map[string]struct{}, len(pageIDs))
	unique := make([]string, 0, len(pageIDs))
	keys := make([]string, 0, len(pageIDs))
	for _, pageID := range pageIDs {
		if _, dup := seen[pageID]; dup {
			continue
		}
		key, err := PageKey(userID, pageID)
		if err != nil {
			return nil, err
		}
		seen[pageID] = struct{}{}
		unique = append(unique, pageID)
		keys = append(keys, key)
	}

	missing := unique
	missingKeys := keys
	if opts == nil || !opts.BypassCache {
		missing = nil
		missingKeys = nil

		// Local tier first.
		l2Pages := make([]string, 0, len(unique))
		l2Keys := make([]string, 0, len(unique))
		for i, pageID := range unique {
			if value, ok := s.l1.Get(keys[i]); ok {
				s.recordHit("l1")
				if d := value.pageDecision(); d != nil {
					result[pageID] = d
				}
				continue
			}
			s.recordMiss("l1")
			l2Pages = append(l2Pages, pageID)
			l2Keys = append(l2Keys, keys[i])
		}

		// Then one shared-tier round-trip for the rest.
		if len(l2Keys) > 0 {
			values, err := s.l2.GetBatch(ctx, l2Keys)
			if err != nil {
				s.recordTierError("l2", "mget")
				s.logger.WithError(err).Warn("shared cache batch lookup failed, falling through")
				values = make([]*cachedDecision, len(l2Keys))
			}
			for i, value := range values {
				if value == nil {
					s.recordMiss("l2")
					missing = append(missing, l2Pages[i])
					missingKeys = append(missingKeys, l2Keys[i])
					continue
				}
				s.recordHit("l2")
				s.l1.Set(l2Keys[i], *value, s.ttlFor(*value, scopePage))
				if d := value.pageDecision(); d != nil {
					result[l2Pages[i]] = d
				}
			}
		}
	}

	if len(missing) == 0 {
		return result, nil
	}

	storeCtx, cancel := s.storeContext(ctx, opts)
	defer cancel()

	start := time.Now()
	decisions, err := s.store.GetPagePermissionsBatch(storeCtx, userID, missing)
	s.recordStoreQuery("get_page_permissions_batch", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	for i, pageID := range missing {
		decision := decisions[pageID]
		value := cachedDecision{Found: decision != nil, Decision: decision}
		s.fill(ctx, missingKeys[i], value, scopePage)
		if d := value.pageDecision(); d != nil {
			result[pageID] = d
		}
	}

	return result, nil
}

// ResolveDriveAccess reports whether the user can reach the drive. The
// boolean is derived from ownership, membership and page grants, so it
// is cached with its own TTL rather than invalidated exactly.
func (s *Service) ResolveDriveAccess(ctx context.Context, userID, driveID string, opts *ResolveOptions) (bool, error) {
	key, err := DriveKey(userID, driveID)
	if err != nil {
		return false, err
	}

	if opts == nil || !opts.BypassCache {
		if value, ok := s.lookupTiers(ctx, key); ok {
			return value.Allowed, nil
		}
	}

	storeCtx, cancel := s.storeContext(ctx, opts)
	defer cancel()

	start := time.Now()
	allowed, err := s.store.GetDriveAccess(storeCtx, userID, driveID)
	s.recordStoreQuery("get_drive_access", err, time.Since(start))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	value := cachedDecision{Found: true, Allowed: allowed}
	s.fill(ctx, key, value, scopeDrive)
	return allowed, nil
}

// InvalidateUser purges every cached decision for one user: shared tier
// first, then the local tier, then a broadcast to peers. Tier failures
// are logged and absorbed; the mutation that triggered the invalidation
// has already committed and must not be failed retroactively.
func (s *Service) InvalidateUser(ctx context.Context, userID string) error {
	if err := validateKeyIDs(userID); err != nil {
		return err
	}

	for _, pattern := range UserPatterns(userID) {
		if _, err := s.l2.DeleteByPattern(ctx, pattern); err != nil {
			s.recordTierError("l2", "delete_pattern")
			s.logger.WithField("pattern", pattern).WithError(err).Warn("shared cache purge failed, local tiers expire by TTL")
		}
	}

	removed := s.l1.DeleteByUser(userID)

	event := InvalidationEvent{Scope: ScopeUser, UserID: userID}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.WithField("user_id", userID).WithError(err).Warn("invalidation broadcast failed, remote tiers expire by TTL")
	}

	s.recordInvalidation(ScopeUser, "local")
	s.logger.WithFields(map[string]interface{}{
		"user_id":    userID,
		"l1_removed": removed,
	}).Debug("user-scope invalidation complete")

	return nil
}

// InvalidateDrive purges every cached decision touching one drive. The
// store supplies the drive's page list as the reverse index; if that
// lookup fails the invalidation cannot be performed exactly and the
// error is returned so the caller knows the caches were not purged.
func (s *Service) InvalidateDrive(ctx context.Context, driveID string) error {
	if err := validateKeyIDs(driveID); err != nil {
		return err
	}

	storeCtx, cancel := s.storeContext(ctx, nil)
	defer cancel()

	start := time.Now()
	pageIDs, err := s.store.ListDrivePages(storeCtx, driveID)
	s.recordStoreQuery("list_drive_pages", err, time.Since(start))
	if err != nil {
		return fmt.Errorf("%w: listing drive pages: %v", ErrStoreUnavailable, err)
	}

	for _, pattern := range DrivePatterns(driveID, pageIDs) {
		if _, err := s.l2.DeleteByPattern(ctx, pattern); err != nil {
			s.recordTierError("l2", "delete_pattern")
			s.logger.WithField("pattern", pattern).WithError(err).Warn("shared cache purge failed, local tiers expire by TTL")
		}
	}

	removed := s.l1.DeleteByDrive(driveID, pageIDs)

	event := InvalidationEvent{Scope: ScopeDrive, DriveID: driveID, PageIDs: pageIDs}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.WithField("drive_id", driveID).WithError(err).Warn("invalidation broadcast failed, remote tiers expire by TTL")
	}

	s.recordInvalidation(ScopeDrive, "local")
	s.logger.WithFields(map[string]interface{}{
		"drive_id":   driveID,
		"pages":      len(pageIDs),
		"l1_removed": removed,
	}).Debug("drive-scope invalidation complete")

	return nil
}

// Stats returns a snapshot of the local tier and shared tier health.
// Pure introspection: the entries gauge is maintained by the sweeper,
// not here.
func (s *Service) Stats(ctx context.Context) Stats {
	entries := s.l1.Len()
	max := s.l1.Cap()

	percent := 0.0
	if max > 0 {
		percent = float64(entries) / float64(max) * 100
	}

	return Stats{
		MemoryEntries:      entries,
		RedisAvailable:     s.l2.IsAvailable(ctx),
		MaxMemoryEntries:   max,
		MemoryUsagePercent: percent,
	}
}

// handleRemoteInvalidation applies a peer's invalidation to the local
// tier. The publisher already purged the shared tier, so only the local
// entries need dropping here.
func (s *Service) handleRemoteInvalidation(event InvalidationEvent) {
	switch event.Scope {
	case ScopeUser:
		s.l1.DeleteByUser(event.UserID)
	case ScopeDrive:
		s.l1.DeleteByDrive(event.DriveID, event.PageIDs)
	default:
		s.logger.WithField("scope", event.Scope).Warn("ignoring invalidation event with unknown scope")
		return
	}
	s.recordInvalidation(event.Scope, "remote")
}

// lookupTiers consults L1 then L2. A shared-tier hit is copied down
// into the local tier on the way back.
func (s *Service) lookupTiers(ctx context.Context, key string) (cachedDecision, bool) {
	if value, ok := s.l1.Get(key); ok {
		s.recordHit("l1")
		return value, true
	}
	s.recordMiss("l1")

	value, err := s.l2.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrTierUnavailable) {
			s.recordTierError("l2", "get")
			s.logger.WithField("key", key).WithError(err).Warn("shared cache unavailable, falling through to store")
		} else {
			s.recordMiss("l2")
		}
		return cachedDecision{}, false
	}

	s.recordHit("l2")
	scope, _, _, _ := parseKey(key)
	s.l1.Set(key, value, s.ttlFor(value, scope))
	return value, true
}

// fill writes a fresh store result into both tiers, shared tier first so
// the local copy never outlives the shared one it was derived from.
func (s *Service) fill(ctx context.Context, key string, value cachedDecision, scope string) {
	ttl := s.ttlFor(value, scope)

	if err := s.l2.Set(ctx, key, value, ttl); err != nil {
		s.recordTierError("l2", "set")
		s.logger.WithField("key", key).WithError(err).Debug("shared cache fill failed")
	}
	s.l1.Set(key, value, ttl)
	s.recordFill(scope)
}

// ttlFor picks the TTL for a value: negatives and denials expire sooner
// so a fresh grant becomes visible quickly even without an exact
// invalidation.
func (s *Service) ttlFor(value cachedDecision, scope string) time.Duration {
	if scope == scopeDrive {
		if value.Allowed {
			return s.cfg.DriveTTL
		}
		return s.cfg.NegativeTTL
	}
	if value.Found {
		return s.cfg.PositiveTTL
	}
	return s.cfg.NegativeTTL
}

func (s *Service) storeContext(ctx context.Context, opts *ResolveOptions) (context.Context, context.CancelFunc) {
	timeout := s.cfg.StoreTimeout
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	return context.WithTimeout(ctx, timeout)
}

// pageDecision extracts a page-scope decision, copying so callers never
// alias the cached value. Nil means no grant.
func (v cachedDecision) pageDecision() *permissions.PermissionDecision {
	if !v.Found || v.Decision == nil {
		return nil
	}
	d := *v.Decision
	return &d
}

func (s *Service) recordHit(tier string) {
	if s.metrics != nil {
		s.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

func (s *Service) recordMiss(tier string) {
	if s.metrics != nil {
		s.metrics.CacheMissesTotal.WithLabelValues(tier).Inc()
	}
}

func (s *Service) recordFill(scope string) {
	if s.metrics != nil {
		s.metrics.CacheFillsTotal.WithLabelValues(scope).Inc()
	}
}

func (s *Service) recordTierError(tier, operation string) {
	if s.metrics != nil {
		s.metrics.TierErrorsTotal.WithLabelValues(tier, operation).Inc()
	}
}

func (s *Service) recordInvalidation(scope, origin string) {
	if s.metrics != nil {
		s.metrics.InvalidationsTotal.WithLabelValues(scope, origin).Inc()
	}
}

func (s *Service) recordStoreQuery(operation string, err error, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordStoreQuery(operation, err, duration)
	}
}
