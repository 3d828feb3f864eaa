package permcache

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quillhub/quillhub/pkg/observability"
)

// Sweeper periodically evicts expired entries from the local tier.
// Lazy expiry already guarantees correctness; the sweep only keeps dead
// entries from pinning LRU slots between reads.
type Sweeper struct {
	cron   *cron.Cron
	l1     *L1Cache
	logger *observability.Logger
}

// NewSweeper schedules a sweep of l1 every interval.
func NewSweeper(l1 *L1Cache, interval time.Duration, logger *observability.Logger, metrics *observability.Metrics) (*Sweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}

	s := &Sweeper{
		cron:   cron.New(),
		l1:     l1,
		logger: logger,
	}

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		removed := s.l1.RemoveExpired()
		if metrics != nil {
			metrics.CacheEvictionsTotal.Add(float64(removed))
			metrics.CacheEntries.Set(float64(s.l1.Len()))
		}
		if removed > 0 {
			s.logger.WithField("removed", removed).Debug("swept expired cache entries")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule cache sweep: %w", err)
	}

	return s, nil
}

// Start begins the sweep schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
