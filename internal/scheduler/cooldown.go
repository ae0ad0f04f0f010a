package scheduler

import (
	"sync"
	"time"
)

// cooldownTracker enforces a minimum wall-clock gap between
// invocations of the same scraper id (property #7): two consecutive
// jobs for the same scraper are separated by at least cooldown,
// jobs across different scraper ids are unconstrained.
type cooldownTracker struct {
	mu       sync.Mutex
	lastUsed map[string]time.Time
	cooldown time.Duration
}

func newCooldownTracker(cooldown time.Duration) *cooldownTracker {
	return &cooldownTracker{lastUsed: make(map[string]time.Time), cooldown: cooldown}
}

// remaining reports how much longer the caller must wait before this
// scraper id is usable again; zero or negative means it is ready now.
func (c *cooldownTracker) remaining(scraperID string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastUsed[scraperID]
	if !ok {
		return 0
	}
	return c.cooldown - time.Since(last)
}

// markUsed records the current time as this scraper's last use. The
// caller must have already waited out any remaining() cooldown.
func (c *cooldownTracker) markUsed(scraperID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed[scraperID] = time.Now()
}
