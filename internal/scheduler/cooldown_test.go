package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownTrackerEnforcesGap(t *testing.T) {
	c := newCooldownTracker(50 * time.Millisecond)

	assert.LessOrEqual(t, c.remaining("x"), time.Duration(0), "unused scraper is immediately ready")

	c.markUsed("x")
	assert.Greater(t, c.remaining("x"), time.Duration(0), "just-used scraper must report remaining cooldown")
	assert.LessOrEqual(t, c.remaining("y"), time.Duration(0), "different scraper id is unaffected")

	time.Sleep(60 * time.Millisecond)
	assert.LessOrEqual(t, c.remaining("x"), time.Duration(0), "cooldown must expire after the configured duration")
}
