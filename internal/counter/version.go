package counter

import (
	"sync"
	"time"
)

// VersionClock mints strictly increasing versions.
//
// A version is max(last+1, now in Unix nanoseconds). Versions keep growing
// across process restarts and are roughly comparable between nodes, but
// correctness only relies on them increasing per node.
type VersionClock struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

// NewVersionClock creates a clock. A nil now uses time.Now.
func NewVersionClock(now func() time.Time) *VersionClock {
	if now == nil {
		now = time.Now
	}
	return &VersionClock{now: now}
}

// Next returns a version greater than every version returned or observed.
func (c *VersionClock) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.last + 1
	if wall := c.now().UnixNano(); wall > 0 && uint64(wall) > v {
		v = uint64(wall)
	}
	c.last = v
	return v
}

// Observe makes later versions exceed v.
func (c *VersionClock) Observe(v uint64) {
	c.mu.Lock()
	if v > c.last {
		c.last = v
	}
	c.mu.Unlock()
}

// Last returns the most recent version.
func (c *VersionClock) Last() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
