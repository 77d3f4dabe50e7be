package autosave_test

import (
	"sync"
	"time"

	"github.com/benvon/wellness-sessions/internal/autosave"
)

// manualClock runs scheduled callbacks only when Advance moves time past them.
type manualClock struct {
	mu    sync.Mutex
	now   time.Duration
	tasks []*manualTask
}

type manualTask struct {
	clock   *manualClock
	at      time.Duration
	f       func()
	done    bool
	stopped bool
}

func (t *manualTask) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) autosave.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTask{clock: c, at: c.now + d, f: f}
	c.tasks = append(c.tasks, t)
	return t
}

// Advance moves time forward by d, running due callbacks in time order on the
// calling goroutine. Callbacks scheduled along the way run too if they fall due.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *manualTask
		for _, t := range c.tasks {
			if t.done || t.stopped || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			if target > c.now {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.done = true
		c.mu.Unlock()
		next.f()
	}
}

func (c *manualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
