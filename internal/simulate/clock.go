// Package simulate is an in-process multi-node harness for driving several
// consensus.Engine instances through closing rounds together, standing in
// for a real network the way the teacher's consensus/csf framework stands
// in for rippled's own. Every node runs a real Engine, Master, SHAMap
// family, Signer and Transport; the only thing simulated is the network
// between them.
package simulate

import (
	"sync"
	"time"
)

// Clock is a shared, manually-advanced wall clock every node's Engine and
// Validation collection reads through, so a round's timing is driven
// deterministically instead of racing real time. It plays the role the
// teacher's csf.Scheduler plays for simulated peers, simplified to a
// single advancing instant: nothing under test schedules its own future
// work (Engine and Collection are called synchronously by the harness),
// so there's no need for the Scheduler's event heap.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a Clock at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now reports the current simulated instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the simulated instant forward by d and returns the result.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
