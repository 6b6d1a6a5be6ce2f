package consensus

import (
	"sync"
	"time"
)

// CloseTimeVotes tallies proposers' rounded close-time votes for a round,
// bucketed to the ledger's close resolution so that peers whose clocks
// differ by a second still land in the same bucket.
type CloseTimeVotes struct {
	mu      sync.Mutex
	buckets map[time.Time]int
}

func NewCloseTimeVotes() *CloseTimeVotes {
	return &CloseTimeVotes{buckets: make(map[time.Time]int)}
}

// Vote records one proposer's close-time estimate, already rounded to the
// round's close resolution by the caller.
func (c *CloseTimeVotes) Vote(bucket time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets[bucket]++
}

// Consensus returns the bucket with the most votes and whether it clears
// requiredPct of totalProposers. Ties are broken toward the later time, so
// a network split close in size doesn't produce a lower close time than
// clock drift alone would justify.
func (c *CloseTimeVotes) Consensus(totalProposers int, requiredPct int) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var best time.Time
	bestCount := 0
	for bucket, count := range c.buckets {
		if count > bestCount || (count == bestCount && bucket.After(best)) {
			best = bucket
			bestCount = count
		}
	}
	if totalProposers == 0 {
		return best, false
	}
	pct := bestCount * 100 / totalProposers
	return best, pct >= requiredPct
}

// Reset clears all votes for the next round.
func (c *CloseTimeVotes) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets = make(map[time.Time]int)
}
