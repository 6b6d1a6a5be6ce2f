package unl

import (
	"sort"
	"sync/atomic"
)

// rankedValidator is one entry of a computed, sorted trust ranking.
type rankedValidator struct {
	Pubkey string
	Score  int64
}

// List is the trusted validator set exposed to consensus. Refresh recomputes
// the full score graph and atomically swaps in a new top-N snapshot; reads
// (InUNL, Ranking) never block on a refresh in progress and never block
// each other, which is what keeps the periodic sweep off the consensus
// critical path.
type List struct {
	topN     int
	snapshot atomic.Pointer[map[string]struct{}]
	ranking  atomic.Pointer[[]rankedValidator]
}

// NewList creates an empty List; call Refresh at least once before relying
// on InUNL.
func NewList(topN int) *List {
	l := &List{topN: topN}
	empty := make(map[string]struct{})
	l.snapshot.Store(&empty)
	emptyRanking := []rankedValidator{}
	l.ranking.Store(&emptyRanking)
	return l
}

// Refresh recomputes validator scores from entries and replaces the
// trusted snapshot with the top topN by score (ties broken by pubkey, for
// a deterministic set across nodes that saw the same entries).
func (l *List) Refresh(entries []Entry) {
	g := NewGraph()
	for _, e := range entries {
		g.Add(e)
	}
	scores := g.Compute()

	ranked := make([]rankedValidator, 0, len(scores))
	for pubkey, score := range scores {
		ranked = append(ranked, rankedValidator{Pubkey: pubkey, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Pubkey < ranked[j].Pubkey
	})

	top := ranked
	if l.topN > 0 && len(top) > l.topN {
		top = top[:l.topN]
	}

	trusted := make(map[string]struct{}, len(top))
	for _, r := range top {
		if r.Score > 0 {
			trusted[r.Pubkey] = struct{}{}
		}
	}

	l.snapshot.Store(&trusted)
	l.ranking.Store(&ranked)
}

// InUNL is the sole predicate consensus consults: is pubkey currently
// trusted. Encoding matches whatever string form callers fed Refresh
// (typically the raw pubkey bytes, converted with string(pubkey)).
func (l *List) InUNL(pubkey []byte) bool {
	snap := *l.snapshot.Load()
	_, ok := snap[string(pubkey)]
	return ok
}

// Ranking returns the full scored ranking from the last Refresh, most
// trusted first — used for diagnostics, not for the consensus predicate.
func (l *List) Ranking() []rankedValidator {
	r := *l.ranking.Load()
	out := make([]rankedValidator, len(r))
	copy(out, r)
	return out
}

// Size returns how many validators are currently trusted.
func (l *List) Size() int {
	return len(*l.snapshot.Load())
}
