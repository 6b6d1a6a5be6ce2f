package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCloseTimeVotesPicksMostVotedBucket(t *testing.T) {
	c := NewCloseTimeVotes()
	t1 := time.Unix(1000, 0)
	t2 := time.Unix(1010, 0)

	c.Vote(t1)
	c.Vote(t1)
	c.Vote(t2)

	best, ok := c.Consensus(3, 50)
	require.True(t, ok)
	require.Equal(t, t1, best)
}

func TestCloseTimeVotesRequiresThreshold(t *testing.T) {
	c := NewCloseTimeVotes()
	t1 := time.Unix(1000, 0)
	c.Vote(t1)

	_, ok := c.Consensus(4, 75)
	require.False(t, ok, "1 of 4 proposers is below a 75% threshold")
}

func TestCloseTimeVotesBreaksTiesTowardLaterTime(t *testing.T) {
	c := NewCloseTimeVotes()
	earlier := time.Unix(1000, 0)
	later := time.Unix(1010, 0)
	c.Vote(earlier)
	c.Vote(later)

	best, ok := c.Consensus(2, 50)
	require.True(t, ok)
	require.Equal(t, later, best)
}

func TestCloseTimeVotesResetClearsBuckets(t *testing.T) {
	c := NewCloseTimeVotes()
	c.Vote(time.Unix(1000, 0))
	c.Reset()

	_, ok := c.Consensus(1, 1)
	require.False(t, ok)
}
