package unl

// ScoreRounds bounds how many times score distributes from referrers to
// their referrals. Each round only redistributes what the previous round
// handed out (roundSeed), so the series terminates on its own once nothing
// is left to distribute; this is a hard backstop against a referral cycle
// keeping the scorer running forever.
const ScoreRounds = 10

// node is one validator's scoring state while a Graph computes trust
// scores. referrals holds indices into the owning Graph's node slice,
// in the order they were mentioned by this validator — order matters,
// since scoreRound distributes points to earlier-mentioned referrals
// more heavily than later ones.
type node struct {
	pubkey     string
	score      int64
	roundSeed  int64
	roundScore int64
	referrals  []int
}

// Graph builds a validator trust graph from seed entries and reduces it to
// a score per pubkey. It is a one-shot builder: construct with NewGraph,
// feed it every Entry, then call Compute once.
type Graph struct {
	index map[string]int
	nodes []node
}

func NewGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

func (g *Graph) indexFor(pubkey string, source Source) int {
	if i, ok := g.index[pubkey]; ok {
		if source.baseScore() > g.nodes[i].score {
			g.nodes[i].score = source.baseScore()
			g.nodes[i].roundSeed = source.baseScore()
		}
		return i
	}
	i := len(g.nodes)
	g.index[pubkey] = i
	g.nodes = append(g.nodes, node{
		pubkey:    pubkey,
		score:     source.baseScore(),
		roundSeed: source.baseScore(),
	})
	return i
}

// Add feeds one seed entry into the graph: the validator itself (created
// or score-bumped if a higher-scoring source already named it) and its
// referrals (created with zero score if not already present — a referral
// earns its score only from distribution).
func (g *Graph) Add(e Entry) {
	i := g.indexFor(e.Pubkey, e.Source)
	for _, r := range e.Referrals {
		j := g.indexFor(r, SourceReferral)
		if j != i {
			g.nodes[i].referrals = append(g.nodes[i].referrals, j)
		}
	}
}

// scoreRound distributes each node's roundSeed among its referrals,
// weighted so earlier-mentioned referrals get a larger share, then rolls
// roundScore into score and carries it forward as the next round's seed.
// Returns false once nothing was distributed, letting Compute stop early.
func scoreRound(nodes []node) bool {
	for i := range nodes {
		entries := len(nodes[i].referrals)
		if nodes[i].roundSeed == 0 || entries == 0 {
			continue
		}
		total := int64((entries + 1) * entries / 2)
		base := nodes[i].roundSeed * int64(entries) / total
		for pos, ref := range nodes[i].referrals {
			points := base * int64(entries-pos) / int64(entries)
			nodes[ref].roundScore += points
		}
	}

	distributed := false
	for i := range nodes {
		if nodes[i].roundScore != 0 {
			distributed = true
		}
		nodes[i].score += nodes[i].roundScore
		nodes[i].roundSeed = nodes[i].roundScore
		nodes[i].roundScore = 0
	}
	return distributed
}

// Compute runs up to ScoreRounds distribution passes and returns the final
// score per pubkey.
func (g *Graph) Compute() map[string]int64 {
	for i := 0; i < ScoreRounds; i++ {
		if !scoreRound(g.nodes) {
			break
		}
	}

	out := make(map[string]int64, len(g.nodes))
	for _, n := range g.nodes {
		out[n.pubkey] = n.score
	}
	return out
}
