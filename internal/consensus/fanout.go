package consensus

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/shamap"
)

// NodeRequester asks peer for the wire bytes backing want, feeding
// whatever comes back into the acquire through AddRoot/AddNode. The
// actual request/response round trip rides the wire Transport named
// out of scope in spec.md §1; this is the narrow seam a real
// peer-management layer plugs into.
type NodeRequester func(ctx context.Context, peer hash.H160, want []shamap.MissingNodeRequest) error

// FetchMissingNodesParallel fans a TxSetAcquire's outstanding missing-node
// list out across several peers at once instead of the serial
// one-peer-at-a-time NextPeer rotation, bounded to maxWorkers concurrent
// requests. Grounded in the original newcoin JobQueue's worker-pool
// pattern (a supplemented feature, not in spec.md's own text): each
// peer's batch of node requests becomes one job tagged with its own
// request id, so a slow or failing peer's fetch is traceable
// independently of the others and doesn't hold up the rest.
func FetchMissingNodesParallel(ctx context.Context, a *TxSetAcquire, peers []hash.H160, maxNodesTotal, maxWorkers int, ask NodeRequester, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	if len(peers) == 0 {
		return nil
	}

	a.mu.Lock()
	dest := a.dest
	a.mu.Unlock()

	missing, err := dest.GetMissingNodes(maxNodesTotal)
	if err != nil || len(missing) == 0 {
		return err
	}

	batches := splitRequests(missing, len(peers))
	g, gctx := errgroup.WithContext(ctx)
	if maxWorkers > 0 {
		g.SetLimit(maxWorkers)
	}

	for i, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		peer := peers[i%len(peers)]
		batch := batch
		jobID := uuid.NewString()
		g.Go(func() error {
			log.Debug("sync fetch job dispatched", "job_id", jobID, "peer", peer.String(), "nodes", len(batch))
			if err := ask(gctx, peer, batch); err != nil {
				log.Warn("sync fetch job failed", "job_id", jobID, "peer", peer.String(), "err", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// splitRequests spreads reqs across n roughly-even batches, round-robin.
func splitRequests(reqs []shamap.MissingNodeRequest, n int) [][]shamap.MissingNodeRequest {
	if n <= 0 {
		return nil
	}
	if n > len(reqs) {
		n = len(reqs)
	}
	batches := make([][]shamap.MissingNodeRequest, n)
	for i, r := range reqs {
		batches[i%n] = append(batches[i%n], r)
	}
	return batches
}
