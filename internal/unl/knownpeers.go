package unl

import (
	"sync"
	"time"
)

// KnownPeer is one address in the peer-discovery address book: where to
// dial, and when we last saw or last tried it.
type KnownPeer struct {
	Address   string
	LastSeen  time.Time
	LastTried time.Time
}

// KnownPeers is an address book of peers to try dialing, independent of
// the trust graph in List: an address can be worth connecting to long
// before (or without ever) carrying a validator entry. Round-robins
// through untried addresses so one persistently-down peer can't starve
// the rest.
type KnownPeers struct {
	mu    sync.Mutex
	peers []*KnownPeer
	index map[string]int
	next  int
}

func NewKnownPeers() *KnownPeers {
	return &KnownPeers{index: make(map[string]int)}
}

// AddOrUpdate records addr as seen now, adding it if new.
func (k *KnownPeers) AddOrUpdate(addr string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if i, ok := k.index[addr]; ok {
		k.peers[i].LastSeen = time.Now()
		return
	}
	k.index[addr] = len(k.peers)
	k.peers = append(k.peers, &KnownPeer{Address: addr, LastSeen: time.Now()})
}

// NextUntried returns the next address in round-robin order that hasn't
// been dialed yet this sweep, marking it tried. Returns nil once every
// known address has been tried.
func (k *KnownPeers) NextUntried() *KnownPeer {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.next >= len(k.peers) {
		return nil
	}
	p := k.peers[k.next]
	p.LastTried = time.Now()
	k.next++
	return p
}

// ResetSweep allows every known address to be tried again.
func (k *KnownPeers) ResetSweep() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.next = 0
}

// Len returns how many addresses are known.
func (k *KnownPeers) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.peers)
}
