package gomavlib

import (
	"sync"
	"time"
)

// PeerID identifies a MAVLink system by its (system id, component id)
// pair, the only identity heartbeats carry.
type PeerID struct {
	SystemID    uint8
	ComponentID uint8
}

// Peer is a tracked remote system, last heard from at LastActive.
type Peer struct {
	ID         PeerID
	LastActive time.Time
}

// peerTracker maintains the set of peers a Node has seen heartbeats from,
// evicting any that go silent for longer than timeout * tolerance.
type peerTracker struct {
	mu        sync.RWMutex
	peers     map[PeerID]Peer
	timeout   time.Duration
	tolerance float64
}

func newPeerTracker(timeout time.Duration, tolerance float64) *peerTracker {
	if tolerance <= 0 {
		tolerance = 1
	}
	return &peerTracker{
		peers:     make(map[PeerID]Peer),
		timeout:   timeout,
		tolerance: tolerance,
	}
}

// upsert records activity for id at now, returning true the first time id
// is seen.
func (t *peerTracker) upsert(id PeerID, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, known := t.peers[id]
	t.peers[id] = Peer{ID: id, LastActive: now}
	return !known
}

// staleDeadline is how long a peer may go silent before sweep evicts it.
func (t *peerTracker) staleDeadline() time.Duration {
	return time.Duration(float64(t.timeout) * t.tolerance)
}

// sweep evicts every peer that has been silent past the stale deadline as
// of now, returning the evicted peers.
func (t *peerTracker) sweep(now time.Time) []Peer {
	deadline := t.staleDeadline()

	t.mu.Lock()
	defer t.mu.Unlock()

	var lost []Peer
	for id, peer := range t.peers {
		if now.Sub(peer.LastActive) > deadline {
			lost = append(lost, peer)
			delete(t.peers, id)
		}
	}
	return lost
}

// get returns the tracked state for id, if any.
func (t *peerTracker) get(id PeerID) (Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id]
	return p, ok
}

// snapshot returns every currently tracked peer.
func (t *peerTracker) snapshot() []Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	return out
}
