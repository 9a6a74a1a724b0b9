// Package topology is the topology controller: per-peer
// connection strength, friend-list gating, and Bloom-filter-driven HELLO
// gossip scheduling.
//
// Grounded on the teacher's pkg/daemon/peerstore.go PeerStore (thread-safe
// map + subscriber fan-out idiom), generalized from WireGuard peer
// bookkeeping to the spec's strength/friend/gossip model, and on
// github.com/bits-and-blooms/bloom/v3 for the per-peer descriptor filter.
package topology

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// HelloAdvertisementMinFrequency bounds how often the same receiver is
// re-offered a given descriptor.
const HelloAdvertisementMinFrequency = 5 * time.Minute

// BloomFilterBits and BloomFilterHashes fix the gossip Bloom filter's
// shape: 64 bytes (512 bits), 5 hash functions.
const (
	BloomFilterBits   = 64 * 8
	BloomFilterHashes = 5
)

// BloomFilterExpiry is how long a peer's gossip Bloom filter is trusted
// before it is reset.
const BloomFilterExpiry = 4 * time.Hour

// PeerEntry is one peer's topology bookkeeping: friend status, connection
// accounting, and the gossip descriptor/filter pair.
type PeerEntry struct {
	PeerID          string
	IsFriend        bool
	Connected       bool
	LastSeen        time.Time
	Descriptor      []byte // this peer's advertisable HELLO bytes, or nil if unknown
	Filter          *bloom.BloomFilter
	FilterCreatedAt time.Time
	NextHelloAllowed time.Time
}

// newPeerEntry creates an entry with a fresh Bloom filter that already
// contains self, so a peer is never offered its own descriptor back (spec
// §4.F "its own identity is pre-added").
func newPeerEntry(peerID, self string, now time.Time) *PeerEntry {
	f := bloom.New(BloomFilterBits, BloomFilterHashes)
	f.Add([]byte(self))
	return &PeerEntry{
		PeerID:          peerID,
		LastSeen:        now,
		Filter:          f,
		FilterCreatedAt: now,
	}
}

// PeerTable is the topology controller's thread-safe peer set.
type PeerTable struct {
	mu   sync.RWMutex
	self string
	peers map[string]*PeerEntry

	friends        map[string]bool
	targetConns    int
	minFriendCount int
	friendsOnly    bool
}

// NewPeerTable creates an empty table. self is this node's own peer_id,
// pre-seeded into every new entry's gossip filter.
func NewPeerTable(self string, targetConnectionCount, minimumFriendCount int, friendsOnly bool) *PeerTable {
	return &PeerTable{
		self:           self,
		peers:          make(map[string]*PeerEntry),
		friends:        make(map[string]bool),
		targetConns:    targetConnectionCount,
		minFriendCount: minimumFriendCount,
		friendsOnly:    friendsOnly,
	}
}

// SetFriends replaces the friend set, as parsed from the friends file.
func (t *PeerTable) SetFriends(friends map[string]bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.friends = friends
	for id, entry := range t.peers {
		entry.IsFriend = t.friends[id]
	}
}

// FriendCount returns the number of known friends, irrespective of
// whether they are currently connected.
func (t *PeerTable) FriendCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.friends)
}

// BlacklistActive reports whether the friend-gating blacklist is
// installed: friend_count below the configured minimum, or friends-only
// mode.
func (t *PeerTable) BlacklistActive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.friendsOnly || len(t.friends) < t.minFriendCount
}

// Allowed reports whether a connection attempt from peerID should be
// accepted under the current blacklist policy.
func (t *PeerTable) Allowed(peerID string) bool {
	if !t.BlacklistActive() {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.friends[peerID]
}

// Touch records peerID as seen at now, creating its entry if new.
func (t *PeerTable) Touch(peerID string, now time.Time) *PeerEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.peers[peerID]
	if !ok {
		entry = newPeerEntry(peerID, t.self, now)
		entry.IsFriend = t.friends[peerID]
		t.peers[peerID] = entry
	}
	entry.LastSeen = now
	return entry
}

// SetConnected updates peerID's connection flag.
func (t *PeerTable) SetConnected(peerID string, connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.peers[peerID]; ok {
		entry.Connected = connected
	}
}

// ConnectionCount returns the number of currently connected peers.
func (t *PeerTable) ConnectionCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, e := range t.peers {
		if e.Connected {
			n++
		}
	}
	return n
}

// Strength computes peerID's connection strength under the table's
// current configuration.
func (t *PeerTable) Strength(peerID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.peers[peerID]
	isFriend := ok && entry.IsFriend
	connected := ok && entry.Connected

	connCount := 0
	for _, e := range t.peers {
		if e.Connected {
			connCount++
		}
	}
	return ComputeStrength(connCount, t.targetConns, len(t.friends), t.minFriendCount, t.friendsOnly, isFriend, connected)
}

// ComputeStrength implements the spec §4.F strength formula directly.
func ComputeStrength(connectionCount, targetConnectionCount, friendCount, minimumFriendCount int, friendsOnly, isFriend, alreadyConnected bool) int {
	strength := 0
	if connectionCount < targetConnectionCount {
		strength = 1
	}
	if friendCount < minimumFriendCount || friendsOnly {
		if isFriend {
			strength = 10
		} else {
			strength = 0
		}
	}
	if isFriend {
		strength *= 2
	}
	if alreadyConnected {
		strength *= 2
	}
	return strength
}

// SetDescriptor records peerID's advertisable HELLO bytes.
func (t *PeerTable) SetDescriptor(peerID string, descriptor []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.peers[peerID]; ok {
		entry.Descriptor = descriptor
	}
}

// Entries returns a snapshot of every known peer entry.
func (t *PeerTable) Entries() []*PeerEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*PeerEntry, 0, len(t.peers))
	for _, e := range t.peers {
		out = append(out, e)
	}
	return out
}
