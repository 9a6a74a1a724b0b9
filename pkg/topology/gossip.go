package topology

import (
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// refreshFilter resets entry's Bloom filter once it has exceeded
// BloomFilterExpiry.
func refreshFilter(entry *PeerEntry, self string, now time.Time) {
	if now.Sub(entry.FilterCreatedAt) < BloomFilterExpiry {
		return
	}
	entry.Filter = bloom.New(BloomFilterBits, BloomFilterHashes)
	entry.Filter.Add([]byte(self))
	entry.FilterCreatedAt = now
}

// FindAdvertisableHello scans the table for the first peer entry whose
// descriptor (a) fits mtu, (b) does not belong to receiverPeerID itself,
// and (c) is not already marked in that candidate's own Bloom filter (spec
// §3: each entry's filter marks "which peers have already received this
// peer's descriptor"; spec §4.F find_advertisable_hello). On a match it
// marks the descriptor owner's filter with receiverPeerID and bumps the
// receiver's next_hello_allowed timestamp, returning the owner's peer_id
// and descriptor.
func (t *PeerTable) FindAdvertisableHello(receiverPeerID string, mtu int, now time.Time) (ownerPeerID string, descriptor []byte, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	receiver, exists := t.peers[receiverPeerID]
	if !exists {
		return "", nil, false
	}
	refreshFilter(receiver, t.self, now)

	for id, entry := range t.peers {
		if id == receiverPeerID {
			continue
		}
		if len(entry.Descriptor) == 0 || len(entry.Descriptor) > mtu {
			continue
		}
		refreshFilter(entry, t.self, now)
		if entry.Filter.Test([]byte(receiverPeerID)) {
			continue
		}
		entry.Filter.Add([]byte(receiverPeerID))
		receiver.NextHelloAllowed = now.Add(HelloAdvertisementMinFrequency)
		return id, entry.Descriptor, true
	}
	return "", nil, false
}

// ReadyForHello reports whether receiverPeerID's next_hello_allowed
// timestamp has passed.
func (t *PeerTable) ReadyForHello(receiverPeerID string, now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.peers[receiverPeerID]
	if !ok {
		return true
	}
	return !now.Before(entry.NextHelloAllowed)
}
