package udpsession

import "sync"

// KeyCacheEntry (KCN) identifies one unused receive sequence: its kid maps
// O(1) to the (SharedSecret, sequence) pair needed to decrypt the box that
// will arrive at that sequence. Each is single-use: the box
// receive path destroys it on successful decrypt.
type KeyCacheEntry struct {
	KID      [32]byte
	Secret   *SharedSecret
	Sequence uint32
}

// KCNMap is the global kid -> KeyCacheEntry index every inbound box is
// looked up against before falling back to the KX path.
type KCNMap struct {
	mu      sync.RWMutex
	entries map[[32]byte]*KeyCacheEntry
}

// NewKCNMap creates an empty index.
func NewKCNMap() *KCNMap {
	return &KCNMap{entries: make(map[[32]byte]*KeyCacheEntry)}
}

// Lookup reports whether kid is registered, returning its entry.
func (m *KCNMap) Lookup(kid [32]byte) (*KeyCacheEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[kid]
	return e, ok
}

// Add registers kce, overwriting any previous entry under the same kid
// (collision is cryptographically negligible but defensive overwrite
// keeps the map a true 1:1 index).
func (m *KCNMap) Add(kce *KeyCacheEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[kce.KID] = kce
}

// Remove deletes kid's entry, used both for single-use destruction on a
// successful decrypt and for eager eviction of stale KCNs.
func (m *KCNMap) Remove(kid [32]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, kid)
}

// Len returns the number of registered entries (diagnostic/test use).
func (m *KCNMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// TopUp generates fresh KCNs for ss starting at ss.SequenceAllowed+1 until
// ActiveKCECount reaches KCNTarget, registering each in both the global
// map and the secret's DLL. It returns
// the new SequenceAllowed ceiling after top-up.
func (m *KCNMap) TopUp(ss *SharedSecret) (uint32, error) {
	next := ss.SequenceAllowed + 1
	for ss.ActiveKCECount() < KCNTarget {
		kid, err := ss.DeriveKID(next)
		if err != nil {
			return ss.SequenceAllowed, err
		}
		kce := &KeyCacheEntry{KID: kid, Secret: ss, Sequence: next}
		m.Add(kce)
		ss.kces.PushBack(kce)
		ss.SequenceAllowed = next
		next++
	}
	return ss.SequenceAllowed, nil
}

// EnforceSqnDelta evicts KCNs from ss's tail until kce_head.sequence -
// kce_tail.sequence <= MaxSqnDelta.
func (m *KCNMap) EnforceSqnDelta(ss *SharedSecret) {
	for {
		oldest, ok := ss.oldestSequence()
		if !ok {
			return
		}
		if ss.SequenceAllowed-oldest <= MaxSqnDelta {
			return
		}
		evicted := ss.EvictOldest()
		m.Remove(evicted.KID)
	}
}
