package udpsession

import (
	"container/list"
	"encoding/binary"
	"fmt"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/crypto"
)

// SharedSecret is the per-direction key-derivation root established by a
// KX. sequence_used tracks the highest sequence this side has
// consumed for sending; sequence_allowed is the peer-granted budget
// ceiling. kces is the secret's ordered KeyCacheEntry membership (the
// "DLL" spec §4.D refers to), oldest at the front.
type SharedSecret struct {
	PeerID string
	Master [32]byte
	CMAC   [32]byte

	SequenceUsed    uint32
	SequenceAllowed uint32

	BytesSent uint64
	CreatedAt int64 // unix nanos, for REKEY_TIME_INTERVAL
	LastAckAt int64 // unix nanos, for the usable->exhausted inactivity timer

	State SecretState

	kces *list.List // *KeyCacheEntry, oldest-first
}

// NewSharedSecret derives cmac from master and initializes an empty KCN
// list.
func NewSharedSecret(master [32]byte, createdAt int64) (*SharedSecret, error) {
	cmac, err := deriveCMAC(master)
	if err != nil {
		return nil, err
	}
	return &SharedSecret{
		Master:    master,
		CMAC:      cmac,
		CreatedAt: createdAt,
		State:     SecretFresh,
		kces:      list.New(),
	}, nil
}

func deriveCMAC(master [32]byte) ([32]byte, error) {
	var out [32]byte
	raw, err := crypto.HKDF(master[:], []byte(labelCMAC), []byte(ctxCMAC), 32)
	if err != nil {
		return out, fmt.Errorf("derive cmac: %w", err)
	}
	copy(out[:], raw)
	return out, nil
}

// sequenceSalt renders sequence n as the big-endian salt spec §4.D's
// "be(n)" calls for.
func sequenceSalt(n uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	return buf[:]
}

// DeriveKeyIV derives the AES-256-GCM key and IV for sequence n. Sequence
// 0 is reserved for the KX's own confirmation ciphertext.
func (s *SharedSecret) DeriveKeyIV(n uint32) (key []byte, iv []byte, err error) {
	raw, err := crypto.HKDF(s.Master[:], sequenceSalt(n), []byte(ctxIVKey), 32+crypto.GCMNonceSize)
	if err != nil {
		return nil, nil, fmt.Errorf("derive key/iv: %w", err)
	}
	return raw[:32], raw[32:], nil
}

// DeriveKID derives the box key-cache-entry identifier for sequence n.
func (s *SharedSecret) DeriveKID(n uint32) ([32]byte, error) {
	var out [32]byte
	raw, err := crypto.HKDF(s.Master[:], sequenceSalt(n), []byte(ctxKID), 32)
	if err != nil {
		return out, fmt.Errorf("derive kid: %w", err)
	}
	copy(out[:], raw)
	return out, nil
}

// ActiveKCECount returns the number of live KeyCacheEntries in this
// secret's DLL.
func (s *SharedSecret) ActiveKCECount() int {
	return s.kces.Len()
}

// oldestSequence returns the tail (oldest) KCN's sequence number, or
// (0, false) if the DLL is empty.
func (s *SharedSecret) oldestSequence() (uint32, bool) {
	front := s.kces.Front()
	if front == nil {
		return 0, false
	}
	return front.Value.(*KeyCacheEntry).Sequence, true
}

// EvictOldest drops the front (oldest) KCN from the DLL, returning it, or
// nil if empty.
func (s *SharedSecret) EvictOldest() *KeyCacheEntry {
	front := s.kces.Front()
	if front == nil {
		return nil
	}
	s.kces.Remove(front)
	return front.Value.(*KeyCacheEntry)
}

// RekeyDue reports whether this secret has crossed REKEY_MAX_BYTES or
// REKEY_TIME_INTERVAL and a fresh KX should replace it.
func (s *SharedSecret) RekeyDue(nowNanos int64) bool {
	if s.BytesSent >= RekeyMaxBytes {
		return true
	}
	return nowNanos-s.CreatedAt >= int64(RekeyTimeInterval)
}
