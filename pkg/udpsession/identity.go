package udpsession

import (
	"fmt"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/crypto"
)

// Identity is this node's UDP communicator identity: an Ed25519 signing
// key naming the peer and a long-term X25519
// key, the static ECDH target a remote KX handshakes against. These are
// deliberately separate keys rather than one birationally-mapped key: the
// zone-signing key (pkg/crypto.ZoneKey) is Ed25519-only and this package
// never needs to convert between curve representations.
type Identity struct {
	Signing    *crypto.ZoneKey
	X25519Priv [32]byte
	X25519Pub  [32]byte
}

// NewIdentity generates a fresh signing key and ECDH key pair.
func NewIdentity() (*Identity, error) {
	signing, err := crypto.GenerateZoneKey()
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	priv, pub, err := crypto.GenerateEphemeral()
	if err != nil {
		return nil, fmt.Errorf("generate ecdh key: %w", err)
	}
	return &Identity{Signing: signing, X25519Priv: priv, X25519Pub: pub}, nil
}

// PeerID renders this identity's public signing key as the peer_id used
// throughout the wire formats and peer tables.
func (id *Identity) PeerID() string {
	return crypto.ZoneIDBase32(id.Signing.Public)
}
