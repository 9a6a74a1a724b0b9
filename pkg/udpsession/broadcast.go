package udpsession

import (
	"crypto/ed25519"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/crypto"
)

// broadcastSignedFields renders sender_id || H(addr) for UDPBroadcast's
// signature.
func broadcastSignedFields(senderID [32]byte, addrHash [32]byte) []byte {
	buf := make([]byte, 64)
	copy(buf[:32], senderID[:])
	copy(buf[32:], addrHash[:])
	return buf
}

// BuildBroadcast signs a presence announcement binding this identity to
// addrHash, the hash of the interface's broadcast/multicast address (spec
// §4.E broadcast discovery).
func (m *Manager) BuildBroadcast(addrHash [32]byte) UDPBroadcast {
	var senderID [32]byte
	copy(senderID[:], m.identity.Signing.Public)
	sig := crypto.SignEdDSA(m.identity.Signing.Private, crypto.PurposeUDPBroadcast, broadcastSignedFields(senderID, addrHash))
	b := UDPBroadcast{SenderPeerID: senderID}
	copy(b.Signature[:], sig)
	return b
}

// VerifyBroadcast checks b's signature against the expected address hash,
// returning the announcing peer's identity string on success.
func VerifyBroadcast(b UDPBroadcast, addrHash [32]byte) (peerID string, ok bool) {
	pub := ed25519.PublicKey(b.SenderPeerID[:])
	if !crypto.VerifyEdDSA(pub, crypto.PurposeUDPBroadcast, broadcastSignedFields(b.SenderPeerID, addrHash), b.Signature[:]) {
		return "", false
	}
	return crypto.ZoneIDBase32(pub), true
}
