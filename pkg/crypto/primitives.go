// Package crypto adapts the primitives the naming and transport layers
// build on: X25519 ECDH, HKDF-SHA256 key derivation, AES-256-GCM
// authenticated encryption, and Ed25519 signing with domain-separated
// purpose tags. Every derivation below follows the same HKDF-over-fixed-
// context-string idiom, generalized from the teacher's symmetric
// mesh-secret derivation (pkg/crypto/derive.go's deriveHKDF helper) to
// the asymmetric zone-key derivation this spec requires.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// Purpose constants are fixed 32-bit domain-separation tags. They are part
// of the cryptographic binding and must never be renumbered or reused
// across protocol roles.
type Purpose uint32

const (
	PurposeGNSRecordSign Purpose = 1
	PurposeUDPHandshake  Purpose = 2
	PurposeUDPBroadcast  Purpose = 3
	PurposeRevocation    Purpose = 4
)

// AEADTagSize is the GCM authentication tag length used throughout the
// wire formats (InitialKX, UDPBox, GNS block ciphertexts).
const AEADTagSize = 16

// GCMNonceSize is the nonce/IV length AES-GCM expects.
const GCMNonceSize = 12

// HKDF derives outLen bytes of key material from ikm using the given
// salt and info strings. A nil salt uses an HKDF-internal zero salt.
func HKDF(ikm, salt, info []byte, outLen int) ([]byte, error) {
	r := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, outLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return out, nil
}

// HKDFUniform derives a 64-byte uniform scalar seed — the width needed by
// edwards25519.Scalar.SetUniformBytes, which reduces mod the group order
// without the clamping crypto/ed25519 applies to raw seeds.
func HKDFUniform(ikm, salt, info []byte) ([]byte, error) {
	return HKDF(ikm, salt, info, 64)
}

// ECDH performs X25519 Diffie-Hellman between a private scalar and a peer's
// public point, returning the raw 32-byte shared secret.
func ECDH(priv, pub [32]byte) ([32]byte, error) {
	var out [32]byte
	shared, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return out, fmt.Errorf("ecdh: %w", err)
	}
	copy(out[:], shared)
	return out, nil
}

// GenerateEphemeral creates a fresh X25519 key pair for a single KX.
func GenerateEphemeral() (priv, pub [32]byte, err error) {
	if _, err = io.ReadFull(rand.Reader, priv[:]); err != nil {
		return priv, pub, fmt.Errorf("generate ephemeral: %w", err)
	}
	// Clamp per RFC 7748 so the scalar is a valid X25519 private key.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, fmt.Errorf("generate ephemeral: %w", err)
	}
	copy(pub[:], p)
	return priv, pub, nil
}

// AESGCMEncrypt seals plaintext under key/iv with no additional data,
// returning ciphertext with the GCM tag appended (matching the wire
// formats' "ciphertext || tag" convention).
func AESGCMEncrypt(key []byte, iv []byte, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("aes-gcm encrypt: bad iv size %d", len(iv))
	}
	return gcm.Seal(nil, iv, plaintext, nil), nil
}

// AESGCMDecrypt opens a "ciphertext || tag" blob produced by AESGCMEncrypt.
func AESGCMDecrypt(key []byte, iv []byte, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("aes-gcm decrypt: bad iv size %d", len(iv))
	}
	pt, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("aes-gcm decrypt: %w", err)
	}
	return pt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return gcm, nil
}

// SignEdDSA signs payload under purpose with priv, binding the purpose tag
// into the signed message so signatures cannot be replayed across roles.
func SignEdDSA(priv ed25519.PrivateKey, purpose Purpose, payload []byte) []byte {
	return ed25519.Sign(priv, signedMessage(purpose, payload))
}

// VerifyEdDSA verifies a signature produced by SignEdDSA.
func VerifyEdDSA(pub ed25519.PublicKey, purpose Purpose, payload, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, signedMessage(purpose, payload), sig)
}

func signedMessage(purpose Purpose, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(purpose))
	copy(buf[4:], payload)
	return buf
}

// Hash256 is SHA-256, used for DHT query derivation and address hashing.
func Hash256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// Hash512 is SHA-512, used for Ed25519 seed expansion in key derivation.
func Hash512(data []byte) [64]byte {
	return sha512.Sum512(data)
}
