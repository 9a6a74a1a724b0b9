package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"os"

	"filippo.io/edwards25519"
)

// Domain-separation context for the per-label key derivation.
// Part of the wire format — must be reproduced exactly by interoperating
// implementations.
const LabelDerivationContext = "gns"

// ZoneKey is a long-lived Ed25519 key pair naming a GNS zone. The private
// key is the zone's publishing authority; the public key names the zone
// and is what resolvers hold.
type ZoneKey struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// GenerateZoneKey creates a fresh zone identity.
func GenerateZoneKey() (*ZoneKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate zone key: %w", err)
	}
	return &ZoneKey{Private: priv, Public: pub}, nil
}

// SaveZoneKey persists the raw private-key bytes to path.
func SaveZoneKey(path string, zk *ZoneKey) error {
	return os.WriteFile(path, zk.Private, 0o600)
}

// LoadZoneKey reads a zone key previously written by SaveZoneKey.
func LoadZoneKey(path string) (*ZoneKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load zone key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("load zone key: bad length %d, want %d", len(raw), ed25519.PrivateKeySize)
	}
	priv := ed25519.PrivateKey(raw)
	pub := priv.Public().(ed25519.PublicKey)
	return &ZoneKey{Private: priv, Public: pub}, nil
}

// ZoneIDBase32 renders a zone public key in the unpadded base32 encoding
// used for display and for friends-file / peer-identity tokens.
func ZoneIDBase32(pub ed25519.PublicKey) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(pub)
}

// ParseZoneIDBase32 is the inverse of ZoneIDBase32.
func ParseZoneIDBase32(s string) (ed25519.PublicKey, error) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parse zone id: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("parse zone id: bad length %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// DerivedPrivateKey is a label-specific signing scalar produced by
// scalar-offsetting a zone's private key.
type DerivedPrivateKey struct {
	scalar *edwards25519.Scalar
}

// DerivedPublicKey is the public counterpart: the zone's public point
// offset by the same scalar.
type DerivedPublicKey struct {
	point *edwards25519.Point
}

// Bytes returns the canonical 32-byte compressed point encoding, which also
// serves as the derived key's on-wire representation (Block.derived_key).
func (d *DerivedPublicKey) Bytes() []byte {
	return append([]byte(nil), d.point.Bytes()...)
}

// zoneScalar recovers the actual Ed25519 signing scalar from a private
// key's 32-byte seed, following RFC 8032: clamp(SHA-512(seed)[:32]).
func zoneScalar(priv ed25519.PrivateKey) (*edwards25519.Scalar, error) {
	seed := priv.Seed()
	h := Hash512(seed)
	clamped := h[:32]
	clampedCopy := make([]byte, 32)
	copy(clampedCopy, clamped)
	clampedCopy[0] &= 248
	clampedCopy[31] &= 127
	clampedCopy[31] |= 64
	return edwards25519.NewScalar().SetBytesWithClamping(clampedCopy)
}

func zonePoint(pub ed25519.PublicKey) (*edwards25519.Point, error) {
	p, err := edwards25519.NewIdentityPoint().SetBytes(pub)
	if err != nil {
		return nil, fmt.Errorf("decode zone public key: %w", err)
	}
	return p, nil
}

// derivationScalar computes h = HKDF(zone_pub || label || ctx) reduced to a
// scalar mod the curve order, per spec §3/§4.A: "HKDF over
// Z_pub || label || 'gns' to produce the scalar offset".
func derivationScalar(zonePub ed25519.PublicKey, label, ctx string) (*edwards25519.Scalar, error) {
	ikm := make([]byte, 0, len(zonePub)+len(label)+len(ctx))
	ikm = append(ikm, zonePub...)
	ikm = append(ikm, []byte(label)...)
	ikm = append(ikm, []byte(ctx)...)
	wide, err := HKDFUniform(ikm, nil, []byte("gns-derive-scalar"))
	if err != nil {
		return nil, fmt.Errorf("derivation scalar: %w", err)
	}
	h, err := edwards25519.NewScalar().SetUniformBytes(wide)
	if err != nil {
		return nil, fmt.Errorf("derivation scalar: %w", err)
	}
	return h, nil
}

// DerivePrivate computes dkey = h*zone_priv (mod order) for label under ctx.
func DerivePrivate(zk *ZoneKey, label, ctx string) (*DerivedPrivateKey, error) {
	h, err := derivationScalar(zk.Public, label, ctx)
	if err != nil {
		return nil, err
	}
	s, err := zoneScalar(zk.Private)
	if err != nil {
		return nil, fmt.Errorf("derive private: %w", err)
	}
	d := edwards25519.NewScalar().Multiply(h, s)
	return &DerivedPrivateKey{scalar: d}, nil
}

// DerivePublic computes Q = h*zone_pub for label under ctx — the public
// counterpart of DerivePrivate, computable from the zone public key alone.
func DerivePublic(zonePub ed25519.PublicKey, label, ctx string) (*DerivedPublicKey, error) {
	h, err := derivationScalar(zonePub, label, ctx)
	if err != nil {
		return nil, err
	}
	p, err := zonePoint(zonePub)
	if err != nil {
		return nil, fmt.Errorf("derive public: %w", err)
	}
	q := edwards25519.NewIdentityPoint().ScalarMult(h, p)
	return &DerivedPublicKey{point: q}, nil
}

// Public returns the public counterpart of a derived private key,
// satisfying pub(dkey) = DerivePublic(zone_pub, label, ctx) bit-exactly
//.
func (d *DerivedPrivateKey) Public() *DerivedPublicKey {
	p := edwards25519.NewIdentityPoint().ScalarBaseMult(d.scalar)
	return &DerivedPublicKey{point: p}
}

// SignDerived signs payload under purpose with a label-derived scalar,
// using a GNUnet-style EdDSA variant: the nonce is bound to the signing
// scalar and message via HKDF rather than the RFC 8032 seed-prefix (which
// a scalar-only derived key does not have), but the (R, S) verification
// equation is the standard Ed25519 one.
func SignDerived(d *DerivedPrivateKey, purpose Purpose, payload []byte) ([]byte, error) {
	msg := signedMessage(purpose, payload)
	pub := d.Public()
	pubBytes := pub.Bytes()

	scalarBytes := d.scalar.Bytes()
	nonceSeed := make([]byte, 0, len(scalarBytes)+len(msg))
	nonceSeed = append(nonceSeed, scalarBytes...)
	nonceSeed = append(nonceSeed, msg...)
	wideNonce, err := HKDFUniform(nonceSeed, nil, []byte("gns-eddsa-nonce"))
	if err != nil {
		return nil, fmt.Errorf("sign derived: %w", err)
	}
	r, err := edwards25519.NewScalar().SetUniformBytes(wideNonce)
	if err != nil {
		return nil, fmt.Errorf("sign derived: %w", err)
	}

	R := edwards25519.NewIdentityPoint().ScalarBaseMult(r)
	RBytes := R.Bytes()

	kInput := make([]byte, 0, len(RBytes)+len(pubBytes)+len(msg))
	kInput = append(kInput, RBytes...)
	kInput = append(kInput, pubBytes...)
	kInput = append(kInput, msg...)
	kHash := Hash512(kInput)
	k, err := edwards25519.NewScalar().SetUniformBytes(kHash[:])
	if err != nil {
		return nil, fmt.Errorf("sign derived: %w", err)
	}

	S := edwards25519.NewScalar().MultiplyAdd(k, d.scalar, r)

	sig := make([]byte, 64)
	copy(sig[:32], RBytes)
	copy(sig[32:], S.Bytes())
	return sig, nil
}

// VerifyDerived verifies a signature produced by SignDerived against a
// derived public key's wire bytes.
func VerifyDerived(pubBytes []byte, purpose Purpose, payload, sig []byte) bool {
	if len(sig) != 64 || len(pubBytes) != 32 {
		return false
	}
	A, err := edwards25519.NewIdentityPoint().SetBytes(pubBytes)
	if err != nil {
		return false
	}
	R, err := edwards25519.NewIdentityPoint().SetBytes(sig[:32])
	if err != nil {
		return false
	}
	S, err := edwards25519.NewScalar().SetCanonicalBytes(sig[32:])
	if err != nil {
		return false
	}

	msg := signedMessage(purpose, payload)
	kInput := make([]byte, 0, 32+len(pubBytes)+len(msg))
	kInput = append(kInput, sig[:32]...)
	kInput = append(kInput, pubBytes...)
	kInput = append(kInput, msg...)
	kHash := Hash512(kInput)
	k, err := edwards25519.NewScalar().SetUniformBytes(kHash[:])
	if err != nil {
		return false
	}

	// Check S*B == R + k*A.
	lhs := edwards25519.NewIdentityPoint().ScalarBaseMult(S)
	kA := edwards25519.NewIdentityPoint().ScalarMult(k, A)
	rhs := edwards25519.NewIdentityPoint().Add(R, kA)
	return ctEqual(lhs.Bytes(), rhs.Bytes())
}

func ctEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
