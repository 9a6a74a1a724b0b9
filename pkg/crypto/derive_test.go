package crypto

import (
	"bytes"
	"testing"
)

func mustZoneKey(t *testing.T) *ZoneKey {
	t.Helper()
	zk, err := GenerateZoneKey()
	if err != nil {
		t.Fatalf("GenerateZoneKey: %v", err)
	}
	return zk
}

func TestDerivePublicMatchesDerivedPrivatePublic(t *testing.T) {
	zk := mustZoneKey(t)

	priv, err := DerivePrivate(zk, "www", LabelDerivationContext)
	if err != nil {
		t.Fatalf("DerivePrivate: %v", err)
	}
	pubFromPriv := priv.Public().Bytes()

	pub, err := DerivePublic(zk.Public, "www", LabelDerivationContext)
	if err != nil {
		t.Fatalf("DerivePublic: %v", err)
	}

	if !bytes.Equal(pubFromPriv, pub.Bytes()) {
		t.Fatalf("derived public key mismatch: priv->pub=%x direct=%x", pubFromPriv, pub.Bytes())
	}
}

func TestDerivationIsDeterministic(t *testing.T) {
	zk := mustZoneKey(t)

	a, err := DerivePublic(zk.Public, "label", LabelDerivationContext)
	if err != nil {
		t.Fatalf("DerivePublic: %v", err)
	}
	b, err := DerivePublic(zk.Public, "label", LabelDerivationContext)
	if err != nil {
		t.Fatalf("DerivePublic: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("expected deterministic derivation, got %x != %x", a.Bytes(), b.Bytes())
	}
}

func TestDerivationDiffersByLabel(t *testing.T) {
	zk := mustZoneKey(t)

	a, err := DerivePublic(zk.Public, "www", LabelDerivationContext)
	if err != nil {
		t.Fatalf("DerivePublic: %v", err)
	}
	b, err := DerivePublic(zk.Public, "mail", LabelDerivationContext)
	if err != nil {
		t.Fatalf("DerivePublic: %v", err)
	}
	if bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("expected different labels to derive different keys")
	}
}

func TestSignVerifyDerivedRoundTrip(t *testing.T) {
	zk := mustZoneKey(t)
	priv, err := DerivePrivate(zk, "www", LabelDerivationContext)
	if err != nil {
		t.Fatalf("DerivePrivate: %v", err)
	}

	payload := []byte("gns record block payload")
	sig, err := SignDerived(priv, PurposeGNSRecordSign, payload)
	if err != nil {
		t.Fatalf("SignDerived: %v", err)
	}

	pub := priv.Public().Bytes()
	if !VerifyDerived(pub, PurposeGNSRecordSign, payload, sig) {
		t.Fatalf("expected signature to verify")
	}

	// Tampering with the payload must invalidate the signature.
	if VerifyDerived(pub, PurposeGNSRecordSign, append(append([]byte(nil), payload...), 0xff), sig) {
		t.Fatalf("expected tampered payload to fail verification")
	}

	// A different purpose tag must invalidate the signature (domain separation).
	if VerifyDerived(pub, PurposeUDPHandshake, payload, sig) {
		t.Fatalf("expected mismatched purpose to fail verification")
	}
}

func TestZoneIDBase32RoundTrip(t *testing.T) {
	zk := mustZoneKey(t)
	encoded := ZoneIDBase32(zk.Public)
	decoded, err := ParseZoneIDBase32(encoded)
	if err != nil {
		t.Fatalf("ParseZoneIDBase32: %v", err)
	}
	if !bytes.Equal(decoded, zk.Public) {
		t.Fatalf("round trip mismatch")
	}
}

func TestSaveLoadZoneKey(t *testing.T) {
	zk := mustZoneKey(t)
	dir := t.TempDir()
	path := dir + "/zone.key"

	if err := SaveZoneKey(path, zk); err != nil {
		t.Fatalf("SaveZoneKey: %v", err)
	}
	loaded, err := LoadZoneKey(path)
	if err != nil {
		t.Fatalf("LoadZoneKey: %v", err)
	}
	if !bytes.Equal(loaded.Public, zk.Public) {
		t.Fatalf("loaded public key mismatch")
	}
}
