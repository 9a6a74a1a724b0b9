package crypto

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestSaveLoadZoneKeyEncryptedRoundTrip(t *testing.T) {
	zk := mustZoneKey(t)
	path := filepath.Join(t.TempDir(), "zone.key.enc")

	if err := SaveZoneKeyEncrypted(path, zk, "correct horse battery staple"); err != nil {
		t.Fatalf("SaveZoneKeyEncrypted: %v", err)
	}

	got, err := LoadZoneKeyEncrypted(path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("LoadZoneKeyEncrypted: %v", err)
	}
	if !bytes.Equal(got.Private, zk.Private) || !bytes.Equal(got.Public, zk.Public) {
		t.Fatalf("round trip mismatch")
	}
}

func TestLoadZoneKeyEncryptedWrongPassword(t *testing.T) {
	zk := mustZoneKey(t)
	path := filepath.Join(t.TempDir(), "zone.key.enc")

	if err := SaveZoneKeyEncrypted(path, zk, "right password"); err != nil {
		t.Fatalf("SaveZoneKeyEncrypted: %v", err)
	}
	if _, err := LoadZoneKeyEncrypted(path, "wrong password"); err == nil {
		t.Fatalf("expected error for wrong password")
	}
}
