package topology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/crypto"
)

func TestParseFriendsFileMissingIsEmptyNotError(t *testing.T) {
	friends, err := ParseFriendsFile(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("ParseFriendsFile: %v", err)
	}
	if len(friends) != 0 {
		t.Fatalf("expected empty friend set, got %d entries", len(friends))
	}
}

func TestParseFriendsFileParsesValidTokens(t *testing.T) {
	zk, err := crypto.GenerateZoneKey()
	if err != nil {
		t.Fatalf("GenerateZoneKey: %v", err)
	}
	id := crypto.ZoneIDBase32(zk.Public)

	path := filepath.Join(t.TempDir(), "friends")
	if err := os.WriteFile(path, []byte(id+"\nnot-a-valid-id\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	friends, err := ParseFriendsFile(path)
	if err != nil {
		t.Fatalf("ParseFriendsFile: %v", err)
	}
	if !friends[id] {
		t.Fatalf("expected %s in friend set", id)
	}
	if len(friends) != 1 {
		t.Fatalf("expected exactly one valid friend, got %d", len(friends))
	}
}

func TestParseFriendsFileEmptyFileIsFine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "friends")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	friends, err := ParseFriendsFile(path)
	if err != nil {
		t.Fatalf("ParseFriendsFile: %v", err)
	}
	if len(friends) != 0 {
		t.Fatalf("expected empty friend set for empty file")
	}
}
