package topology

import (
	"testing"
	"time"
)

func TestComputeStrengthBelowTarget(t *testing.T) {
	got := ComputeStrength(0, 5, 10, 1, false, false, false)
	if got != 1 {
		t.Fatalf("strength = %d, want 1", got)
	}
}

func TestComputeStrengthAtTarget(t *testing.T) {
	got := ComputeStrength(5, 5, 10, 1, false, false, false)
	if got != 0 {
		t.Fatalf("strength = %d, want 0", got)
	}
}

func TestComputeStrengthFriendGating(t *testing.T) {
	// friend_count < minimum_friend_count forces strength via friend status.
	if got := ComputeStrength(0, 5, 0, 3, false, true, false); got != 20 {
		t.Fatalf("friend strength = %d, want 20 (10 friend-gate * 2 is-friend)", got)
	}
	if got := ComputeStrength(0, 5, 0, 3, false, false, false); got != 0 {
		t.Fatalf("non-friend strength under gate = %d, want 0", got)
	}
}

func TestComputeStrengthFriendsOnly(t *testing.T) {
	if got := ComputeStrength(0, 5, 100, 0, true, true, false); got != 20 {
		t.Fatalf("friends-only friend strength = %d, want 20", got)
	}
	if got := ComputeStrength(0, 5, 100, 0, true, false, false); got != 0 {
		t.Fatalf("friends-only non-friend strength = %d, want 0", got)
	}
}

func TestComputeStrengthAlreadyConnectedDoubles(t *testing.T) {
	got := ComputeStrength(0, 5, 10, 1, false, false, true)
	if got != 2 {
		t.Fatalf("strength = %d, want 2", got)
	}
}

func TestBlacklistActiveBelowMinimumFriends(t *testing.T) {
	tbl := NewPeerTable("self", 5, 3, false)
	if !tbl.BlacklistActive() {
		t.Fatalf("expected blacklist active with zero friends below minimum 3")
	}
	tbl.SetFriends(map[string]bool{"a": true, "b": true, "c": true})
	if tbl.BlacklistActive() {
		t.Fatalf("expected blacklist inactive once minimum friends met")
	}
}

func TestAllowedRejectsNonFriendUnderBlacklist(t *testing.T) {
	tbl := NewPeerTable("self", 5, 1, false)
	if tbl.Allowed("stranger") {
		t.Fatalf("expected stranger rejected under active blacklist")
	}
	tbl.SetFriends(map[string]bool{"friend-1": true})
	if !tbl.Allowed("friend-1") {
		t.Fatalf("expected known friend allowed")
	}
}

func TestTouchCreatesEntryWithSelfInFilter(t *testing.T) {
	tbl := NewPeerTable("self-id", 5, 0, false)
	entry := tbl.Touch("peer-1", time.Unix(1_700_000_000, 0))
	if !entry.Filter.Test([]byte("self-id")) {
		t.Fatalf("expected new entry's filter to pre-contain self")
	}
}
