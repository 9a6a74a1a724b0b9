package topology

import (
	"testing"
	"time"
)

func TestFindAdvertisableHelloPicksUnmarkedDescriptor(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tbl := NewPeerTable("self", 5, 0, false)
	tbl.Touch("receiver", now)
	tbl.Touch("owner-a", now)
	tbl.SetDescriptor("owner-a", []byte("hello-a"))

	owner, descriptor, ok := tbl.FindAdvertisableHello("receiver", 1500, now)
	if !ok {
		t.Fatalf("expected an advertisable hello")
	}
	if owner != "owner-a" || string(descriptor) != "hello-a" {
		t.Fatalf("got (%q, %q)", owner, descriptor)
	}
}

func TestFindAdvertisableHelloSkipsOversizedDescriptor(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tbl := NewPeerTable("self", 5, 0, false)
	tbl.Touch("receiver", now)
	tbl.Touch("owner-a", now)
	tbl.SetDescriptor("owner-a", make([]byte, 2000))

	_, _, ok := tbl.FindAdvertisableHello("receiver", 1500, now)
	if ok {
		t.Fatalf("expected no advertisable hello for oversized descriptor")
	}
}

func TestFindAdvertisableHelloSkipsAlreadyMarked(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tbl := NewPeerTable("self", 5, 0, false)
	tbl.Touch("receiver", now)
	tbl.Touch("owner-a", now)
	tbl.SetDescriptor("owner-a", []byte("hello-a"))

	if _, _, ok := tbl.FindAdvertisableHello("receiver", 1500, now); !ok {
		t.Fatalf("expected first call to find the descriptor")
	}
	if _, _, ok := tbl.FindAdvertisableHello("receiver", 1500, now); ok {
		t.Fatalf("expected second call to find nothing: owner-a's filter already marks receiver")
	}
}

func TestFindAdvertisableHelloBumpsNextHelloAllowed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tbl := NewPeerTable("self", 5, 0, false)
	tbl.Touch("receiver", now)
	tbl.Touch("owner-a", now)
	tbl.SetDescriptor("owner-a", []byte("hello-a"))

	if _, _, ok := tbl.FindAdvertisableHello("receiver", 1500, now); !ok {
		t.Fatalf("expected a match")
	}
	if tbl.ReadyForHello("receiver", now) {
		t.Fatalf("expected receiver not ready for another hello immediately after")
	}
	if !tbl.ReadyForHello("receiver", now.Add(HelloAdvertisementMinFrequency+time.Second)) {
		t.Fatalf("expected receiver ready after min frequency elapses")
	}
}
