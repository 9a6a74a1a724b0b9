package adapters

import (
	"context"
	"testing"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnserr"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnsrecord"
)

func TestInMemoryNamestoreStoreLookup(t *testing.T) {
	ns := NewInMemoryNamestore()
	ctx := context.Background()
	zone := []byte("zone-pub-key-placeholder-32byte")
	rds := []gnsrecord.Record{{Type: 1, Expiration: 1000, Data: []byte("1.2.3.4")}}

	if err := ns.Store(ctx, zone, "www", rds); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := ns.Lookup(ctx, zone, "www")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) != 1 || string(got[0].Data) != "1.2.3.4" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestInMemoryNamestoreLookupMissing(t *testing.T) {
	ns := NewInMemoryNamestore()
	_, err := ns.Lookup(context.Background(), []byte("no-such-zone"), "www")
	if err == nil {
		t.Fatalf("expected error for unknown zone")
	}
	gerr, ok := err.(*gnserr.Error)
	if !ok || gerr.Kind != gnserr.KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestInfohashFromQueryTruncates(t *testing.T) {
	var query [32]byte
	for i := range query {
		query[i] = byte(i)
	}
	ih := infohashFromQuery(query)
	for i := 0; i < 20; i++ {
		if ih[i] != byte(i) {
			t.Fatalf("infohash byte %d mismatch: got %d want %d", i, ih[i], i)
		}
	}
}
