package gnszone

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/crypto"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnserr"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnsrecord"
)

// DHTStore is the minimal distributed store this package needs: put a
// signed block under its query hash, and fetch one back by query hash.
// pkg/adapters.DHTClient satisfies this structurally.
type DHTStore interface {
	Put(ctx context.Context, query [32]byte, value []byte) error
	Get(ctx context.Context, query [32]byte) ([]byte, error)
}

// Publisher turns a record set into a signed block and stores it in the DHT
//.
type Publisher struct {
	Store DHTStore
}

// Publish signs and stores rds under label in zone.
func (p *Publisher) Publish(ctx context.Context, zk *crypto.ZoneKey, label string, rds []gnsrecord.Record, now time.Time) error {
	block, err := BlockCreate(zk, label, rds, now)
	if err != nil {
		return err
	}
	query, err := QueryFromPrivateKey(zk, label)
	if err != nil {
		return gnserr.New(gnserr.KindInternal, "gnszone.Publisher.Publish", err)
	}
	wire, err := EncodeBlock(block)
	if err != nil {
		return gnserr.New(gnserr.KindWireFormat, "gnszone.Publisher.Publish", err)
	}
	if err := p.Store.Put(ctx, query, wire); err != nil {
		return gnserr.New(gnserr.KindInternal, "gnszone.Publisher.Publish", err)
	}
	return nil
}

// Resolver looks a label up under a zone's public key.
type Resolver struct {
	Store DHTStore
}

// Resolve fetches, verifies, and decrypts the block published for label
// under zonePub.
func (r *Resolver) Resolve(ctx context.Context, zonePub []byte, label string, now time.Time) ([]gnsrecord.Record, error) {
	query, err := QueryFromPublicKey(zonePub, label)
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, "gnszone.Resolver.Resolve", err)
	}
	wire, err := r.Store.Get(ctx, query)
	if err != nil {
		return nil, gnserr.New(gnserr.KindNotFound, "gnszone.Resolver.Resolve", err)
	}
	block, err := DecodeBlock(wire)
	if err != nil {
		return nil, err
	}
	return BlockDecrypt(block, zonePub, label, now)
}
