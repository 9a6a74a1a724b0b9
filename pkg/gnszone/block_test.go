package gnszone

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/crypto"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnsrecord"
)

func mustZoneKey(t *testing.T) *crypto.ZoneKey {
	t.Helper()
	zk, err := crypto.GenerateZoneKey()
	if err != nil {
		t.Fatalf("GenerateZoneKey: %v", err)
	}
	return zk
}

func TestBlockCreateVerifyDecryptRoundTrip(t *testing.T) {
	zk := mustZoneKey(t)
	now := time.UnixMicro(1_000_000)
	rds := []gnsrecord.Record{
		{Type: 1, Expiration: now.UnixMicro() + 3600_000_000, Data: []byte("192.0.2.1")},
	}

	block, err := BlockCreate(zk, "www", rds, now)
	if err != nil {
		t.Fatalf("BlockCreate: %v", err)
	}
	if !BlockVerify(block) {
		t.Fatalf("expected freshly created block to verify")
	}

	got, err := BlockDecrypt(block, zk.Public, "www", now)
	if err != nil {
		t.Fatalf("BlockDecrypt: %v", err)
	}
	if len(got) != 1 || !bytes.Equal(got[0].Data, rds[0].Data) {
		t.Fatalf("unexpected decrypted records: %+v", got)
	}
}

func TestBlockVerifyRejectsTamperedCiphertext(t *testing.T) {
	zk := mustZoneKey(t)
	now := time.UnixMicro(1)
	rds := []gnsrecord.Record{{Type: 1, Expiration: 10_000_000, Data: []byte("x")}}

	block, err := BlockCreate(zk, "www", rds, now)
	if err != nil {
		t.Fatalf("BlockCreate: %v", err)
	}
	block.Ciphertext[0] ^= 0xff

	if BlockVerify(block) {
		t.Fatalf("expected tampered ciphertext to fail signature verification")
	}
	if _, err := BlockDecrypt(block, zk.Public, "www", now); err == nil {
		t.Fatalf("expected BlockDecrypt to fail on tampered block")
	}
}

func TestBlockDecryptRejectsWrongZone(t *testing.T) {
	zk := mustZoneKey(t)
	other := mustZoneKey(t)
	now := time.UnixMicro(1)
	rds := []gnsrecord.Record{{Type: 1, Expiration: 10_000_000, Data: []byte("x")}}

	block, err := BlockCreate(zk, "www", rds, now)
	if err != nil {
		t.Fatalf("BlockCreate: %v", err)
	}

	if _, err := BlockDecrypt(block, other.Public, "www", now); err == nil {
		t.Fatalf("expected decrypt under a different zone's public key to fail")
	}
}

func TestQueryFromPrivateAndPublicKeyAgree(t *testing.T) {
	zk := mustZoneKey(t)

	fromPub, err := QueryFromPublicKey(zk.Public, "www")
	if err != nil {
		t.Fatalf("QueryFromPublicKey: %v", err)
	}
	fromPriv, err := QueryFromPrivateKey(zk, "www")
	if err != nil {
		t.Fatalf("QueryFromPrivateKey: %v", err)
	}
	if fromPub != fromPriv {
		t.Fatalf("query hashes disagree: %x != %x", fromPub, fromPriv)
	}
}

func TestEncodeDecodeBlockRoundTrip(t *testing.T) {
	zk := mustZoneKey(t)
	now := time.UnixMicro(1)
	rds := []gnsrecord.Record{{Type: 1, Expiration: 10_000_000, Data: []byte("payload")}}

	block, err := BlockCreate(zk, "www", rds, now)
	if err != nil {
		t.Fatalf("BlockCreate: %v", err)
	}

	wire, err := EncodeBlock(block)
	if err != nil {
		t.Fatalf("EncodeBlock: %v", err)
	}
	decoded, err := DecodeBlock(wire)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if !bytes.Equal(decoded.DerivedKey, block.DerivedKey) || !bytes.Equal(decoded.Signature, block.Signature) {
		t.Fatalf("decoded block fields mismatch")
	}
	if !BlockVerify(decoded) {
		t.Fatalf("expected decoded block to still verify")
	}
}

func TestBlockCreateRejectsOversizedPayload(t *testing.T) {
	zk := mustZoneKey(t)
	now := time.UnixMicro(1)
	rds := []gnsrecord.Record{{Type: 1, Expiration: 10_000_000, Data: make([]byte, MaxBlockSize+1)}}

	if _, err := BlockCreate(zk, "www", rds, now); err == nil {
		t.Fatalf("expected oversized payload to be rejected")
	}
}

type memStore struct {
	values map[[32]byte][]byte
}

func newMemStore() *memStore {
	return &memStore{values: make(map[[32]byte][]byte)}
}

func (m *memStore) Put(_ context.Context, query [32]byte, value []byte) error {
	m.values[query] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Get(_ context.Context, query [32]byte) ([]byte, error) {
	v, ok := m.values[query]
	if !ok {
		return nil, errNotFound
	}
	return v, nil
}

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "not found" }

func TestPublisherResolverRoundTrip(t *testing.T) {
	zk := mustZoneKey(t)
	store := newMemStore()
	pub := &Publisher{Store: store}
	res := &Resolver{Store: store}

	now := time.UnixMicro(1)
	rds := []gnsrecord.Record{{Type: 1, Expiration: now.UnixMicro() + 10_000_000, Data: []byte("10.0.0.1")}}

	ctx := context.Background()
	if err := pub.Publish(ctx, zk, "www", rds, now); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, err := res.Resolve(ctx, zk.Public, "www", now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 1 || !bytes.Equal(got[0].Data, rds[0].Data) {
		t.Fatalf("unexpected resolved records: %+v", got)
	}
}
