// Package gnszone implements the zone-block engine: assembling
// a signed, encrypted GNS block from a record set, verifying and decrypting
// one received over the DHT, and deriving the DHT query hash for a label.
//
// Grounded on the GNUnet Go port fragment's gns.go block helpers
// (other_examples/bfix-gnunet-go .../blocks/gns.go) for the block shape,
// and on pkg/crypto's derivation/signing primitives for the cryptography.
package gnszone

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/crypto"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnserr"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnsrecord"
)

// MaxBlockSize bounds the total encrypted payload of a block.
const MaxBlockSize = 63 * 1024

// BlockPurpose identifies a signature as covering a GNS record block,
// distinct from the UDP handshake/broadcast/revocation purposes.
const BlockPurpose = uint64(crypto.PurposeGNSRecordSign)

const (
	aesKeyContext = "gns-aes-ctx-key"
	aesIVContext  = "gns-aes-ctx-iv"
)

// Block is the on-wire GNS record block:
// derived_key[32] signature[64] purpose[8] expiration_be[8] ciphertext[..].
type Block struct {
	DerivedKey []byte
	Signature  []byte
	Purpose    uint64
	Expiration int64 // microseconds, absolute
	Ciphertext []byte
}

// BlockCreate assembles and signs a block for label under zone: derive the
// label key, absolutize relative expirations, serialize the record set,
// encrypt it, and sign the result.
func BlockCreate(zk *crypto.ZoneKey, label string, rds []gnsrecord.Record, now time.Time) (*Block, error) {
	absolute := make([]gnsrecord.Record, len(rds))
	for i, r := range rds {
		abs := r
		if abs.Flags&gnsrecord.FlagRelative != 0 {
			abs.Expiration = now.UnixMicro() + r.Expiration
			abs.Flags &^= gnsrecord.FlagRelative
		}
		absolute[i] = abs
	}

	serialized, err := gnsrecord.SerializeRecords(absolute, MaxBlockSize-4)
	if err != nil {
		return nil, gnserr.New(gnserr.KindWireFormat, "gnszone.BlockCreate", err)
	}

	payload := make([]byte, 4+len(serialized))
	binary.BigEndian.PutUint32(payload[:4], uint32(len(absolute)))
	copy(payload[4:], serialized)
	if len(payload) > MaxBlockSize {
		return nil, gnserr.New(gnserr.KindWireFormat, "gnszone.BlockCreate",
			fmt.Errorf("payload %d bytes exceeds MAX_BLOCK_SIZE %d", len(payload), MaxBlockSize))
	}

	key, iv, err := deriveAESKeyIV(zk.Public, label)
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, "gnszone.BlockCreate", err)
	}
	ciphertext, err := crypto.AESGCMEncrypt(key, iv, payload)
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, "gnszone.BlockCreate", err)
	}

	expiration := gnsrecord.GetExpirationTime(absolute, now)

	dkey, err := crypto.DerivePrivate(zk, label, crypto.LabelDerivationContext)
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, "gnszone.BlockCreate", err)
	}
	derivedPub := dkey.Public().Bytes()

	sig, err := crypto.SignDerived(dkey, crypto.PurposeGNSRecordSign, signedFields(BlockPurpose, expiration, ciphertext))
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, "gnszone.BlockCreate", err)
	}

	return &Block{
		DerivedKey: derivedPub,
		Signature:  sig,
		Purpose:    BlockPurpose,
		Expiration: expiration,
		Ciphertext: ciphertext,
	}, nil
}

// BlockVerify checks block.signature against block.derived_key.
func BlockVerify(b *Block) bool {
	return crypto.VerifyDerived(b.DerivedKey, crypto.PurposeGNSRecordSign,
		signedFields(b.Purpose, b.Expiration, b.Ciphertext), b.Signature)
}

// BlockDecrypt verifies and opens block under zonePub/label, applying the
// shadow visibility rule to the recovered record set.
func BlockDecrypt(b *Block, zonePub ed25519.PublicKey, label string, now time.Time) ([]gnsrecord.Record, error) {
	if !BlockVerify(b) {
		return nil, gnserr.New(gnserr.KindAuthenticationFailure, "gnszone.BlockDecrypt", fmt.Errorf("signature invalid"))
	}

	key, iv, err := deriveAESKeyIV(zonePub, label)
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, "gnszone.BlockDecrypt", err)
	}
	payload, err := crypto.AESGCMDecrypt(key, iv, b.Ciphertext)
	if err != nil {
		return nil, gnserr.New(gnserr.KindAuthenticationFailure, "gnszone.BlockDecrypt", err)
	}
	if len(payload) < 4 {
		return nil, gnserr.New(gnserr.KindWireFormat, "gnszone.BlockDecrypt", fmt.Errorf("payload too short for rd_count"))
	}

	rdCount := binary.BigEndian.Uint32(payload[:4])
	if rdCount > gnsrecord.MaxRecordCount {
		return nil, gnserr.New(gnserr.KindWireFormat, "gnszone.BlockDecrypt",
			fmt.Errorf("rd_count %d exceeds max %d", rdCount, gnsrecord.MaxRecordCount))
	}

	rds, err := gnsrecord.DeserializeRecords(payload[4:], int(rdCount))
	if err != nil {
		return nil, gnserr.New(gnserr.KindWireFormat, "gnszone.BlockDecrypt", err)
	}

	return gnsrecord.ApplyShadowVisibility(rds, now), nil
}

// QueryFromPublicKey derives the DHT query hash for label under zonePub
//.
func QueryFromPublicKey(zonePub ed25519.PublicKey, label string) ([32]byte, error) {
	derived, err := crypto.DerivePublic(zonePub, label, crypto.LabelDerivationContext)
	if err != nil {
		return [32]byte{}, fmt.Errorf("query from public key: %w", err)
	}
	return crypto.Hash256(derived.Bytes()), nil
}

// QueryFromPrivateKey must agree bit-exactly with QueryFromPublicKey for
// the same (zone, label) pair.
func QueryFromPrivateKey(zk *crypto.ZoneKey, label string) ([32]byte, error) {
	dkey, err := crypto.DerivePrivate(zk, label, crypto.LabelDerivationContext)
	if err != nil {
		return [32]byte{}, fmt.Errorf("query from private key: %w", err)
	}
	return crypto.Hash256(dkey.Public().Bytes()), nil
}

func deriveAESKeyIV(zonePub ed25519.PublicKey, label string) (key, iv []byte, err error) {
	ikm := make([]byte, 0, len(zonePub)+len(label))
	ikm = append(ikm, zonePub...)
	ikm = append(ikm, []byte(label)...)

	key, err = crypto.HKDF(ikm, nil, []byte(aesKeyContext), 32)
	if err != nil {
		return nil, nil, fmt.Errorf("derive aes key: %w", err)
	}
	iv, err = crypto.HKDF(ikm, nil, []byte(aesIVContext), crypto.GCMNonceSize)
	if err != nil {
		return nil, nil, fmt.Errorf("derive aes iv: %w", err)
	}
	return key, iv, nil
}

func signedFields(purpose uint64, expiration int64, ciphertext []byte) []byte {
	buf := make([]byte, 8+8+len(ciphertext))
	binary.BigEndian.PutUint64(buf[:8], purpose)
	binary.BigEndian.PutUint64(buf[8:16], uint64(expiration))
	copy(buf[16:], ciphertext)
	return buf
}
