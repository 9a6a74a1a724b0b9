package gnszone

import (
	"encoding/binary"
	"fmt"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnserr"
)

const blockHeaderSize = 32 + 64 + 8 + 8 // derived_key, signature, purpose, expiration

// EncodeBlock renders b in the exact GNS block wire layout:
// derived_key[32] signature[64] purpose[8] expiration_be[8] ciphertext[..].
func EncodeBlock(b *Block) ([]byte, error) {
	if len(b.DerivedKey) != 32 {
		return nil, fmt.Errorf("gnszone: derived_key must be 32 bytes, got %d", len(b.DerivedKey))
	}
	if len(b.Signature) != 64 {
		return nil, fmt.Errorf("gnszone: signature must be 64 bytes, got %d", len(b.Signature))
	}

	out := make([]byte, blockHeaderSize+len(b.Ciphertext))
	copy(out[0:32], b.DerivedKey)
	copy(out[32:96], b.Signature)
	binary.BigEndian.PutUint64(out[96:104], b.Purpose)
	binary.BigEndian.PutUint64(out[104:112], uint64(b.Expiration))
	copy(out[112:], b.Ciphertext)
	return out, nil
}

// DecodeBlock is the inverse of EncodeBlock.
func DecodeBlock(buf []byte) (*Block, error) {
	if len(buf) < blockHeaderSize {
		return nil, gnserr.New(gnserr.KindWireFormat, "gnszone.DecodeBlock", fmt.Errorf("buffer too short: %d bytes", len(buf)))
	}

	b := &Block{
		DerivedKey: append([]byte(nil), buf[0:32]...),
		Signature:  append([]byte(nil), buf[32:96]...),
		Purpose:    binary.BigEndian.Uint64(buf[96:104]),
		Expiration: int64(binary.BigEndian.Uint64(buf[104:112])),
		Ciphertext: append([]byte(nil), buf[blockHeaderSize:]...),
	}
	return b, nil
}
