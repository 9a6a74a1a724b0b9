// Package gnsrecord implements the GNSRECORD codec: the
// record data model, deterministic serialization, comparison, and the
// shadow-aware expiration arithmetic that lets a SHADOW record extend a
// block's validity past its non-shadow twin's expiry.
//
// Grounded on the GNUnet Go port fragment's ResourceRecord/RecordSet
// (other_examples/bfix-gnunet-go .../blocks/gns.go), generalized from its
// fixed-layout struct tags to explicit encode/decode functions so the
// exact byte layout from spec §6 is reproduced without relying on a
// reflection-based marshaler.
package gnsrecord

import (
	"encoding/binary"
	"fmt"
	"time"
)

// AnyType is reserved and is never stored.
const AnyType uint32 = 0

// MaxRecordCount bounds the number of records in a single block.
const MaxRecordCount = 2048

// Flag is the per-record bitset.
type Flag uint32

const (
	FlagPrivate   Flag = 1 << 0
	FlagAuthority Flag = 1 << 1
	FlagPending   Flag = 1 << 2
	FlagShadow    Flag = 1 << 3
	FlagRelative  Flag = 1 << 4
)

// RCMPMask selects the flags that participate in record-set comparison
//. PRIVATE, AUTHORITY, and PENDING are explicitly excluded.
const RCMPMask = FlagShadow | FlagRelative

// Record is a single GNSRECORD entry.
type Record struct {
	Type       uint32
	Expiration int64 // microseconds; absolute unless FlagRelative is set
	Data       []byte
	Flags      Flag
}

// IsExpired reports whether r has passed its absolute expiration. A record
// still carrying FlagRelative cannot be judged expired: its expiration is
// relative to an origin that has not yet been fixed.
func (r Record) IsExpired(now time.Time) bool {
	if r.Flags&FlagRelative != 0 {
		return false
	}
	return r.Expiration < now.UnixMicro()
}

// effectiveExpiration resolves r's expiration to an absolute microsecond
// timestamp, treating a RELATIVE expiration as relative to origin.
func (r Record) effectiveExpiration(origin time.Time) int64 {
	if r.Flags&FlagRelative != 0 {
		return origin.UnixMicro() + r.Expiration
	}
	return r.Expiration
}

// SerializeRecords encodes rds as a length-prefixed concatenation in input
// order.
// maxSize bounds the aggregate encoded size; pass 0 to disable the check.
func SerializeRecords(rds []Record, maxSize int) ([]byte, error) {
	var total int
	for _, r := range rds {
		total += recordWireSize(len(r.Data))
	}
	if maxSize > 0 && total > maxSize {
		return nil, fmt.Errorf("gnsrecord: serialized size %d exceeds limit %d", total, maxSize)
	}

	out := make([]byte, 0, total)
	for _, r := range rds {
		var hdr [16]byte
		binary.BigEndian.PutUint64(hdr[0:8], uint64(r.Expiration))
		binary.BigEndian.PutUint32(hdr[8:12], uint32(len(r.Data)))
		binary.BigEndian.PutUint32(hdr[12:16], r.Type)
		out = append(out, hdr[:]...)
		// Flags follow the fixed header, ahead of the variable-length data,
		// matching the wire layout in spec §6.
		var flagBuf [4]byte
		binary.BigEndian.PutUint32(flagBuf[:], uint32(r.Flags))
		out = append(out, flagBuf[:]...)
		out = append(out, r.Data...)
	}
	return out, nil
}

func recordWireSize(dataLen int) int {
	return 8 /*expiration*/ + 4 /*data_size*/ + 4 /*type*/ + 4 /*flags*/ + dataLen
}

// DeserializeRecords decodes count records from buf, the reverse of
// SerializeRecords. It fails if count exceeds MaxRecordCount or if any
// record length would overrun the available bytes.
func DeserializeRecords(buf []byte, count int) ([]Record, error) {
	if count > MaxRecordCount {
		return nil, fmt.Errorf("gnsrecord: record count %d exceeds max %d", count, MaxRecordCount)
	}
	if count < 0 {
		return nil, fmt.Errorf("gnsrecord: negative record count %d", count)
	}

	rds := make([]Record, 0, count)
	pos := 0
	for i := 0; i < count; i++ {
		if pos+20 > len(buf) {
			return nil, fmt.Errorf("gnsrecord: truncated record header at index %d", i)
		}
		expiration := int64(binary.BigEndian.Uint64(buf[pos : pos+8]))
		dataSize := binary.BigEndian.Uint32(buf[pos+8 : pos+12])
		rtype := binary.BigEndian.Uint32(buf[pos+12 : pos+16])
		pos += 16
		flags := Flag(binary.BigEndian.Uint32(buf[pos : pos+4]))
		pos += 4

		if uint64(pos)+uint64(dataSize) > uint64(len(buf)) {
			return nil, fmt.Errorf("gnsrecord: record %d data_size %d overruns buffer", i, dataSize)
		}
		data := make([]byte, dataSize)
		copy(data, buf[pos:pos+int(dataSize)])
		pos += int(dataSize)

		rds = append(rds, Record{
			Type:       rtype,
			Expiration: expiration,
			Data:       data,
			Flags:      flags,
		})
	}
	return rds, nil
}

// CompareRecords reports whether a and b are equal for GNS purposes: equal
// Type, Data, and RCMP-masked Flags, and equal Expiration unless either
// side's expiration is the zero sentinel (meaning "don't compare"; spec §4.B).
func CompareRecords(a, b Record) bool {
	if a.Type != b.Type {
		return false
	}
	if len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	if (a.Flags & RCMPMask) != (b.Flags & RCMPMask) {
		return false
	}
	if a.Expiration != 0 && b.Expiration != 0 && a.Expiration != b.Expiration {
		return false
	}
	return true
}

// GetExpirationTime computes the block-wide expiration per spec §4.B: for
// each record, the shadow-extended effective expiration; the block
// expiration is the minimum across all records. origin is "now" at the
// point of computation, used to resolve RELATIVE expirations.
//
// This follows the corrected semantics spec §9 calls out explicitly ("for
// each shadow of the same type, take the max of effective expirations"),
// not the literal-index variant the original source is documented to
// contain.
func GetExpirationTime(rds []Record, origin time.Time) int64 {
	if len(rds) == 0 {
		return 0
	}

	eff := make([]int64, len(rds))
	for i, r := range rds {
		eff[i] = r.effectiveExpiration(origin)
	}

	result := make([]int64, len(rds))
	for i, r := range rds {
		best := eff[i]
		for j, other := range rds {
			if j == i {
				continue
			}
			if other.Type == r.Type && other.Flags&FlagShadow != 0 {
				if eff[j] > best {
					best = eff[j]
				}
			}
		}
		result[i] = best
	}

	minExp := result[0]
	for _, v := range result[1:] {
		if v < minExp {
			minExp = v
		}
	}
	return minExp
}
