package udpsession

import (
	"encoding/binary"
	"fmt"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnserr"
)

// Wire sizes.
const (
	EphemeralPubSize = 32
	GCMTagSize       = 16
	KIDSize          = 32
	PeerIDSize       = 32
	SignatureSize    = 64

	InitialKXSize = EphemeralPubSize + GCMTagSize // 48 bytes

	ackMsgTag = 0x01
)

// InitialKX is the first datagram of a handshake: an ephemeral public key
// and the GCM tag covering the sequence-0 ciphertext that immediately
// follows it on the wire.
type InitialKX struct {
	EphemeralPub [EphemeralPubSize]byte
	GCMTag       [GCMTagSize]byte
}

// Encode renders the 48-byte InitialKX header.
func (k InitialKX) Encode() []byte {
	out := make([]byte, InitialKXSize)
	copy(out[:EphemeralPubSize], k.EphemeralPub[:])
	copy(out[EphemeralPubSize:], k.GCMTag[:])
	return out
}

// DecodeInitialKX parses the fixed 48-byte header.
func DecodeInitialKX(buf []byte) (InitialKX, error) {
	var k InitialKX
	if len(buf) < InitialKXSize {
		return k, gnserr.New(gnserr.KindWireFormat, "udpsession.DecodeInitialKX", fmt.Errorf("buffer too short: %d", len(buf)))
	}
	copy(k.EphemeralPub[:], buf[:EphemeralPubSize])
	copy(k.GCMTag[:], buf[EphemeralPubSize:InitialKXSize])
	return k, nil
}

// UDPConfirmation follows InitialKX once decrypted at sequence 0 (spec
// §4.D): sender_peer_id || sender_signature || monotonic_time_be.
type UDPConfirmation struct {
	SenderPeerID [PeerIDSize]byte
	Signature    [SignatureSize]byte
	MonotonicNS  uint64
}

const udpConfirmationSize = PeerIDSize + SignatureSize + 8

// Encode renders the confirmation header; any trailing user payload and
// padding are appended by the caller (mq_send_kx step 3).
func (c UDPConfirmation) Encode() []byte {
	out := make([]byte, udpConfirmationSize)
	copy(out[:PeerIDSize], c.SenderPeerID[:])
	copy(out[PeerIDSize:PeerIDSize+SignatureSize], c.Signature[:])
	binary.BigEndian.PutUint64(out[PeerIDSize+SignatureSize:], c.MonotonicNS)
	return out
}

// DecodeUDPConfirmation parses the fixed header and returns any trailing
// bytes (the user message plus padding) unconsumed.
func DecodeUDPConfirmation(buf []byte) (UDPConfirmation, []byte, error) {
	var c UDPConfirmation
	if len(buf) < udpConfirmationSize {
		return c, nil, gnserr.New(gnserr.KindWireFormat, "udpsession.DecodeUDPConfirmation", fmt.Errorf("buffer too short: %d", len(buf)))
	}
	copy(c.SenderPeerID[:], buf[:PeerIDSize])
	copy(c.Signature[:], buf[PeerIDSize:PeerIDSize+SignatureSize])
	c.MonotonicNS = binary.BigEndian.Uint64(buf[PeerIDSize+SignatureSize : udpConfirmationSize])
	return c, buf[udpConfirmationSize:], nil
}

// UDPBox is a post-handshake data datagram: kid || gcm_tag || ciphertext
//.
type UDPBox struct {
	KID        [KIDSize]byte
	GCMTag     [GCMTagSize]byte
	Ciphertext []byte
}

// Encode renders the box.
func (b UDPBox) Encode() []byte {
	out := make([]byte, KIDSize+GCMTagSize+len(b.Ciphertext))
	copy(out[:KIDSize], b.KID[:])
	copy(out[KIDSize:KIDSize+GCMTagSize], b.GCMTag[:])
	copy(out[KIDSize+GCMTagSize:], b.Ciphertext)
	return out
}

// DecodeUDPBox parses a box datagram.
func DecodeUDPBox(buf []byte) (UDPBox, error) {
	var b UDPBox
	if len(buf) < KIDSize+GCMTagSize {
		return b, gnserr.New(gnserr.KindWireFormat, "udpsession.DecodeUDPBox", fmt.Errorf("buffer too short: %d", len(buf)))
	}
	copy(b.KID[:], buf[:KIDSize])
	copy(b.GCMTag[:], buf[KIDSize:KIDSize+GCMTagSize])
	b.Ciphertext = append([]byte(nil), buf[KIDSize+GCMTagSize:]...)
	return b, nil
}

// UDPAck carries replenished sequence budget over the backchannel (spec
// §4.D wire messages): msg_hdr[4] sequence_max[4] cmac[32].
type UDPAck struct {
	SequenceMax uint32
	CMAC        [32]byte
}

const udpAckSize = 4 + 4 + 32

// Encode renders the ack.
func (a UDPAck) Encode() []byte {
	out := make([]byte, udpAckSize)
	binary.BigEndian.PutUint32(out[0:4], ackMsgTag)
	binary.BigEndian.PutUint32(out[4:8], a.SequenceMax)
	copy(out[8:], a.CMAC[:])
	return out
}

// DecodeUDPAck parses an ack, rejecting a wrong message tag.
func DecodeUDPAck(buf []byte) (UDPAck, error) {
	var a UDPAck
	if len(buf) < udpAckSize {
		return a, gnserr.New(gnserr.KindWireFormat, "udpsession.DecodeUDPAck", fmt.Errorf("buffer too short: %d", len(buf)))
	}
	if binary.BigEndian.Uint32(buf[0:4]) != ackMsgTag {
		return a, gnserr.New(gnserr.KindWireFormat, "udpsession.DecodeUDPAck", fmt.Errorf("bad message tag"))
	}
	a.SequenceMax = binary.BigEndian.Uint32(buf[4:8])
	copy(a.CMAC[:], buf[8:])
	return a, nil
}

// UDPBroadcast is a signed presence announcement: sender_peer_id ||
// sender_sig.
type UDPBroadcast struct {
	SenderPeerID [PeerIDSize]byte
	Signature    [SignatureSize]byte
}

const udpBroadcastSize = PeerIDSize + SignatureSize

// Encode renders the broadcast.
func (b UDPBroadcast) Encode() []byte {
	out := make([]byte, udpBroadcastSize)
	copy(out[:PeerIDSize], b.SenderPeerID[:])
	copy(out[PeerIDSize:], b.Signature[:])
	return out
}

// DecodeUDPBroadcast parses a broadcast datagram.
func DecodeUDPBroadcast(buf []byte) (UDPBroadcast, error) {
	var b UDPBroadcast
	if len(buf) < udpBroadcastSize {
		return b, gnserr.New(gnserr.KindWireFormat, "udpsession.DecodeUDPBroadcast", fmt.Errorf("buffer too short: %d", len(buf)))
	}
	copy(b.SenderPeerID[:], buf[:PeerIDSize])
	copy(b.Signature[:], buf[PeerIDSize:])
	return b, nil
}

// IsBroadcastSized reports whether n matches UDPBroadcast's fixed length,
// part of the sock_read dispatch heuristic.
func IsBroadcastSized(n int) bool {
	return n == udpBroadcastSize
}
