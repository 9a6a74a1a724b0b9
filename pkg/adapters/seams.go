package adapters

import (
	"context"
	"net"
)

// TransportCommunicator is the seam pkg/udpsession calls into and is
// called from: requesting an MQ for a peer, delivering
// decrypted payloads to the core, reporting a newly validated address,
// and sending an out-of-band backchannel message.
type TransportCommunicator interface {
	// ConnectMQForPeer asks the core to prepare a message queue for
	// sending to peerID, so that a fresh KX can be sent. pkg/udpsession
	// does not call it itself; SendBox's KindResourceExhaustion error marks
	// the point where a caller falls back to it.
	ConnectMQForPeer(peerID string)
	// DeliverToCore hands a decrypted payload from peerID to the upper
	// layer.
	DeliverToCore(peerID string, payload []byte)
	// NotifyAddress reports a socket address as valid for peerID (e.g.
	// after a broadcast or KX round trip confirms reachability).
	NotifyAddress(peerID string, addr net.Addr)
	// BackchannelSend delivers an out-of-band control payload to peerID
	// without going through the normal box sequence.
	BackchannelSend(peerID string, payload []byte) error
}

// NATClient advertises and withdraws this node's socket addresses,
// grounded in the teacher's STUN-based endpoint discovery
// (pkg/discovery/stun.go), generalized from a single WireGuard endpoint
// to a callback-driven add/remove interface.
type NATClient interface {
	AddAddress(ctx context.Context, addr net.Addr) error
	RemoveAddress(ctx context.Context, addr net.Addr) error
}

// Statistics is a fire-and-forget counter sink, backed in
// practice by pkg/udpsession/stats.go's otel counters.
type Statistics interface {
	Inc(name string, delta int64)
}
