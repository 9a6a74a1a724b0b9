package udpio

import (
	"context"
	"net"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/adapters"
)

// NATAddressPublisher implements adapters.NATClient's add/remove callback
// by publishing this socket's bind address with the transport
// communicator as "udp-<human_readable_addr>". Removal withdraws nothing.
type NATAddressPublisher struct {
	comm adapters.TransportCommunicator
}

// NewNATAddressPublisher wires a publisher around comm.
func NewNATAddressPublisher(comm adapters.TransportCommunicator) *NATAddressPublisher {
	return &NATAddressPublisher{comm: comm}
}

// AddAddress publishes addr to the transport communicator, using its
// human-readable form ("udp-<addr>") as the peer key.
func (p *NATAddressPublisher) AddAddress(_ context.Context, addr net.Addr) error {
	p.comm.NotifyAddress(HumanReadableAddr(addr), addr)
	return nil
}

// RemoveAddress returns nil without telling the transport communicator
// anything; an address published by AddAddress is not revoked.
func (p *NATAddressPublisher) RemoveAddress(_ context.Context, _ net.Addr) error {
	return nil
}
