package udpio

import (
	"crypto/rand"
	"math/big"
	"net"
	"time"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/crypto"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/udpsession"
)

// BroadcastFrequency is the nominal interval between broadcast rounds
//.
const BroadcastFrequency = time.Minute

// IPv6MulticastGroup is the agreed link-local multicast group broadcast
// discovery uses in place of IPv4 broadcast.
const IPv6MulticastGroup = "ff02::1:6e73"

// BroadcastLoop periodically signs and sends a UDPBroadcast out every
// non-loopback interface's broadcast (IPv4) or multicast (IPv6) address,
// until stop is closed.
type BroadcastLoop struct {
	socket    *Socket
	mgr       *udpsession.Manager
	disableV6 bool
}

// NewBroadcastLoop wires a broadcast loop around an already-listening
// socket.
func NewBroadcastLoop(socket *Socket, mgr *udpsession.Manager, disableV6 bool) *BroadcastLoop {
	return &BroadcastLoop{socket: socket, mgr: mgr, disableV6: disableV6}
}

// Run sends broadcast rounds until stop is closed, sleeping a randomized
// jitter around BroadcastFrequency between rounds.
func (b *BroadcastLoop) Run(stop <-chan struct{}) {
	for {
		b.RoundOnce()
		select {
		case <-stop:
			return
		case <-time.After(jitteredInterval(BroadcastFrequency)):
		}
	}
}

// RoundOnce sends one broadcast to every eligible interface address, using
// the socket's own bound port as the discovery port (peers listen on
// whatever port they bound, and the broadcast targets that same port on
// the LAN by convention).
func (b *BroadcastLoop) RoundOnce() {
	port := b.socket.LocalAddr().(*net.UDPAddr).Port
	for _, addr := range EligibleBroadcastAddrs(b.disableV6, port) {
		h := crypto.Hash256([]byte(addr.String()))
		bc := b.mgr.BuildBroadcast(h)
		_ = b.socket.Send(bc.Encode(), addr)
	}
}

// EligibleBroadcastAddrs enumerates the broadcast (IPv4) or multicast
// (IPv6, unless disableV6) address for every non-loopback, up interface.
func EligibleBroadcastAddrs(disableV6 bool, port int) []*net.UDPAddr {
	var out []*net.UDPAddr

	ifaces, err := net.Interfaces()
	if err != nil {
		return out
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				if iface.Flags&net.FlagBroadcast == 0 {
					continue
				}
				out = append(out, &net.UDPAddr{IP: broadcastAddrFor(ip4, ipNet.Mask), Port: port})
			} else if !disableV6 {
				out = append(out, &net.UDPAddr{IP: net.ParseIP(IPv6MulticastGroup), Port: port, Zone: iface.Name})
			}
		}
	}
	return out
}

func broadcastAddrFor(ip net.IP, mask net.IPMask) net.IP {
	out := make(net.IP, len(ip))
	for i := range ip {
		out[i] = ip[i] | ^mask[i]
	}
	return out
}

// jitteredInterval returns base plus a uniformly random offset in
// [-base/4, base/4], the "randomized interval" the spec calls for.
func jitteredInterval(base time.Duration) time.Duration {
	spread := int64(base / 2)
	if spread <= 0 {
		return base
	}
	n, err := rand.Int(rand.Reader, big.NewInt(spread))
	if err != nil {
		return base
	}
	return base - time.Duration(spread/2) + time.Duration(n.Int64())
}
