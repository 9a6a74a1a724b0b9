package udpio

import (
	"fmt"
	"net"
	"time"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/adapters"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnserr"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/ratelimit"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/udpsession"
)

// MaxDatagramSize bounds a single read; it comfortably covers the largest
// wire message (a box carrying a full GNS block).
const MaxDatagramSize = 64 * 1024

// Socket binds one UDP listener and feeds it into a session Manager,
// implementing the sock_read dispatch heuristic: a KCN-map
// hit is a box, a broadcast-sized verifiable datagram is a broadcast,
// anything else is attempted as a KX.
type Socket struct {
	conn    *net.UDPConn
	mgr     *udpsession.Manager
	limiter *ratelimit.IPRateLimiter
	stats   adapters.Statistics

	broadcastAddrHashes [][32]byte
}

// Listen binds a UDP socket per the bind-spec grammar in ParseBindSpec.
func Listen(bindSpec string) (*net.UDPConn, error) {
	addr, err := ParseBindSpec(bindSpec)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, gnserr.New(gnserr.KindConfigurationInvalid, "udpio.Listen", err)
	}
	return conn, nil
}

// NewSocket wraps an already-bound connection. limiter may be nil to
// disable per-IP rate limiting.
func NewSocket(conn *net.UDPConn, mgr *udpsession.Manager, limiter *ratelimit.IPRateLimiter, stats adapters.Statistics) *Socket {
	return &Socket{conn: conn, mgr: mgr, limiter: limiter, stats: stats}
}

// LocalAddr returns the socket's bound local address.
func (s *Socket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Close releases the underlying connection.
func (s *Socket) Close() error { return s.conn.Close() }

// SetBroadcastAddrHashes replaces the set of known local broadcast/
// multicast address hashes a received UDPBroadcast's H(addr) is checked
// against.
func (s *Socket) SetBroadcastAddrHashes(hashes [][32]byte) {
	s.broadcastAddrHashes = hashes
}

// Send writes datagram to addr.
func (s *Socket) Send(datagram []byte, addr net.Addr) error {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return gnserr.New(gnserr.KindConfigurationInvalid, "udpio.Socket.Send", fmt.Errorf("not a udp address: %v", addr))
	}
	_, err := s.conn.WriteToUDP(datagram, udpAddr)
	return err
}

// ReadOnce performs one edge-triggered read-and-dispatch cycle. It blocks on the socket read but does no further I/O of its
// own; callers (e.g. a daemon's accept loop) call this in a tight loop.
func (s *Socket) ReadOnce(now time.Time) error {
	buf := make([]byte, MaxDatagramSize)
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return err
	}
	datagram := buf[:n]

	return s.dispatch(datagram, addr, now)
}

// dispatch charges the source IP's rate-limit bucket ratelimit.BoxCost for a
// KCN-recognized box and the heavier ratelimit.KXCost for anything that
// falls through to the KX path, since that path forces an ECDH and a
// signature verification before the sender has proven anything. Verified
// broadcasts aren't charged at all, although VerifyBroadcast runs one
// Ed25519 signature check per known address hash; they create no session
// state.
// The charge happens per branch rather than once up front so a flood of
// unrecognized datagrams drains its bucket faster than legitimate box
// traffic does.
func (s *Socket) dispatch(datagram []byte, addr *net.UDPAddr, now time.Time) error {
	if len(datagram) >= udpsession.KIDSize {
		var kid [32]byte
		copy(kid[:], datagram[:udpsession.KIDSize])
		if s.mgr.HasKCN(kid) {
			if s.limiter != nil && !s.limiter.AllowN(addr.IP.String(), ratelimit.BoxCost) {
				return nil
			}
			_, _, err := s.mgr.ReceiveBox(datagram, now)
			return err
		}
	}

	if udpsession.IsBroadcastSized(len(datagram)) {
		b, err := udpsession.DecodeUDPBroadcast(datagram)
		if err == nil {
			for _, h := range s.broadcastAddrHashes {
				if _, ok := udpsession.VerifyBroadcast(b, h); ok {
					return nil
				}
			}
		}
	}

	if s.limiter != nil && !s.limiter.AllowN(addr.IP.String(), ratelimit.KXCost) {
		return nil
	}
	_, err := s.mgr.ReceiveKX(datagram, addr, now)
	return err
}
