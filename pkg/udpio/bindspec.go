// Package udpio is the socket and address surface the session core runs
// behind: bind-spec parsing, the edge-triggered read/dispatch
// loop, LAN broadcast discovery, and NAT address publication.
//
// Grounded on the teacher's pkg/discovery/dht.go UDP-socket-plus-dispatch
// shape and pkg/lighthouse's address-string conventions, generalized from
// a single WireGuard rendezvous socket to the spec's general KX/box/
// broadcast dispatch heuristic.
package udpio

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnserr"
)

// ParseBindSpec parses "[host]:port", "host:port", or a bare "port" into a
// *net.UDPAddr. An empty or zero port asks the OS to choose
// one. Host "0" degrades to the IPv4 wildcard.
func ParseBindSpec(spec string) (*net.UDPAddr, error) {
	const op = "udpio.ParseBindSpec"

	spec = strings.TrimSpace(spec)
	if spec == "" {
		return &net.UDPAddr{Port: 0}, nil
	}

	if port, err := strconv.Atoi(spec); err == nil {
		if port < 0 || port > 65535 {
			return nil, gnserr.New(gnserr.KindConfigurationInvalid, op, fmt.Errorf("port out of range: %d", port))
		}
		return &net.UDPAddr{Port: port}, nil
	}

	host, portStr, err := net.SplitHostPort(spec)
	if err != nil {
		return nil, gnserr.New(gnserr.KindConfigurationInvalid, op, fmt.Errorf("parse bind spec %q: %w", spec, err))
	}
	var port int
	if portStr == "" {
		port = 0
	} else {
		port, err = strconv.Atoi(portStr)
		if err != nil || port < 0 || port > 65535 {
			return nil, gnserr.New(gnserr.KindConfigurationInvalid, op, fmt.Errorf("bad port %q", portStr))
		}
	}

	if host == "" || host == "0" {
		return &net.UDPAddr{IP: net.IPv4zero, Port: port}, nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, gnserr.New(gnserr.KindConfigurationInvalid, op, fmt.Errorf("bad host %q", host))
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

// HumanReadableAddr renders addr the way the NAT callback's
// "udp-<human_readable_addr>" address-class string does.
func HumanReadableAddr(addr net.Addr) string {
	return "udp-" + addr.String()
}
