package udpio

import (
	"net"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/udpsession"
)

type fakeComm struct{ notified map[string]net.Addr }

func newFakeComm() *fakeComm { return &fakeComm{notified: make(map[string]net.Addr)} }

func (c *fakeComm) ConnectMQForPeer(string)      {}
func (c *fakeComm) DeliverToCore(string, []byte) {}
func (c *fakeComm) NotifyAddress(peerID string, addr net.Addr) {
	c.notified[peerID] = addr
}
func (c *fakeComm) BackchannelSend(string, []byte) error { return nil }

type fakeStats struct{ counts map[string]int64 }

func newFakeStats() *fakeStats                    { return &fakeStats{counts: make(map[string]int64)} }
func (s *fakeStats) Inc(name string, delta int64) { s.counts[name] += delta }

func TestSocketDispatchesKX(t *testing.T) {
	conn, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	serverID, err := udpsession.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	serverComm := newFakeComm()
	serverMgr := udpsession.NewManager(serverID, serverComm, newFakeStats())
	serverSocket := NewSocket(conn, serverMgr, nil, newFakeStats())
	defer serverSocket.Close()

	clientID, err := udpsession.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	clientMgr := udpsession.NewManager(clientID, newFakeComm(), newFakeStats())

	now := time.Unix(1_700_000_000, 0)
	datagram, err := clientMgr.SendKX(serverID.PeerID(), serverID.Signing.Public, serverID.X25519Pub, []byte("hi"), now)
	if err != nil {
		t.Fatalf("SendKX: %v", err)
	}

	clientConn, err := net.DialUDP("udp", nil, serverSocket.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer clientConn.Close()
	if _, err := clientConn.Write(datagram); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := serverSocket.ReadOnce(now); err != nil {
		t.Fatalf("ReadOnce: %v", err)
	}

	if serverComm.notified[clientID.PeerID()] == nil {
		t.Fatalf("server never notified of client address")
	}
}

func TestSocketDispatchRejectsUndersizedDatagram(t *testing.T) {
	conn, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	id, err := udpsession.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	mgr := udpsession.NewManager(id, newFakeComm(), newFakeStats())
	s := NewSocket(conn, mgr, nil, newFakeStats())
	defer s.Close()

	clientConn, err := net.DialUDP("udp", nil, s.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer clientConn.Close()
	if _, err := clientConn.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := s.ReadOnce(time.Unix(0, 0)); err == nil {
		t.Fatalf("expected dispatch error for undersized datagram")
	}
}
