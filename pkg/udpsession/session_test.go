package udpsession

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnserr"
)

type fakeComm struct {
	delivered   map[string][][]byte
	notified    map[string]net.Addr
	backchannel map[string][][]byte
	connectReqs []string
}

func newFakeComm() *fakeComm {
	return &fakeComm{
		delivered:   make(map[string][][]byte),
		notified:    make(map[string]net.Addr),
		backchannel: make(map[string][][]byte),
	}
}

func (c *fakeComm) ConnectMQForPeer(peerID string) { c.connectReqs = append(c.connectReqs, peerID) }
func (c *fakeComm) DeliverToCore(peerID string, payload []byte) {
	c.delivered[peerID] = append(c.delivered[peerID], payload)
}
func (c *fakeComm) NotifyAddress(peerID string, addr net.Addr) { c.notified[peerID] = addr }
func (c *fakeComm) BackchannelSend(peerID string, payload []byte) error {
	c.backchannel[peerID] = append(c.backchannel[peerID], payload)
	return nil
}

type fakeStats struct {
	counts map[string]int64
}

func newFakeStats() *fakeStats { return &fakeStats{counts: make(map[string]int64)} }
func (s *fakeStats) Inc(name string, delta int64) { s.counts[name] += delta }

type udpAddr struct{ s string }

func (a udpAddr) Network() string { return "udp" }
func (a udpAddr) String() string  { return a.s }

// handshake drives a full SendKX/ReceiveKX/backchannel-ack exchange between
// two freshly created identities, returning both managers and their peer
// IDs for further exchanges in a test.
func handshake(t *testing.T) (aMgr, bMgr *Manager, aComm, bComm *fakeComm, aID, bID string, now time.Time) {
	t.Helper()
	idA, err := NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity a: %v", err)
	}
	idB, err := NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity b: %v", err)
	}
	aComm, bComm = newFakeComm(), newFakeComm()
	aMgr = NewManager(idA, aComm, newFakeStats())
	bMgr = NewManager(idB, bComm, newFakeStats())
	aID, bID = idA.PeerID(), idB.PeerID()
	now = time.Unix(1_700_000_000, 0)

	datagram, err := aMgr.SendKX(bID, idB.Signing.Public, idB.X25519Pub, []byte("hello"), now)
	if err != nil {
		t.Fatalf("SendKX: %v", err)
	}

	gotPeerID, err := bMgr.ReceiveKX(datagram, udpAddr{"10.0.0.1:4001"}, now)
	if err != nil {
		t.Fatalf("ReceiveKX: %v", err)
	}
	if gotPeerID != aID {
		t.Fatalf("ReceiveKX peer id = %q, want %q", gotPeerID, aID)
	}
	if got := bComm.delivered[aID]; len(got) != 1 || string(got[0]) != "hello" {
		t.Fatalf("delivered payload = %v, want [hello]", got)
	}

	// Deliver B's ack back to A over the (faked) backchannel.
	ackMsgs := bComm.backchannel[aID]
	if len(ackMsgs) != 1 {
		t.Fatalf("expected exactly one backchannel ack, got %d", len(ackMsgs))
	}
	if err := aMgr.HandleAck(bID, ackMsgs[0], now); err != nil {
		t.Fatalf("HandleAck: %v", err)
	}
	return aMgr, bMgr, aComm, bComm, aID, bID, now
}

func TestKXHandshakeRoundTrip(t *testing.T) {
	aMgr, _, _, _, _, bID, _ := handshake(t)

	ra := aMgr.receivers[bID]
	if ra == nil {
		t.Fatalf("no receiver address registered for %s", bID)
	}
	if ra.AckCredit == 0 {
		t.Fatalf("expected non-zero ack credit after handshake, got 0")
	}
	if len(ra.Secrets) != 1 {
		t.Fatalf("expected one secret, got %d", len(ra.Secrets))
	}
	if ra.Secrets[0].SequenceAllowed != KCNTarget {
		t.Fatalf("sequence allowed = %d, want %d", ra.Secrets[0].SequenceAllowed, KCNTarget)
	}
}

func TestBoxSendReceiveRoundTrip(t *testing.T) {
	aMgr, bMgr, _, bComm, aID, bID, now := handshake(t)

	box, err := aMgr.SendBox(bID, []byte("payload one"), now)
	if err != nil {
		t.Fatalf("SendBox: %v", err)
	}

	gotPeerID, plaintext, err := bMgr.ReceiveBox(box, now)
	if err != nil {
		t.Fatalf("ReceiveBox: %v", err)
	}
	if gotPeerID != aID {
		t.Fatalf("ReceiveBox peer id = %q, want %q", gotPeerID, aID)
	}
	if string(plaintext) != "payload one" {
		t.Fatalf("plaintext = %q, want %q", plaintext, "payload one")
	}
	if got := bComm.delivered[aID]; len(got) != 2 || string(got[1]) != "payload one" {
		t.Fatalf("delivered payloads = %v", got)
	}
}

func TestBoxIsSingleUse(t *testing.T) {
	aMgr, bMgr, _, _, _, bID, now := handshake(t)

	box, err := aMgr.SendBox(bID, []byte("once"), now)
	if err != nil {
		t.Fatalf("SendBox: %v", err)
	}
	if _, _, err := bMgr.ReceiveBox(box, now); err != nil {
		t.Fatalf("first ReceiveBox: %v", err)
	}
	_, _, err = bMgr.ReceiveBox(box, now)
	if err == nil {
		t.Fatalf("second ReceiveBox on replayed box: expected error, got nil")
	}
	var ge *gnserr.Error
	if !errors.As(err, &ge) || ge.Kind != gnserr.KindNotFound {
		t.Fatalf("replayed box error = %v, want KindNotFound", err)
	}
}

func TestSendBoxExhaustsAckCredit(t *testing.T) {
	aMgr, _, _, _, _, bID, now := handshake(t)

	ra := aMgr.receivers[bID]
	credit := int(ra.AckCredit)

	var lastErr error
	for i := 0; i < credit+1; i++ {
		_, lastErr = aMgr.SendBox(bID, []byte("x"), now)
	}
	if lastErr == nil {
		t.Fatalf("expected resource exhaustion once ack credit is spent")
	}
	var ge *gnserr.Error
	if !errors.As(lastErr, &ge) || ge.Kind != gnserr.KindResourceExhaustion {
		t.Fatalf("error = %v, want KindResourceExhaustion", lastErr)
	}
}

func TestHandleAckRejectsUnknownCMAC(t *testing.T) {
	aMgr, _, _, _, _, bID, now := handshake(t)

	forged := UDPAck{SequenceMax: 999}
	err := aMgr.HandleAck(bID, forged.Encode(), now)
	if err == nil {
		t.Fatalf("expected error for unmatched cmac, got nil")
	}
	var ge *gnserr.Error
	if !errors.As(err, &ge) || ge.Kind != gnserr.KindNotFound {
		t.Fatalf("error = %v, want KindNotFound", err)
	}
}

func TestReceiveKXRejectsTooSmallDatagram(t *testing.T) {
	idB, err := NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	bMgr := NewManager(idB, newFakeComm(), newFakeStats())
	_, err = bMgr.ReceiveKX([]byte{1, 2, 3}, udpAddr{"10.0.0.2:1"}, time.Unix(0, 0))
	if err == nil {
		t.Fatalf("expected error for undersized datagram")
	}
	var ge *gnserr.Error
	if !errors.As(err, &ge) || ge.Kind != gnserr.KindWireFormat {
		t.Fatalf("error = %v, want KindWireFormat", err)
	}
}

func TestReapIdleSecretsMarksExhausted(t *testing.T) {
	aMgr, _, _, _, _, bID, now := handshake(t)

	ra := aMgr.receivers[bID]
	ss := ra.Secrets[0]
	ss.SequenceUsed = ss.SequenceAllowed
	ss.LastAckAt = now.UnixNano()

	aMgr.ReapIdleSecrets(now.Add(2 * ProtoQueueTimeout))

	if ss.State != SecretExhausted {
		t.Fatalf("secret state = %v, want exhausted", ss.State)
	}
}

func TestSendBoxSkipsRekeyDueSecret(t *testing.T) {
	aMgr, _, _, _, _, bID, now := handshake(t)

	ra := aMgr.receivers[bID]
	ra.Secrets[0].BytesSent = RekeyMaxBytes

	_, err := aMgr.SendBox(bID, []byte("x"), now)
	if err == nil {
		t.Fatalf("expected resource exhaustion when the only secret is rekey-due")
	}
	var ge *gnserr.Error
	if !errors.As(err, &ge) || ge.Kind != gnserr.KindResourceExhaustion {
		t.Fatalf("error = %v, want KindResourceExhaustion", err)
	}

	// Time-based rekey due also forces the fallback.
	ra.Secrets[0].BytesSent = 0
	_, err = aMgr.SendBox(bID, []byte("x"), now.Add(RekeyTimeInterval+time.Second))
	if err == nil {
		t.Fatalf("expected resource exhaustion when the only secret is time-rekey-due")
	}
	if !errors.As(err, &ge) || ge.Kind != gnserr.KindResourceExhaustion {
		t.Fatalf("error = %v, want KindResourceExhaustion", err)
	}
}

func TestEvictExpiredPeersRemovesIdlePeer(t *testing.T) {
	aMgr, bMgr, _, _, aID, bID, now := handshake(t)

	if _, ok := aMgr.receivers[bID]; !ok {
		t.Fatalf("expected receiver %s registered after handshake", bID)
	}
	if _, ok := bMgr.senders[aID]; !ok {
		t.Fatalf("expected sender %s registered after handshake", aID)
	}

	// Nothing refreshes either deadline before the timeout elapses.
	past := now.Add(ProtoQueueTimeout + time.Second)
	aMgr.EvictExpiredPeers(past)
	bMgr.EvictExpiredPeers(past)

	if _, ok := aMgr.receivers[bID]; ok {
		t.Fatalf("expected receiver %s evicted after idle timeout", bID)
	}
	if _, ok := bMgr.senders[aID]; ok {
		t.Fatalf("expected sender %s evicted after idle timeout", aID)
	}
}

func TestEvictExpiredPeersKeepsRefreshedPeer(t *testing.T) {
	aMgr, _, _, _, _, bID, now := handshake(t)

	// A box send partway through the timeout window pushes the deadline
	// out by another full ProtoQueueTimeout from that point.
	refresh := now.Add(ProtoQueueTimeout / 2)
	if _, err := aMgr.SendBox(bID, []byte("keepalive"), refresh); err != nil {
		t.Fatalf("SendBox: %v", err)
	}

	// The original (unrefreshed) deadline would have passed by now, but
	// the refreshed one has not.
	aMgr.EvictExpiredPeers(now.Add(ProtoQueueTimeout + time.Second))
	if _, ok := aMgr.receivers[bID]; !ok {
		t.Fatalf("expected receiver %s to survive eviction after its deadline was refreshed", bID)
	}

	// Once the refreshed deadline itself elapses, eviction proceeds.
	aMgr.EvictExpiredPeers(refresh.Add(ProtoQueueTimeout + time.Second))
	if _, ok := aMgr.receivers[bID]; ok {
		t.Fatalf("expected receiver %s evicted once the refreshed deadline elapses", bID)
	}
}

func TestReceiveKXRejectsBlacklistedPeer(t *testing.T) {
	idA, err := NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity a: %v", err)
	}
	idB, err := NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity b: %v", err)
	}
	aMgr := NewManager(idA, newFakeComm(), newFakeStats())
	bComm := newFakeComm()
	bMgr := NewManager(idB, bComm, newFakeStats())
	bMgr.SetPeerFilter(func(peerID string) bool { return false })

	now := time.Unix(1_700_000_000, 0)
	datagram, err := aMgr.SendKX(idB.PeerID(), idB.Signing.Public, idB.X25519Pub, []byte("hi"), now)
	if err != nil {
		t.Fatalf("SendKX: %v", err)
	}

	_, err = bMgr.ReceiveKX(datagram, udpAddr{"10.0.0.1:4001"}, now)
	if err == nil {
		t.Fatalf("expected blacklisted peer to be rejected")
	}
	var ge *gnserr.Error
	if !errors.As(err, &ge) || ge.Kind != gnserr.KindAuthenticationFailure {
		t.Fatalf("error = %v, want KindAuthenticationFailure", err)
	}
	if len(bMgr.senders) != 0 {
		t.Fatalf("expected no sender state created for a rejected peer, got %d entries", len(bMgr.senders))
	}
	if len(bComm.delivered) != 0 {
		t.Fatalf("expected no payload delivered for a rejected peer")
	}
}
