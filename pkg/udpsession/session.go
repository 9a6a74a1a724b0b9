package udpsession

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/adapters"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/crypto"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnserr"
)

// Manager orchestrates the KX handshake, box send/receive, and ACK flow
// control for one node's UDP socket. It holds no socket of its
// own: callers (pkg/udpio) hand it inbound datagrams and send the
// datagrams it returns.
type Manager struct {
	identity *Identity
	comm     adapters.TransportCommunicator
	stats    adapters.Statistics
	kcn      *KCNMap

	mu        sync.Mutex
	senders   map[string]*SenderAddress
	receivers map[string]*ReceiverAddress

	// senderDeadlines/receiverDeadlines are the two timeout heaps spec §5
	// describes ("two heaps (senders, receivers) keyed by deadline"):
	// every send/receive on a peer refreshes its entry, and
	// EvictExpiredPeers pops whichever side has gone PROTO_QUEUE_TIMEOUT
	// without traffic.
	senderDeadlines   *TimeoutHeap
	receiverDeadlines *TimeoutHeap

	// peerFilter is the topology controller's blacklist (spec §4.F): when
	// set, an inbound KX whose sender peerID it rejects never gets
	// SenderAddress state created for it. Nil means "accept everyone",
	// the right default for tests and for a node with no friends-gating
	// configured.
	peerFilter func(peerID string) bool
}

// SetPeerFilter installs (or clears, with nil) the blacklist predicate
// ReceiveKX consults before admitting a new sender. Typically backed by
// pkg/topology.PeerTable.Allowed.
func (m *Manager) SetPeerFilter(filter func(peerID string) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peerFilter = filter
}

// NewManager wires a session core around identity, dispatching decrypted
// payloads and address/backchannel traffic through comm and firing
// counters through stats.
func NewManager(identity *Identity, comm adapters.TransportCommunicator, stats adapters.Statistics) *Manager {
	return &Manager{
		identity:          identity,
		comm:              comm,
		stats:             stats,
		kcn:               NewKCNMap(),
		senders:           make(map[string]*SenderAddress),
		receivers:         make(map[string]*ReceiverAddress),
		senderDeadlines:   NewTimeoutHeap(),
		receiverDeadlines: NewTimeoutHeap(),
	}
}

func kxSignedFields(senderID, receiverID, ephemeralPub [32]byte, monotonicNS uint64) []byte {
	buf := make([]byte, 32+32+32+8)
	copy(buf[0:32], senderID[:])
	copy(buf[32:64], receiverID[:])
	copy(buf[64:96], ephemeralPub[:])
	binary.BigEndian.PutUint64(buf[96:104], monotonicNS)
	return buf
}

// SendKX builds the first datagram of a handshake to a peer identified by
// receiverSigningPub (Ed25519, used only for the signed-field binding) and
// receiverX25519Pub (the ECDH target). userMsg is carried as the trailing
// plaintext of the sequence-0 ciphertext.
func (m *Manager) SendKX(receiverPeerID string, receiverSigningPub ed25519.PublicKey, receiverX25519Pub [32]byte, userMsg []byte, now time.Time) ([]byte, error) {
	const op = "udpsession.SendKX"

	ephPriv, ephPub, err := crypto.GenerateEphemeral()
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, op, err)
	}
	master, err := crypto.ECDH(ephPriv, receiverX25519Pub)
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, op, err)
	}
	ss, err := NewSharedSecret(master, now.UnixNano())
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, op, err)
	}
	ss.PeerID = receiverPeerID

	var senderID, receiverID [32]byte
	copy(senderID[:], m.identity.Signing.Public)
	copy(receiverID[:], receiverSigningPub)
	monotonicNS := uint64(now.UnixNano())
	sig, err := signKX(m.identity, senderID, receiverID, ephPub, monotonicNS)
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, op, err)
	}

	conf := UDPConfirmation{SenderPeerID: senderID, MonotonicNS: monotonicNS}
	copy(conf.Signature[:], sig)
	plaintext := append(conf.Encode(), userMsg...)

	key, iv, err := ss.DeriveKeyIV(0)
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, op, err)
	}
	sealed, err := crypto.AESGCMEncrypt(key, iv, plaintext)
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, op, err)
	}
	tag := sealed[len(sealed)-crypto.AEADTagSize:]
	ct := sealed[:len(sealed)-crypto.AEADTagSize]

	kx := InitialKX{EphemeralPub: ephPub}
	copy(kx.GCMTag[:], tag)

	m.mu.Lock()
	ra, ok := m.receivers[receiverPeerID]
	if !ok {
		ra = &ReceiverAddress{PeerID: receiverPeerID, State: PeerNew}
		m.receivers[receiverPeerID] = ra
	}
	ra.Secrets = enforceMaxSecrets(append([]*SharedSecret{ss}, ra.Secrets...))
	ra.LastSeen = now
	m.receiverDeadlines.Upsert(receiverPeerID, now.Add(ProtoQueueTimeout))
	m.mu.Unlock()

	return append(kx.Encode(), ct...), nil
}

func signKX(id *Identity, senderID, receiverID, ephemeralPub [32]byte, monotonicNS uint64) ([]byte, error) {
	fields := kxSignedFields(senderID, receiverID, ephemeralPub, monotonicNS)
	return crypto.SignEdDSA(id.Signing.Private, crypto.PurposeUDPHandshake, fields), nil
}

// ReceiveKX parses and completes an inbound handshake datagram, dispatching
// its trailing user payload to comm.DeliverToCore and acking the new
// secret's sequence budget back over the backchannel.
func (m *Manager) ReceiveKX(buf []byte, from net.Addr, now time.Time) (peerID string, err error) {
	const op = "udpsession.ReceiveKX"

	if len(buf) < InitialKXSize {
		m.stats.Inc(StatDropTooSmall, 1)
		return "", gnserr.New(gnserr.KindWireFormat, op, fmt.Errorf("datagram too small: %d", len(buf)))
	}
	kx, err := DecodeInitialKX(buf)
	if err != nil {
		return "", err
	}
	ciphertext := buf[InitialKXSize:]

	master, err := crypto.ECDH(m.identity.X25519Priv, kx.EphemeralPub)
	if err != nil {
		return "", gnserr.New(gnserr.KindInternal, op, err)
	}
	ss, err := NewSharedSecret(master, now.UnixNano())
	if err != nil {
		return "", gnserr.New(gnserr.KindInternal, op, err)
	}
	key, iv, err := ss.DeriveKeyIV(0)
	if err != nil {
		return "", gnserr.New(gnserr.KindInternal, op, err)
	}
	sealed := append(append([]byte(nil), ciphertext...), kx.GCMTag[:]...)
	plaintext, err := crypto.AESGCMDecrypt(key, iv, sealed)
	if err != nil {
		m.stats.Inc(StatAEADDecryptFailed, 1)
		return "", gnserr.New(gnserr.KindAuthenticationFailure, op, err)
	}

	conf, trailing, err := DecodeUDPConfirmation(plaintext)
	if err != nil {
		return "", err
	}

	var receiverID [32]byte
	copy(receiverID[:], m.identity.Signing.Public)
	fields := kxSignedFields(conf.SenderPeerID, receiverID, kx.EphemeralPub, conf.MonotonicNS)
	if !crypto.VerifyEdDSA(ed25519.PublicKey(conf.SenderPeerID[:]), crypto.PurposeUDPHandshake, fields, conf.Signature[:]) {
		m.stats.Inc(StatSenderSignatureInvalid, 1)
		return "", gnserr.New(gnserr.KindAuthenticationFailure, op, fmt.Errorf("sender signature invalid"))
	}

	peerID = crypto.ZoneIDBase32(ed25519.PublicKey(conf.SenderPeerID[:]))
	ss.PeerID = peerID

	m.mu.Lock()
	if m.peerFilter != nil && !m.peerFilter(peerID) {
		m.mu.Unlock()
		m.stats.Inc(StatKXBlacklisted, 1)
		return "", gnserr.New(gnserr.KindAuthenticationFailure, op, fmt.Errorf("peer %s blacklisted", peerID))
	}
	sa, ok := m.senders[peerID]
	if !ok {
		sa = &SenderAddress{PeerID: peerID, State: PeerNew}
		m.senders[peerID] = sa
	}
	sa.Addr = from
	sa.State = PeerEstablished
	sa.LastSeen = now
	sa.Secrets = enforceMaxSecrets(append([]*SharedSecret{ss}, sa.Secrets...))
	m.senderDeadlines.Upsert(peerID, now.Add(ProtoQueueTimeout))
	m.mu.Unlock()

	if len(trailing) > 0 {
		m.comm.DeliverToCore(peerID, trailing)
	}
	m.comm.NotifyAddress(peerID, from)
	m.stats.Inc(StatKXReceived, 1)

	if err := m.considerSSAck(peerID, ss, now); err != nil {
		return peerID, err
	}
	return peerID, nil
}

// considerSSAck tops up ss's KCN window, enforces MAX_SQN_DELTA, and sends
// the resulting ack over the backchannel.
func (m *Manager) considerSSAck(peerID string, ss *SharedSecret, now time.Time) error {
	if ss.ActiveKCECount() < KCNThreshold {
		if _, err := m.kcn.TopUp(ss); err != nil {
			return gnserr.New(gnserr.KindInternal, "udpsession.considerSSAck", err)
		}
	}
	m.kcn.EnforceSqnDelta(ss)

	if ss.State == SecretFresh {
		ss.State = SecretAcking
	}
	ack := UDPAck{SequenceMax: ss.SequenceAllowed, CMAC: ss.CMAC}
	if err := m.comm.BackchannelSend(peerID, ack.Encode()); err != nil {
		return gnserr.New(gnserr.KindTimeout, "udpsession.considerSSAck", err)
	}
	return nil
}

// SendBox encrypts plaintext under the best available SharedSecret for
// peerID, consuming one unit of ack credit. It
// returns gnserr.KindResourceExhaustion if no credit or no secret with
// remaining sequence budget exists — the caller should fall back to
// comm.ConnectMQForPeer to trigger a fresh KX. A secret that has crossed
// REKEY_MAX_BYTES or REKEY_TIME_INTERVAL (RekeyDue) is skipped even if it
// still has sequence budget, forcing the same fresh-KX fallback.
func (m *Manager) SendBox(peerID string, plaintext []byte, now time.Time) ([]byte, error) {
	const op = "udpsession.SendBox"

	m.mu.Lock()
	defer m.mu.Unlock()

	ra, ok := m.receivers[peerID]
	if !ok || ra.AckCredit < 1 {
		return nil, gnserr.New(gnserr.KindResourceExhaustion, op, fmt.Errorf("no ack credit for %s", peerID))
	}

	var chosen *SharedSecret
	for i := len(ra.Secrets) - 1; i >= 0; i-- {
		ss := ra.Secrets[i]
		if ss.RekeyDue(now.UnixNano()) {
			continue
		}
		if ss.SequenceUsed < ss.SequenceAllowed {
			chosen = ss
			break
		}
	}
	if chosen == nil {
		return nil, gnserr.New(gnserr.KindResourceExhaustion, op, fmt.Errorf("no usable secret for %s", peerID))
	}

	n := chosen.SequenceUsed + 1
	key, iv, err := chosen.DeriveKeyIV(n)
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, op, err)
	}
	sealed, err := crypto.AESGCMEncrypt(key, iv, plaintext)
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, op, err)
	}
	kid, err := chosen.DeriveKID(n)
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, op, err)
	}

	chosen.SequenceUsed = n
	chosen.BytesSent += uint64(len(plaintext))
	ra.AckCredit--
	m.receiverDeadlines.Upsert(peerID, now.Add(ProtoQueueTimeout))

	box := UDPBox{
		KID:        kid,
		Ciphertext: sealed[:len(sealed)-crypto.AEADTagSize],
	}
	copy(box.GCMTag[:], sealed[len(sealed)-crypto.AEADTagSize:])
	return box.Encode(), nil
}

// HasKCN reports whether kid is a currently registered KeyCacheEntry,
// without consuming it. Used by pkg/udpio's sock_read dispatch heuristic
// to decide box-vs-KX before a full ReceiveBox call.
func (m *Manager) HasKCN(kid [32]byte) bool {
	_, ok := m.kcn.Lookup(kid)
	return ok
}

// ReceiveBox looks up buf's kid in the KCN index, decrypts it, and
// dispatches the plaintext to comm.DeliverToCore. The KCN is destroyed whether decryption succeeds or fails — it is
// single-use either way. A KCN miss returns gnserr.KindNotFound; pkg/udpio's
// dispatch heuristic calls HasKCN first and sends misses to the KX path
// without calling ReceiveBox.
func (m *Manager) ReceiveBox(buf []byte, now time.Time) (peerID string, plaintext []byte, err error) {
	const op = "udpsession.ReceiveBox"

	box, err := DecodeUDPBox(buf)
	if err != nil {
		return "", nil, err
	}

	kce, ok := m.kcn.Lookup(box.KID)
	if !ok {
		return "", nil, gnserr.New(gnserr.KindNotFound, op, fmt.Errorf("no kcn for kid"))
	}

	key, iv, err := kce.Secret.DeriveKeyIV(kce.Sequence)
	if err != nil {
		m.kcn.Remove(box.KID)
		return "", nil, gnserr.New(gnserr.KindInternal, op, err)
	}
	sealed := append(append([]byte(nil), box.Ciphertext...), box.GCMTag[:]...)
	plaintext, err = crypto.AESGCMDecrypt(key, iv, sealed)
	m.kcn.Remove(box.KID)
	if err != nil {
		m.stats.Inc(StatKCEDecryptFail, 1)
		return "", nil, gnserr.New(gnserr.KindAuthenticationFailure, op, err)
	}

	peerID = kce.Secret.PeerID
	m.stats.Inc(StatBoxReceived, 1)
	m.comm.DeliverToCore(peerID, plaintext)

	m.mu.Lock()
	m.senderDeadlines.Upsert(peerID, now.Add(ProtoQueueTimeout))
	m.mu.Unlock()

	if err := m.considerSSAck(peerID, kce.Secret, now); err != nil {
		return peerID, plaintext, err
	}
	return peerID, plaintext, nil
}

// HandleAck applies an inbound ack datagram: it raises the matching
// SharedSecret's ack credit and sequence ceiling, and promotes that secret
// to the head of the receiver's list.
func (m *Manager) HandleAck(peerID string, buf []byte, now time.Time) error {
	const op = "udpsession.HandleAck"

	ack, err := DecodeUDPAck(buf)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ra, ok := m.receivers[peerID]
	if !ok {
		return gnserr.New(gnserr.KindNotFound, op, fmt.Errorf("unknown peer %s", peerID))
	}
	for _, ss := range ra.Secrets {
		if ss.CMAC != ack.CMAC {
			continue
		}
		if ack.SequenceMax > ss.SequenceAllowed {
			ra.AckCredit += ack.SequenceMax - ss.SequenceAllowed
			ss.SequenceAllowed = ack.SequenceMax
		}
		ss.State = SecretUsable
		ss.LastAckAt = now.UnixNano()
		ra.Secrets = promoteSecret(ra.Secrets, ss)
		m.receiverDeadlines.Upsert(peerID, now.Add(ProtoQueueTimeout))
		m.stats.Inc(StatAckReceived, 1)
		return nil
	}
	return gnserr.New(gnserr.KindNotFound, op, fmt.Errorf("no secret matches ack cmac"))
}

// ReapIdleSecrets marks every SharedSecret that has exhausted its sequence
// budget and received no ack for longer than PROTO_QUEUE_TIMEOUT as
// exhausted. It returns nothing; peer eviction is left to
// EvictExpiredPeers.
func (m *Manager) ReapIdleSecrets(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reap := func(secrets []*SharedSecret) {
		for _, ss := range secrets {
			if ss.State == SecretDestroyed || ss.State == SecretExhausted {
				continue
			}
			if ss.SequenceUsed < ss.SequenceAllowed {
				continue
			}
			idleFor := time.Duration(now.UnixNano()-ss.CreatedAt) * time.Nanosecond
			if ss.LastAckAt != 0 {
				idleFor = time.Duration(now.UnixNano()-ss.LastAckAt) * time.Nanosecond
			}
			if idleFor >= ProtoQueueTimeout {
				ss.State = SecretExhausted
				m.stats.Inc(StatSecretsEvicted, 1)
			}
		}
	}
	for _, ra := range m.receivers {
		reap(ra.Secrets)
	}
	for _, sa := range m.senders {
		reap(sa.Secrets)
	}
}

// EvictExpiredPeers pops every sender/receiver whose deadline heap entry has
// passed now (spec §5's "single timer armed for the earliest deadline") and
// removes the corresponding peer state, moving it new/established -> idle ->
// destroyed in one step since nothing refreshed its deadline in the interim.
func (m *Manager) EvictExpiredPeers(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, peerID := range m.receiverDeadlines.Expired(now) {
		delete(m.receivers, peerID)
		m.stats.Inc(StatPeersEvicted, 1)
	}
	for _, peerID := range m.senderDeadlines.Expired(now) {
		delete(m.senders, peerID)
		m.stats.Inc(StatPeersEvicted, 1)
	}
}
