// Package adapters wires the naming and transport layers to the outside
// world: the BitTorrent Mainline DHT substrate, an optional Redis-backed
// namecache, and the seams pkg/udpsession and pkg/topology call through
// (transport communicator, NAT client, statistics).
//
// Grounded on pkg/discovery/dht.go's DHTDiscovery: server bootstrap,
// infohash announce/get_peers, and the UDP peer-exchange idiom
// (pkg/discovery/exchange.go's pendingReplies-by-transaction pattern),
// generalized from WireGuard peer discovery to GNS block storage.
package adapters

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/anacrolix/dht/v2"
	"github.com/anacrolix/dht/v2/krpc"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnserr"
)

// DHTBootstrapNodes are the well-known BitTorrent bootstrap routers, reused
// as-is: Mainline DHT's routing table is shared infrastructure regardless
// of the application protocol riding on top of it.
var DHTBootstrapNodes = []string{
	"router.bittorrent.com:6881",
	"router.utorrent.com:6881",
	"dht.transmissionbt.com:6881",
	"dht.libtorrent.org:25401",
}

const (
	dhtBootstrapTimeout = 30 * time.Second
	dhtAnnounceTimeout  = 20 * time.Second
	exchangeTimeout     = 5 * time.Second
	maxBlockWireSize    = 64 * 1024
)

// DHTClient implements gnszone.DHTStore: publishing a block announces this
// node as a holder under the block's query hash (truncated to the 20-byte
// BitTorrent infohash space); resolving a block does a get_peers lookup
// under that infohash, then fetches the block bytes directly from a
// holder over a small UDP request/response protocol. Mainline DHT has no
// native arbitrary-value put/get, so value storage rides on top of its
// peer-discovery primitive exactly as the teacher's WireGuard endpoint
// discovery does.
type DHTClient struct {
	server *dht.Server
	conn   *net.UDPConn

	mu     sync.RWMutex
	blocks map[[32]byte][]byte

	pendingMu sync.Mutex
	pending   map[uint32]chan []byte
	nextTxn   uint32

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewDHTClient binds a UDP socket for both the DHT server and the block
// exchange protocol, and bootstraps into the Mainline DHT network.
func NewDHTClient(bindPort int) (*DHTClient, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: bindPort})
	if err != nil {
		return nil, gnserr.New(gnserr.KindConfigurationInvalid, "adapters.NewDHTClient", err)
	}

	cfg := dht.NewDefaultServerConfig()
	cfg.Conn = conn
	cfg.NoSecurity = false

	var bootstrap []dht.Addr
	for _, node := range DHTBootstrapNodes {
		addr, err := net.ResolveUDPAddr("udp", node)
		if err != nil {
			log.Printf("[DHT] failed to resolve bootstrap node %s: %v", node, err)
			continue
		}
		bootstrap = append(bootstrap, dht.NewAddr(addr))
	}
	cfg.StartingNodes = func() ([]dht.Addr, error) { return bootstrap, nil }

	server, err := dht.NewServer(cfg)
	if err != nil {
		conn.Close()
		return nil, gnserr.New(gnserr.KindInternal, "adapters.NewDHTClient", err)
	}

	c := &DHTClient{
		server:  server,
		conn:    conn,
		blocks:  make(map[[32]byte][]byte),
		pending: make(map[uint32]chan []byte),
		stopCh:  make(chan struct{}),
	}

	go c.bootstrapWait()
	go c.exchangeLoop()
	return c, nil
}

func (c *DHTClient) bootstrapWait() {
	deadline := time.Now().Add(dhtBootstrapTimeout)
	for time.Now().Before(deadline) {
		if c.server.NumNodes() > 0 {
			log.Printf("[DHT] bootstrap complete, %d nodes", c.server.NumNodes())
			return
		}
		select {
		case <-c.stopCh:
			return
		case <-time.After(time.Second):
		}
	}
	log.Printf("[DHT] bootstrap timeout, continuing with %d nodes", c.server.NumNodes())
}

// Put stores value locally under query and announces this node as a
// holder to the DHT.
func (c *DHTClient) Put(ctx context.Context, query [32]byte, value []byte) error {
	if len(value) > maxBlockWireSize {
		return gnserr.New(gnserr.KindResourceExhaustion, "adapters.DHTClient.Put",
			fmt.Errorf("block %d bytes exceeds exchange limit %d", len(value), maxBlockWireSize))
	}

	c.mu.Lock()
	c.blocks[query] = append([]byte(nil), value...)
	c.mu.Unlock()

	infohash := infohashFromQuery(query)
	announceCtx, cancel := context.WithTimeout(ctx, dhtAnnounceTimeout)
	defer cancel()

	var a *dht.Announce
	err := withRetry(announceCtx, func() error {
		var annErr error
		a, annErr = c.server.Announce(infohash, c.conn.LocalAddr().(*net.UDPAddr).Port, false)
		return annErr
	})
	if err != nil {
		return gnserr.New(gnserr.KindInternal, "adapters.DHTClient.Put", err)
	}
	go drainAnnounce(announceCtx, a)
	return nil
}

// Get resolves query by locating holders via get_peers on the derived
// infohash, then fetching the block over the exchange protocol from the
// first holder that answers.
func (c *DHTClient) Get(ctx context.Context, query [32]byte) ([]byte, error) {
	c.mu.RLock()
	local, ok := c.blocks[query]
	c.mu.RUnlock()
	if ok {
		return local, nil
	}

	infohash := infohashFromQuery(query)
	lookupCtx, cancel := context.WithTimeout(ctx, dhtAnnounceTimeout)
	defer cancel()

	var a *dht.Announce
	err := withRetry(lookupCtx, func() error {
		var annErr error
		a, annErr = c.server.Announce(infohash, 0, false)
		return annErr
	})
	if err != nil {
		return nil, gnserr.New(gnserr.KindInternal, "adapters.DHTClient.Get", err)
	}
	defer a.Close()

	for {
		select {
		case <-lookupCtx.Done():
			return nil, gnserr.New(gnserr.KindNotFound, "adapters.DHTClient.Get", fmt.Errorf("no holder answered for query %x", query[:8]))
		case peers, ok := <-a.Peers:
			if !ok {
				return nil, gnserr.New(gnserr.KindNotFound, "adapters.DHTClient.Get", fmt.Errorf("dht exhausted for query %x", query[:8]))
			}
			for _, p := range peers.Peers {
				block, err := c.fetchFrom(ctx, p, query)
				if err != nil {
					continue
				}
				return block, nil
			}
		}
	}
}

// Close tears down the DHT server and the exchange socket.
func (c *DHTClient) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.server.Close()
	return c.conn.Close()
}

// --- block exchange protocol ---
//
// Request:  "G" || txn_be[4] || query[32]
// Response: "R" || txn_be[4] || found[1] || len_be[4] || block[len]

func (c *DHTClient) fetchFrom(ctx context.Context, addr krpc.NodeAddr, query [32]byte) ([]byte, error) {
	udpAddr := addr.UDP()

	txn := c.allocTxn()
	replyCh := make(chan []byte, 1)
	c.pendingMu.Lock()
	c.pending[txn] = replyCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, txn)
		c.pendingMu.Unlock()
	}()

	req := make([]byte, 1+4+32)
	req[0] = 'G'
	binary.BigEndian.PutUint32(req[1:5], txn)
	copy(req[5:], query[:])

	if _, err := c.conn.WriteToUDP(req, udpAddr); err != nil {
		return nil, fmt.Errorf("exchange write: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	select {
	case block := <-replyCh:
		if block == nil {
			return nil, gnserr.Sentinel(gnserr.KindNotFound)
		}
		return block, nil
	case <-fetchCtx.Done():
		return nil, fetchCtx.Err()
	}
}

func (c *DHTClient) allocTxn() uint32 {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.nextTxn++
	return c.nextTxn
}

// exchangeLoop serves inbound block requests and dispatches inbound
// responses to waiting fetchFrom callers. It shares the DHT's UDP socket;
// anacrolix/dht/v2 consumes only well-formed bencoded KRPC datagrams from
// this same conn, so non-KRPC framed requests here do not collide with it.
func (c *DHTClient) exchangeLoop() {
	buf := make([]byte, 65536)
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		if n < 5 {
			continue
		}

		switch buf[0] {
		case 'G':
			if n < 1+4+32 {
				continue
			}
			txn := binary.BigEndian.Uint32(buf[1:5])
			var query [32]byte
			copy(query[:], buf[5:37])
			go c.respond(addr, txn, query)
		case 'R':
			c.handleResponse(buf[:n])
		}
	}
}

func (c *DHTClient) respond(addr *net.UDPAddr, txn uint32, query [32]byte) {
	c.mu.RLock()
	block, found := c.blocks[query]
	c.mu.RUnlock()

	var resp []byte
	if found {
		resp = make([]byte, 1+4+1+4+len(block))
		resp[5] = 1
		binary.BigEndian.PutUint32(resp[6:10], uint32(len(block)))
		copy(resp[10:], block)
	} else {
		resp = make([]byte, 1+4+1+4)
		resp[5] = 0
	}
	resp[0] = 'R'
	binary.BigEndian.PutUint32(resp[1:5], txn)

	c.conn.WriteToUDP(resp, addr)
}

func (c *DHTClient) handleResponse(buf []byte) {
	txn := binary.BigEndian.Uint32(buf[1:5])
	c.pendingMu.Lock()
	ch, ok := c.pending[txn]
	c.pendingMu.Unlock()
	if !ok {
		return
	}

	if len(buf) < 10 || buf[5] == 0 {
		ch <- nil
		return
	}
	blockLen := binary.BigEndian.Uint32(buf[6:10])
	if uint64(10)+uint64(blockLen) > uint64(len(buf)) {
		ch <- nil
		return
	}
	ch <- append([]byte(nil), buf[10:10+int(blockLen)]...)
}

func drainAnnounce(ctx context.Context, a *dht.Announce) {
	defer a.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-a.Peers:
			if !ok {
				return
			}
		}
	}
}

// infohashFromQuery truncates a 32-byte GNS query hash to the 20-byte
// BitTorrent infohash space, the way the teacher derives its 20-byte
// network ID from a wider secret.
func infohashFromQuery(query [32]byte) [20]byte {
	var ih [20]byte
	copy(ih[:], query[:20])
	return ih
}
