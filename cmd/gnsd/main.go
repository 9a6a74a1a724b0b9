// gnsd is the GNS naming + UDP communicator daemon: it loads a zone key,
// starts the UDP session manager and socket, joins the Mainline DHT as the
// block store, and runs the topology controller's gossip/blacklist logic
// until terminated.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/adapters"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/crypto"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/daemon"
	gnsotel "github.com/atvirokodosprendimai/gnsmesh/pkg/otel"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/ratelimit"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/topology"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/udpio"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/udpsession"
)

var version = "dev"

func main() {
	var (
		configFile     = flag.String("config", "", "Path to gnsd.conf (key=value)")
		zoneKeyPath    = flag.String("zone-key", "", "Path to zone key file (required)")
		bindTo         = flag.String("bindto", "", "UDP bind spec (e.g. \"2086\", \"0.0.0.0:2086\", \"[::]:2086\")")
		disableV6      = flag.Bool("disable-v6", false, "Disable IPv6 broadcast/discovery")
		disableBcast   = flag.Bool("disable-broadcast", false, "Disable LAN broadcast discovery")
		friendsOnly    = flag.Bool("friends-only", false, "Accept connections only from the friends file")
		minimumFriends = flag.Int("minimum-friends", daemon.DefaultMinimumFriendCount, "Minimum connected friends before the blacklist relaxes")
		targetConns    = flag.Int("target-connections", daemon.DefaultTargetConnectionCount, "Target peer connection count")
		friendsFile    = flag.String("friends", "", "Path to friends file (whitespace-separated peer ids)")
		dhtPort        = flag.Int("dht-port", 0, "UDP port for the Mainline DHT block store (0 = random)")
		namecacheRedis = flag.String("namecache-redis", "", "Redis/Dragonfly address for the namecache (empty disables)")
		logLevel       = flag.String("log-level", daemon.DefaultLogLevel, "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	fileOpts, err := daemon.LoadConfigFile(*configFile)
	if err != nil {
		log.Fatalf("[gnsd] config file: %v", err)
	}

	cfg, err := daemon.NewConfig(daemon.Opts{
		ZoneKeyPath:           firstNonEmpty(*zoneKeyPath, fileOpts["ZONE_KEY"]),
		BindTo:                firstNonEmpty(*bindTo, fileOpts["BINDTO"]),
		DisableV6:             *disableV6 || daemon.ParseBool(fileOpts["DISABLE_V6"]),
		DisableBroadcast:      *disableBcast || daemon.ParseBool(fileOpts["DISABLE_BROADCAST"]),
		FriendsOnly:           *friendsOnly || daemon.ParseBool(fileOpts["FRIENDS-ONLY"]),
		MinimumFriendCount:    daemon.ParseInt(fileOpts["MINIMUM-FRIENDS"], *minimumFriends),
		TargetConnectionCount: daemon.ParseInt(fileOpts["TARGET-CONNECTION-COUNT"], *targetConns),
		FriendsFilePath:       firstNonEmpty(*friendsFile, fileOpts["FRIENDS"]),
		NamecacheRedisAddr:    firstNonEmpty(*namecacheRedis, fileOpts["NAMECACHE_REDIS"]),
		LogLevel:              firstNonEmpty(*logLevel, fileOpts["LOG_LEVEL"]),
	})
	if err != nil {
		log.Fatalf("[gnsd] config: %v", err)
	}

	otelShutdown := func(context.Context) {}
	if fn, err := gnsotel.Init(context.Background(), "gnsd", version); err != nil {
		log.Printf("[gnsd] WARNING: otel setup failed: %v — telemetry disabled", err)
	} else {
		otelShutdown = fn
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		otelShutdown(ctx)
	}()

	zk, err := crypto.LoadZoneKey(cfg.ZoneKeyPath)
	if err != nil {
		log.Fatalf("[gnsd] zone key: %v", err)
	}
	identity := &udpsession.Identity{Signing: zk}
	identity.X25519Priv, identity.X25519Pub, err = crypto.GenerateEphemeral()
	if err != nil {
		log.Fatalf("[gnsd] ecdh key: %v", err)
	}
	log.Printf("[gnsd] peer_id=%s", identity.PeerID())

	dhtClient, err := adapters.NewDHTClient(*dhtPort)
	if err != nil {
		log.Fatalf("[gnsd] dht: %v", err)
	}
	defer dhtClient.Close()

	if cfg.NamecacheRedisAddr != "" {
		rc, err := adapters.NewRedisNamecache(cfg.NamecacheRedisAddr)
		if err != nil {
			log.Printf("[gnsd] WARNING: namecache redis unavailable: %v — lookups go straight to the DHT", err)
		} else {
			defer rc.Close()
		}
	}

	peerTable := topology.NewPeerTable(identity.PeerID(), cfg.TargetConnectionCount, cfg.MinimumFriendCount, cfg.FriendsOnly)
	if cfg.FriendsFilePath != "" {
		friends, err := topology.ParseFriendsFile(cfg.FriendsFilePath)
		if err != nil {
			log.Fatalf("[gnsd] friends file: %v", err)
		}
		peerTable.SetFriends(friends)
		log.Printf("[gnsd] loaded %d friends", peerTable.FriendCount())
	}

	stats := udpsession.NewOTelStatistics()
	comm := &loggingCommunicator{peers: peerTable}
	mgr := udpsession.NewManager(identity, comm, stats)
	mgr.SetPeerFilter(peerTable.Allowed)

	conn, err := udpio.Listen(cfg.BindTo)
	if err != nil {
		log.Fatalf("[gnsd] bind: %v", err)
	}
	defer conn.Close()
	log.Printf("[gnsd] listening on %s", conn.LocalAddr())

	limiter := ratelimit.NewDefault()
	socket := udpio.NewSocket(conn, mgr, limiter, stats)

	natClient := udpio.NewNATAddressPublisher(comm)
	if err := natClient.AddAddress(context.Background(), conn.LocalAddr()); err != nil {
		log.Printf("[gnsd] WARNING: NAT address publish failed: %v", err)
	}

	if !cfg.DisableBroadcast {
		localPort := conn.LocalAddr().(*net.UDPAddr).Port
		socket.SetBroadcastAddrHashes(hashAddrs(udpio.EligibleBroadcastAddrs(cfg.DisableV6, localPort)))
		go udpio.NewBroadcastLoop(socket, mgr, cfg.DisableV6).Run(nil)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go acceptLoop(socket)
	go reapLoop(mgr)
	go gossipLoop(peerTable)

	<-sigCh
	log.Println("[gnsd] shutting down")
}

// gossipLoop drives the topology controller's HELLO anti-entropy: for
// every connected peer ready for another advertisement, find a descriptor
// whose owner's Bloom filter has not yet marked that peer and log the
// advertisement. Nothing is sent over the backchannel.
func gossipLoop(peerTable *topology.PeerTable) {
	const mtu = 1200
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		for _, entry := range peerTable.Entries() {
			if !entry.Connected || !peerTable.ReadyForHello(entry.PeerID, now) {
				continue
			}
			ownerID, descriptor, ok := peerTable.FindAdvertisableHello(entry.PeerID, mtu, now)
			if !ok {
				continue
			}
			log.Printf("[gossip] advertising %s (%d bytes) to %s", ownerID, len(descriptor), entry.PeerID)
		}
	}
}

// loggingCommunicator is the default TransportCommunicator until a higher
// layer (core message delivery) is wired in: it logs what would otherwise
// be dispatched to the core, which is enough to exercise and observe the
// session layer end to end. It also feeds the topology controller: every
// address notification marks the peer seen and connected, so the gossip
// loop and strength scoring have real data to work with.
type loggingCommunicator struct {
	peers *topology.PeerTable
}

func (c *loggingCommunicator) ConnectMQForPeer(peerID string) {
	log.Printf("[UDP] mq requested for %s", peerID)
}

func (c *loggingCommunicator) DeliverToCore(peerID string, payload []byte) {
	log.Printf("[UDP] delivered %d bytes from %s", len(payload), peerID)
}

func (c *loggingCommunicator) NotifyAddress(peerID string, addr net.Addr) {
	log.Printf("[UDP] address for %s: %s", peerID, addr)
	if c.peers != nil {
		c.peers.Touch(peerID, time.Now())
		c.peers.SetConnected(peerID, true)
	}
}

func (c *loggingCommunicator) BackchannelSend(peerID string, payload []byte) error {
	log.Printf("[UDP] backchannel send to %s (%d bytes, no route wired yet)", peerID, len(payload))
	return nil
}

func acceptLoop(socket *udpio.Socket) {
	for {
		if err := socket.ReadOnce(time.Now()); err != nil {
			log.Printf("[UDP] read: %v", err)
		}
	}
}

func reapLoop(mgr *udpsession.Manager) {
	ticker := time.NewTicker(udpsession.ProtoQueueTimeout)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		mgr.ReapIdleSecrets(now)
		mgr.EvictExpiredPeers(now)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func hashAddrs(addrs []*net.UDPAddr) [][32]byte {
	out := make([][32]byte, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, crypto.Hash256([]byte(a.String())))
	}
	return out
}
