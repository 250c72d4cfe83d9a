package bootstrap

import (
	"context"
	"crypto/sha1"
	"log"
	"net"
	"time"

	"github.com/anacrolix/dht/v2"
	"github.com/anacrolix/dht/v2/krpc"
)

// dhtAnnounceInterval and dhtQueryInterval mirror the teacher's
// pkg/discovery/dht.go cadence, slowed down since gossip bootstrap only
// needs an occasional trickle of fresh addresses, not continuous NAT
// traversal.
const (
	dhtAnnounceInterval = 15 * time.Minute
	dhtQueryInterval    = 2 * time.Minute
	dhtBootstrapWait    = 10 * time.Second
)

// wellKnownDHTBootstrapNodes seeds the Mainline DHT routing table, same
// public router set the teacher's discovery layer uses.
var wellKnownDHTBootstrapNodes = []string{
	"router.bittorrent.com:6881",
	"router.utorrent.com:6881",
	"dht.transmissionbt.com:6881",
}

// dhtSeeder discovers bootstrap peer socket addresses via the BitTorrent
// Mainline DHT under the infohash of "hyperbase-gossip:"+clusterToken (spec
// SPEC_FULL.md §4.9). It is purely additive: discovered addresses are fed
// into the same View.Merge path a static bootstrap list would use.
type dhtSeeder struct {
	server    *dht.Server
	infohash  [20]byte
	localPort int
	onPeer    func(addr string)
}

// newDHTSeeder binds a DHT server on an ephemeral UDP port and derives the
// announce/query infohash from clusterToken. localPort is announced to
// peers as the gossip TCP port they should dial.
func newDHTSeeder(clusterToken string, localPort int, onPeer func(addr string)) (*dhtSeeder, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, err
	}

	cfg := dht.NewDefaultServerConfig()
	cfg.Conn = conn

	var bootstrapAddrs []dht.Addr
	for _, node := range wellKnownDHTBootstrapNodes {
		addr, err := net.ResolveUDPAddr("udp", node)
		if err != nil {
			log.Printf("[Bootstrap] failed to resolve DHT bootstrap node %s: %v", node, err)
			continue
		}
		bootstrapAddrs = append(bootstrapAddrs, dht.NewAddr(addr))
	}
	cfg.StartingNodes = func() ([]dht.Addr, error) { return bootstrapAddrs, nil }

	server, err := dht.NewServer(cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &dhtSeeder{
		server:    server,
		infohash:  sha1.Sum([]byte("hyperbase-gossip:" + clusterToken)),
		localPort: localPort,
		onPeer:    onPeer,
	}, nil
}

// Run blocks until ctx is cancelled, periodically announcing this node and
// querying for peers under the cluster's infohash.
func (s *dhtSeeder) Run(ctx context.Context) {
	defer s.server.Close()

	s.waitForBootstrap(ctx)
	log.Printf("[Bootstrap] DHT bootstrap reached %d nodes", s.server.NumNodes())

	announceTicker := time.NewTicker(dhtAnnounceInterval)
	queryTicker := time.NewTicker(dhtQueryInterval)
	defer announceTicker.Stop()
	defer queryTicker.Stop()

	s.announce(ctx)
	s.query(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-announceTicker.C:
			s.announce(ctx)
		case <-queryTicker.C:
			s.query(ctx)
		}
	}
}

// waitForBootstrap blocks briefly while the DHT routing table populates, so
// the first announce/query round isn't wasted on an empty table. It gives
// up after dhtBootstrapWait and proceeds regardless.
func (s *dhtSeeder) waitForBootstrap(ctx context.Context) {
	deadline := time.NewTimer(dhtBootstrapWait)
	defer deadline.Stop()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for s.server.NumNodes() == 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}
	}
}

func (s *dhtSeeder) announce(ctx context.Context) {
	announceCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a, err := s.server.Announce(s.infohash, s.localPort, false)
	if err != nil {
		log.Printf("[Bootstrap] DHT announce failed: %v", err)
		return
	}
	defer a.Close()

	for {
		select {
		case <-announceCtx.Done():
			return
		case _, ok := <-a.Peers:
			if !ok {
				return
			}
		}
	}
}

func (s *dhtSeeder) query(ctx context.Context) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	peers, err := s.server.Announce(s.infohash, 0, false)
	if err != nil {
		log.Printf("[Bootstrap] DHT query failed: %v", err)
		return
	}
	defer peers.Close()

	discovered := 0
	for {
		select {
		case <-queryCtx.Done():
			log.Printf("[Bootstrap] DHT query found %d peer addresses", discovered)
			return
		case result, ok := <-peers.Peers:
			if !ok {
				log.Printf("[Bootstrap] DHT query found %d peer addresses", discovered)
				return
			}
			for _, addr := range result.Peers {
				discovered++
				s.onPeer(nodeAddrString(addr))
			}
		}
	}
}

func nodeAddrString(addr krpc.NodeAddr) string {
	return addr.String()
}
