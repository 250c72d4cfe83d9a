// Package bootstrap wires the gossip core's services into a running node:
// the storage port, the shared view, the TCP server, the sampling and
// anti-entropy loops and the broadcast service described in spec §5, plus
// the message router that dispatches decoded frames to them.
//
// Grounded on original_source/lib.rs's ApiInternalGossip::new/run
// composition root, restructured in the style of the teacher's
// pkg/daemon.NewDaemon/Run: a constructor that wires dependencies and
// returns an error on irrecoverable startup failure, and a Run that blocks
// until ctx is cancelled, per spec §7's single documented fatal case
// (listener bind failure).
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/HyperbaseApp/hyperbase/pkg/config"
	"github.com/HyperbaseApp/hyperbase/pkg/gossip/antientropy"
	"github.com/HyperbaseApp/hyperbase/pkg/gossip/broadcast"
	"github.com/HyperbaseApp/hyperbase/pkg/gossip/peer"
	"github.com/HyperbaseApp/hyperbase/pkg/gossip/sampling"
	"github.com/HyperbaseApp/hyperbase/pkg/gossip/server"
	"github.com/HyperbaseApp/hyperbase/pkg/ratelimit"
	"github.com/HyperbaseApp/hyperbase/pkg/store"
	"github.com/HyperbaseApp/hyperbase/pkg/store/redisstore"
	"github.com/HyperbaseApp/hyperbase/pkg/telemetry"
)

// Node is a fully-wired gossip core instance: one TCP server plus the
// sampling, anti-entropy, and broadcast services sharing one View (spec
// §5).
type Node struct {
	cfg   *config.Config
	store store.Port
	view  *peer.SharedView

	server      *server.Server
	sampling    *sampling.Service
	antientropy *antientropy.Service
	broadcast   *broadcast.Service

	localID uuid.UUID
}

// New builds a Node from cfg: connects to Redis, loads or creates this
// node's LocalInfo row, seeds the View from cfg.BootstrapPeers, and binds
// the TCP listener. A bind failure here is the one fatal startup error
// spec §7 documents; the caller should log it and exit.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	st, err := redisstore.New(cfg.RedisAddress, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect to store: %w", err)
	}

	localID, err := st.LocalInfoGetOrCreate(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load local info: %w", err)
	}
	log.Printf("[Bootstrap] local node id %s, advertise address %s", localID, cfg.AdvertiseAddress)

	seed := make([]peer.Peer, 0, len(cfg.BootstrapPeers))
	for _, addr := range cfg.BootstrapPeers {
		seed = append(seed, peer.New(nil, addr))
	}
	view := peer.NewShared(peer.NewView(localID, cfg.AdvertiseAddress, cfg.Sampling.ViewSize, seed))

	samplingSvc := sampling.New(cfg.AdvertiseAddress, cfg.Sampling, st, view)
	antiEntropySvc := antientropy.New(cfg.AdvertiseAddress, cfg.AntiEntropy, st, view)
	broadcastSvc := broadcast.New(cfg.AdvertiseAddress, st, view)

	router := &router{sampling: samplingSvc, antientropy: antiEntropySvc}

	srv, err := server.New(server.Config{
		Address:     cfg.ListenAddress,
		Handler:     router.Handle,
		RateLimiter: ratelimit.NewDefault(),
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: bind gossip listener: %w", err)
	}

	return &Node{
		cfg:         cfg,
		store:       st,
		view:        view,
		server:      srv,
		sampling:    samplingSvc,
		antientropy: antiEntropySvc,
		broadcast:   broadcastSvc,
		localID:     localID,
	}, nil
}

// Run starts the TCP server and every cooperative loop, blocking until ctx
// is cancelled. It also starts DHT-assisted bootstrap discovery (spec
// §4.9) when cfg.ClusterToken is non-empty.
func (n *Node) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		n.server.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		n.sampling.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		n.antientropy.Run(ctx)
	}()

	if n.cfg.ClusterToken != "" {
		seeder, err := newDHTSeeder(n.cfg.ClusterToken, n.listenPort(), n.onDHTPeerDiscovered)
		if err != nil {
			log.Printf("[Bootstrap] DHT seeder disabled: %v", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				seeder.Run(ctx)
			}()
		}
	}

	log.Printf("[Bootstrap] gossip node running on %s", n.server.Addr())
	<-ctx.Done()
	log.Printf("[Bootstrap] shutting down")
	n.server.Stop()
	wg.Wait()
}

// Broadcast notifies one peer of a fresh local change (spec §4.7), for use
// by the host's write path after it commits row to its own storage and to
// the change log.
func (n *Node) Broadcast(ctx context.Context, row store.ChangeLog) error {
	return n.broadcast.Broadcast(ctx, row)
}

// SetMetrics attaches telemetry instruments to every cooperative loop.
// Call it once, before Run, with the value telemetry.Init returns.
func (n *Node) SetMetrics(m *telemetry.Metrics) {
	n.sampling.SetMetrics(m)
	n.antientropy.SetMetrics(m)
	n.broadcast.SetMetrics(m)
}

func (n *Node) onDHTPeerDiscovered(addr string) {
	n.view.With(func(v *peer.View) {
		v.Merge([]peer.Peer{peer.New(nil, addr)}, 0, 0)
	})
}

func (n *Node) listenPort() int {
	_, portStr, err := net.SplitHostPort(n.server.Addr())
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}
