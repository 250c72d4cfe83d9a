// hyperbase-gossipd runs a standalone gossip core node: the peer-sampling,
// anti-entropy, and broadcast services described in spec §4 behind a single
// TCP listener, backed by a Redis/Dragonfly store.Port.
//
// This binary only demonstrates wiring pkg/config and pkg/bootstrap from
// flags for local runs and tests (spec §1a); a real Hyperbase deployment
// embeds pkg/bootstrap.Node directly instead of shelling out to this
// command.
//
// Usage:
//
//	hyperbase-gossipd -addr :7946 -redis 127.0.0.1:6379
//	hyperbase-gossipd -addr :7946 -redis 127.0.0.1:6379 -peer 10.0.0.2:7946 -cluster-token prod-1
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/HyperbaseApp/hyperbase/pkg/bootstrap"
	"github.com/HyperbaseApp/hyperbase/pkg/config"
	"github.com/HyperbaseApp/hyperbase/pkg/telemetry"
)

type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ",") }
func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	listenAddr := flag.String("addr", config.DefaultListenAddress, "gossip TCP listen address")
	advertiseAddr := flag.String("advertise-addr", "", "address other nodes should dial (defaults to -addr)")
	redisAddr := flag.String("redis", "127.0.0.1:6379", "Redis/Dragonfly address backing the change log")
	redisDB := flag.Int("redis-db", config.DefaultRedisDB, "Redis database index")
	clusterToken := flag.String("cluster-token", "", "enables DHT-assisted bootstrap discovery under this token")

	var peers stringSlice
	flag.Var(&peers, "peer", "static bootstrap peer address (repeatable)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, shutdownTelemetry, err := telemetry.Init(ctx, "hyperbase-gossipd", "0.1.0")
	if err != nil {
		log.Printf("[Bootstrap] telemetry init degraded: %v", err)
	}
	defer shutdownTelemetry(context.Background())

	cfg, err := config.New(config.Opts{
		ListenAddress:    *listenAddr,
		AdvertiseAddress: *advertiseAddr,
		RedisAddress:     *redisAddr,
		RedisDB:          *redisDB,
		ClusterToken:     *clusterToken,
		BootstrapPeers:   peers,
	})
	if err != nil {
		log.Fatalf("[Bootstrap] config: %v", err)
	}

	node, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("[Bootstrap] %v", err)
	}
	node.SetMetrics(metrics)

	log.Printf("[Bootstrap] hyperbase-gossipd starting on %s (redis=%s, peers=%v)", cfg.ListenAddress, cfg.RedisAddress, peers)
	node.Run(ctx)

	os.Exit(0)
}
