// Package config holds the gossip core's internal configuration: the
// defaulting Config struct a host process builds once at startup and
// passes to pkg/bootstrap.New. Loading values from flags, environment
// variables, or a file is the host's job (spec §1); this package only
// applies defaults and validates.
package config

import (
	"fmt"
	"time"

	"github.com/HyperbaseApp/hyperbase/pkg/gossip/antientropy"
	"github.com/HyperbaseApp/hyperbase/pkg/gossip/sampling"
)

const (
	DefaultListenAddress = ":7946"
	DefaultRedisDB       = 0
)

// Config holds all derived configuration for a gossip core node, built via
// New from a possibly-sparse Opts. Adapted from the teacher's
// pkg/daemon.Config/DaemonOpts defaulting pattern.
type Config struct {
	// ListenAddress is the TCP address the gossip server binds (host:port).
	ListenAddress string
	// AdvertiseAddress is the address other nodes dial to reach this node.
	// Defaults to ListenAddress when empty.
	AdvertiseAddress string

	// RedisAddress is the Redis/Dragonfly endpoint backing store.Port.
	RedisAddress string
	RedisDB      int

	// ClusterToken scopes DHT bootstrap discovery (spec §4.9); empty
	// disables DHT-assisted bootstrap entirely.
	ClusterToken string
	// BootstrapPeers is a static list of known peer socket addresses,
	// seeded into the initial View alongside any DHT discoveries.
	BootstrapPeers []string

	Sampling    sampling.Config
	AntiEntropy antientropy.Config

	LogLevel string
}

// Opts is the sparse, user-facing input to New; zero values take the
// package defaults below.
type Opts struct {
	ListenAddress    string
	AdvertiseAddress string

	RedisAddress string
	RedisDB      int

	ClusterToken   string
	BootstrapPeers []string

	ViewSize          int
	HealingFactor     int
	SwappingFactor    int
	SamplingPeriod    time.Duration
	AntiEntropyPeriod time.Duration

	LogLevel string
}

// New builds a Config from opts, applying defaults for anything left
// zero-valued. It returns an error only when a required field (the Redis
// address) is missing — everything else has a usable default.
func New(opts Opts) (*Config, error) {
	if opts.RedisAddress == "" {
		return nil, fmt.Errorf("config: RedisAddress is required")
	}

	listenAddress := opts.ListenAddress
	if listenAddress == "" {
		listenAddress = DefaultListenAddress
	}

	advertiseAddress := opts.AdvertiseAddress
	if advertiseAddress == "" {
		advertiseAddress = listenAddress
	}

	logLevel := opts.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}

	samplingCfg := sampling.DefaultConfig()
	if opts.ViewSize > 0 {
		samplingCfg.ViewSize = opts.ViewSize
	}
	if opts.HealingFactor > 0 {
		samplingCfg.HealingFactor = opts.HealingFactor
	}
	if opts.SwappingFactor > 0 {
		samplingCfg.SwappingFactor = opts.SwappingFactor
	}
	if opts.SamplingPeriod > 0 {
		samplingCfg.Period = opts.SamplingPeriod
	}

	antiEntropyCfg := antientropy.DefaultConfig()
	if opts.AntiEntropyPeriod > 0 {
		antiEntropyCfg.Period = opts.AntiEntropyPeriod
	}

	return &Config{
		ListenAddress:    listenAddress,
		AdvertiseAddress: advertiseAddress,
		RedisAddress:     opts.RedisAddress,
		RedisDB:          opts.RedisDB,
		ClusterToken:     opts.ClusterToken,
		BootstrapPeers:   opts.BootstrapPeers,
		Sampling:         samplingCfg,
		AntiEntropy:      antiEntropyCfg,
		LogLevel:         logLevel,
	}, nil
}
