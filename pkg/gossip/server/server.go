// Package server implements the gossip core's TCP listener: accept a
// connection, read exactly one framed Message, dispatch it to a handler,
// and close (spec §4.1, §4.2). Structured as a command-channel-driven run
// loop in the style of the teacher's long-lived network services
// (its pkg/rpc.Server accept loop; original_source/server.rs's GossipServer,
// whose tokio::select!-based stop/accept loop this Go version mirrors with
// a command channel and a context instead of async select arms).
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/HyperbaseApp/hyperbase/pkg/gossip/wire"
	"github.com/HyperbaseApp/hyperbase/pkg/ratelimit"
)

// readTimeout bounds how long the server waits for a full frame from an
// accepted connection before giving up on it (spec §4.1a).
const readTimeout = 5 * time.Second

// Handler processes one decoded Message from a peer at remoteAddr. It is
// invoked on its own goroutine per connection and must not block forever.
type Handler func(ctx context.Context, remoteAddr string, msg wire.Message)

// Config configures a Server.
type Config struct {
	// Address is the host:port to listen on.
	Address string
	// Handler is invoked once per accepted connection with the decoded
	// Message. Required.
	Handler Handler
	// RateLimiter optionally throttles accepted connections per source IP.
	// Nil disables rate limiting.
	RateLimiter *ratelimit.IPRateLimiter
}

// Server is the gossip core's TCP listener (spec §4.1, §4.2).
type Server struct {
	cfg      Config
	listener net.Listener

	cmd  chan command
	done chan struct{}
}

type command struct {
	stop       bool
	completion chan struct{}
}

// New creates a Server bound to cfg.Address. The listener is opened
// immediately so the caller can learn the resolved address (useful when
// Address is "host:0" in tests), but the accept loop does not start until
// Run is called.
func New(cfg Config) (*Server, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("gossip/server: Config.Handler is required")
	}
	listener, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("gossip/server: listen %s: %w", cfg.Address, err)
	}
	return &Server{
		cfg:      cfg,
		listener: listener,
		cmd:      make(chan command),
		done:     make(chan struct{}),
	}, nil
}

// Addr returns the listener's actual bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Run accepts connections until ctx is canceled or Stop is called, and then
// closes the listener and returns. It is meant to be run on its own
// goroutine; callers use Stop (or ctx cancellation) to shut it down.
func (s *Server) Run(ctx context.Context) {
	defer close(s.done)
	defer s.listener.Close()

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult)
	go func() {
		for {
			conn, err := s.listener.Accept()
			accepted <- acceptResult{conn, err}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.cmd:
			if cmd.stop {
				if cmd.completion != nil {
					close(cmd.completion)
				}
				return
			}
		case res := <-accepted:
			if res.err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					log.Printf("[GossipServer] accept error: %v", res.err)
					continue
				}
			}
			go s.handleConnection(ctx, res.conn)
		}
	}
}

// Stop signals Run to shut down and blocks until it has returned.
func (s *Server) Stop() {
	completion := make(chan struct{})
	select {
	case s.cmd <- command{stop: true, completion: completion}:
		<-completion
	case <-s.done:
	}
	<-s.done
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	if s.cfg.RateLimiter != nil {
		host, _, err := net.SplitHostPort(remoteAddr)
		if err != nil {
			host = remoteAddr
		}
		if !s.cfg.RateLimiter.Allow(host) {
			log.Printf("[GossipServer] rejecting connection from %s: rate limit exceeded", remoteAddr)
			return
		}
	}

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		log.Printf("[GossipServer] set read deadline for %s: %v", remoteAddr, err)
		return
	}

	msg, err := wire.ReadFrame(conn)
	if err != nil {
		log.Printf("[GossipServer] read frame from %s: %v", remoteAddr, err)
		return
	}

	s.cfg.Handler(ctx, remoteAddr, msg)
}
