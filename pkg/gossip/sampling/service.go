// Package sampling implements the peer-sampling protocol described in
// spec §4.4/§4.5: a sender loop that periodically gossips the local view to
// a random peer, and a receiver side that folds an incoming view buffer
// into the local one and seeds RemoteSync rows for newly-learned peers.
//
// Grounded on original_source/service/peer_sampling.rs, restructured for Go:
// the original's run_receiver_task drains an internal mpsc channel fed by
// the TCP server; here the server dispatches each decoded message straight
// to HandleSampling on its own per-connection goroutine, so there is no
// separate receiver loop to run.
package sampling

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/HyperbaseApp/hyperbase/pkg/gossip/client"
	"github.com/HyperbaseApp/hyperbase/pkg/gossip/peer"
	"github.com/HyperbaseApp/hyperbase/pkg/gossip/wire"
	"github.com/HyperbaseApp/hyperbase/pkg/store"
	"github.com/HyperbaseApp/hyperbase/pkg/telemetry"
)

// Service runs the peer-sampling protocol for one node.
type Service struct {
	localAddress string
	cfg          Config
	store        store.Port
	view         *peer.SharedView
	metrics      *telemetry.Metrics
}

// New creates a sampling Service for localAddress, sharing view with the
// rest of the gossip core.
func New(localAddress string, cfg Config, st store.Port, view *peer.SharedView) *Service {
	return &Service{localAddress: localAddress, cfg: cfg, store: st, view: view}
}

// SetMetrics attaches the gossip core's telemetry instruments. A Service
// that never had SetMetrics called, or had it called with nil, is fully
// functional; metrics are purely observational.
func (s *Service) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

// Run drives the sender loop until ctx is canceled (spec §4.5): on every
// round, pick a random peer from the view, send it the local view buffer
// (or an empty request if Push is disabled), age the view, then sleep for
// Period plus up to PeriodDeviation of jitter.
func (s *Service) Run(ctx context.Context) {
	log.Printf("[Sampling] running peer sampling service")
	for {
		s.runOnce(ctx)

		deviation := time.Duration(0)
		if s.cfg.PeriodDeviation > 0 {
			deviation = time.Duration(rand.Int63n(int64(s.cfg.PeriodDeviation) + 1))
		}
		sleepFor := s.cfg.Period + deviation
		log.Printf("[Sampling] next peer sampling request is after %s", sleepFor)

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepFor):
		}
	}
}

func (s *Service) runOnce(ctx context.Context) {
	var target peer.Peer
	var ok bool
	var buffer []peer.Peer
	s.view.With(func(v *peer.View) {
		target, ok = v.SelectPeer()
		if !ok {
			return
		}
		if s.cfg.Push {
			buffer = buildLocalViewBuffer(s.cfg, v)
		}
	})
	if !ok {
		log.Printf("[Sampling] no peer found for peer sampling")
		return
	}

	msg := wire.Message{
		Sender: s.localAddress,
		Sampling: &wire.SamplingMessage{
			Kind:  wire.SamplingRequest,
			Peers: buffer,
		},
	}
	err := client.Send(ctx, target.Address, msg)
	s.view.With(func(v *peer.View) {
		v.IncreaseAge()
	})
	if err != nil {
		log.Printf("[Sampling] request to %s failed: %v", target.Address, err)
		return
	}
	if s.metrics != nil {
		s.metrics.IncSamplingSent(ctx)
	}
	log.Printf("[Sampling] request sent to %s (%d peers)", target.Address, len(buffer))
}

// HandleSampling processes one incoming sampling message from senderAddr
// (spec §4.5): on a request, optionally reply with the local view buffer if
// Pull is enabled; either way, if the message carries peers, merge them
// into the local view and ensure a RemoteSync row exists for each newly
// known peer id, then age the view.
func (s *Service) HandleSampling(ctx context.Context, senderAddr string, msg wire.SamplingMessage) {
	if s.metrics != nil && msg.Kind == wire.SamplingRequest {
		s.metrics.IncSamplingReceived(ctx)
	}
	if msg.Kind == wire.SamplingRequest && s.cfg.Pull {
		var buffer []peer.Peer
		s.view.With(func(v *peer.View) {
			buffer = buildLocalViewBuffer(s.cfg, v)
		})
		reply := wire.Message{
			Sender: s.localAddress,
			Sampling: &wire.SamplingMessage{
				Kind:  wire.SamplingResponse,
				Peers: buffer,
			},
		}
		if err := client.Send(ctx, senderAddr, reply); err != nil {
			log.Printf("[Sampling] response to %s failed: %v", senderAddr, err)
		} else {
			log.Printf("[Sampling] response sent to %s (%d peers)", senderAddr, len(buffer))
		}
	}

	if len(msg.Peers) == 0 {
		log.Printf("[Sampling] received a peer sampling with zero peers from %s", senderAddr)
	} else {
		s.mergeAndSeed(ctx, msg.Peers)
	}

	s.view.With(func(v *peer.View) {
		v.IncreaseAge()
	})
}

func (s *Service) mergeAndSeed(ctx context.Context, received []peer.Peer) {
	var toSeed []peer.Peer
	s.view.With(func(v *peer.View) {
		v.Merge(received, s.cfg.HealingFactor, s.cfg.SwappingFactor)
		toSeed = v.Peers()
	})

	for _, p := range toSeed {
		if p.ID == nil {
			continue
		}
		if err := s.seedRemoteSync(ctx, *p.ID, p.Address); err != nil {
			log.Printf("[Sampling] failed to seed remote sync for %s: %v", p.Address, err)
		}
	}
}

func (s *Service) seedRemoteSync(ctx context.Context, peerID uuid.UUID, address string) error {
	remotes, err := s.store.RemoteSyncListByAddress(ctx, address)
	if err != nil {
		return fmt.Errorf("select remote sync rows by address: %w", err)
	}
	for _, remote := range remotes {
		if remote.RemoteID == peerID {
			return nil
		}
	}
	row := store.NewRemoteSync(peerID, address)
	if err := s.store.RemoteSyncInsertOrIgnore(ctx, row); err != nil {
		return fmt.Errorf("insert remote sync row: %w", err)
	}
	return nil
}

// buildLocalViewBuffer builds the peer list sent in a sampling message
// (spec §4.5): clone the view with a self-descriptor added, permute it,
// move the oldest peers to the end, then take the first head-count peers.
func buildLocalViewBuffer(cfg Config, v *peer.View) []peer.Peer {
	clone := v.WithLocal()
	clone.Permute()
	clone.MoveOldestToEnd()
	return clone.Head(cfg.ViewSize)
}
