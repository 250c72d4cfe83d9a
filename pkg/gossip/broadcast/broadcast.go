// Package broadcast implements the broadcast API described in spec §4.7:
// a latency optimization that pushes one fresh local change to a single
// sampled peer instead of waiting for that peer's anti-entropy pull to
// discover it. Grounded on original_source/lib.rs's InternalBroadcast
// call sites and on the "lock, copy out, drop, then do I/O" pattern spec
// §5 requires of every view-touching operation.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/HyperbaseApp/hyperbase/pkg/gossip/client"
	"github.com/HyperbaseApp/hyperbase/pkg/gossip/peer"
	"github.com/HyperbaseApp/hyperbase/pkg/gossip/wire"
	"github.com/HyperbaseApp/hyperbase/pkg/store"
	"github.com/HyperbaseApp/hyperbase/pkg/telemetry"
)

// ErrNoPeer is returned by Broadcast when no peer, in the view or not, has
// completed at least one handshake (i.e. the store has no RemoteSync row).
var ErrNoPeer = errors.New("broadcast: no peer available")

// Service sends one-shot broadcast notifications of local writes (spec
// §4.7).
type Service struct {
	localAddress string
	store        store.Port
	view         *peer.SharedView
	metrics      *telemetry.Metrics
}

// New creates a broadcast Service for localAddress, sharing view with the
// rest of the gossip core.
func New(localAddress string, st store.Port, view *peer.SharedView) *Service {
	return &Service{localAddress: localAddress, store: st, view: view}
}

// SetMetrics attaches the gossip core's telemetry instruments. A Service
// that never had SetMetrics called is fully functional; metrics are purely
// observational.
func (s *Service) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

// Broadcast sends row to one peer that has already completed a sampling
// handshake (spec §4.7), preferring a peer in the view and otherwise any
// peer with a RemoteSync row (see pickTarget). It is best-effort: a send
// failure is returned to the caller but the caller need not retry, since
// anti-entropy will converge independently.
func (s *Service) Broadcast(ctx context.Context, row store.ChangeLog) error {
	target, err := s.pickTarget(ctx)
	if err != nil {
		return err
	}

	change, err := s.buildContentChange(ctx, row)
	if err != nil {
		return fmt.Errorf("broadcast: build content change: %w", err)
	}

	msg := wire.Message{
		Sender:           s.localAddress,
		ContentBroadcast: &wire.ContentBroadcast{Change: change},
	}
	if err := client.Send(ctx, target.Address, msg); err != nil {
		if s.metrics != nil {
			s.metrics.IncBroadcastFailure(ctx)
		}
		return fmt.Errorf("broadcast: send to %s: %w", target.Address, err)
	}
	if s.metrics != nil {
		s.metrics.IncBroadcastSent(ctx)
	}
	return nil
}

// pickTarget locks the view, picks one peer known to have a RemoteSync
// row, and releases the lock before returning — the view mutex must never
// be held across the subsequent network send (spec §5).
func (s *Service) pickTarget(ctx context.Context) (peer.Peer, error) {
	var candidates []peer.Peer
	s.view.With(func(v *peer.View) {
		candidates = v.Peers()
	})

	for _, candidate := range candidates {
		if candidate.ID == nil {
			continue
		}
		if _, err := s.store.RemoteSyncGet(ctx, *candidate.ID); err == nil {
			return candidate, nil
		} else if err != store.ErrNotFound {
			log.Printf("[Broadcast] failed to check remote sync for %s: %v", candidate.Address, err)
		}
	}

	// Fall back to any remote with a handshake, even if it fell out of the
	// current view — logged since it diverges from the view's membership.
	remote, err := s.store.RemoteSyncAny(ctx)
	if err != nil {
		if err == store.ErrNotFound {
			return peer.Peer{}, ErrNoPeer
		}
		return peer.Peer{}, fmt.Errorf("broadcast: select remote sync row: %w", err)
	}
	log.Printf("[Broadcast] selected remote %s is not currently in the view", remote.RemoteAddress)
	return peer.New(&remote.RemoteID, remote.RemoteAddress), nil
}

func (s *Service) buildContentChange(ctx context.Context, row store.ChangeLog) (store.ContentChange, error) {
	return store.BuildContentChange(ctx, s.store, row)
}
