// Package antientropy implements the database-messaging anti-entropy
// engine described in spec §4.6: a periodic pull loop plus four message
// handlers (header request/response, content request/response-or-broadcast)
// that together propagate change-log rows across peers under a
// last-writer-wins conflict rule.
//
// Grounded on original_source/message/content.rs for the apply-dispatch
// table (see pkg/store/content.go) and on the teacher's pkg/lighthouse/sync.go for
// the periodic-pull/onWrite-push loop shape, generalized from its
// UDP+JSON, push-everywhere model to spec §4.6's TCP+gob, two-phase
// pull-then-content exchange.
package antientropy

import (
	"context"
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

// Service runs the anti-entropy protocol for one node.
type Service struct {
	localAddress string
	cfg          Config
	store        store.Port
	view         *peer.SharedView
	metrics      *telemetry.Metrics
}

// New creates an anti-entropy Service for localAddress, sharing view with
// the rest of the gossip core.
func New(localAddress string, cfg Config, st store.Port, view *peer.SharedView) *Service {
	return &Service{localAddress: localAddress, cfg: cfg, store: st, view: view}
}

// SetMetrics attaches the gossip core's telemetry instruments. A Service
// that never had SetMetrics called is fully functional; metrics are purely
// observational.
func (s *Service) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

// Run drives the pull loop until ctx is canceled (spec §4.6): every round,
// pick a random peer from the view, look up its RemoteSync cursor, and send
// it a HeaderMessaging request for anything after that cursor.
func (s *Service) Run(ctx context.Context) {
	log.Printf("[AntiEntropy] running anti-entropy pull loop")
	for {
		s.pullOnce(ctx)

		deviation := time.Duration(0)
		if s.cfg.PeriodDeviation > 0 {
			deviation = time.Duration(rand.Int63n(int64(s.cfg.PeriodDeviation) + 1))
		}
		sleepFor := s.cfg.Period + deviation

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepFor):
		}
	}
}

func (s *Service) pullOnce(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.IncAntiEntropyRound(ctx)
	}

	var target peer.Peer
	var ok bool
	s.view.With(func(v *peer.View) {
		target, ok = v.SelectPeer()
	})
	if !ok {
		log.Printf("[AntiEntropy] no peer found for anti-entropy pull")
		return
	}
	if target.ID == nil {
		return
	}

	cursor, err := s.store.RemoteSyncGet(ctx, *target.ID)
	if err != nil {
		if err != store.ErrNotFound {
			log.Printf("[AntiEntropy] failed to read remote sync cursor for %s: %v", target.Address, err)
		}
		return
	}

	req := wire.Message{
		Sender: s.localAddress,
		HeaderRequest: &wire.HeaderRequest{
			FromTime:     cursor.LastDataSync,
			FromChangeID: cursor.LastChangeID,
			Limit:        s.cfg.ActionsSize,
		},
	}
	if err := client.Send(ctx, target.Address, req); err != nil {
		log.Printf("[AntiEntropy] header request to %s failed: %v", target.Address, err)
		return
	}
	log.Printf("[AntiEntropy] header request sent to %s", target.Address)
}

// HandleHeaderRequest answers an incoming HeaderMessaging request (spec
// §4.6): read up to Limit change-log rows strictly after the requested
// cursor, in (timestamp, change_id) ascending order, and reply.
func (s *Service) HandleHeaderRequest(ctx context.Context, senderAddr string, req wire.HeaderRequest) {
	cursor := store.ChangeLog{Timestamp: req.FromTime, ChangeID: req.FromChangeID}
	rows, err := s.store.ChangeLogAfter(ctx, cursor, req.Limit)
	if err != nil {
		log.Printf("[AntiEntropy] failed to read change log rows for %s: %v", senderAddr, err)
		return
	}

	reply := wire.Message{
		Sender:         s.localAddress,
		HeaderResponse: &wire.HeaderResponse{Rows: rows},
	}
	if err := client.Send(ctx, senderAddr, reply); err != nil {
		log.Printf("[AntiEntropy] header response to %s failed: %v", senderAddr, err)
		return
	}
	log.Printf("[AntiEntropy] header response sent to %s (%d rows)", senderAddr, len(rows))
}

// HandleHeaderResponse processes an incoming HeaderMessagingResponse (spec
// §4.6): split rows into already-applied vs needed, request content for
// needed, and advance the peer's RemoteSync cursor to the newest
// already-applied row (whether or not any content was requested).
func (s *Service) HandleHeaderResponse(ctx context.Context, senderAddr string, resp wire.HeaderResponse) {
	var needed []uuid.UUID
	var maxApplied store.ChangeLog
	haveMaxApplied := false

	for _, row := range resp.Rows {
		local, err := s.store.ChangeLogGet(ctx, row.Table, row.ID)
		applied := err == nil && local.ChangeID == row.ChangeID && local.Timestamp.Equal(row.Timestamp)
		if applied {
			if !haveMaxApplied || row.After(maxApplied) {
				maxApplied = row
				haveMaxApplied = true
			}
			continue
		}
		needed = append(needed, row.ChangeID)
	}

	if len(needed) > 0 {
		req := wire.Message{
			Sender:         s.localAddress,
			ContentRequest: &wire.ContentRequest{ChangeIDs: needed},
		}
		if err := client.Send(ctx, senderAddr, req); err != nil {
			log.Printf("[AntiEntropy] content request to %s failed: %v", senderAddr, err)
		}
	}

	if haveMaxApplied {
		s.advanceCursorFromAddress(ctx, senderAddr, maxApplied)
	}
}

// HandleContentRequest answers an incoming ContentMessaging::Request (spec
// §4.6): for each requested change id, reconstruct the full ContentChange
// and reply with the batch.
func (s *Service) HandleContentRequest(ctx context.Context, senderAddr string, req wire.ContentRequest) {
	changes := make([]store.ContentChange, 0, len(req.ChangeIDs))
	for _, changeID := range req.ChangeIDs {
		row, err := s.findChangeLogByChangeID(ctx, changeID)
		if err != nil {
			log.Printf("[AntiEntropy] failed to locate change log row %s for %s: %v", changeID, senderAddr, err)
			continue
		}
		change, err := buildContentChange(ctx, s.store, row)
		if err != nil {
			log.Printf("[AntiEntropy] failed to build content change %s for %s: %v", changeID, senderAddr, err)
			continue
		}
		changes = append(changes, change)
	}

	reply := wire.Message{
		Sender:          s.localAddress,
		ContentResponse: &wire.ContentResponse{Changes: changes},
	}
	if err := client.Send(ctx, senderAddr, reply); err != nil {
		log.Printf("[AntiEntropy] content response to %s failed: %v", senderAddr, err)
		return
	}
	log.Printf("[AntiEntropy] content response sent to %s (%d changes)", senderAddr, len(changes))
}

// HandleContentResponse applies a batch of ContentChanges received from a
// HeaderMessaging pull (spec §4.6 step 5: advance the peer's cursor to the
// max (timestamp, change_id) actually applied in the batch). If any change
// in the batch fails to apply, the cursor is not advanced (spec §7).
func (s *Service) HandleContentResponse(ctx context.Context, senderAddr string, resp wire.ContentResponse) {
	var maxApplied store.ChangeLog
	haveMaxApplied := false
	failed := false

	for _, change := range resp.Changes {
		applied, err := s.applyIfNewer(ctx, change)
		if err != nil {
			log.Printf("[AntiEntropy] failed to apply change %s from %s: %v", change.ChangeID, senderAddr, err)
			failed = true
			continue
		}
		if applied {
			cl := change.ChangeLog()
			if !haveMaxApplied || cl.After(maxApplied) {
				maxApplied = cl
				haveMaxApplied = true
			}
		}
	}

	if haveMaxApplied && !failed {
		s.advanceCursorFromAddress(ctx, senderAddr, maxApplied)
	}
}

// HandleContentBroadcast applies a single fire-and-forget ContentChange
// (spec §4.7). Unlike HandleContentResponse it never advances a RemoteSync
// cursor: broadcast is a latency optimization, not the pull protocol's
// source of truth for "caught up".
func (s *Service) HandleContentBroadcast(ctx context.Context, senderAddr string, broadcast wire.ContentBroadcast) {
	if _, err := s.applyIfNewer(ctx, broadcast.Change); err != nil {
		log.Printf("[AntiEntropy] failed to apply broadcast change %s from %s: %v", broadcast.Change.ChangeID, senderAddr, err)
	}
}

// applyIfNewer enforces the last-writer-wins conflict rule (spec §4.6 step
// 2): apply change iff no local change-log row exists for (table, id), or
// change is strictly newer under the (timestamp, change_id) order.
// Otherwise it is discarded silently, as the protocol requires.
func (s *Service) applyIfNewer(ctx context.Context, change store.ContentChange) (bool, error) {
	local, err := s.store.ChangeLogGet(ctx, change.Table, change.ID)
	if err == nil {
		incoming := change.ChangeLog()
		if !incoming.After(local) {
			return false, nil
		}
	} else if err != store.ErrNotFound {
		return false, err
	}

	if err := applyContentChange(ctx, s.store, change); err != nil {
		return false, err
	}
	if s.metrics != nil {
		s.metrics.AddChangesApplied(ctx, 1)
	}
	return true, nil
}

// findChangeLogByChangeID locates a change-log row by change id alone, the
// key content requests carry. The narrow Port interface (spec §6) has no
// change-id lookup, so this scans ChangeLogAfter from the zero cursor and
// reads at most scanLimit rows; a row beyond that limit is reported as
// ErrNotFound.
func (s *Service) findChangeLogByChangeID(ctx context.Context, changeID uuid.UUID) (store.ChangeLog, error) {
	const scanLimit = 1 << 20
	rows, err := s.store.ChangeLogAfter(ctx, store.ChangeLog{}, scanLimit)
	if err != nil {
		return store.ChangeLog{}, err
	}
	for _, row := range rows {
		if row.ChangeID == changeID {
			return row, nil
		}
	}
	return store.ChangeLog{}, store.ErrNotFound
}

func (s *Service) advanceCursorFromAddress(ctx context.Context, senderAddr string, cursor store.ChangeLog) {
	remotes, err := s.store.RemoteSyncListByAddress(ctx, senderAddr)
	if err != nil {
		log.Printf("[AntiEntropy] failed to list remote sync rows for %s: %v", senderAddr, err)
		return
	}
	for _, remote := range remotes {
		remote.LastDataSync = cursor.Timestamp
		remote.LastChangeID = cursor.ChangeID
		if err := s.store.RemoteSyncUpsert(ctx, remote); err != nil {
			log.Printf("[AntiEntropy] failed to advance remote sync cursor for %s: %v", senderAddr, err)
		}
	}
}
