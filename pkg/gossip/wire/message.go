// Package wire defines the gossip core's over-the-wire Message envelope and
// its length-framed binary codec (spec §3, §4.1).
//
// Each message is a single frame on an otherwise empty TCP connection: the
// sender writes a 4-byte length prefix followed by a gob-encoded Message
// and closes the write half; the receiver reads exactly one frame and is
// done. gob is used rather than a hand-rolled format because it is already
// this example corpus's own precedent for binary peer-to-peer framing (see
// DESIGN.md) and, unlike JSON, is compact and self-describing without a
// schema compiler.
package wire

import (
	"time"

	"github.com/google/uuid"

	"github.com/HyperbaseApp/hyperbase/pkg/gossip/peer"
	"github.com/HyperbaseApp/hyperbase/pkg/store"
)

// SamplingKind distinguishes a peer-sampling request from its reply.
type SamplingKind int

const (
	SamplingRequest SamplingKind = iota
	SamplingResponse
)

// SamplingMessage is the peer-sampling exchange payload (spec §3, §4.5).
// Peers is nil when the sender has push disabled.
type SamplingMessage struct {
	Kind  SamplingKind
	Peers []peer.Peer
}

// HeaderRequest asks a peer for change-log rows after a cursor (spec §4.6).
type HeaderRequest struct {
	FromTime     time.Time
	FromChangeID uuid.UUID
	Limit        int
}

// HeaderResponse carries the change-log rows a peer had after the
// requested cursor (spec §4.6).
type HeaderResponse struct {
	Rows []store.ChangeLog
}

// ContentRequest asks a peer to reconstruct and send the full
// ContentChange payloads for the given change ids (spec §4.6).
type ContentRequest struct {
	ChangeIDs []uuid.UUID
}

// ContentResponse carries the requested ContentChange payloads (spec §4.6).
type ContentResponse struct {
	Changes []store.ContentChange
}

// ContentBroadcast is a fire-and-forget notification of one fresh local
// change (spec §4.7).
type ContentBroadcast struct {
	Change store.ContentChange
}

// Message is the wire envelope every gossip frame carries (spec §3): a
// sender socket address and exactly one populated variant. This is modeled
// as a struct of optional pointers rather than a Go interface so it encodes
// with plain gob without an interface-registration step — the nearest
// idiomatic Go analogue of the original's tagged enum.
type Message struct {
	Sender string

	Sampling         *SamplingMessage
	HeaderRequest    *HeaderRequest
	HeaderResponse   *HeaderResponse
	ContentRequest   *ContentRequest
	ContentResponse  *ContentResponse
	ContentBroadcast *ContentBroadcast
}

// Variant reports which field of the message is populated, for logging and
// dispatch assertions.
func (m Message) Variant() string {
	switch {
	case m.Sampling != nil:
		return "sampling"
	case m.HeaderRequest != nil:
		return "header_request"
	case m.HeaderResponse != nil:
		return "header_response"
	case m.ContentRequest != nil:
		return "content_request"
	case m.ContentResponse != nil:
		return "content_response"
	case m.ContentBroadcast != nil:
		return "content_broadcast"
	default:
		return "empty"
	}
}
