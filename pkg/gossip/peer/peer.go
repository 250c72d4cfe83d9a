// Package peer implements the bounded partial-view peer sampler described in
// spec §3/§4.4: a Peer descriptor with an optional id and an age counter,
// and a View that bounds how many peers a node remembers at once.
//
// Grounded on original_source/api/internal/gossip/src/view.rs for the exact
// merge arithmetic, and on the teacher's pkg/discovery/gossip.go peer-store
// shape for the Go idiom (plain structs, no interior mutability tricks).
package peer

import (
	"github.com/google/uuid"
)

// Peer is a socket address known to a node, plus bookkeeping the sampling
// service needs: an id (learned on first contact) and an age (rounds since
// last refresh). Equality and hashing are by Address alone (spec §3).
type Peer struct {
	ID      *uuid.UUID // nil until the peer's identity is learned
	Address string     // host:port
	Age     int
}

// New builds a fresh Peer descriptor with age zero.
func New(id *uuid.UUID, address string) Peer {
	return Peer{ID: id, Address: address, Age: 0}
}

// SameAddress reports whether two peers refer to the same socket address,
// the only basis for Peer equality (spec §3).
func (p Peer) SameAddress(other Peer) bool {
	return p.Address == other.Address
}
