package peer

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"
)

// MinViewSize is the smallest view size this implementation supports. Spec
// §9 notes that View.Head's "min(c/2-1, len)" computation underflows on
// c <= 2 in unsigned arithmetic; we resolve it as max(0, c/2-1) but still
// document (and enforce) that a view of fewer than 4 peers isn't a
// meaningful partial-view sample.
const MinViewSize = 4

// View is a node's bounded partial view of cluster membership (spec §3,
// §4.4). It is never safe for concurrent use directly: callers share a View
// behind a mutex (spec §5) and must release the lock before any network or
// storage I/O.
type View struct {
	localID      uuid.UUID
	localAddress string
	size         int // c
	peers        []Peer
}

// NewView creates a View for (localID, localAddress) bounded to size c,
// seeded with the given peers (e.g. bootstrap addresses). If c is below
// MinViewSize it is clamped up and a caller-visible Clamped flag is not
// exposed — callers that care should validate c themselves; clamping here
// only prevents a misconfigured node from crashing on the first merge.
func NewView(localID uuid.UUID, localAddress string, c int, seed []Peer) *View {
	if c < MinViewSize {
		c = MinViewSize
	}
	v := &View{localID: localID, localAddress: localAddress, size: c}
	for _, p := range seed {
		if p.Address != localAddress {
			v.peers = append(v.peers, p)
		}
	}
	return v
}

// Size returns the configured maximum view size (c).
func (v *View) Size() int {
	return v.size
}

// Len returns the current number of peers in the view.
func (v *View) Len() int {
	return len(v.peers)
}

// Peers returns a copy of the current peer list, safe to read after the
// caller has released the view's lock.
func (v *View) Peers() []Peer {
	out := make([]Peer, len(v.peers))
	copy(out, v.peers)
	return out
}

// SelectPeer returns a uniformly random peer from the view, or false if the
// view is empty (spec §4.4 select_peer).
func (v *View) SelectPeer() (Peer, bool) {
	if len(v.peers) == 0 {
		return Peer{}, false
	}
	return v.peers[rand.Intn(len(v.peers))], true
}

// Permute uniformly shuffles the view in place (spec §4.4 permute).
func (v *View) Permute() {
	rand.Shuffle(len(v.peers), func(i, j int) {
		v.peers[i], v.peers[j] = v.peers[j], v.peers[i]
	})
}

// MoveOldestToEnd stable-sorts the view by ascending age, so the oldest
// (least recently refreshed) peers land at the tail (spec §4.4).
func (v *View) MoveOldestToEnd() {
	sort.SliceStable(v.peers, func(i, j int) bool {
		return v.peers[i].Age < v.peers[j].Age
	})
}

// Head returns the first max(0, c/2-1) peers of the view (spec §4.4, with
// the underflow resolved per spec §9's Open Question decision).
func (v *View) Head(c int) []Peer {
	count := c/2 - 1
	if count < 0 {
		count = 0
	}
	if count > len(v.peers) {
		count = len(v.peers)
	}
	out := make([]Peer, count)
	copy(out, v.peers[:count])
	return out
}

// IncreaseAge increments every peer's age by one (spec §4.4). Callers must
// invoke this only after a sampling round's I/O has completed (spec §5),
// so an interrupted round doesn't double-age peers.
func (v *View) IncreaseAge() {
	for i := range v.peers {
		v.peers[i].Age++
	}
}

// WithLocal returns a copy of the view with a self-descriptor (age 0,
// carrying this node's own id) appended, used to build the outgoing
// sampling buffer (spec §3, §4.5): clone the view, insert self, permute,
// move-oldest-to-end, head(c). Carrying the id here is how a peer ever
// learns another peer's id in the first place — the sampling protocol has
// no other handshake step.
func (v *View) WithLocal() *View {
	clone := &View{localID: v.localID, localAddress: v.localAddress, size: v.size}
	clone.peers = make([]Peer, len(v.peers), len(v.peers)+1)
	copy(clone.peers, v.peers)
	self := v.localID
	clone.peers = append(clone.peers, New(&self, v.localAddress))
	return clone
}

// Merge folds received peers into the view following spec §4.4's five-step
// procedure: append non-local peers, dedupe by address keeping the smaller
// age, remove_old(h), remove_head(s), remove_at_random. After Merge,
// Len() <= c and the local address is absent — the View invariant spec §3
// and §8 require.
func (v *View) Merge(received []Peer, h, s int) {
	v.appendPeers(received)
	v.removeDuplicates()
	v.removeOld(h)
	v.removeHead(s)
	v.removeAtRandom()
}

func (v *View) appendPeers(received []Peer) {
	for _, p := range received {
		if p.Address != v.localAddress {
			v.peers = append(v.peers, p)
		}
	}
}

// removeDuplicates keeps, for each address, the entry with the smaller age.
// Later entries win ties only by having a strictly smaller age, matching
// original_source/view.rs's HashSet-replace-on-smaller-age behavior.
func (v *View) removeDuplicates() {
	byAddr := make(map[string]Peer, len(v.peers))
	order := make([]string, 0, len(v.peers))
	for _, p := range v.peers {
		existing, ok := byAddr[p.Address]
		if !ok {
			byAddr[p.Address] = p
			order = append(order, p.Address)
			continue
		}
		if p.Age < existing.Age {
			byAddr[p.Address] = p
		}
	}
	deduped := make([]Peer, 0, len(order))
	for _, addr := range order {
		deduped = append(deduped, byAddr[addr])
	}
	v.peers = deduped
}

func (v *View) removeOld(h int) {
	n := v.overflow()
	removal := minInt(h, n)
	if removal <= 0 {
		return
	}
	v.MoveOldestToEnd()
	v.peers = v.peers[:len(v.peers)-removal]
}

func (v *View) removeHead(s int) {
	n := v.overflow()
	removal := minInt(s, n)
	if removal <= 0 {
		return
	}
	v.peers = v.peers[removal:]
}

func (v *View) removeAtRandom() {
	for len(v.peers) > v.size {
		idx := rand.Intn(len(v.peers))
		v.peers = append(v.peers[:idx], v.peers[idx+1:]...)
	}
}

func (v *View) overflow() int {
	if len(v.peers) > v.size {
		return len(v.peers) - v.size
	}
	return 0
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
