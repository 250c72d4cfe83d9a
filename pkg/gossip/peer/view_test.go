package peer

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func manyPeers(n int, prefix string) []Peer {
	out := make([]Peer, n)
	for i := range out {
		out[i] = New(nil, fmt.Sprintf("%s-%d:9000", prefix, i))
	}
	return out
}

func TestViewMergeBound(t *testing.T) {
	v := NewView(uuid.New(), "local:9000", 6, manyPeers(5, "seed"))
	v.Merge(manyPeers(20, "incoming"), 2, 2)

	if v.Len() > v.Size() {
		t.Fatalf("Len() = %d, want <= Size() = %d", v.Len(), v.Size())
	}
}

func TestViewNeverContainsLocalAddress(t *testing.T) {
	local := "local:9000"
	v := NewView(uuid.New(), local, 6, append(manyPeers(3, "seed"), New(nil, local)))

	for _, p := range v.Peers() {
		if p.Address == local {
			t.Fatalf("Peers() contains local address %q after NewView", local)
		}
	}

	incoming := append(manyPeers(4, "incoming"), New(nil, local))
	v.Merge(incoming, 1, 1)

	for _, p := range v.Peers() {
		if p.Address == local {
			t.Fatalf("Peers() contains local address %q after Merge", local)
		}
	}
}

func TestViewAgeMonotonic(t *testing.T) {
	v := NewView(uuid.New(), "local:9000", 6, manyPeers(3, "seed"))
	v.IncreaseAge()
	v.IncreaseAge()

	for _, p := range v.Peers() {
		if p.Age != 2 {
			t.Fatalf("peer %s Age = %d, want 2", p.Address, p.Age)
		}
	}
}

func TestViewSizeClampsBelowMinSize(t *testing.T) {
	v := NewView(uuid.New(), "local:9000", 1, manyPeers(10, "seed"))
	if v.Size() != MinViewSize {
		t.Fatalf("Size() = %d, want clamped MinViewSize %d", v.Size(), MinViewSize)
	}
}

func TestViewHeadCount(t *testing.T) {
	v := NewView(uuid.New(), "local:9000", 8, manyPeers(8, "seed"))
	head := v.Head(8)
	if len(head) != 3 { // 8/2-1 = 3
		t.Fatalf("Head(8) len = %d, want 3", len(head))
	}
}
