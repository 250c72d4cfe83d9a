package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/HyperbaseApp/hyperbase/pkg/gossip/antientropy"
	"github.com/HyperbaseApp/hyperbase/pkg/gossip/peer"
	"github.com/HyperbaseApp/hyperbase/pkg/gossip/sampling"
	"github.com/HyperbaseApp/hyperbase/pkg/gossip/server"
	"github.com/HyperbaseApp/hyperbase/pkg/store"
	"github.com/HyperbaseApp/hyperbase/pkg/store/memstore"
)

// testNode wires the same components pkg/bootstrap.New wires, but against
// an in-memory store.Port on a loopback socket, so the test never touches
// Redis. Grounded on the teacher's pkg/daemon_test.go style of standing up
// a real listener on "127.0.0.1:0" rather than mocking the transport.
type testNode struct {
	address string
	store   *memstore.Store
	view    *peer.SharedView
	server  *server.Server

	sampling    *sampling.Service
	antientropy *antientropy.Service
}

func newTestNode(t *testing.T, bootstrapPeers []string) *testNode {
	t.Helper()

	// The listener must be bound before a View can be built, since the View
	// needs the real advertised address the kernel assigned on "127.0.0.1:0".
	r := &router{}
	srv, err := server.New(server.Config{Address: "127.0.0.1:0", Handler: r.Handle})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	address := srv.Addr()

	st := memstore.New()
	view := peer.NewShared(peer.NewView(uuid.New(), address, 6, peersFor(bootstrapPeers)))

	samplingCfg := sampling.DefaultConfig()
	samplingCfg.Period = 30 * time.Millisecond
	samplingCfg.PeriodDeviation = 10 * time.Millisecond

	antiEntropyCfg := antientropy.DefaultConfig()
	antiEntropyCfg.Period = 30 * time.Millisecond
	antiEntropyCfg.PeriodDeviation = 10 * time.Millisecond

	samplingSvc := sampling.New(address, samplingCfg, st, view)
	antiEntropySvc := antientropy.New(address, antiEntropyCfg, st, view)
	r.sampling = samplingSvc
	r.antientropy = antiEntropySvc

	return &testNode{
		address:     address,
		store:       st,
		view:        view,
		server:      srv,
		sampling:    samplingSvc,
		antientropy: antiEntropySvc,
	}
}

func peersFor(addrs []string) []peer.Peer {
	out := make([]peer.Peer, len(addrs))
	for i, a := range addrs {
		out[i] = peer.New(nil, a)
	}
	return out
}

func (n *testNode) run(ctx context.Context) {
	go n.server.Run(ctx)
	go n.sampling.Run(ctx)
	go n.antientropy.Run(ctx)
}

// TestTwoNodeConverge starts two nodes, each bootstrapped with the other's
// address, writes a row directly into node A's store, and asserts node B
// eventually learns it via anti-entropy (spec §4.4–§4.6 end to end: peer
// sampling discovers the peer, the anti-entropy pull loop then replicates
// the change).
func TestTwoNodeConverge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newTestNode(t, nil)
	b := newTestNode(t, []string{a.address})

	// Seed A's view with B too, so sampling can proceed in both directions
	// without relying on only one side's bootstrap list.
	a.view.With(func(v *peer.View) {
		v.Merge([]peer.Peer{peer.New(nil, b.address)}, 0, 0)
	})

	a.run(ctx)
	b.run(ctx)
	defer a.server.Stop()
	defer b.server.Stop()

	id := uuid.New()
	table := store.NewTable(store.TableProject)
	body := append(id[:], []byte("hello from A")...)
	if err := a.store.Domain(table).Insert(ctx, body); err != nil {
		t.Fatalf("seed insert on A: %v", err)
	}
	row := store.NewChangeLog(table, id, store.ChangeUpsert, time.Now())
	if err := a.store.ChangeLogUpsert(ctx, row); err != nil {
		t.Fatalf("seed change log on A: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := b.store.ChangeLogGet(ctx, table, id)
		if err == nil && got.ChangeID == row.ChangeID {
			gotBody, err := b.store.Domain(table).Select(ctx, id)
			if err != nil {
				t.Fatalf("select on B after convergence: %v", err)
			}
			if string(gotBody) != string(body) {
				t.Fatalf("converged body = %q, want %q", gotBody, body)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}

	t.Fatal("node B never converged on node A's change within the deadline")
}
