package antientropy

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/HyperbaseApp/hyperbase/pkg/gossip/peer"
	"github.com/HyperbaseApp/hyperbase/pkg/store"
	"github.com/HyperbaseApp/hyperbase/pkg/store/memstore"
)

func newTestService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	view := peer.NewShared(peer.NewView(uuid.New(), "local:9000", 6, nil))
	return New("local:9000", DefaultConfig(), st, view), st
}

func projectChange(id uuid.UUID, state store.ChangeState, at time.Time, body []byte) store.ContentChange {
	changeID, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return store.ContentChange{
		Table:     store.NewTable(store.TableProject),
		ID:        id,
		State:     state,
		Timestamp: at,
		ChangeID:  changeID,
		Body:      body,
	}
}

func TestApplyLWW(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	id := uuid.New()
	base := time.Now()

	older := projectChange(id, store.ChangeUpsert, base, append(id[:], []byte("old")...))
	applied, err := svc.applyIfNewer(ctx, older)
	if err != nil {
		t.Fatalf("applyIfNewer(older): %v", err)
	}
	if !applied {
		t.Fatal("applyIfNewer(older) = false, want true (no local row yet)")
	}

	staler := projectChange(id, store.ChangeUpsert, base.Add(-time.Second), append(id[:], []byte("staler")...))
	applied, err = svc.applyIfNewer(ctx, staler)
	if err != nil {
		t.Fatalf("applyIfNewer(staler): %v", err)
	}
	if applied {
		t.Fatal("applyIfNewer(staler) = true, want false (older than local)")
	}

	newer := projectChange(id, store.ChangeUpsert, base.Add(time.Second), append(id[:], []byte("new")...))
	applied, err = svc.applyIfNewer(ctx, newer)
	if err != nil {
		t.Fatalf("applyIfNewer(newer): %v", err)
	}
	if !applied {
		t.Fatal("applyIfNewer(newer) = false, want true (newer than local)")
	}

	got, err := st.ChangeLogGet(ctx, store.NewTable(store.TableProject), id)
	if err != nil {
		t.Fatalf("ChangeLogGet: %v", err)
	}
	if got.ChangeID != newer.ChangeID {
		t.Fatalf("local change log = %s, want newest change %s", got.ChangeID, newer.ChangeID)
	}

	body, err := st.Domain(store.NewTable(store.TableProject)).Select(ctx, id)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !bytes.Equal(body, newer.Body) {
		t.Fatalf("stored body = %q, want %q", body, newer.Body)
	}
}

func TestApplyIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := uuid.New()

	change := projectChange(id, store.ChangeUpsert, time.Now(), append(id[:], []byte("payload")...))

	applied, err := svc.applyIfNewer(ctx, change)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if !applied {
		t.Fatal("first apply = false, want true")
	}

	applied, err = svc.applyIfNewer(ctx, change)
	if err != nil {
		t.Fatalf("re-apply of identical change: %v", err)
	}
	if applied {
		t.Fatal("re-apply of identical change = true, want false (AtOrAfter but not After)")
	}
}
