package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/HyperbaseApp/hyperbase/pkg/store"
)

func TestChangeLogUpsertAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	table := store.NewTable(store.TableProject)
	id := uuid.New()
	row := store.NewChangeLog(table, id, store.ChangeUpsert, time.Now())

	if err := s.ChangeLogUpsert(ctx, row); err != nil {
		t.Fatalf("ChangeLogUpsert: %v", err)
	}

	got, err := s.ChangeLogGet(ctx, table, id)
	if err != nil {
		t.Fatalf("ChangeLogGet: %v", err)
	}
	if got != row {
		t.Fatalf("ChangeLogGet = %+v, want %+v", got, row)
	}
}

func TestChangeLogGetMissingReturnsNotFound(t *testing.T) {
	s := New()
	if _, err := s.ChangeLogGet(context.Background(), store.NewTable(store.TableAdmin), uuid.New()); err != store.ErrNotFound {
		t.Fatalf("ChangeLogGet error = %v, want ErrNotFound", err)
	}
}

func TestChangeLogAfterOrdersAscending(t *testing.T) {
	s := New()
	ctx := context.Background()
	table := store.NewTable(store.TableProject)

	base := time.Now()
	var rows []store.ChangeLog
	for i := 0; i < 5; i++ {
		row := store.NewChangeLog(table, uuid.New(), store.ChangeUpsert, base.Add(time.Duration(i)*time.Second))
		rows = append(rows, row)
		if err := s.ChangeLogUpsert(ctx, row); err != nil {
			t.Fatalf("ChangeLogUpsert: %v", err)
		}
	}

	got, err := s.ChangeLogAfter(ctx, store.ChangeLog{}, 10)
	if err != nil {
		t.Fatalf("ChangeLogAfter: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("ChangeLogAfter returned %d rows, want %d", len(got), len(rows))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Fatalf("ChangeLogAfter rows not ascending at index %d", i)
		}
	}
}

func TestRemoteSyncInsertOrIgnoreIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	remoteID := uuid.New()

	first := store.NewRemoteSync(remoteID, "10.0.0.1:9000")
	if err := s.RemoteSyncInsertOrIgnore(ctx, first); err != nil {
		t.Fatalf("RemoteSyncInsertOrIgnore: %v", err)
	}

	second := first
	second.LastDataSync = time.Now()
	if err := s.RemoteSyncInsertOrIgnore(ctx, second); err != nil {
		t.Fatalf("RemoteSyncInsertOrIgnore: %v", err)
	}

	got, err := s.RemoteSyncGet(ctx, remoteID)
	if err != nil {
		t.Fatalf("RemoteSyncGet: %v", err)
	}
	if !got.LastDataSync.Equal(first.LastDataSync) {
		t.Fatalf("RemoteSyncInsertOrIgnore overwrote an existing row")
	}
}
