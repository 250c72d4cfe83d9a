package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Port lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// Port is the narrow interface the gossip core requires from the host's
// persistent store (spec §6). Every operation is async (ctx-bound) and may
// fail; the caller is responsible for the error handling described in
// spec §7 (transient/storage errors are logged and the operation is
// retried on the next round; the cursor is not advanced on failure).
type Port interface {
	// LocalInfoGetOrCreate returns this node's stable id, creating and
	// persisting a fresh LocalInfo row on first boot.
	LocalInfoGetOrCreate(ctx context.Context) (uuid.UUID, error)

	// ChangeLogUpsert inserts or overwrites the change-log row for
	// row.Table/row.ID in a single atomic per-row write.
	ChangeLogUpsert(ctx context.Context, row ChangeLog) error
	// ChangeLogGet returns the current change-log row for (table, id), or
	// ErrNotFound if none exists.
	ChangeLogGet(ctx context.Context, table Table, id uuid.UUID) (ChangeLog, error)
	// ChangeLogAfter returns up to limit change-log rows strictly after
	// (fromTime, fromChangeID) in (timestamp, change_id) ascending order.
	ChangeLogAfter(ctx context.Context, fromTime ChangeLog, limit int) ([]ChangeLog, error)
	// ChangeLogLast returns the most recently changed row for a table (its
	// kind and, for Record/File, its parent id), used by diagnostics/tests,
	// not by the core's hot path.
	ChangeLogLast(ctx context.Context, table Table) (ChangeLog, error)

	// RemoteSyncUpsert overwrites the RemoteSync row for row.RemoteID.
	RemoteSyncUpsert(ctx context.Context, row RemoteSync) error
	// RemoteSyncInsertOrIgnore inserts row only if no RemoteSync row exists
	// for row.RemoteID yet (spec §4.5 step 2).
	RemoteSyncInsertOrIgnore(ctx context.Context, row RemoteSync) error
	// RemoteSyncGet returns the RemoteSync row for remoteID, or
	// ErrNotFound if none exists.
	RemoteSyncGet(ctx context.Context, remoteID uuid.UUID) (RemoteSync, error)
	// RemoteSyncListByAddress returns every RemoteSync row recorded under
	// the given socket address (a peer's id can change across restarts of
	// the same address, so this may return more than one row).
	RemoteSyncListByAddress(ctx context.Context, addr string) ([]RemoteSync, error)
	// RemoteSyncAny returns an arbitrary RemoteSync row, used by the
	// broadcast API to find a peer that has completed at least one
	// handshake. Returns ErrNotFound if the store has no RemoteSync rows.
	RemoteSyncAny(ctx context.Context) (RemoteSync, error)

	// Domain returns the row-level accessor for the given table kind, used
	// by the anti-entropy engine to build and apply ContentChange payloads
	// (spec §4.6). Record and File tables are parameterized by the
	// secondary id carried in the Table tag.
	Domain(table Table) DomainStore
}

// DomainStore is the per-table CRUD surface the anti-entropy engine drives
// when reconstructing or applying a ContentChange (spec §4.6, §6). A single
// Port implementation provides one DomainStore per Table.Kind; Record and
// File stores are additionally scoped to the collection/bucket id carried
// in the Table the caller passed to Port.Domain.
type DomainStore interface {
	// Select returns the serialized bytes of the current row for id.
	Select(ctx context.Context, id uuid.UUID) ([]byte, error)
	// Insert creates a new row from a serialized body (ChangeInsert).
	Insert(ctx context.Context, body []byte) error
	// Upsert creates or overwrites a row from a serialized body
	// (ChangeUpsert). For record/file tables this is a delete-then-insert
	// by primary key, per spec §4.6.
	Upsert(ctx context.Context, body []byte) error
	// UpdateRaw applies a raw update of mutable fields from a serialized
	// body (ChangeUpdate, collection table only per spec §4.6).
	UpdateRaw(ctx context.Context, body []byte) error
	// Delete removes the row with the given id (ChangeDelete). For file
	// tables the blob is also removed.
	Delete(ctx context.Context, id uuid.UUID) error
}
