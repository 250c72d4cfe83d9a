// Package store defines the narrow persistence interface the gossip core
// requires from its host, along with the row types the anti-entropy engine
// reads and writes. See Port for the contract; see the redisstore and
// memstore subpackages for concrete implementations.
package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Table identifies which domain table a ChangeLog row or ContentChange
// refers to. Record and File tags carry a secondary id (their owning
// collection or bucket) because those tables are themselves partitioned
// per collection/bucket in the host's schema.
type Table struct {
	Kind   TableKind
	Parent uuid.UUID // CollectionID for Record, BucketID for File; zero otherwise
}

// TableKind enumerates the domain tables the change log can reference.
type TableKind int

const (
	TableAdmin TableKind = iota
	TableProject
	TableCollection
	TableRecord
	TableBucket
	TableFile
	TableToken
	TableCollectionRule
	TableBucketRule
)

func (k TableKind) String() string {
	switch k {
	case TableAdmin:
		return "admin"
	case TableProject:
		return "project"
	case TableCollection:
		return "collection"
	case TableRecord:
		return "record"
	case TableBucket:
		return "bucket"
	case TableFile:
		return "file"
	case TableToken:
		return "token"
	case TableCollectionRule:
		return "collection_rule"
	case TableBucketRule:
		return "bucket_rule"
	default:
		return "unknown"
	}
}

// NewRecordTable builds a Table tag for a record row belonging to collectionID.
func NewRecordTable(collectionID uuid.UUID) Table {
	return Table{Kind: TableRecord, Parent: collectionID}
}

// NewFileTable builds a Table tag for a file row belonging to bucketID.
func NewFileTable(bucketID uuid.UUID) Table {
	return Table{Kind: TableFile, Parent: bucketID}
}

// NewTable builds a Table tag for a table without a secondary identifier.
func NewTable(kind TableKind) Table {
	return Table{Kind: kind}
}

// Key returns a string uniquely identifying the table, suitable as a map or
// storage key component: "record_<collectionID>" / "file_<bucketID>" /
// "<kind>" for everything else, mirroring the original schema's table-name
// convention (original_source/dao/src/change.rs ChangeTable::to_string).
func (t Table) Key() string {
	switch t.Kind {
	case TableRecord:
		return fmt.Sprintf("record_%s", t.Parent)
	case TableFile:
		return fmt.Sprintf("file_%s", t.Parent)
	default:
		return t.Kind.String()
	}
}

// ChangeState is the kind of mutation a ChangeLog row records.
type ChangeState int

const (
	ChangeInsert ChangeState = iota
	ChangeUpsert
	ChangeUpdate
	ChangeDelete
)

func (s ChangeState) String() string {
	switch s {
	case ChangeInsert:
		return "insert"
	case ChangeUpsert:
		return "upsert"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ChangeLog is the per-row mutation journal entry described in spec §3.
// (Table, ID) is the primary key; only the most recent (State, Timestamp,
// ChangeID) is retained for a given key.
type ChangeLog struct {
	Table     Table
	ID        uuid.UUID
	State     ChangeState
	Timestamp time.Time
	ChangeID  uuid.UUID
}

// NewChangeLog builds a ChangeLog row for a fresh local mutation, stamping
// it with a monotonic time-ordered change id (UUIDv7) as spec §9 requires.
func NewChangeLog(table Table, id uuid.UUID, state ChangeState, at time.Time) ChangeLog {
	changeID, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the OS entropy source is broken; there is
		// no sane fallback that still yields a time-ordered id.
		panic(fmt.Sprintf("store: failed to generate change id: %v", err))
	}
	return ChangeLog{
		Table:     table,
		ID:        id,
		State:     state,
		Timestamp: at,
		ChangeID:  changeID,
	}
}

// After reports whether c is newer than other under the (timestamp,
// change_id) lexicographic last-writer-wins rule (spec §4.6, §8).
func (c ChangeLog) After(other ChangeLog) bool {
	if !c.Timestamp.Equal(other.Timestamp) {
		return c.Timestamp.After(other.Timestamp)
	}
	return changeIDLess(other.ChangeID, c.ChangeID)
}

// AtOrAfter reports whether c is the same as or newer than other under the
// LWW rule, the relation spec §8's idempotent-apply invariant is stated in.
func (c ChangeLog) AtOrAfter(other ChangeLog) bool {
	return c == other || c.After(other)
}

func changeIDLess(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// ContentChange is the over-the-wire payload carrying a change-log entry
// plus the optional serialized domain row body (spec §3).
type ContentChange struct {
	Table     Table
	ID        uuid.UUID
	State     ChangeState
	Timestamp time.Time
	ChangeID  uuid.UUID
	Body      []byte // nil unless the (state, table) pair requires a body
}

// ChangeLog extracts the bookkeeping fields of a ContentChange as a
// ChangeLog row, discarding the body.
func (c ContentChange) ChangeLog() ChangeLog {
	return ChangeLog{
		Table:     c.Table,
		ID:        c.ID,
		State:     c.State,
		Timestamp: c.Timestamp,
		ChangeID:  c.ChangeID,
	}
}

// RemoteSync is the per-peer replication cursor described in spec §3: the
// point up to which the local node has successfully ingested changes
// originating from (or relayed through) RemoteID/RemoteAddress.
type RemoteSync struct {
	RemoteID      uuid.UUID
	RemoteAddress string
	LastDataSync  time.Time
	LastChangeID  uuid.UUID
}

// NewRemoteSync builds the zero-cursor RemoteSync row seeded the first time
// a peer is discovered (spec §4.5 step 2): LastDataSync is epoch+1ms so a
// strict "after" comparison against epoch-zero change log rows still holds,
// and LastChangeID is the nil UUID.
func NewRemoteSync(remoteID uuid.UUID, remoteAddress string) RemoteSync {
	return RemoteSync{
		RemoteID:      remoteID,
		RemoteAddress: remoteAddress,
		LastDataSync:  time.UnixMilli(1),
		LastChangeID:  uuid.Nil,
	}
}

// LocalInfo is the single row carrying this node's stable identity (spec §3).
type LocalInfo struct {
	ID uuid.UUID
}
