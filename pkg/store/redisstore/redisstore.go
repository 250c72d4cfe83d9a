// Package redisstore is the concrete store.Port backend for the gossip
// core, backed by Redis (or a Redis-protocol-compatible store such as
// Dragonfly). Adapted from the teacher's pkg/lighthouse/store.go: same
// Redis client options, same "JSON blob keyed by id plus a set/sorted-set
// index" layout, generalized from wgmesh's per-entity CRUD to the gossip
// core's narrow store.Port/DomainStore contract (spec §6 explicitly leaves
// the concrete backend unspecified; no SQL driver exists anywhere in this
// example corpus, so Redis — already the teacher's own replicated-store
// choice — is this repo's one concrete implementation).
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/HyperbaseApp/hyperbase/pkg/store"
)

const (
	keyLocalInfo = "hb:localinfo"

	keyPrefixChangeLog = "hb:changelog:"
	keyIndexChangeLog  = "hb:idx:changelog:all" // ZSET, score = timestamp unix nanos

	keyPrefixRemoteSync   = "hb:remotesync:"
	keyIndexRemoteSyncAll = "hb:idx:remotesync:all"   // SET of remote ids
	keyPrefixRemoteByAddr = "hb:idx:remotesync:addr:" // SET of remote ids per address

	keyPrefixDomain = "hb:domain:"
)

// Store is a store.Port backed by a Redis client.
type Store struct {
	rdb *redis.Client
}

// New connects to addr (Redis/Dragonfly) and returns a Store. db selects
// the logical database number, letting multiple Hyperbase components share
// one Redis instance the way the teacher's chimney/lighthouse split does.
func New(addr string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		DialTimeout:  2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisstore: connection to %s failed: %w", addr, err)
	}
	return &Store{rdb: rdb}, nil
}

// Close shuts down the underlying Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) LocalInfoGetOrCreate(ctx context.Context) (uuid.UUID, error) {
	existing, err := s.rdb.Get(ctx, keyLocalInfo).Result()
	if err == nil {
		id, err := uuid.Parse(existing)
		if err != nil {
			return uuid.Nil, fmt.Errorf("redisstore: parse local info id: %w", err)
		}
		return id, nil
	}
	if err != redis.Nil {
		return uuid.Nil, fmt.Errorf("redisstore: get local info: %w", err)
	}

	id := uuid.New()
	set, err := s.rdb.SetNX(ctx, keyLocalInfo, id.String(), 0).Result()
	if err != nil {
		return uuid.Nil, fmt.Errorf("redisstore: create local info: %w", err)
	}
	if !set {
		// Lost the race with a concurrent first-boot initializer; re-read.
		return s.LocalInfoGetOrCreate(ctx)
	}
	return id, nil
}

type changeLogRecord struct {
	TableKind store.TableKind
	Parent    uuid.UUID
	ID        uuid.UUID
	State     store.ChangeState
	Timestamp time.Time
	ChangeID  uuid.UUID
}

func toRecord(row store.ChangeLog) changeLogRecord {
	return changeLogRecord{
		TableKind: row.Table.Kind,
		Parent:    row.Table.Parent,
		ID:        row.ID,
		State:     row.State,
		Timestamp: row.Timestamp,
		ChangeID:  row.ChangeID,
	}
}

func (r changeLogRecord) toChangeLog() store.ChangeLog {
	return store.ChangeLog{
		Table:     store.Table{Kind: r.TableKind, Parent: r.Parent},
		ID:        r.ID,
		State:     r.State,
		Timestamp: r.Timestamp,
		ChangeID:  r.ChangeID,
	}
}

func changeLogKey(table store.Table, id uuid.UUID) string {
	return keyPrefixChangeLog + table.Key() + ":" + id.String()
}

func (s *Store) ChangeLogUpsert(ctx context.Context, row store.ChangeLog) error {
	data, err := json.Marshal(toRecord(row))
	if err != nil {
		return fmt.Errorf("redisstore: marshal change log row: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, changeLogKey(row.Table, row.ID), data, 0)
	pipe.ZAdd(ctx, keyIndexChangeLog, redis.Z{
		Score:  float64(row.Timestamp.UnixNano()),
		Member: changeLogKey(row.Table, row.ID),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: upsert change log row: %w", err)
	}
	return nil
}

func (s *Store) ChangeLogGet(ctx context.Context, table store.Table, id uuid.UUID) (store.ChangeLog, error) {
	data, err := s.rdb.Get(ctx, changeLogKey(table, id)).Bytes()
	if err == redis.Nil {
		return store.ChangeLog{}, store.ErrNotFound
	}
	if err != nil {
		return store.ChangeLog{}, fmt.Errorf("redisstore: get change log row: %w", err)
	}
	var record changeLogRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return store.ChangeLog{}, fmt.Errorf("redisstore: unmarshal change log row: %w", err)
	}
	return record.toChangeLog(), nil
}

// ChangeLogAfter returns up to limit rows strictly after fromTime's
// (timestamp, change_id) cursor, in ascending order. It scans the
// timestamp-ordered ZSET from fromTime's score onward, decodes candidates,
// and applies the exact lexicographic cursor comparison in Go, since Redis
// sorted sets can only score on the timestamp half of the cursor.
func (s *Store) ChangeLogAfter(ctx context.Context, fromTime store.ChangeLog, limit int) ([]store.ChangeLog, error) {
	members, err := s.rdb.ZRangeByScore(ctx, keyIndexChangeLog, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", fromTime.Timestamp.UnixNano()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: scan change log index: %w", err)
	}

	rows := make([]store.ChangeLog, 0, len(members))
	for _, key := range members {
		data, err := s.rdb.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue // evicted between the index scan and the read
		}
		if err != nil {
			return nil, fmt.Errorf("redisstore: get change log row %s: %w", key, err)
		}
		var record changeLogRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("redisstore: unmarshal change log row %s: %w", key, err)
		}
		row := record.toChangeLog()
		if row.After(fromTime) {
			rows = append(rows, row)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[j].After(rows[i])
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Store) ChangeLogLast(ctx context.Context, table store.Table) (store.ChangeLog, error) {
	members, err := s.rdb.ZRevRange(ctx, keyIndexChangeLog, 0, -1).Result()
	if err != nil {
		return store.ChangeLog{}, fmt.Errorf("redisstore: scan change log index: %w", err)
	}
	for _, key := range members {
		data, err := s.rdb.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return store.ChangeLog{}, fmt.Errorf("redisstore: get change log row %s: %w", key, err)
		}
		var record changeLogRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return store.ChangeLog{}, fmt.Errorf("redisstore: unmarshal change log row %s: %w", key, err)
		}
		if record.TableKind == table.Kind && record.Parent == table.Parent {
			return record.toChangeLog(), nil
		}
	}
	return store.ChangeLog{}, store.ErrNotFound
}

func (s *Store) RemoteSyncUpsert(ctx context.Context, row store.RemoteSync) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("redisstore: marshal remote sync row: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, keyPrefixRemoteSync+row.RemoteID.String(), data, 0)
	pipe.SAdd(ctx, keyIndexRemoteSyncAll, row.RemoteID.String())
	pipe.SAdd(ctx, keyPrefixRemoteByAddr+row.RemoteAddress, row.RemoteID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: upsert remote sync row: %w", err)
	}
	return nil
}

func (s *Store) RemoteSyncInsertOrIgnore(ctx context.Context, row store.RemoteSync) error {
	if _, err := s.RemoteSyncGet(ctx, row.RemoteID); err == nil {
		return nil
	} else if err != store.ErrNotFound {
		return err
	}
	return s.RemoteSyncUpsert(ctx, row)
}

func (s *Store) RemoteSyncGet(ctx context.Context, remoteID uuid.UUID) (store.RemoteSync, error) {
	data, err := s.rdb.Get(ctx, keyPrefixRemoteSync+remoteID.String()).Bytes()
	if err == redis.Nil {
		return store.RemoteSync{}, store.ErrNotFound
	}
	if err != nil {
		return store.RemoteSync{}, fmt.Errorf("redisstore: get remote sync row: %w", err)
	}
	var row store.RemoteSync
	if err := json.Unmarshal(data, &row); err != nil {
		return store.RemoteSync{}, fmt.Errorf("redisstore: unmarshal remote sync row: %w", err)
	}
	return row, nil
}

func (s *Store) RemoteSyncListByAddress(ctx context.Context, addr string) ([]store.RemoteSync, error) {
	ids, err := s.rdb.SMembers(ctx, keyPrefixRemoteByAddr+addr).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list remote sync ids by address: %w", err)
	}
	rows := make([]store.RemoteSync, 0, len(ids))
	for _, idStr := range ids {
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		row, err := s.RemoteSyncGet(ctx, id)
		if err != nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Store) RemoteSyncAny(ctx context.Context) (store.RemoteSync, error) {
	idStr, err := s.rdb.SRandMember(ctx, keyIndexRemoteSyncAll).Result()
	if err == redis.Nil {
		return store.RemoteSync{}, store.ErrNotFound
	}
	if err != nil {
		return store.RemoteSync{}, fmt.Errorf("redisstore: pick random remote sync id: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return store.RemoteSync{}, fmt.Errorf("redisstore: parse remote sync id: %w", err)
	}
	return s.RemoteSyncGet(ctx, id)
}

func (s *Store) Domain(table store.Table) store.DomainStore {
	return &domainStore{rdb: s.rdb, table: table}
}

type domainStore struct {
	rdb   *redis.Client
	table store.Table
}

func (d *domainStore) key(id uuid.UUID) string {
	return keyPrefixDomain + d.table.Key() + ":" + id.String()
}

// idFromBody extracts the primary key a caller encoded at the front of a
// serialized row, mirroring the original's convention of always knowing a
// row's id up front (spec §6 leaves row serialization entirely to the
// host; this backend's only requirement is that the first 16 bytes of a
// serialized body are the row's UUID primary key).
func idFromBody(body []byte) (uuid.UUID, error) {
	if len(body) < 16 {
		return uuid.Nil, fmt.Errorf("redisstore: body too short to contain a primary key")
	}
	var id uuid.UUID
	copy(id[:], body[:16])
	return id, nil
}

func (d *domainStore) Select(ctx context.Context, id uuid.UUID) ([]byte, error) {
	data, err := d.rdb.Get(ctx, d.key(id)).Bytes()
	if err == redis.Nil {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get domain row: %w", err)
	}
	return data, nil
}

func (d *domainStore) Insert(ctx context.Context, body []byte) error {
	id, err := idFromBody(body)
	if err != nil {
		return err
	}
	if err := d.rdb.Set(ctx, d.key(id), body, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: insert domain row: %w", err)
	}
	return nil
}

func (d *domainStore) Upsert(ctx context.Context, body []byte) error {
	id, err := idFromBody(body)
	if err != nil {
		return err
	}
	// Record/File upserts are a delete-then-insert by primary key (spec
	// §4.6); a plain Set already has that effect for a single-key blob.
	if err := d.rdb.Set(ctx, d.key(id), body, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: upsert domain row: %w", err)
	}
	return nil
}

func (d *domainStore) UpdateRaw(ctx context.Context, body []byte) error {
	id, err := idFromBody(body)
	if err != nil {
		return err
	}
	if err := d.rdb.Set(ctx, d.key(id), body, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: update domain row: %w", err)
	}
	return nil
}

func (d *domainStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := d.rdb.Del(ctx, d.key(id)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete domain row: %w", err)
	}
	return nil
}
