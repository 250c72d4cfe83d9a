// Package memstore is an in-memory store.Port fake used by gossip core
// tests (spec §8): a real implementation would back onto redisstore, but
// the anti-entropy and convergence tests only need correct LWW and cursor
// bookkeeping, not persistence or a network round trip.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/HyperbaseApp/hyperbase/pkg/store"
)

type rowKey struct {
	table store.Table
	id    uuid.UUID
}

// Store is an in-memory, mutex-guarded store.Port implementation.
type Store struct {
	mu sync.Mutex

	localInfo   *store.LocalInfo
	changeLogs  map[rowKey]store.ChangeLog
	remoteSyncs map[uuid.UUID]store.RemoteSync
	bodies      map[rowKey][]byte
}

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{
		changeLogs:  make(map[rowKey]store.ChangeLog),
		remoteSyncs: make(map[uuid.UUID]store.RemoteSync),
		bodies:      make(map[rowKey][]byte),
	}
}

func (s *Store) LocalInfoGetOrCreate(ctx context.Context) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.localInfo == nil {
		info := store.LocalInfo{ID: uuid.New()}
		s.localInfo = &info
	}
	return s.localInfo.ID, nil
}

func (s *Store) ChangeLogUpsert(ctx context.Context, row store.ChangeLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changeLogs[rowKey{row.Table, row.ID}] = row
	return nil
}

func (s *Store) ChangeLogGet(ctx context.Context, table store.Table, id uuid.UUID) (store.ChangeLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.changeLogs[rowKey{table, id}]
	if !ok {
		return store.ChangeLog{}, store.ErrNotFound
	}
	return row, nil
}

func (s *Store) ChangeLogAfter(ctx context.Context, fromTime store.ChangeLog, limit int) ([]store.ChangeLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]store.ChangeLog, 0, len(s.changeLogs))
	for _, row := range s.changeLogs {
		if row.After(fromTime) {
			all = append(all, row)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[j].After(all[i])
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) ChangeLogLast(ctx context.Context, table store.Table) (store.ChangeLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last store.ChangeLog
	found := false
	for _, row := range s.changeLogs {
		if row.Table != table {
			continue
		}
		if !found || row.After(last) {
			last = row
			found = true
		}
	}
	if !found {
		return store.ChangeLog{}, store.ErrNotFound
	}
	return last, nil
}

func (s *Store) RemoteSyncUpsert(ctx context.Context, row store.RemoteSync) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteSyncs[row.RemoteID] = row
	return nil
}

func (s *Store) RemoteSyncInsertOrIgnore(ctx context.Context, row store.RemoteSync) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.remoteSyncs[row.RemoteID]; exists {
		return nil
	}
	s.remoteSyncs[row.RemoteID] = row
	return nil
}

func (s *Store) RemoteSyncGet(ctx context.Context, remoteID uuid.UUID) (store.RemoteSync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.remoteSyncs[remoteID]
	if !ok {
		return store.RemoteSync{}, store.ErrNotFound
	}
	return row, nil
}

func (s *Store) RemoteSyncListByAddress(ctx context.Context, addr string) ([]store.RemoteSync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.RemoteSync
	for _, row := range s.remoteSyncs {
		if row.RemoteAddress == addr {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *Store) RemoteSyncAny(ctx context.Context) (store.RemoteSync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.remoteSyncs {
		return row, nil
	}
	return store.RemoteSync{}, store.ErrNotFound
}

func (s *Store) Domain(table store.Table) store.DomainStore {
	return &domainStore{store: s, table: table}
}

type domainStore struct {
	store *Store
	table store.Table
}

func (d *domainStore) Select(ctx context.Context, id uuid.UUID) ([]byte, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	body, ok := d.store.bodies[rowKey{d.table, id}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return body, nil
}

func (d *domainStore) Insert(ctx context.Context, body []byte) error {
	return d.put(body)
}

func (d *domainStore) Upsert(ctx context.Context, body []byte) error {
	return d.put(body)
}

func (d *domainStore) UpdateRaw(ctx context.Context, body []byte) error {
	return d.put(body)
}

func (d *domainStore) Delete(ctx context.Context, id uuid.UUID) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	delete(d.store.bodies, rowKey{d.table, id})
	return nil
}

// put stores body keyed by the id encoded at the front of body by the
// tests that use this fake (see the antientropy and bootstrap package
// tests): the real domain stores
// parse a structured row to find its primary key, but the fake has no
// schema to parse, so tests pass a 16-byte UUID prefix followed by the
// payload.
func (d *domainStore) put(body []byte) error {
	if len(body) < 16 {
		return store.ErrNotFound
	}
	var id uuid.UUID
	copy(id[:], body[:16])
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	d.store.bodies[rowKey{d.table, id}] = body
	return nil
}
