package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"nullbr-search-service/internal/model"
)

// DefaultSessionTTL is how long a listing stays selectable
const DefaultSessionTTL = time.Hour

// sweepEvery is the number of writes between opportunistic sweeps
const sweepEvery = 64

// SessionStore keeps the per-user search and resource listings.
// Get* return ok=false when nothing is stored or the entry is older than the TTL.
type SessionStore interface {
	PutSearch(ctx context.Context, user string, hits []model.SearchHit, keyword string) error
	GetSearch(ctx context.Context, user string) (*model.SearchCacheEntry, bool, error)
	PutResource(ctx context.Context, user string, items []model.ResourceItem, title string, rt model.ResourceType) error
	GetResource(ctx context.Context, user string) (*model.ResourceCacheEntry, bool, error)
	Clear(ctx context.Context, user string) error
}

// MemorySessionStore is a process-local SessionStore.
// Entries are immutable once stored; a write swaps the pointer.
type MemorySessionStore struct {
	ttl time.Duration
	now func() time.Time

	search   sync.Map // user -> *model.SearchCacheEntry
	resource sync.Map // user -> *model.ResourceCacheEntry
	writes   atomic.Int64
}

// NewMemorySessionStore creates a new MemorySessionStore
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemorySessionStore{ttl: ttl, now: time.Now}
}

// SetClock replaces the time source
func (s *MemorySessionStore) SetClock(now func() time.Time) {
	s.now = now
}

// PutSearch replaces the search listing of user
func (s *MemorySessionStore) PutSearch(_ context.Context, user string, hits []model.SearchHit, keyword string) error {
	s.search.Store(user, &model.SearchCacheEntry{
		Hits:      truncate(hits),
		Keyword:   keyword,
		CreatedAt: s.now(),
	})
	s.afterWrite()
	return nil
}

// GetSearch returns the live search listing of user
func (s *MemorySessionStore) GetSearch(_ context.Context, user string) (*model.SearchCacheEntry, bool, error) {
	v, ok := s.search.Load(user)
	if !ok {
		return nil, false, nil
	}
	entry := v.(*model.SearchCacheEntry)
	if !model.Live(entry.CreatedAt, s.now(), s.ttl) {
		return nil, false, nil
	}
	return entry, true, nil
}

// PutResource replaces the resource listing of user
func (s *MemorySessionStore) PutResource(_ context.Context, user string, items []model.ResourceItem, title string, rt model.ResourceType) error {
	s.resource.Store(user, &model.ResourceCacheEntry{
		Items:     truncate(items),
		Title:     title,
		Type:      rt,
		CreatedAt: s.now(),
	})
	s.afterWrite()
	return nil
}

// GetResource returns the live resource listing of user
func (s *MemorySessionStore) GetResource(_ context.Context, user string) (*model.ResourceCacheEntry, bool, error) {
	v, ok := s.resource.Load(user)
	if !ok {
		return nil, false, nil
	}
	entry := v.(*model.ResourceCacheEntry)
	if !model.Live(entry.CreatedAt, s.now(), s.ttl) {
		return nil, false, nil
	}
	return entry, true, nil
}

// Clear drops both listings of user
func (s *MemorySessionStore) Clear(_ context.Context, user string) error {
	s.search.Delete(user)
	s.resource.Delete(user)
	return nil
}

func (s *MemorySessionStore) afterWrite() {
	if s.writes.Add(1)%sweepEvery == 0 {
		s.Sweep()
	}
}

// Sweep removes expired entries and returns how many were dropped
func (s *MemorySessionStore) Sweep() int {
	now := s.now()
	removed := 0
	s.search.Range(func(k, v interface{}) bool {
		if e := v.(*model.SearchCacheEntry); !model.Live(e.CreatedAt, now, s.ttl) {
			if s.search.CompareAndDelete(k, v) {
				removed++
			}
		}
		return true
	})
	s.resource.Range(func(k, v interface{}) bool {
		if e := v.(*model.ResourceCacheEntry); !model.Live(e.CreatedAt, now, s.ttl) {
			if s.resource.CompareAndDelete(k, v) {
				removed++
			}
		}
		return true
	})
	return removed
}

func truncate[T any](in []T) []T {
	if len(in) > model.MaxCachedEntries {
		in = in[:model.MaxCachedEntries]
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
