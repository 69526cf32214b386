package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pilab-dev/shadow-auth/domain"
)

// MemoryChallengeStore implements ChallengeStore using ttlcache.
type MemoryChallengeStore struct {
	cache *ttlcache.Cache[string, *domain.Challenge]
	now   func() time.Time
}

// NewMemoryChallengeStore creates a new in-memory challenge store with automatic cleanup.
// defaultTTL applies to entries whose ExpiresAt is not set.
func NewMemoryChallengeStore(defaultTTL time.Duration) *MemoryChallengeStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *domain.Challenge](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, *domain.Challenge](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryChallengeStore{
		cache: cache,
		now:   time.Now,
	}
}

// Put implements ChallengeStore.Put.
func (s *MemoryChallengeStore) Put(_ context.Context, entry *domain.Challenge) error {
	ttl := ttlcache.DefaultTTL
	if !entry.ExpiresAt.IsZero() {
		ttl = entry.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return nil
		}
	}
	s.cache.Set(entry.ID, entry, ttl)
	return nil
}

// Take implements ChallengeStore.Take.
func (s *MemoryChallengeStore) Take(_ context.Context, id string) (*domain.Challenge, bool, error) {
	item, ok := s.cache.GetAndDelete(id)
	if !ok || item == nil {
		return nil, false, nil
	}
	// The sweeper may not have run yet.
	if item.IsExpired() {
		return nil, false, nil
	}
	entry := item.Value()
	if entry.Expired(s.now()) {
		return nil, false, nil
	}
	return entry, true, nil
}

// Count counts the number of pending challenges in the cache.
func (s *MemoryChallengeStore) Count(_ context.Context) int {
	return s.cache.Len()
}

// Close stops the cleanup goroutine.
func (s *MemoryChallengeStore) Close() error {
	s.cache.Stop()

	return nil
}

var _ ChallengeStore = (*MemoryChallengeStore)(nil)
