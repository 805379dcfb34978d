package oidcflow

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pilab-dev/exam-sso/domain"
)

// InMemoryStateStore keeps SSO states in a ttlcache. Items live for the state
// TTL plus a grace period, so a late callback can still be told apart as
// expired instead of unknown.
type InMemoryStateStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, domain.SSOState]
	grace time.Duration
}

var _ domain.SSOStateRepository = (*InMemoryStateStore)(nil)

// NewInMemoryStateStore creates the store and starts its eviction loop. Call
// Close to stop it.
func NewInMemoryStateStore(grace time.Duration) *InMemoryStateStore {
	cache := ttlcache.New[string, domain.SSOState](
		ttlcache.WithDisableTouchOnHit[string, domain.SSOState](),
	)
	go cache.Start()

	return &InMemoryStateStore{cache: cache, grace: grace}
}

// Save stores a new state.
func (s *InMemoryStateStore) Save(_ context.Context, state *domain.SSOState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.Has(state.State) {
		return domain.ErrAlreadyExists
	}

	ttl := time.Until(state.ExpiresAt) + s.grace
	if ttl <= 0 {
		ttl = s.grace
	}
	s.cache.Set(state.State, *state, ttl)

	return nil
}

// Get returns a copy of the stored state.
func (s *InMemoryStateStore) Get(_ context.Context, state string) (*domain.SSOState, error) {
	item := s.cache.Get(state)
	if item == nil {
		return nil, domain.ErrNotFound
	}
	value := item.Value()

	return &value, nil
}

// MarkUsed flips the state to used once.
func (s *InMemoryStateStore) MarkUsed(_ context.Context, state string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(state)
	if item == nil {
		return domain.ErrNotFound
	}

	value := item.Value()
	if value.UsedAt != nil {
		return domain.ErrPreconditionFailed
	}
	value.UsedAt = &at

	remaining := time.Until(item.ExpiresAt())
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	s.cache.Set(state, value, remaining)

	return nil
}

// Len returns the number of states held, including expired ones within grace.
func (s *InMemoryStateStore) Len() int {
	return s.cache.Len()
}

// Close stops the eviction loop.
func (s *InMemoryStateStore) Close() {
	s.cache.Stop()
}
