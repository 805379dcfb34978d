// Package memstore holds in-memory repository implementations used for local
// development and tests. Records are copied in and out so callers never share
// memory with the store.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pilab-dev/exam-sso/domain"
)

// UserStore is an in-memory domain.UserRepository.
type UserStore struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*domain.User
	byEmail map[string]int64
}

var _ domain.UserRepository = (*UserStore)(nil)

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[int64]*domain.User),
		byEmail: make(map[string]int64),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserStore) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return cloneUser(user), nil
}

func (s *UserStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return cloneUser(s.byID[id]), nil
}

func (s *UserStore) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(user.Email)
	if _, exists := s.byEmail[key]; exists {
		return domain.ErrAlreadyExists
	}

	s.nextID++
	user.ID = s.nextID
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}

	s.byID[user.ID] = cloneUser(user)
	s.byEmail[key] = user.ID

	return nil
}

func (s *UserStore) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	user.LastLoginAt = &at

	return nil
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Roles = append([]string(nil), u.Roles...)
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}

	return &c
}
