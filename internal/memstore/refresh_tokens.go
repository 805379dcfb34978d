package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/pilab-dev/exam-sso/domain"
)

// RefreshTokenStore is an in-memory domain.RefreshTokenRepository. Rotate
// evaluates its precondition and applies both writes under one lock, which is
// the single-process form of the conditional update the persistent stores use.
type RefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

var _ domain.RefreshTokenRepository = (*RefreshTokenStore)(nil)

// NewRefreshTokenStore creates an empty RefreshTokenStore.
func NewRefreshTokenStore() *RefreshTokenStore {
	return &RefreshTokenStore{tokens: make(map[string]*domain.RefreshToken)}
}

// Len returns the number of stored token records.
func (s *RefreshTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tokens)
}

func (s *RefreshTokenStore) Create(_ context.Context, token *domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.Hash]; exists {
		return domain.ErrAlreadyExists
	}
	s.tokens[token.Hash] = cloneToken(token)

	return nil
}

func (s *RefreshTokenStore) GetByHash(_ context.Context, hash string) (*domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return cloneToken(token), nil
}

func (s *RefreshTokenStore) Rotate(_ context.Context, oldHash string, next *domain.RefreshToken, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tokens[oldHash]
	if !ok || current.Used || current.Revoked {
		return domain.ErrPreconditionFailed
	}
	if _, exists := s.tokens[next.Hash]; exists {
		return domain.ErrAlreadyExists
	}

	current.Used = true
	current.UsedAt = &usedAt
	current.ReplacedBy = next.Hash
	s.tokens[next.Hash] = cloneToken(next)

	return nil
}

func (s *RefreshTokenStore) RevokeChain(_ context.Context, chainID, reason string, at time.Time) (int64, error) {
	return s.revokeWhere(func(t *domain.RefreshToken) bool { return t.ChainID == chainID }, reason, at), nil
}

func (s *RefreshTokenStore) RevokeUser(_ context.Context, userID int64, reason string, at time.Time) (int64, error) {
	return s.revokeWhere(func(t *domain.RefreshToken) bool { return t.UserID == userID }, reason, at), nil
}

func (s *RefreshTokenStore) revokeWhere(match func(*domain.RefreshToken) bool, reason string, at time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, t := range s.tokens {
		if t.Revoked || !match(t) {
			continue
		}
		t.Revoked = true
		t.RevokedAt = &at
		t.RevokeReason = reason
		n++
	}

	return n
}

func (s *RefreshTokenStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, t := range s.tokens {
		if t.ChainExpiresAt.Before(cutoff) {
			delete(s.tokens, hash)
			n++
		}
	}

	return n, nil
}

func cloneToken(t *domain.RefreshToken) *domain.RefreshToken {
	c := *t
	if t.UsedAt != nil {
		u := *t.UsedAt
		c.UsedAt = &u
	}
	if t.RevokedAt != nil {
		r := *t.RevokedAt
		c.RevokedAt = &r
	}

	return &c
}
