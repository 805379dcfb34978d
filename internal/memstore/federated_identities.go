package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/exam-sso/domain"
)

// FederatedIdentityStore is an in-memory domain.FederatedIdentityRepository.
type FederatedIdentityStore struct {
	mu         sync.RWMutex
	identities map[string]*domain.UserFederatedIdentity
}

var _ domain.FederatedIdentityRepository = (*FederatedIdentityStore)(nil)

func NewFederatedIdentityStore() *FederatedIdentityStore {
	return &FederatedIdentityStore{identities: make(map[string]*domain.UserFederatedIdentity)}
}

func identityKey(provider, providerUserID string) string {
	return provider + "\x00" + providerUserID
}

func (s *FederatedIdentityStore) GetByProviderUserID(_ context.Context, provider, providerUserID string) (*domain.UserFederatedIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[identityKey(provider, providerUserID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *identity

	return &c, nil
}

func (s *FederatedIdentityStore) Create(_ context.Context, identity *domain.UserFederatedIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identityKey(identity.Provider, identity.ProviderUserID)
	if _, exists := s.identities[key]; exists {
		return domain.ErrAlreadyExists
	}
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}
	c := *identity
	s.identities[key] = &c

	return nil
}
