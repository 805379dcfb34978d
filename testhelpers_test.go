package examsso_test

import (
	"context"
	"sync"
	"testing"
	"time"

	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/domain"
	"github.com/pilab-dev/exam-sso/internal/memstore"
	"github.com/stretchr/testify/require"
)

// recordingSink collects audit events.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (s *recordingSink) Record(_ context.Context, event domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)

	return nil
}

func (s *recordingSink) Events() []domain.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.AuditEvent(nil), s.events...)
}

type fixture struct {
	users   *memstore.UserStore
	tokens  *memstore.RefreshTokenStore
	sink    *recordingSink
	issuer  *examsso.TokenService
	manager *examsso.RefreshTokenManager
	user    *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	signer := examsso.NewTokenSigner()
	signer.AddHMACKey("test", []byte("0123456789abcdef0123456789abcdef"))

	f := &fixture{
		users:  memstore.NewUserStore(),
		tokens: memstore.NewRefreshTokenStore(),
		sink:   &recordingSink{},
	}
	f.issuer = examsso.NewTokenService(signer, f.tokens, examsso.TokenServiceConfig{
		Issuer:             "https://sso.exam.test",
		Audience:           "exam-api",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    24 * time.Hour,
		SessionMaxLifetime: 72 * time.Hour,
	})
	f.manager = examsso.NewRefreshTokenManager(f.tokens, f.users, f.issuer, f.sink)

	f.user = &domain.User{
		Email:         "a@x.com",
		DisplayName:   "Alice",
		Roles:         []string{"student"},
		EmailVerified: true,
		Status:        domain.UserStatusActive,
	}
	require.NoError(t, f.users.CreateUser(context.Background(), f.user))

	return f
}
