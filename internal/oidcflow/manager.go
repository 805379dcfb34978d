package oidcflow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/domain"
	"github.com/rs/zerolog/log"
)

// DefaultStateTTL is how long an SSO state may wait for its callback.
const DefaultStateTTL = 10 * time.Minute

// StateManager issues and consumes single-use SSO states.
type StateManager struct {
	store domain.SSOStateRepository
	ttl   time.Duration
	now   func() time.Time
}

// NewStateManager creates a StateManager. A non-positive ttl selects DefaultStateTTL.
func NewStateManager(store domain.SSOStateRepository, ttl time.Duration) *StateManager {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}

	return &StateManager{store: store, ttl: ttl, now: time.Now}
}

// IssueState creates and stores a new state bound to the provider and the
// redirect URI the user returns to after login.
func (m *StateManager) IssueState(ctx context.Context, provider, redirectURI string) (*domain.SSOState, error) {
	value, err := generateState()
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	state := &domain.SSOState{
		State:       value,
		Provider:    provider,
		RedirectURI: redirectURI,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}

	if err := m.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to store sso state: %w", err)
	}

	return state, nil
}

// Consume validates the state and marks it used. It succeeds exactly once per
// state; every later call fails with ErrStateAlreadyUsed. A state issued for
// another provider is reported as not found.
func (m *StateManager) Consume(ctx context.Context, provider, value string) (*domain.SSOState, error) {
	if value == "" {
		return nil, examsso.ErrStateNotFound
	}

	state, err := m.store.Get(ctx, value)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, examsso.ErrStateNotFound
		}

		return nil, fmt.Errorf("failed to load sso state: %w", err)
	}

	if state.Provider != provider {
		log.Warn().
			Str("provider", provider).
			Str("state_provider", state.Provider).
			Msg("sso state presented to a different provider callback")

		return nil, examsso.ErrStateNotFound
	}

	if state.UsedAt != nil {
		return nil, examsso.ErrStateAlreadyUsed
	}

	now := m.now().UTC()
	if state.IsExpired(now) {
		return nil, examsso.ErrStateExpired
	}

	if err := m.store.MarkUsed(ctx, value, now); err != nil {
		switch {
		case errors.Is(err, domain.ErrPreconditionFailed):
			return nil, examsso.ErrStateAlreadyUsed
		case errors.Is(err, domain.ErrNotFound):
			return nil, examsso.ErrStateNotFound
		default:
			return nil, fmt.Errorf("failed to consume sso state: %w", err)
		}
	}
	state.UsedAt = &now

	return state, nil
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate sso state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
