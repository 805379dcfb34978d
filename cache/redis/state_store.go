// Package redis stores SSO states in Redis so that several server instances
// can share them.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/exam-sso/domain"
	"github.com/redis/go-redis/v9"
)

const (
	fieldProvider    = "provider"
	fieldRedirectURI = "redirect_uri"
	fieldCreatedAt   = "created_at"
	fieldExpiresAt   = "expires_at"
	fieldUsedAt      = "used_at"
)

// markUsed sets used_at only on a live key. HSETNX alone would recreate an
// expired key without a TTL.
var markUsed = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
return redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2])
`)

// StateStore implements domain.SSOStateRepository on Redis hashes. Keys expire
// after the state TTL plus a grace period, so a late callback is reported as
// expired rather than unknown.
type StateStore struct {
	client redis.UniversalClient
	prefix string
	grace  time.Duration
}

var _ domain.SSOStateRepository = (*StateStore)(nil)

// NewStateStore creates a StateStore. prefix namespaces the keys.
func NewStateStore(client redis.UniversalClient, prefix string, grace time.Duration) *StateStore {
	return &StateStore{
		client: client,
		prefix: prefix,
		grace:  grace,
	}
}

func (s *StateStore) redisKey(state string) string {
	return fmt.Sprintf("%s:sso_state:%s", s.prefix, state)
}

// Save stores a new state. It claims the key with HSETNX first so a colliding
// state value is rejected instead of overwritten.
func (s *StateStore) Save(ctx context.Context, state *domain.SSOState) error {
	key := s.redisKey(state.State)

	created, err := s.client.HSetNX(ctx, key, fieldProvider, state.Provider).Result()
	if err != nil {
		return fmt.Errorf("failed to store sso state: %w", err)
	}
	if !created {
		return domain.ErrAlreadyExists
	}

	ttl := time.Until(state.ExpiresAt) + s.grace
	if ttl <= 0 {
		ttl = s.grace
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldRedirectURI, state.RedirectURI,
			fieldCreatedAt, state.CreatedAt.UTC().Format(time.RFC3339Nano),
			fieldExpiresAt, state.ExpiresAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, ttl)

		return nil
	})
	if err != nil {
		_ = s.client.Del(context.WithoutCancel(ctx), key).Err()
		return fmt.Errorf("failed to store sso state: %w", err)
	}

	return nil
}

func (s *StateStore) Get(ctx context.Context, state string) (*domain.SSOState, error) {
	res, err := s.client.HGetAll(ctx, s.redisKey(state)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sso state: %w", err)
	}
	if len(res) == 0 {
		return nil, domain.ErrNotFound
	}

	stored := &domain.SSOState{
		State:       state,
		Provider:    res[fieldProvider],
		RedirectURI: res[fieldRedirectURI],
	}
	if stored.CreatedAt, err = parseTime(res[fieldCreatedAt]); err != nil {
		return nil, err
	}
	if stored.ExpiresAt, err = parseTime(res[fieldExpiresAt]); err != nil {
		return nil, err
	}
	if raw, ok := res[fieldUsedAt]; ok {
		usedAt, err := parseTime(raw)
		if err != nil {
			return nil, err
		}
		stored.UsedAt = &usedAt
	}

	return stored, nil
}

// MarkUsed flips the state to used exactly once across all instances.
func (s *StateStore) MarkUsed(ctx context.Context, state string, at time.Time) error {
	res, err := markUsed.Run(ctx, s.client,
		[]string{s.redisKey(state)},
		fieldUsedAt, at.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to mark sso state used: %w", err)
	}

	switch res {
	case -1:
		return domain.ErrNotFound
	case 0:
		return domain.ErrPreconditionFailed
	default:
		return nil
	}
}

// Ping checks the connection. Used by the readiness probe.
func (s *StateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var errMalformedState = errors.New("malformed sso state record")

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", errMalformedState, err)
	}

	return t, nil
}
