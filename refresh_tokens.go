package examsso

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/exam-sso/domain"
	"github.com/pilab-dev/exam-sso/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ActionRefreshTokenReuse is the audit action recorded when a consumed refresh
// token is presented again.
const ActionRefreshTokenReuse = "refresh_token.reuse_detected"

// RotationResult is the outcome of a successful rotation.
type RotationResult struct {
	Pair *TokenPair
	User *domain.User
}

// RefreshTokenManager owns the refresh token lifecycle after issuance:
// rotation with replay detection, and revocation.
type RefreshTokenManager struct {
	tokens domain.RefreshTokenRepository
	users  domain.UserRepository
	issuer *TokenService
	audit  domain.AuditSink
	now    func() time.Time
}

// NewRefreshTokenManager creates a new RefreshTokenManager.
func NewRefreshTokenManager(
	tokens domain.RefreshTokenRepository,
	users domain.UserRepository,
	issuer *TokenService,
	audit domain.AuditSink,
) *RefreshTokenManager {
	return &RefreshTokenManager{
		tokens: tokens,
		users:  users,
		issuer: issuer,
		audit:  audit,
		now:    time.Now,
	}
}

// Rotate exchanges a refresh token for a new access/refresh pair in the same
// chain. A token can be rotated once. Presenting it again is treated as theft:
// the whole chain is revoked, a high severity security event is recorded and
// ErrTokenReuseDetected is returned. A rotation either returns a complete pair
// or issues nothing.
func (m *RefreshTokenManager) Rotate(ctx context.Context, presented string) (*RotationResult, error) {
	if presented == "" {
		return nil, fmt.Errorf("%w: refresh_token is required", ErrInvalidRequest)
	}

	hash := HashToken(presented)

	current, err := m.tokens.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.RotationsTotal.WithLabelValues("not_found").Inc()
			return nil, ErrTokenNotFound
		}

		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}

	if err := m.checkUsable(ctx, current); err != nil {
		return nil, err
	}

	user, err := m.users.GetUserByID(ctx, current.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load token owner: %w", err)
	}
	if user == nil || !user.IsActive() {
		if _, err := m.tokens.RevokeChain(ctx, current.ChainID, domain.RevokeReasonAdmin, m.now().UTC()); err != nil {
			log.Error().Err(err).Str("chain_id", current.ChainID).Msg("failed to revoke chain of inactive account")
		}
		metrics.RotationsTotal.WithLabelValues("account_inactive").Inc()
		metrics.ChainsRevokedTotal.WithLabelValues(domain.RevokeReasonAdmin).Inc()

		return nil, ErrAccountInactive
	}

	// Signed before the rotation is committed so a signing failure leaves the
	// presented token usable.
	access, expiresAt, err := m.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	refresh, next, err := m.issuer.NextRefreshToken(current)
	if err != nil {
		return nil, err
	}

	if err := m.tokens.Rotate(ctx, hash, next, m.now().UTC()); err != nil {
		if !errors.Is(err, domain.ErrPreconditionFailed) {
			return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
		}

		// Lost the race. Re-read to tell a concurrent rotation from a concurrent logout.
		latest, getErr := m.tokens.GetByHash(ctx, hash)
		if getErr != nil {
			return nil, fmt.Errorf("failed to reload refresh token: %w", getErr)
		}
		if err := m.checkUsable(ctx, latest); err != nil {
			return nil, err
		}

		return nil, m.reuseDetected(ctx, latest)
	}

	metrics.RotationsTotal.WithLabelValues("success").Inc()
	metrics.RefreshTokensIssuedTotal.WithLabelValues("rotation").Inc()

	log.Debug().
		Int64("user_id", user.ID).
		Str("chain_id", current.ChainID).
		Str("token", TokenFingerprint(hash)).
		Msg("refresh token rotated")

	return &RotationResult{
		Pair: m.issuer.pair(access, expiresAt, refresh, current.ChainID),
		User: user,
	}, nil
}

// checkUsable rejects consumed, revoked and expired tokens. A consumed token is
// reported as reuse even if its chain has been revoked since, so every repeat
// presentation of a rotated token raises the same alarm.
func (m *RefreshTokenManager) checkUsable(ctx context.Context, token *domain.RefreshToken) error {
	if token.Used {
		return m.reuseDetected(ctx, token)
	}

	if token.Revoked || token.IsExpired(m.now()) {
		metrics.RotationsTotal.WithLabelValues("expired_or_revoked").Inc()
		return ErrTokenExpiredOrRevoked
	}

	return nil
}

func (m *RefreshTokenManager) reuseDetected(ctx context.Context, token *domain.RefreshToken) error {
	metrics.RotationsTotal.WithLabelValues("reuse_detected").Inc()
	metrics.ReplayDetectedTotal.Inc()
	metrics.ChainsRevokedTotal.WithLabelValues(domain.RevokeReasonReplay).Inc()

	now := m.now().UTC()

	revoked, revokeErr := m.tokens.RevokeChain(ctx, token.ChainID, domain.RevokeReasonReplay, now)

	logEvent := log.Warn()
	if revokeErr != nil {
		logEvent = log.Error().Err(revokeErr)
	}
	logEvent.
		Int64("user_id", token.UserID).
		Str("chain_id", token.ChainID).
		Str("token", TokenFingerprint(token.Hash)).
		Int64("revoked", revoked).
		Msg("refresh token reuse detected, chain revoked")

	event := domain.AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: now,
		Category:  domain.AuditCategorySecurity,
		Severity:  domain.AuditSeverityHigh,
		Action:    ActionRefreshTokenReuse,
		Actor:     strconv.FormatInt(token.UserID, 10),
		Success:   false,
		Error:     ErrTokenReuseDetected.Error(),
		Details: map[string]any{
			"chain_id":       token.ChainID,
			"token":          TokenFingerprint(token.Hash),
			"revoked_tokens": revoked,
		},
	}
	if err := m.audit.Record(ctx, event); err != nil {
		metrics.AuditSinkFailuresTotal.Inc()
		log.Error().Err(err).
			Str("action", event.Action).
			Str("chain_id", token.ChainID).
			Msg("failed to record security audit event")
	}

	if revokeErr != nil {
		return fmt.Errorf("%w (chain revocation failed: %v)", ErrTokenReuseDetected, revokeErr)
	}

	return ErrTokenReuseDetected
}

// Lookup returns the record for a presented refresh token.
func (m *RefreshTokenManager) Lookup(ctx context.Context, presented string) (*domain.RefreshToken, error) {
	if presented == "" {
		return nil, fmt.Errorf("%w: refresh_token is required", ErrInvalidRequest)
	}

	token, err := m.tokens.GetByHash(ctx, HashToken(presented))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrTokenNotFound
		}

		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}

	return token, nil
}

// RevokeChain soft-revokes the chain. Revoking an already revoked chain is a no-op.
func (m *RefreshTokenManager) RevokeChain(ctx context.Context, chainID, reason string) (int64, error) {
	n, err := m.tokens.RevokeChain(ctx, chainID, reason, m.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke chain: %w", err)
	}
	metrics.ChainsRevokedTotal.WithLabelValues(reason).Inc()

	return n, nil
}

// RevokeUser soft-revokes every chain of the user.
func (m *RefreshTokenManager) RevokeUser(ctx context.Context, userID int64, reason string) (int64, error) {
	n, err := m.tokens.RevokeUser(ctx, userID, reason, m.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user sessions: %w", err)
	}

	return n, nil
}

// PurgeExpired deletes token records whose chain ended more than retention ago.
func (m *RefreshTokenManager) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := m.tokens.DeleteExpired(ctx, m.now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired refresh tokens: %w", err)
	}

	return n, nil
}
