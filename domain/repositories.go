package domain

import (
	"context"
	"errors"
	"time"
)

// Storage sentinels shared by every repository implementation.
var (
	ErrNotFound           = errors.New("record not found")
	ErrAlreadyExists      = errors.New("record already exists")
	ErrPreconditionFailed = errors.New("precondition failed")
)

// UserRepository is the read side of user management plus the provisioning
// hook used when SSO auto-provisioning is enabled.
type UserRepository interface {
	GetUserByID(ctx context.Context, id int64) (*User, error)
	// GetUserByEmail matches case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// CreateUser assigns user.ID. Returns ErrAlreadyExists on duplicate email.
	CreateUser(ctx context.Context, user *User) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

// FederatedIdentityRepository stores links between local users and provider subjects.
type FederatedIdentityRepository interface {
	GetByProviderUserID(ctx context.Context, provider, providerUserID string) (*UserFederatedIdentity, error)
	// Create returns ErrAlreadyExists when the provider subject is already linked.
	Create(ctx context.Context, identity *UserFederatedIdentity) error
}

// RefreshTokenRepository persists refresh token records keyed by token hash.
//
// Rotate is the exactly-once primitive: it marks the record identified by
// oldHash as used, but only if it is currently unused and unrevoked, and
// stores next. When the precondition does not hold it returns
// ErrPreconditionFailed and stores nothing. Once oldHash reads as used, next
// is visible too, so a RevokeChain issued on seeing the used parent covers it.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*RefreshToken, error)
	Rotate(ctx context.Context, oldHash string, next *RefreshToken, usedAt time.Time) error
	// RevokeChain soft-revokes every unrevoked token of the chain and returns how many changed.
	RevokeChain(ctx context.Context, chainID, reason string, at time.Time) (int64, error)
	// RevokeUser soft-revokes every unrevoked token owned by the user.
	RevokeUser(ctx context.Context, userID int64, reason string, at time.Time) (int64, error)
	// DeleteExpired removes records whose chain ended before the cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// SSOStateRepository stores SSO states.
//
// MarkUsed is an atomic check-and-mark: it sets UsedAt only when the state has
// not been used yet and returns ErrPreconditionFailed otherwise.
type SSOStateRepository interface {
	Save(ctx context.Context, state *SSOState) error
	Get(ctx context.Context, state string) (*SSOState, error)
	MarkUsed(ctx context.Context, state string, at time.Time) error
}

// AuditSink receives security audit events.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}
