package examsso

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pilab-dev/exam-sso/domain"
	"github.com/rs/zerolog/log"
)

// PasswordHasher hashes and verifies passwords. Verify must compare in
// constant time.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hashedPassword, password string) error
}

// CredentialVerifier checks an email/password pair against stored credentials.
type CredentialVerifier struct {
	users  domain.UserRepository
	hasher PasswordHasher
	// dummyHash is verified against when there is no real hash to check, so an
	// unknown email costs the same as a wrong password.
	dummyHash string
}

// NewCredentialVerifier creates a new CredentialVerifier.
func NewCredentialVerifier(users domain.UserRepository, hasher PasswordHasher) *CredentialVerifier {
	dummy, err := hasher.Hash("exam-sso-timing-equalizer")
	if err != nil {
		log.Warn().Err(err).Msg("failed to prepare dummy password hash")
	}

	return &CredentialVerifier{
		users:     users,
		hasher:    hasher,
		dummyHash: dummy,
	}
}

// Verify returns the user owning the credentials. Unknown email and wrong
// password both yield ErrInvalidCredentials. ErrAccountInactive is only
// reported once the password has been proven.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidRequest)
	}

	user, err := v.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			v.burn(password)
			return nil, ErrInvalidCredentials
		}

		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	// Accounts created through SSO have no local password.
	if user.PasswordHash == "" {
		v.burn(password)
		return nil, ErrInvalidCredentials
	}

	if err := v.hasher.Verify(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive() {
		return nil, ErrAccountInactive
	}

	return user, nil
}

func (v *CredentialVerifier) burn(password string) {
	if v.dummyHash != "" {
		_ = v.hasher.Verify(v.dummyHash, password)
	}
}
