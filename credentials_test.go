package examsso_test

import (
	"context"
	"errors"
	"testing"

	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/domain"
	"github.com/pilab-dev/exam-sso/internal/auth"
	"github.com/pilab-dev/exam-sso/internal/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type MockPasswordHasher struct {
	mock.Mock
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(hashedPassword, password string) error {
	args := m.Called(hashedPassword, password)
	return args.Error(0)
}

func seedUser(t *testing.T, users *memstore.UserStore, hasher examsso.PasswordHasher, email, password string, status domain.UserStatus) *domain.User {
	t.Helper()

	hash, err := hasher.Hash(password)
	require.NoError(t, err)

	user := &domain.User{Email: email, PasswordHash: hash, Status: status, Roles: []string{"proctor"}}
	require.NoError(t, users.CreateUser(context.Background(), user))

	return user
}

func TestCredentialVerifier(t *testing.T) {
	ctx := context.Background()
	users := memstore.NewUserStore()
	hasher := auth.NewBcryptPasswordHasher(bcrypt.MinCost)
	verifier := examsso.NewCredentialVerifier(users, hasher)

	active := seedUser(t, users, hasher, "a@x.com", "correct", domain.UserStatusActive)
	seedUser(t, users, hasher, "disabled@x.com", "correct", domain.UserStatusDisabled)
	require.NoError(t, users.CreateUser(ctx, &domain.User{Email: "sso-only@x.com", Status: domain.UserStatusActive}))

	t.Run("valid", func(t *testing.T) {
		user, err := verifier.Verify(ctx, "a@x.com", "correct")
		require.NoError(t, err)
		assert.Equal(t, active.ID, user.ID)
	})

	t.Run("email is case insensitive", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "  A@X.com ", "correct")
		assert.NoError(t, err)
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		_, wrongPassword := verifier.Verify(ctx, "a@x.com", "wrong")
		_, unknownEmail := verifier.Verify(ctx, "nobody@x.com", "correct")

		assert.ErrorIs(t, wrongPassword, examsso.ErrInvalidCredentials)
		assert.ErrorIs(t, unknownEmail, examsso.ErrInvalidCredentials)
		assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	})

	t.Run("inactive with correct password", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "disabled@x.com", "correct")
		assert.ErrorIs(t, err, examsso.ErrAccountInactive)
	})

	t.Run("inactive with wrong password", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "disabled@x.com", "wrong")
		assert.ErrorIs(t, err, examsso.ErrInvalidCredentials)
	})

	t.Run("account without local password", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "sso-only@x.com", "anything")
		assert.ErrorIs(t, err, examsso.ErrInvalidCredentials)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "", "correct")
		assert.ErrorIs(t, err, examsso.ErrInvalidRequest)
		_, err = verifier.Verify(ctx, "a@x.com", "")
		assert.ErrorIs(t, err, examsso.ErrInvalidRequest)
	})
}

func TestCredentialVerifier_UnknownEmailStillHashes(t *testing.T) {
	hasher := new(MockPasswordHasher)
	hasher.On("Hash", mock.Anything).Return("dummy-hash", nil).Once()
	hasher.On("Verify", "dummy-hash", "secret").Return(errors.New("mismatch")).Once()

	verifier := examsso.NewCredentialVerifier(memstore.NewUserStore(), hasher)

	_, err := verifier.Verify(context.Background(), "nobody@x.com", "secret")
	assert.ErrorIs(t, err, examsso.ErrInvalidCredentials)
	hasher.AssertExpectations(t)
}
