package examsso_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAccessToken(t *testing.T) {
	f := newFixture(t)

	token, expiresAt, err := f.issuer.IssueAccessToken(f.user)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := f.issuer.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, f.user.Subject(), claims.Subject)
	assert.Equal(t, []string{"student"}, claims.Roles)
	assert.Equal(t, "https://sso.exam.test", claims.Issuer)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, id)
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	f := newFixture(t)

	t.Run("garbage", func(t *testing.T) {
		_, err := f.issuer.ValidateAccessToken("not-a-jwt")
		assert.ErrorIs(t, err, examsso.ErrInvalidAccessToken)
	})

	t.Run("foreign key", func(t *testing.T) {
		other := examsso.NewTokenSigner()
		other.AddHMACKey("test", []byte("another-secret-another-secret-xx"))
		foreign := examsso.NewTokenService(other, f.tokens, examsso.TokenServiceConfig{
			Issuer:   "https://sso.exam.test",
			Audience: "exam-api",
		})

		token, _, err := foreign.IssueAccessToken(f.user)
		require.NoError(t, err)

		_, err = f.issuer.ValidateAccessToken(token)
		assert.ErrorIs(t, err, examsso.ErrInvalidAccessToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		signer := examsso.NewTokenSigner()
		signer.AddHMACKey("test", []byte("0123456789abcdef0123456789abcdef"))
		other := examsso.NewTokenService(signer, f.tokens, examsso.TokenServiceConfig{
			Issuer:   "https://sso.exam.test",
			Audience: "another-api",
		})

		token, _, err := other.IssueAccessToken(f.user)
		require.NoError(t, err)

		_, err = f.issuer.ValidateAccessToken(token)
		assert.ErrorIs(t, err, examsso.ErrInvalidAccessToken)
	})
}

func TestTokenSigner_RSA(t *testing.T) {
	key, err := crypto.GenerateRSAKey()
	require.NoError(t, err)

	signer := examsso.NewTokenSigner()
	signer.AddRSAKey("rsa-1", key)

	signed, err := signer.Sign(jwt.RegisteredClaims{Subject: "42"})
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, signer.Keyfunc)
	require.NoError(t, err)
	assert.Equal(t, "rsa-1", parsed.Header["kid"])
	assert.Equal(t, jwt.SigningMethodRS256.Alg(), parsed.Method.Alg())
}

func TestTokenSigner_NoActiveKey(t *testing.T) {
	_, err := examsso.NewTokenSigner().Sign(jwt.RegisteredClaims{})
	assert.ErrorIs(t, err, examsso.ErrInvalidKeyID)
}

func TestIssueTokenPair_StartsNewChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.issuer.IssueTokenPair(ctx, f.user)
	require.NoError(t, err)
	second, err := f.issuer.IssueTokenPair(ctx, f.user)
	require.NoError(t, err)

	assert.NotEmpty(t, first.AccessToken)
	assert.NotEmpty(t, first.RefreshToken)
	assert.Equal(t, examsso.TokenTypeBearer, first.TokenType)
	assert.Equal(t, 900, first.ExpiresIn)
	assert.NotEqual(t, first.ChainID, second.ChainID)

	record, err := f.tokens.GetByHash(ctx, examsso.HashToken(first.RefreshToken))
	require.NoError(t, err)
	assert.False(t, record.Used)
	assert.Equal(t, f.user.ID, record.UserID)
	assert.True(t, !record.ExpiresAt.After(record.ChainExpiresAt))
}

func TestNextRefreshToken_BoundedByChain(t *testing.T) {
	f := newFixture(t)

	_, parent, err := f.issuer.IssueRefreshToken(context.Background(), f.user)
	require.NoError(t, err)

	// Chain almost over: the successor must not outlive it.
	parent.ChainExpiresAt = time.Now().Add(time.Hour)

	value, next, err := f.issuer.NextRefreshToken(parent)
	require.NoError(t, err)
	assert.Equal(t, examsso.HashToken(value), next.Hash)
	assert.Equal(t, parent.ChainID, next.ChainID)
	assert.Equal(t, parent.Hash, next.ParentHash)
	assert.Equal(t, parent.ChainExpiresAt, next.ExpiresAt)
}

func TestGenerateOpaqueToken(t *testing.T) {
	a, err := examsso.GenerateOpaqueToken()
	require.NoError(t, err)
	b, err := examsso.GenerateOpaqueToken()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.Len(t, examsso.HashToken(a), 64)
	assert.Equal(t, examsso.HashToken(a)[:12], examsso.TokenFingerprint(examsso.HashToken(a)))
}
