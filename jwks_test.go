package examsso_test

import (
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSigner_JWKS(t *testing.T) {
	key, err := crypto.GenerateRSAKey()
	require.NoError(t, err)

	signer := examsso.NewTokenSigner()
	signer.AddHMACKey("shared", []byte("0123456789abcdef0123456789abcdef"))
	signer.AddRSAKey("rsa-1", key)

	set := signer.JWKS()
	require.Len(t, set.Keys, 1, "hmac secrets must not be published")

	jwk := set.Keys[0]
	assert.Equal(t, "rsa-1", jwk.Kid)
	assert.Equal(t, "RS256", jwk.Alg)

	// A verifier holding only the published key accepts our tokens.
	n, err := base64.RawURLEncoding.DecodeString(jwk.N)
	require.NoError(t, err)
	e, err := base64.RawURLEncoding.DecodeString(jwk.E)
	require.NoError(t, err)
	published := &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}

	signed, err := signer.Sign(jwt.RegisteredClaims{Subject: "7"})
	require.NoError(t, err)

	_, err = jwt.Parse(signed, func(*jwt.Token) (any, error) { return published, nil })
	assert.NoError(t, err)
}
