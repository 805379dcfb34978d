package examsso

import (
	"crypto/rsa"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

type signingKey struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// TokenSigner signs and verifies access tokens with a set of keys addressed by
// key id. New tokens are signed with the active key; tokens signed by any
// registered key still verify, so keys can be rotated without logging users out.
type TokenSigner struct {
	mu     sync.RWMutex
	keys   map[string]signingKey
	active string
}

// NewTokenSigner creates a new Signer instance
func NewTokenSigner() *TokenSigner {
	return &TokenSigner{
		keys: make(map[string]signingKey),
	}
}

// AddHMACKey registers a shared HS256 secret and makes it the active key.
func (s *TokenSigner) AddHMACKey(keyID string, secret []byte) {
	s.add(keyID, signingKey{method: jwt.SigningMethodHS256, signKey: secret, verifyKey: secret})
}

// AddRSAKey registers an RS256 key pair and makes it the active key.
func (s *TokenSigner) AddRSAKey(keyID string, key *rsa.PrivateKey) {
	s.add(keyID, signingKey{method: jwt.SigningMethodRS256, signKey: key, verifyKey: &key.PublicKey})
}

func (s *TokenSigner) add(keyID string, key signingKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[keyID] = key
	s.active = keyID
}

// Sign signs the claims with the active key and stamps the kid header.
func (s *TokenSigner) Sign(claims jwt.Claims) (string, error) {
	s.mu.RLock()
	key, ok := s.keys[s.active]
	keyID := s.active
	s.mu.RUnlock()

	if !ok {
		return "", ErrInvalidKeyID
	}

	token := jwt.NewWithClaims(key.method, claims)
	token.Header["kid"] = keyID

	signed, err := token.SignedString(key.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Keyfunc resolves the verification key from the token's kid header.
func (s *TokenSigner) Keyfunc(token *jwt.Token) (any, error) {
	keyID, _ := token.Header["kid"].(string)

	s.mu.RLock()
	key, ok := s.keys[keyID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidKeyID
	}

	if token.Method.Alg() != key.method.Alg() {
		return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
	}

	return key.verifyKey, nil
}
