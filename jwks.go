package examsso

import (
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"sort"
)

// JSONWebKey is the public half of an RS256 signing key.
type JSONWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type JSONWebKeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// JWKS returns the public keys of every registered RSA key so resource servers
// can verify access tokens offline. HMAC secrets are never published.
func (s *TokenSigner) JWKS() JSONWebKeySet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]JSONWebKey, 0, len(s.keys))
	for kid, key := range s.keys {
		publicKey, ok := key.verifyKey.(*rsa.PublicKey)
		if !ok {
			continue
		}

		keys = append(keys, JSONWebKey{
			Kid: kid,
			Kty: "RSA",
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
		})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Kid < keys[j].Kid })

	return JSONWebKeySet{Keys: keys}
}
