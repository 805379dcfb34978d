package federation_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/pilab-dev/exam-sso/internal/federation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	googleOAuth2 "golang.org/x/oauth2/google"
)

func TestGoogleProvider_FetchUserInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/userinfo" || r.Header.Get("Authorization") != "Bearer valid_token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"sub": "1234567890",
			"name": "Test User",
			"given_name": "Test",
			"family_name": "User",
			"picture": "https://example.com/avatar.jpg",
			"email": "test.user@example.com",
			"email_verified": true
		}`))
	}))
	defer server.Close()

	originalEndpoint := federation.GoogleUserInfoEndpoint
	federation.GoogleUserInfoEndpoint = server.URL + "/v1/userinfo"
	defer func() { federation.GoogleUserInfoEndpoint = originalEndpoint }()

	provider, err := federation.NewGoogleProvider(federation.ProviderConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "google", provider.Name())

	info, err := provider.FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "valid_token"})
	require.NoError(t, err)
	assert.Equal(t, "1234567890", info.ProviderUserID)
	assert.Equal(t, "test.user@example.com", info.Email)
	assert.True(t, info.EmailVerified)
	assert.Equal(t, "Test", info.FirstName)
	assert.Equal(t, "User", info.LastName)
	assert.Equal(t, "Test User", info.Name())
	assert.Equal(t, "1234567890", info.RawData["sub"])

	_, err = provider.FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "revoked"})
	assert.Error(t, err)
}

func TestGoogleProvider_AuthCodeURL(t *testing.T) {
	provider, err := federation.NewGoogleProvider(federation.ProviderConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
	})
	require.NoError(t, err)

	raw := provider.AuthCodeURL("state-123", "https://sso.exam.test/auth/sso/google/callback")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	expected, err := url.Parse(googleOAuth2.Endpoint.AuthURL)
	require.NoError(t, err)
	assert.Equal(t, expected.Host, parsed.Host)

	q := parsed.Query()
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "test-client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "https://sso.exam.test/auth/sso/google/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
}

func TestNewGoogleProvider_Misconfigured(t *testing.T) {
	_, err := federation.NewGoogleProvider(federation.ProviderConfig{ClientID: "only-id"})
	assert.ErrorIs(t, err, federation.ErrProviderMisconfigured)
}
