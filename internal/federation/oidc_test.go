package federation_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pilab-dev/exam-sso/internal/federation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeIdP is a minimal OIDC provider: a token endpoint and a userinfo endpoint.
type fakeIdP struct {
	*httptest.Server
	tokenStatus int
	tokenBody   string
	tokenCalls  int
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()

	idp := &fakeIdP{
		tokenStatus: http.StatusOK,
		tokenBody:   `{"access_token":"provider-access","token_type":"Bearer","expires_in":3600}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		idp.tokenCalls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(idp.tokenStatus)
		_, _ = w.Write([]byte(idp.tokenBody))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"oidc-42","email":"b@x.com","email_verified":"true","preferred_username":"bee"}`))
	})

	idp.Server = httptest.NewServer(mux)
	t.Cleanup(idp.Close)

	return idp
}

func (f *fakeIdP) provider(t *testing.T) *federation.OIDCProvider {
	t.Helper()

	provider, err := federation.NewOIDCProvider(federation.ProviderConfig{
		Name:         "campus",
		ClientID:     "client",
		ClientSecret: "secret",
		AuthURL:      f.URL + "/authorize",
		TokenURL:     f.URL + "/token",
		UserInfoURL:  f.URL + "/userinfo",
		HTTPClient:   f.Client(),
	})
	require.NoError(t, err)

	return provider
}

func TestOIDCProvider_ExchangeAndFetch(t *testing.T) {
	idp := newFakeIdP(t)
	provider := idp.provider(t)
	ctx := context.Background()

	token, err := provider.ExchangeCode(ctx, "https://sso.exam.test/cb", "code-1")
	require.NoError(t, err)
	assert.Equal(t, "provider-access", token.AccessToken)

	info, err := provider.FetchUserInfo(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "oidc-42", info.ProviderUserID)
	assert.Equal(t, "b@x.com", info.Email)
	assert.True(t, info.EmailVerified)
	assert.Equal(t, "bee", info.Name())
}

func TestOIDCProvider_ExchangeFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"error status", http.StatusBadRequest, `{"error":"invalid_grant"}`},
		{"error inside 200", http.StatusOK, `{"error":"invalid_grant","error_description":"code already used"}`},
		{"no access token", http.StatusOK, `{"token_type":"Bearer"}`},
		{"malformed", http.StatusOK, `{not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idp := newFakeIdP(t)
			idp.tokenStatus = tt.status
			idp.tokenBody = tt.body

			_, err := idp.provider(t).ExchangeCode(context.Background(), "https://sso.exam.test/cb", "code-1")
			assert.Error(t, err)
			assert.Equal(t, 1, idp.tokenCalls)
		})
	}
}

func TestOIDCProvider_FetchUserInfo_Unauthorized(t *testing.T) {
	idp := newFakeIdP(t)

	_, err := idp.provider(t).FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "stale"})
	assert.Error(t, err)
}

func TestNewOIDCProvider_RequiresEndpoints(t *testing.T) {
	_, err := federation.NewOIDCProvider(federation.ProviderConfig{
		Name:         "campus",
		ClientID:     "client",
		ClientSecret: "secret",
		AuthURL:      "https://idp.example/authorize",
		TokenURL:     "https://idp.example/token",
	})
	assert.ErrorIs(t, err, federation.ErrProviderMisconfigured)

	_, err = federation.NewOIDCProvider(federation.ProviderConfig{
		Name:         "campus",
		ClientID:     "client",
		ClientSecret: "secret",
		UserInfoURL:  "https://idp.example/userinfo",
	})
	assert.ErrorIs(t, err, federation.ErrProviderMisconfigured)
}

func TestNewProvider(t *testing.T) {
	base := federation.ProviderConfig{ClientID: "id", ClientSecret: "secret"}

	google := base
	google.Type = "google"
	p, err := federation.NewProvider(google)
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())

	gh := base
	gh.Type = "github"
	p, err = federation.NewProvider(gh)
	require.NoError(t, err)
	assert.Equal(t, "github", p.Name())

	oidc := base
	oidc.Type = "oidc"
	oidc.Name = "campus"
	oidc.AuthURL = "https://idp.example/auth"
	oidc.TokenURL = "https://idp.example/token"
	oidc.UserInfoURL = "https://idp.example/userinfo"
	p, err = federation.NewProvider(oidc)
	require.NoError(t, err)
	assert.Equal(t, "campus", p.Name())

	saml := base
	saml.Type = "saml"
	_, err = federation.NewProvider(saml)
	assert.ErrorIs(t, err, federation.ErrProviderMisconfigured)
}
