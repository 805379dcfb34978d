package federation_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/pilab-dev/exam-sso/internal/federation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newGitHubProvider(t *testing.T) *federation.GitHubProvider {
	t.Helper()

	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)

	provider, err := federation.NewGitHubProvider(federation.ProviderConfig{
		ClientID:     "gh-client",
		ClientSecret: "gh-secret",
		HTTPClient:   client,
	})
	require.NoError(t, err)

	return provider
}

func TestGitHubProvider_FetchUserInfo(t *testing.T) {
	provider := newGitHubProvider(t)

	httpmock.RegisterResponder(http.MethodGet, federation.GithubUserInfoEndpoint,
		httpmock.NewStringResponder(http.StatusOK, `{"id": 583231, "login": "octocat", "name": "Mona Lisa", "avatar_url": "https://avatars.example/u/583231"}`))
	httpmock.RegisterResponder(http.MethodGet, federation.GithubUserEmailsEndpoint,
		httpmock.NewStringResponder(http.StatusOK, `[
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "octocat@example.com", "primary": true, "verified": true}
		]`))

	info, err := provider.FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "gh-token"})
	require.NoError(t, err)
	assert.Equal(t, "583231", info.ProviderUserID)
	assert.Equal(t, "octocat", info.Username)
	assert.Equal(t, "octocat@example.com", info.Email)
	assert.True(t, info.EmailVerified)
	assert.Equal(t, "Mona", info.FirstName)
	assert.Equal(t, "Lisa", info.LastName)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestGitHubProvider_FetchUserInfo_EmailsUnavailable(t *testing.T) {
	provider := newGitHubProvider(t)

	httpmock.RegisterResponder(http.MethodGet, federation.GithubUserInfoEndpoint,
		httpmock.NewStringResponder(http.StatusOK, `{"id": 1, "login": "octocat"}`))
	httpmock.RegisterResponder(http.MethodGet, federation.GithubUserEmailsEndpoint,
		httpmock.NewStringResponder(http.StatusForbidden, `{"message": "Resource not accessible"}`))

	_, err := provider.FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "gh-token"})
	assert.Error(t, err)
}

func TestGitHubProvider_Scopes(t *testing.T) {
	provider := newGitHubProvider(t)

	assert.ElementsMatch(t, []string{"read:user", "user:email"}, provider.Config.Scopes)
	assert.Equal(t, "github", provider.Name())
}
