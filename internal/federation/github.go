package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/oauth2"
	githubOAuth2 "golang.org/x/oauth2/github"
)

var (
	GithubUserInfoEndpoint   = "https://api.github.com/user"
	GithubUserEmailsEndpoint = "https://api.github.com/user/emails"
)

// GitHubProvider implements IdentityProvider for GitHub. GitHub is plain
// OAuth2, so identity comes from its REST API instead of an OIDC userinfo
// endpoint.
type GitHubProvider struct {
	*BaseProvider
}

var _ IdentityProvider = (*GitHubProvider)(nil)

// NewGitHubProvider creates a new GitHubProvider.
func NewGitHubProvider(cfg ProviderConfig) (*GitHubProvider, error) {
	if cfg.Name == "" {
		cfg.Name = "github"
	}
	for _, scope := range []string{"read:user", "user:email"} {
		if !slices.Contains(cfg.Scopes, scope) {
			cfg.Scopes = append(cfg.Scopes, scope)
		}
	}

	base, err := NewBaseProvider(cfg, githubOAuth2.Endpoint)
	if err != nil {
		return nil, err
	}

	return &GitHubProvider{BaseProvider: base}, nil
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// FetchUserInfo reads the profile, then the primary email with its
// verification flag from the emails endpoint.
func (g *GitHubProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalUserInfo, error) {
	var profile struct {
		ID        json.Number `json:"id"`
		Login     string      `json:"login"`
		Name      string      `json:"name"`
		AvatarURL string      `json:"avatar_url"`
	}

	body, err := g.getJSON(ctx, token, GithubUserInfoEndpoint, &profile)
	if err != nil {
		return nil, fmt.Errorf("github: failed to fetch user info: %w", err)
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("github: user info has no id")
	}

	info := &ExternalUserInfo{
		ProviderUserID: profile.ID.String(),
		Username:       profile.Login,
		DisplayName:    profile.Name,
		PictureURL:     profile.AvatarURL,
		RawData:        rawData(body),
	}
	if first, last, ok := strings.Cut(profile.Name, " "); ok {
		info.FirstName, info.LastName = first, last
	} else {
		info.FirstName = profile.Name
	}

	var emails []githubEmail
	if _, err := g.getJSON(ctx, token, GithubUserEmailsEndpoint, &emails); err != nil {
		return nil, fmt.Errorf("github: failed to fetch user emails: %w", err)
	}
	for _, e := range emails {
		if e.Primary {
			info.Email = e.Email
			info.EmailVerified = e.Verified
			break
		}
	}

	return info, nil
}
