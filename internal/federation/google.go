package federation

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var GoogleUserInfoEndpoint = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleProvider implements IdentityProvider for Google.
type GoogleProvider struct {
	*BaseProvider
}

var _ IdentityProvider = (*GoogleProvider)(nil)

// NewGoogleProvider creates a GoogleProvider. Endpoints default to Google's.
func NewGoogleProvider(cfg ProviderConfig) (*GoogleProvider, error) {
	if cfg.Name == "" {
		cfg.Name = "google"
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile"}
	}

	base, err := NewBaseProvider(cfg, google.Endpoint)
	if err != nil {
		return nil, err
	}

	return &GoogleProvider{BaseProvider: base}, nil
}

func (g *GoogleProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalUserInfo, error) {
	url := GoogleUserInfoEndpoint
	if g.Config.UserInfoURL != "" {
		url = g.Config.UserInfoURL
	}

	return fetchStandardClaims(ctx, g.BaseProvider, token, url)
}
