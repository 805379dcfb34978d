package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// maxUserInfoBytes caps how much of a user info response is read.
const maxUserInfoBytes = 1 << 20

// ExternalUserInfo holds standardized user information retrieved from an external OAuth2 provider.
type ExternalUserInfo struct {
	ProviderUserID string // Unique ID of the user within the external provider (e.g., Google's 'sub')
	Email          string
	EmailVerified  bool
	FirstName      string
	LastName       string
	DisplayName    string
	Username       string
	PictureURL     string
	RawData        map[string]any
}

// Name returns the best available human readable name.
func (u *ExternalUserInfo) Name() string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.FirstName != "" || u.LastName != "":
		if u.FirstName == "" || u.LastName == "" {
			return u.FirstName + u.LastName
		}
		return u.FirstName + " " + u.LastName
	default:
		return u.Username
	}
}

// IdentityProvider is the capability the SSO flow needs from an external
// provider: building the authorization URL, exchanging the code and reading
// the user's identity.
//
//go:generate go run go.uber.org/mock/mockgen -source=$GOFILE -destination=mock/mock_$GOFILE -package=mock_$GOPACKAGE IdentityProvider
type IdentityProvider interface {
	// Name returns the unique identifier for the provider (e.g., "google").
	Name() string

	// AuthCodeURL builds the URL the user is sent to. The state is embedded verbatim.
	AuthCodeURL(state, redirectURL string) string

	// ExchangeCode exchanges an authorization code for provider tokens.
	ExchangeCode(ctx context.Context, redirectURL, code string) (*oauth2.Token, error)

	// FetchUserInfo reads the authenticated user's identity.
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalUserInfo, error)
}

// ProviderConfig is the static configuration of one provider.
type ProviderConfig struct {
	Name         string
	Type         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
	// HTTPClient is used for every call to the provider. Nil selects http.DefaultClient.
	HTTPClient *http.Client
}

// BaseProvider implements the OAuth2 parts shared by every provider.
// Specific providers embed it and supply FetchUserInfo.
type BaseProvider struct {
	Config   ProviderConfig
	endpoint oauth2.Endpoint
}

// NewBaseProvider validates the configuration. Empty endpoint fields in cfg
// are filled from the given default endpoint.
func NewBaseProvider(cfg ProviderConfig, defaults oauth2.Endpoint) (*BaseProvider, error) {
	if cfg.Name == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: name, client id and client secret are required", ErrProviderMisconfigured)
	}

	endpoint := defaults
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		return nil, fmt.Errorf("%w: %s has no authorization or token endpoint", ErrProviderMisconfigured, cfg.Name)
	}

	return &BaseProvider{Config: cfg, endpoint: endpoint}, nil
}

func (b *BaseProvider) Name() string {
	return b.Config.Name
}

func (b *BaseProvider) oauth2Config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     b.Config.ClientID,
		ClientSecret: b.Config.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       b.Config.Scopes,
		Endpoint:     b.endpoint,
	}
}

// withHTTPClient makes the oauth2 package use the configured client.
func (b *BaseProvider) withHTTPClient(ctx context.Context) context.Context {
	if b.Config.HTTPClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, b.Config.HTTPClient)
}

func (b *BaseProvider) AuthCodeURL(state, redirectURL string) string {
	return b.oauth2Config(redirectURL).AuthCodeURL(state)
}

// ExchangeCode also rejects successful responses that carry an error field or
// no access token.
func (b *BaseProvider) ExchangeCode(ctx context.Context, redirectURL, code string) (*oauth2.Token, error) {
	token, err := b.oauth2Config(redirectURL).Exchange(b.withHTTPClient(ctx), code)
	if err != nil {
		return nil, err
	}

	if providerErr, ok := token.Extra("error").(string); ok && providerErr != "" {
		desc, _ := token.Extra("error_description").(string)
		return nil, fmt.Errorf("token endpoint returned error %q: %s", providerErr, desc)
	}
	if token.AccessToken == "" {
		return nil, errors.New("token endpoint returned no access token")
	}

	return token, nil
}

// getJSON performs an authenticated GET and decodes the JSON body into out.
// The raw body is returned for RawData.
func (b *BaseProvider) getJSON(ctx context.Context, token *oauth2.Token, url string, out any) ([]byte, error) {
	ctx = b.withHTTPClient(ctx)
	client := b.oauth2Config("").Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return body, nil
}

func rawData(body []byte) map[string]any {
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)

	return raw
}

// NewProvider builds a provider from its configured type: google, github or oidc.
func NewProvider(cfg ProviderConfig) (IdentityProvider, error) {
	switch cfg.Type {
	case "google":
		return NewGoogleProvider(cfg)
	case "github":
		return NewGitHubProvider(cfg)
	case "oidc":
		return NewOIDCProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider type %q", ErrProviderMisconfigured, cfg.Type)
	}
}
