// Package client is a small HTTP client for the exam-sso session API.
package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/carlmjohnson/requests"

	"github.com/pilab-dev/exam-sso/api"
	"github.com/pilab-dev/exam-sso/domain"
	apierrors "github.com/pilab-dev/exam-sso/errors"
)

// ErrNoEndpoint is returned when the client has no server endpoint.
var ErrNoEndpoint = errors.New("no server endpoint configured")

// Client talks to one exam-sso server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client. A nil httpClient selects http.DefaultClient.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrNoEndpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{baseURL: baseURL, httpClient: httpClient}, nil
}

// request starts a builder with API error decoding: a non-2xx answer with a
// JSON error body is returned as *apierrors.APIError.
func (c *Client) request(path string, apiErr *apierrors.APIError) *requests.Builder {
	return requests.URL(c.baseURL + path).
		Client(c.httpClient).
		AddValidator(requests.ErrorJSON(apiErr))
}

// apiError prefers the decoded server error over the transport error.
func apiError(err error, apiErr *apierrors.APIError) error {
	if err == nil {
		return nil
	}
	if apiErr.Code != "" {
		return apiErr
	}

	return err
}

// Login exchanges email and password for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (*api.TokenResponse, error) {
	var (
		resp   api.TokenResponse
		apiErr apierrors.APIError
	)
	err := c.request("/auth/login", &apiErr).
		BodyJSON(api.LoginRequest{Email: email, Password: password}).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return nil, apiError(err, &apiErr)
	}

	return &resp, nil
}

// Refresh rotates a refresh token. The presented token is spent even when
// the call fails after reaching the server, so it must not be retried.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*api.TokenResponse, error) {
	var (
		resp   api.TokenResponse
		apiErr apierrors.APIError
	)
	err := c.request("/auth/refresh", &apiErr).
		BodyJSON(api.RefreshRequest{RefreshToken: refreshToken}).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return nil, apiError(err, &apiErr)
	}

	return &resp, nil
}

// Logout revokes the session of refreshToken, or every session of its owner.
func (c *Client) Logout(ctx context.Context, refreshToken string, allSessions bool) error {
	var apiErr apierrors.APIError
	err := c.request("/auth/logout", &apiErr).
		BodyJSON(api.LogoutRequest{RefreshToken: refreshToken, AllSessions: allSessions}).
		CheckStatus(http.StatusNoContent).
		Fetch(ctx)

	return apiError(err, &apiErr)
}

// Session describes the owner of an access token.
func (c *Client) Session(ctx context.Context, accessToken string) (*api.SessionResponse, error) {
	var (
		resp   api.SessionResponse
		apiErr apierrors.APIError
	)
	err := c.request("/auth/session", &apiErr).
		Bearer(accessToken).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return nil, apiError(err, &apiErr)
	}

	return &resp, nil
}

// Providers lists the configured identity providers.
func (c *Client) Providers(ctx context.Context) ([]string, error) {
	var (
		resp   api.ProvidersResponse
		apiErr apierrors.APIError
	)
	err := c.request("/auth/sso", &apiErr).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return nil, apiError(err, &apiErr)
	}

	return resp.Providers, nil
}

// SSOLoginURL starts an SSO login and returns the provider authorization URL
// to open in a browser.
func (c *Client) SSOLoginURL(ctx context.Context, provider, redirectURI string) (string, error) {
	var (
		resp   api.SSOInitResponse
		apiErr apierrors.APIError
	)
	b := c.request("/auth/sso/"+url.PathEscape(provider)+"/login", &apiErr).ToJSON(&resp)
	if redirectURI != "" {
		b = b.Param("redirect_uri", redirectURI)
	}
	if err := b.Fetch(ctx); err != nil {
		return "", apiError(err, &apiErr)
	}

	return resp.AuthorizationURL, nil
}

// RevokeUserSessions ends every session of a user. The caller needs the
// proctor or admin role.
func (c *Client) RevokeUserSessions(ctx context.Context, accessToken string, userID int64) (int64, error) {
	var (
		resp   api.RevokeSessionsResponse
		apiErr apierrors.APIError
	)
	err := c.request("/admin/users/"+strconv.FormatInt(userID, 10)+"/revoke", &apiErr).
		Post().
		Bearer(accessToken).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return 0, apiError(err, &apiErr)
	}

	return resp.Revoked, nil
}

// AuditEvents lists the recent audit events of actor, newest first.
func (c *Client) AuditEvents(ctx context.Context, accessToken, actor string, limit int) ([]domain.AuditEvent, error) {
	var (
		resp   api.AuditEventsResponse
		apiErr apierrors.APIError
	)
	b := c.request("/admin/audit", &apiErr).
		Bearer(accessToken).
		Param("actor", actor).
		ToJSON(&resp)
	if limit > 0 {
		b = b.Param("limit", strconv.Itoa(limit))
	}
	if err := b.Fetch(ctx); err != nil {
		return nil, apiError(err, &apiErr)
	}

	return resp.Events, nil
}
