package api

import (
	"time"

	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/domain"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" form:"refresh_token"`
}

// LogoutRequest is the body of POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" form:"refresh_token"`
	AllSessions  bool   `json:"all_sessions" form:"all_sessions"`
}

// TokenResponse is returned by login, refresh and the SSO callback.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	// RedirectURI is where the client should continue after an SSO login.
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// NewTokenResponse converts a token pair into its wire form.
func NewTokenResponse(pair *examsso.TokenPair) *TokenResponse {
	return &TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		RefreshToken: pair.RefreshToken,
	}
}

// SSOInitResponse is returned by GET /auth/sso/:provider/login.
type SSOInitResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// SessionResponse describes the caller of GET /auth/session.
type SessionResponse struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email,omitempty"`
	Roles     []string  `json:"roles"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSessionResponse converts validated access token claims.
func NewSessionResponse(claims *examsso.AccessClaims) *SessionResponse {
	resp := &SessionResponse{
		Subject: claims.Subject,
		Email:   claims.Email,
		Roles:   claims.Roles,
	}
	if resp.Roles == nil {
		resp.Roles = []string{}
	}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}

	return resp
}

// ProvidersResponse lists the configured identity providers.
type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

// RevokeSessionsResponse is returned by POST /admin/users/:id/revoke.
type RevokeSessionsResponse struct {
	UserID  int64 `json:"user_id"`
	Revoked int64 `json:"revoked"`
}

// AuditEventsResponse is returned by GET /admin/audit.
type AuditEventsResponse struct {
	Events []domain.AuditEvent `json:"events"`
}
