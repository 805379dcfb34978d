package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	examsso "github.com/pilab-dev/exam-sso"
)

// APIError is the JSON error body returned by the HTTP API.
type APIError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Generic error codes. Taxonomy errors use examsso.ErrorCode.
const (
	InvalidRequest  = "invalid_request"
	InvalidToken    = "invalid_token"
	AccessDenied    = "access_denied"
	NotFound        = "not_found"
	ServerError     = "server_error"
	UpstreamFailure = "upstream_failure"
)

func NewInvalidRequest(description string) *APIError {
	return &APIError{Code: InvalidRequest, Description: description}
}

func NewInvalidToken(description string) *APIError {
	return &APIError{Code: InvalidToken, Description: description}
}

func NewAccessDenied(description string) *APIError {
	return &APIError{Code: AccessDenied, Description: description}
}

func NewNotFound(description string) *APIError {
	return &APIError{Code: NotFound, Description: description}
}

func NewServerError(description string) *APIError {
	return &APIError{Code: ServerError, Description: description}
}

type mapping struct {
	status      int
	description string
}

// Descriptions never echo the underlying error, which may carry internal
// detail. Login failures share one description so they cannot be told apart.
var mappings = []struct {
	err error
	mapping
}{
	{examsso.ErrInvalidCredentials, mapping{http.StatusUnauthorized, "invalid email or password"}},
	{examsso.ErrAccountInactive, mapping{http.StatusUnauthorized, "account is not active"}},
	{examsso.ErrTokenNotFound, mapping{http.StatusUnauthorized, "refresh token is invalid"}},
	{examsso.ErrTokenExpiredOrRevoked, mapping{http.StatusUnauthorized, "refresh token is expired or revoked"}},
	{examsso.ErrTokenReuseDetected, mapping{http.StatusUnauthorized, "refresh token reuse detected, session revoked"}},
	{examsso.ErrInvalidAccessToken, mapping{http.StatusUnauthorized, "access token is invalid"}},
	{examsso.ErrStateNotFound, mapping{http.StatusBadRequest, "unknown sso state"}},
	{examsso.ErrStateExpired, mapping{http.StatusBadRequest, "sso state expired, start the login again"}},
	{examsso.ErrStateAlreadyUsed, mapping{http.StatusBadRequest, "sso state already used"}},
	{examsso.ErrProviderError, mapping{http.StatusBadRequest, "identity provider denied the login"}},
	{examsso.ErrRedirectURIMismatch, mapping{http.StatusBadRequest, "redirect_uri does not match the login request"}},
	{examsso.ErrRedirectURINotAllowed, mapping{http.StatusBadRequest, "redirect_uri is not allowed"}},
	{examsso.ErrUnknownProvider, mapping{http.StatusNotFound, "unknown identity provider"}},
	{examsso.ErrLinkingRequired, mapping{http.StatusConflict, "account linking required"}},
	{examsso.ErrTokenExchangeFailed, mapping{http.StatusBadGateway, "identity provider token exchange failed"}},
	{examsso.ErrUserInfoUnavailable, mapping{http.StatusBadGateway, "identity provider user info unavailable"}},
}

// FromError maps err to an HTTP status and response body.
func FromError(err error) (int, *APIError) {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return http.StatusBadRequest, apiErr
	}

	if stderrors.Is(err, examsso.ErrInvalidRequest) {
		return http.StatusBadRequest, NewInvalidRequest(err.Error())
	}

	for _, m := range mappings {
		if !stderrors.Is(err, m.err) {
			continue
		}

		code := examsso.ErrorCode(m.err)
		if m.status == http.StatusBadGateway {
			code = UpstreamFailure
		}

		desc := m.description
		var providerErr *examsso.ProviderError
		if stderrors.As(err, &providerErr) && providerErr.Code != "" {
			desc = fmt.Sprintf("%s: %s", desc, providerErr.Code)
		}

		return m.status, &APIError{Code: code, Description: desc}
	}

	return http.StatusInternalServerError, NewServerError("internal server error")
}
