package examsso

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account inactive")

	ErrTokenNotFound         = errors.New("refresh token not found")
	ErrTokenExpiredOrRevoked = errors.New("token expired or revoked")
	// ErrTokenReuseDetected means an already rotated refresh token was presented
	// again. The whole chain has been revoked by the time it is returned.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	ErrInvalidAccessToken = errors.New("invalid access token")

	ErrStateNotFound    = errors.New("sso state not found")
	ErrStateExpired     = errors.New("sso state expired")
	ErrStateAlreadyUsed = errors.New("sso state already used")

	ErrProviderError         = errors.New("identity provider returned an error")
	ErrTokenExchangeFailed   = errors.New("authorization code exchange failed")
	ErrUserInfoUnavailable   = errors.New("provider user info unavailable")
	ErrLinkingRequired       = errors.New("account linking required")
	ErrUnknownProvider       = errors.New("unknown identity provider")
	ErrRedirectURINotAllowed = errors.New("redirect uri not allowed")
	ErrRedirectURIMismatch   = errors.New("redirect uri does not match sso state")

	ErrInvalidKeyID = errors.New("invalid key id")
)

// ProviderError is the error an identity provider reported on the callback
// URL. It matches ErrProviderError with errors.Is.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s: %s", ErrProviderError, e.Code)
	}

	return fmt.Sprintf("%s: %s (%s)", ErrProviderError, e.Code, e.Description)
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderError
}

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidRequest, "invalid_request"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrAccountInactive, "account_inactive"},
	{ErrTokenNotFound, "token_not_found"},
	{ErrTokenExpiredOrRevoked, "token_expired_or_revoked"},
	{ErrTokenReuseDetected, "token_reuse_detected"},
	{ErrInvalidAccessToken, "invalid_token"},
	{ErrStateNotFound, "state_not_found"},
	{ErrStateExpired, "state_expired"},
	{ErrStateAlreadyUsed, "state_already_used"},
	{ErrProviderError, "provider_error"},
	{ErrTokenExchangeFailed, "token_exchange_failed"},
	{ErrUserInfoUnavailable, "userinfo_unavailable"},
	{ErrLinkingRequired, "linking_required"},
	{ErrUnknownProvider, "unknown_provider"},
	{ErrRedirectURINotAllowed, "redirect_uri_not_allowed"},
	{ErrRedirectURIMismatch, "redirect_uri_mismatch"},
}

// ErrorCode returns the stable machine readable code for an error of the
// taxonomy, or "internal_error" for anything else.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}

	return "internal_error"
}
