package services

import (
	"fmt"
	"net/url"
	"strings"

	examsso "github.com/pilab-dev/exam-sso"
)

// RedirectPolicy decides where a finished SSO login may send the browser.
// Relative paths are always allowed. Absolute URLs must start with one of the
// allowed prefixes.
type RedirectPolicy struct {
	allowed []string
}

// NewRedirectPolicy creates a policy from a list of allowed URL prefixes.
func NewRedirectPolicy(allowed []string) *RedirectPolicy {
	p := &RedirectPolicy{}
	for _, a := range allowed {
		if a = strings.TrimSpace(a); a != "" {
			p.allowed = append(p.allowed, a)
		}
	}

	return p
}

// Check validates redirectURI. An empty value is allowed and means "/".
func (p *RedirectPolicy) Check(redirectURI string) (string, error) {
	if redirectURI == "" {
		return "/", nil
	}

	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("%w: %v", examsso.ErrRedirectURINotAllowed, err)
	}

	if !u.IsAbs() && u.Host == "" {
		// "//evil.com" parses as host-relative; only plain paths pass.
		if strings.HasPrefix(redirectURI, "/") && !strings.HasPrefix(redirectURI, "//") &&
			!strings.HasPrefix(redirectURI, "/\\") {
			return redirectURI, nil
		}

		return "", examsso.ErrRedirectURINotAllowed
	}

	for _, prefix := range p.allowed {
		if matchesPrefix(redirectURI, prefix) {
			return redirectURI, nil
		}
	}

	return "", examsso.ErrRedirectURINotAllowed
}

// matchesPrefix requires the match to end on a URL boundary, so the prefix
// "https://app.example.com" does not admit "https://app.example.com.evil.io".
func matchesPrefix(uri, prefix string) bool {
	if !strings.HasPrefix(uri, prefix) {
		return false
	}
	if len(uri) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}

	switch uri[len(prefix)] {
	case '/', '?', '#':
		return true
	}

	return false
}
