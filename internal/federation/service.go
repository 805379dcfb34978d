package federation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/domain"
	"github.com/pilab-dev/exam-sso/internal/oidcflow"
	"github.com/rs/zerolog/log"
)

// DefaultProviderTimeout bounds each call to a provider.
const DefaultProviderTimeout = 10 * time.Second

// Stage names the step of the SSO callback where processing stopped.
type Stage string

const (
	StageCallbackReceived Stage = "callback_received"
	StageStateValidated   Stage = "state_validated"
	StageCodeExchanged    Stage = "code_exchanged"
	StageUserResolved     Stage = "user_resolved"
)

// CallbackError reports the stage at which a callback failed. The wrapped
// error is one of the examsso taxonomy errors.
type CallbackError struct {
	Stage Stage
	Err   error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("sso callback failed at %s: %v", e.Stage, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// CallbackResult is the outcome of a successful callback.
type CallbackResult struct {
	User        *domain.User
	UserInfo    *ExternalUserInfo
	Resolution  Resolution
	RedirectURI string
}

// Service handles the core logic for OAuth2 federation.
type Service struct {
	mu              sync.RWMutex
	providers       map[string]IdentityProvider
	states          *oidcflow.StateManager
	resolver        *Resolver
	callbackBaseURL string
	timeout         time.Duration
}

// NewService creates a new federation Service. callbackBaseURL is where
// providers send the user back, e.g. "https://sso.example.com/auth/sso"; the
// provider name and "/callback" are appended.
func NewService(states *oidcflow.StateManager, resolver *Resolver, callbackBaseURL string, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}

	return &Service{
		providers:       make(map[string]IdentityProvider),
		states:          states,
		resolver:        resolver,
		callbackBaseURL: strings.TrimSuffix(callbackBaseURL, "/"),
		timeout:         timeout,
	}
}

// RegisterProvider adds a provider under its name.
func (s *Service) RegisterProvider(provider IdentityProvider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.providers[provider.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrProviderRegistered, provider.Name())
	}
	s.providers[provider.Name()] = provider

	return nil
}

// GetProvider returns the registered provider or examsso.ErrUnknownProvider.
func (s *Service) GetProvider(name string) (IdentityProvider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	provider, ok := s.providers[name]
	if !ok {
		return nil, examsso.ErrUnknownProvider
	}

	return provider, nil
}

// ProviderNames lists the registered providers.
func (s *Service) ProviderNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// CallbackURL is the redirect URL registered at the provider,
// e.g. https://sso.example.com/auth/sso/google/callback
func (s *Service) CallbackURL(providerName string) string {
	return fmt.Sprintf("%s/%s/callback", s.callbackBaseURL, url.PathEscape(providerName))
}

// InitiateLogin issues a state bound to the provider and returns the
// authorization URL embedding it.
func (s *Service) InitiateLogin(ctx context.Context, providerName, redirectURI string) (string, *domain.SSOState, error) {
	provider, err := s.GetProvider(providerName)
	if err != nil {
		return "", nil, err
	}

	state, err := s.states.IssueState(ctx, providerName, redirectURI)
	if err != nil {
		return "", nil, err
	}

	return provider.AuthCodeURL(state.State, s.CallbackURL(providerName)), state, nil
}

// HandleCallback processes the provider's redirect. Nothing is sent to the
// provider unless the callback carries no error and a valid, unused,
// unexpired state issued for this provider.
func (s *Service) HandleCallback(ctx context.Context, providerName string, data domain.SSOCallbackData) (*CallbackResult, error) {
	provider, err := s.GetProvider(providerName)
	if err != nil {
		return nil, &CallbackError{Stage: StageCallbackReceived, Err: err}
	}

	if data.Error != "" {
		return nil, &CallbackError{
			Stage: StageCallbackReceived,
			Err:   &examsso.ProviderError{Code: data.Error, Description: data.ErrorDescription},
		}
	}
	if data.Code == "" || data.State == "" {
		return nil, &CallbackError{
			Stage: StageCallbackReceived,
			Err:   fmt.Errorf("%w: code and state are required", examsso.ErrInvalidRequest),
		}
	}

	state, err := s.states.Consume(ctx, providerName, data.State)
	if err != nil {
		return nil, &CallbackError{Stage: StageStateValidated, Err: err}
	}
	if data.RedirectURI != "" && data.RedirectURI != state.RedirectURI {
		return nil, &CallbackError{Stage: StageStateValidated, Err: examsso.ErrRedirectURIMismatch}
	}

	info, err := s.exchange(ctx, provider, data.Code)
	if err != nil {
		return nil, &CallbackError{Stage: StageCodeExchanged, Err: err}
	}

	user, resolution, err := s.resolver.Resolve(ctx, providerName, info)
	if err != nil {
		return nil, &CallbackError{Stage: StageUserResolved, Err: err}
	}

	return &CallbackResult{
		User:        user,
		UserInfo:    info,
		Resolution:  resolution,
		RedirectURI: state.RedirectURI,
	}, nil
}

// exchange trades the code for tokens and reads the user info. Each provider
// call gets its own deadline. Provider failures are logged here with full
// detail and returned as taxonomy errors.
func (s *Service) exchange(ctx context.Context, provider IdentityProvider, code string) (*ExternalUserInfo, error) {
	exchangeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	token, err := provider.ExchangeCode(exchangeCtx, s.CallbackURL(provider.Name()), code)
	if err != nil {
		log.Error().Err(err).Str("provider", provider.Name()).Msg("authorization code exchange failed")
		return nil, fmt.Errorf("%w: %v", examsso.ErrTokenExchangeFailed, err)
	}

	userInfoCtx, cancelUserInfo := context.WithTimeout(ctx, s.timeout)
	defer cancelUserInfo()

	info, err := provider.FetchUserInfo(userInfoCtx, token)
	if err != nil {
		log.Error().Err(err).Str("provider", provider.Name()).Msg("failed to fetch provider user info")
		return nil, fmt.Errorf("%w: %v", examsso.ErrUserInfoUnavailable, err)
	}
	if info == nil || info.ProviderUserID == "" {
		return nil, fmt.Errorf("%w: provider returned no subject", examsso.ErrUserInfoUnavailable)
	}

	return info, nil
}

// FailedStage extracts the stage from a HandleCallback error.
func FailedStage(err error) (Stage, bool) {
	var cbErr *CallbackError
	if errors.As(err, &cbErr) {
		return cbErr.Stage, true
	}

	return "", false
}
