package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/domain"
	"github.com/pilab-dev/exam-sso/internal/federation"
	"github.com/pilab-dev/exam-sso/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Audit actions recorded by the session service.
const (
	ActionLogin       = "auth.login"
	ActionSSOInitiate = "auth.sso_initiate"
	ActionSSOLogin    = "auth.sso_login"
	ActionRefresh     = "session.refresh"
	ActionLogout      = "session.logout"
	ActionRevokeUser  = "session.revoke_user"
)

// SSOLogin is the outcome of a successful SSO callback.
type SSOLogin struct {
	Pair        *examsso.TokenPair
	User        *domain.User
	Provider    string
	Resolution  federation.Resolution
	RedirectURI string
}

// SessionService drives the login, refresh, SSO and logout flows. Every failed
// flow produces exactly one audit event.
type SessionService struct {
	credentials *examsso.CredentialVerifier
	tokens      *examsso.TokenService
	refresh     *examsso.RefreshTokenManager
	sso         *federation.Service
	users       domain.UserRepository
	audit       domain.AuditSink
	redirects   *RedirectPolicy
	now         func() time.Time
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	credentials *examsso.CredentialVerifier,
	tokens *examsso.TokenService,
	refresh *examsso.RefreshTokenManager,
	sso *federation.Service,
	users domain.UserRepository,
	audit domain.AuditSink,
	redirects *RedirectPolicy,
) *SessionService {
	if redirects == nil {
		redirects = NewRedirectPolicy(nil)
	}

	return &SessionService{
		credentials: credentials,
		tokens:      tokens,
		refresh:     refresh,
		sso:         sso,
		users:       users,
		audit:       audit,
		redirects:   redirects,
		now:         time.Now,
	}
}

// Login authenticates with email and password and starts a new session chain.
func (s *SessionService) Login(ctx context.Context, email, password string) (*examsso.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	log.Debug().Str("email", email).Msg("Login attempt")

	f := newFlow(FlowIdle)
	f.must(FlowCredentialsSubmitted)

	user, err := s.credentials.Verify(ctx, email, password)
	if err != nil {
		f.must(FlowLoginFailed)
		log.Warn().Err(err).Str("email", email).Msg("Login: credential verification failed")
		metrics.LoginFailureTotal.WithLabelValues("password", examsso.ErrorCode(err)).Inc()
		s.recordFailure(ctx, f, domain.AuditCategoryAuthentication, ActionLogin, email, err, nil)

		return nil, err
	}
	f.must(FlowVerified)

	pair, err := s.tokens.IssueTokenPair(ctx, user)
	if err != nil {
		f.must(FlowLoginFailed)
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Login: failed to issue tokens")
		metrics.LoginFailureTotal.WithLabelValues("password", examsso.ErrorCode(err)).Inc()
		s.recordFailure(ctx, f, domain.AuditCategoryAuthentication, ActionLogin, user.Subject(), err, nil)

		return nil, err
	}
	f.must(FlowTokensIssued)

	s.loggedIn(ctx, user)
	s.record(ctx, domain.AuditEvent{
		Category: domain.AuditCategoryAuthentication,
		Severity: domain.AuditSeverityInfo,
		Action:   ActionLogin,
		Actor:    user.Subject(),
		Success:  true,
		Details: map[string]any{
			"method":   "password",
			"chain_id": pair.ChainID,
		},
	})

	log.Info().Int64("user_id", user.ID).Str("chain_id", pair.ChainID).Msg("Login successful")

	return pair, nil
}

// Refresh rotates a refresh token. A replayed token revokes its whole chain;
// that case is audited by the RefreshTokenManager itself.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*examsso.TokenPair, error) {
	f := newFlow(FlowTokensIssued)
	f.must(FlowRotationRequested)

	result, err := s.refresh.Rotate(ctx, refreshToken)
	if err != nil {
		details := map[string]any{}
		if refreshToken != "" {
			details["token"] = examsso.TokenFingerprint(examsso.HashToken(refreshToken))
		}

		if errors.Is(err, examsso.ErrTokenReuseDetected) {
			f.must(FlowReplayDetected)
		} else {
			f.must(FlowRotationFailed)
			log.Warn().Err(err).Interface("details", details).Msg("Refresh: rotation failed")
		}
		s.recordFailure(ctx, f, domain.AuditCategorySession, ActionRefresh, "", err, details)

		return nil, err
	}
	f.must(FlowRotationSucceeded)

	return result.Pair, nil
}

// InitiateSSO issues a state for provider and returns the authorization URL
// the browser should be sent to.
func (s *SessionService) InitiateSSO(ctx context.Context, provider, redirectURI string) (string, error) {
	f := newFlow(FlowIdle)

	redirect, err := s.redirects.Check(redirectURI)
	if err == nil {
		var authURL string
		authURL, _, err = s.sso.InitiateLogin(ctx, provider, redirect)
		if err == nil {
			f.must(FlowStateIssued)
			log.Debug().Str("provider", provider).Msg("SSO login initiated")

			return authURL, nil
		}
	}

	f.must(FlowSSOFailed)
	log.Warn().Err(err).Str("provider", provider).Msg("SSO initiation failed")
	s.recordFailure(ctx, f, domain.AuditCategoryAuthentication, ActionSSOInitiate, "", err, map[string]any{
		"provider":     provider,
		"redirect_uri": redirectURI,
	})

	return "", err
}

// HandleSSOCallback completes an SSO login: it validates the callback, resolves
// the local user and starts a new session chain.
func (s *SessionService) HandleSSOCallback(ctx context.Context, provider string, data domain.SSOCallbackData) (*SSOLogin, error) {
	f := newFlow(FlowStateIssued)

	result, err := s.sso.HandleCallback(ctx, provider, data)
	if err != nil {
		stage, ok := federation.FailedStage(err)
		if !ok {
			stage = federation.StageCallbackReceived
		}
		f.replayUntil(stage)

		details := map[string]any{
			"provider": provider,
			"stage":    string(stage),
		}
		var providerErr *examsso.ProviderError
		if errors.As(err, &providerErr) {
			details["provider_error"] = providerErr.Code
		}

		return nil, s.ssoFailed(ctx, f, provider, "", err, details)
	}
	f.replayUntil("")

	pair, err := s.tokens.IssueTokenPair(ctx, result.User)
	if err != nil {
		log.Error().Err(err).Int64("user_id", result.User.ID).Msg("SSO: failed to issue tokens")

		return nil, s.ssoFailed(ctx, f, provider, result.User.Subject(), err, map[string]any{
			"provider":         provider,
			"provider_subject": result.UserInfo.ProviderUserID,
		})
	}
	f.must(FlowTokensIssued)

	metrics.SSOCallbacksTotal.WithLabelValues(provider, "success").Inc()
	s.loggedIn(ctx, result.User)
	s.record(ctx, domain.AuditEvent{
		Category: domain.AuditCategoryAuthentication,
		Severity: domain.AuditSeverityInfo,
		Action:   ActionSSOLogin,
		Actor:    result.User.Subject(),
		Success:  true,
		Details: map[string]any{
			"method":           "sso",
			"provider":         provider,
			"provider_subject": result.UserInfo.ProviderUserID,
			"resolution":       string(result.Resolution),
			"chain_id":         pair.ChainID,
		},
	})

	log.Info().
		Int64("user_id", result.User.ID).
		Str("provider", provider).
		Str("resolution", string(result.Resolution)).
		Msg("SSO login successful")

	return &SSOLogin{
		Pair:        pair,
		User:        result.User,
		Provider:    provider,
		Resolution:  result.Resolution,
		RedirectURI: result.RedirectURI,
	}, nil
}

func (s *SessionService) ssoFailed(ctx context.Context, f *flow, provider, actor string, err error, details map[string]any) error {
	f.must(FlowSSOFailed)

	// Provider names come from the URL path; keep the label set bounded.
	label := provider
	if errors.Is(err, examsso.ErrUnknownProvider) {
		label = "unknown"
	}
	code := examsso.ErrorCode(err)
	metrics.SSOCallbacksTotal.WithLabelValues(label, code).Inc()
	metrics.LoginFailureTotal.WithLabelValues("sso", code).Inc()

	log.Warn().Err(err).Str("provider", provider).Interface("details", details).Msg("SSO callback failed")
	s.recordFailure(ctx, f, domain.AuditCategoryAuthentication, ActionSSOLogin, actor, err, details)

	return err
}

// Logout revokes the chain of refreshToken, or every chain of its owner when
// allSessions is set. Unknown and already revoked tokens are not an error.
func (s *SessionService) Logout(ctx context.Context, refreshToken string, allSessions bool) error {
	f := newFlow(FlowTokensIssued)
	f.must(FlowLogoutRequested)

	token, err := s.refresh.Lookup(ctx, refreshToken)
	if errors.Is(err, examsso.ErrTokenNotFound) {
		f.must(FlowLoggedOut)
		log.Debug().Msg("Logout: token unknown, nothing to revoke")

		return nil
	}
	if err != nil {
		f.must(FlowLogoutFailed)
		s.recordFailure(ctx, f, domain.AuditCategorySession, ActionLogout, "", err, nil)

		return err
	}

	details := map[string]any{
		"chain_id":     token.ChainID,
		"all_sessions": allSessions,
	}

	var revoked int64
	if allSessions {
		revoked, err = s.refresh.RevokeUser(ctx, token.UserID, domain.RevokeReasonLogout)
	} else {
		revoked, err = s.refresh.RevokeChain(ctx, token.ChainID, domain.RevokeReasonLogout)
	}
	actor := strconv.FormatInt(token.UserID, 10)
	if err != nil {
		f.must(FlowLogoutFailed)
		log.Error().Err(err).Int64("user_id", token.UserID).Str("chain_id", token.ChainID).Msg("Logout: revocation failed")
		s.recordFailure(ctx, f, domain.AuditCategorySession, ActionLogout, actor, err, details)

		return err
	}
	f.must(FlowLoggedOut)

	details["revoked_tokens"] = revoked
	s.record(ctx, domain.AuditEvent{
		Category: domain.AuditCategorySession,
		Severity: domain.AuditSeverityInfo,
		Action:   ActionLogout,
		Actor:    actor,
		Success:  true,
		Details:  details,
	})

	log.Info().Int64("user_id", token.UserID).Bool("all_sessions", allSessions).Int64("revoked", revoked).Msg("Logout successful")

	return nil
}

// RevokeUserSessions ends every session of userID on behalf of operator, the
// subject of the proctor or admin asking for it.
func (s *SessionService) RevokeUserSessions(ctx context.Context, operator string, userID int64) (int64, error) {
	details := map[string]any{"user_id": userID}

	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.record(ctx, domain.AuditEvent{
				Category: domain.AuditCategorySession,
				Severity: domain.AuditSeverityMedium,
				Action:   ActionRevokeUser,
				Actor:    operator,
				Error:    err.Error(),
				Details:  details,
			})
		}

		return 0, err
	}

	revoked, err := s.refresh.RevokeUser(ctx, userID, domain.RevokeReasonAdmin)
	if err != nil {
		s.record(ctx, domain.AuditEvent{
			Category: domain.AuditCategorySession,
			Severity: domain.AuditSeverityMedium,
			Action:   ActionRevokeUser,
			Actor:    operator,
			Error:    err.Error(),
			Details:  details,
		})

		return 0, err
	}

	details["revoked_tokens"] = revoked
	s.record(ctx, domain.AuditEvent{
		Category: domain.AuditCategorySession,
		Severity: domain.AuditSeverityMedium,
		Action:   ActionRevokeUser,
		Actor:    operator,
		Success:  true,
		Details:  details,
	})

	log.Info().Str("operator", operator).Int64("user_id", userID).Int64("revoked", revoked).Msg("User sessions revoked")

	return revoked, nil
}

// loggedIn updates counters and the user's last login time. A failed update
// does not fail the login.
func (s *SessionService) loggedIn(ctx context.Context, user *domain.User) {
	metrics.LoginSuccessTotal.Inc()

	if err := s.users.UpdateLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to update last login time")
	}
}

// recordFailure emits the audit event of a failed flow. Reuse detection is
// recorded by the RefreshTokenManager as a security event, so it is skipped
// here to keep a single event per failure.
func (s *SessionService) recordFailure(
	ctx context.Context,
	f *flow,
	category domain.AuditCategory,
	action, actor string,
	err error,
	details map[string]any,
) {
	if errors.Is(err, examsso.ErrTokenReuseDetected) {
		return
	}

	if details == nil {
		details = map[string]any{}
	}
	details["reason"] = examsso.ErrorCode(err)
	details["flow"] = f.trail()

	s.record(ctx, domain.AuditEvent{
		Category: category,
		Severity: severityOf(err),
		Action:   action,
		Actor:    actor,
		Success:  false,
		Error:    err.Error(),
		Details:  details,
	})
}

func (s *SessionService) record(ctx context.Context, event domain.AuditEvent) {
	event.ID = uuid.NewString()
	event.Timestamp = s.now().UTC()

	if info, ok := domain.ClientInfoFromContext(ctx); ok {
		if event.Details == nil {
			event.Details = map[string]any{}
		}
		event.Details["client_ip"] = info.IP
		event.Details["user_agent"] = info.UserAgent
	}

	if err := s.audit.Record(ctx, event); err != nil {
		metrics.AuditSinkFailuresTotal.Inc()
		log.Error().Err(err).Str("action", event.Action).Msg("Failed to record audit event")
	}
}

func severityOf(err error) domain.AuditSeverity {
	switch {
	case errors.Is(err, examsso.ErrInvalidRequest):
		return domain.AuditSeverityInfo
	case errors.Is(err, examsso.ErrStateAlreadyUsed),
		errors.Is(err, examsso.ErrRedirectURIMismatch):
		return domain.AuditSeverityHigh
	default:
		return domain.AuditSeverityMedium
	}
}
