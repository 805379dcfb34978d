package examsso

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pilab-dev/exam-sso/domain"
	"github.com/pilab-dev/exam-sso/internal/metrics"
	"github.com/rs/zerolog/log"
)

const TokenTypeBearer = "Bearer"

// AccessClaims is the claim set of an access token.
type AccessClaims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// UserID parses the numeric user id from the subject.
func (c *AccessClaims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed subject", ErrInvalidAccessToken)
	}

	return id, nil
}

// TokenPair is what a successful login, refresh or SSO callback hands out.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int
	ExpiresAt    time.Time
	ChainID      string
}

// TokenServiceConfig holds the lifetimes and claims of issued tokens.
type TokenServiceConfig struct {
	Issuer   string
	Audience string

	AccessTokenTTL time.Duration
	// RefreshTokenTTL is the validity of a single refresh token.
	RefreshTokenTTL time.Duration
	// SessionMaxLifetime bounds a whole rotation chain, counted from login.
	SessionMaxLifetime time.Duration
}

// TokenService handles token generation and validation
type TokenService struct {
	signer *TokenSigner
	tokens domain.RefreshTokenRepository
	cfg    TokenServiceConfig
	now    func() time.Time
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signer *TokenSigner, tokens domain.RefreshTokenRepository, cfg TokenServiceConfig) *TokenService {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.SessionMaxLifetime < cfg.RefreshTokenTTL {
		cfg.SessionMaxLifetime = cfg.RefreshTokenTTL
	}

	return &TokenService{
		signer: signer,
		tokens: tokens,
		cfg:    cfg,
		now:    time.Now,
	}
}

// AccessTokenTTL returns the configured access token lifetime.
func (s *TokenService) AccessTokenTTL() time.Duration {
	return s.cfg.AccessTokenTTL
}

// IssueAccessToken signs a short-lived access token for the user. It has no
// side effects.
func (s *TokenService) IssueAccessToken(user *domain.User) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.cfg.AccessTokenTTL)

	claims := &AccessClaims{
		Email: user.Email,
		Roles: user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.cfg.Issuer,
			Subject:   user.Subject(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if s.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.Audience}
	}

	signed, err := s.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to issue access token: %w", err)
	}

	return signed, expiresAt, nil
}

// IssueRefreshToken starts a new rotation chain for the user and persists its
// first token. The returned string is the only copy of the token value.
func (s *TokenService) IssueRefreshToken(ctx context.Context, user *domain.User) (string, *domain.RefreshToken, error) {
	now := s.now().UTC()

	value, err := GenerateOpaqueToken()
	if err != nil {
		return "", nil, err
	}

	chainExpiresAt := now.Add(s.cfg.SessionMaxLifetime)
	record := &domain.RefreshToken{
		Hash:           HashToken(value),
		UserID:         user.ID,
		ChainID:        uuid.NewString(),
		IssuedAt:       now,
		ExpiresAt:      minTime(now.Add(s.cfg.RefreshTokenTTL), chainExpiresAt),
		ChainExpiresAt: chainExpiresAt,
	}

	if err := s.tokens.Create(ctx, record); err != nil {
		return "", nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	metrics.RefreshTokensIssuedTotal.WithLabelValues("new_chain").Inc()

	return value, record, nil
}

// NextRefreshToken builds the successor of parent within the same chain. The
// record is not persisted; the rotation stores it together with marking the
// parent used. Its validity never extends past the chain's outer bound.
func (s *TokenService) NextRefreshToken(parent *domain.RefreshToken) (string, *domain.RefreshToken, error) {
	now := s.now().UTC()

	value, err := GenerateOpaqueToken()
	if err != nil {
		return "", nil, err
	}

	return value, &domain.RefreshToken{
		Hash:           HashToken(value),
		UserID:         parent.UserID,
		ChainID:        parent.ChainID,
		ParentHash:     parent.Hash,
		IssuedAt:       now,
		ExpiresAt:      minTime(now.Add(s.cfg.RefreshTokenTTL), parent.ChainExpiresAt),
		ChainExpiresAt: parent.ChainExpiresAt,
	}, nil
}

// IssueTokenPair mints an access token and a refresh token that starts a new
// chain. The access token is signed first so a signing failure leaves no
// refresh token behind.
func (s *TokenService) IssueTokenPair(ctx context.Context, user *domain.User) (*TokenPair, error) {
	access, expiresAt, err := s.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	refresh, record, err := s.IssueRefreshToken(ctx, user)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int64("user_id", user.ID).
		Str("chain_id", record.ChainID).
		Msg("issued token pair for new session")

	return s.pair(access, expiresAt, refresh, record.ChainID), nil
}

func (s *TokenService) pair(access string, expiresAt time.Time, refresh, chainID string) *TokenPair {
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		ExpiresAt:    expiresAt,
		ChainID:      chainID,
	}
}

// ValidateAccessToken verifies signature, expiry, issuer and audience.
func (s *TokenService) ValidateAccessToken(tokenString string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	if s.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.cfg.Audience))
	}

	claims := &AccessClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, s.signer.Keyfunc, opts...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}

	return claims, nil
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}

	return b
}
