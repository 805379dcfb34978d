package federation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/domain"
	"github.com/rs/zerolog/log"
)

// LinkingPolicy decides what happens when a provider identity matches no
// local account.
type LinkingPolicy string

const (
	// LinkingPolicyAutoProvision creates a local user for the identity.
	LinkingPolicyAutoProvision LinkingPolicy = "auto_provision"
	// LinkingPolicyRequireLinking refuses the login until an administrator
	// links the identity to an account.
	LinkingPolicyRequireLinking LinkingPolicy = "require_linking"
)

// ParseLinkingPolicy validates a configured policy name.
func ParseLinkingPolicy(s string) (LinkingPolicy, error) {
	switch p := LinkingPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case LinkingPolicyAutoProvision, LinkingPolicyRequireLinking:
		return p, nil
	default:
		return "", fmt.Errorf("unknown linking policy %q", s)
	}
}

// Resolution tells how a provider identity was mapped to a local user.
type Resolution string

const (
	ResolutionLinked      Resolution = "linked"
	ResolutionEmailMatch  Resolution = "email_match"
	ResolutionProvisioned Resolution = "provisioned"
)

// Resolver maps provider identities to local users.
type Resolver struct {
	users        domain.UserRepository
	identities   domain.FederatedIdentityRepository
	policy       LinkingPolicy
	defaultRoles []string
}

// NewResolver creates a Resolver. defaultRoles are given to provisioned users.
func NewResolver(
	users domain.UserRepository,
	identities domain.FederatedIdentityRepository,
	policy LinkingPolicy,
	defaultRoles []string,
) *Resolver {
	return &Resolver{
		users:        users,
		identities:   identities,
		policy:       policy,
		defaultRoles: defaultRoles,
	}
}

// Resolve matches by provider subject first, then by verified email. With no
// match it provisions a user or fails with ErrLinkingRequired, depending on
// the policy. Inactive accounts fail with ErrAccountInactive.
func (r *Resolver) Resolve(ctx context.Context, provider string, info *ExternalUserInfo) (*domain.User, Resolution, error) {
	user, resolution, err := r.resolve(ctx, provider, info)
	if err != nil {
		return nil, "", err
	}

	if !user.IsActive() {
		return nil, "", examsso.ErrAccountInactive
	}

	return user, resolution, nil
}

func (r *Resolver) resolve(ctx context.Context, provider string, info *ExternalUserInfo) (*domain.User, Resolution, error) {
	identity, err := r.identities.GetByProviderUserID(ctx, provider, info.ProviderUserID)
	switch {
	case err == nil:
		user, err := r.users.GetUserByID(ctx, identity.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Dangling link: the account was removed.
				return nil, "", examsso.ErrAccountInactive
			}
			return nil, "", fmt.Errorf("failed to load linked user: %w", err)
		}
		return user, ResolutionLinked, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, "", fmt.Errorf("failed to look up federated identity: %w", err)
	}

	if info.Email != "" && info.EmailVerified {
		user, err := r.users.GetUserByEmail(ctx, info.Email)
		switch {
		case err == nil:
			if !user.IsActive() {
				return nil, "", examsso.ErrAccountInactive
			}
			if err := r.link(ctx, provider, info, user.ID); err != nil {
				return nil, "", err
			}
			return user, ResolutionEmailMatch, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, "", fmt.Errorf("failed to look up user by email: %w", err)
		}
	}

	if r.policy != LinkingPolicyAutoProvision {
		return nil, "", examsso.ErrLinkingRequired
	}

	return r.provision(ctx, provider, info)
}

func (r *Resolver) provision(ctx context.Context, provider string, info *ExternalUserInfo) (*domain.User, Resolution, error) {
	if info.Email == "" {
		return nil, "", fmt.Errorf("%w: provider supplied no email", examsso.ErrUserInfoUnavailable)
	}

	user := &domain.User{
		Email:         info.Email,
		DisplayName:   info.Name(),
		Roles:         append([]string(nil), r.defaultRoles...),
		EmailVerified: info.EmailVerified,
		Status:        domain.UserStatusActive,
	}
	if err := r.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// The email belongs to an account we could not match safely.
			return nil, "", examsso.ErrLinkingRequired
		}
		return nil, "", fmt.Errorf("failed to provision user: %w", err)
	}

	if err := r.link(ctx, provider, info, user.ID); err != nil {
		// The account stays. A later login with a verified email links it
		// through the email match.
		log.Error().Err(err).
			Int64("user_id", user.ID).
			Str("provider", provider).
			Msg("provisioned user from sso identity but failed to link it")

		return nil, "", err
	}

	log.Info().
		Int64("user_id", user.ID).
		Str("provider", provider).
		Msg("provisioned user from sso identity")

	return user, ResolutionProvisioned, nil
}

func (r *Resolver) link(ctx context.Context, provider string, info *ExternalUserInfo, userID int64) error {
	err := r.identities.Create(ctx, &domain.UserFederatedIdentity{
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: info.ProviderUserID,
		ProviderEmail:  info.Email,
	})
	if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		return fmt.Errorf("failed to link federated identity: %w", err)
	}

	return nil
}
