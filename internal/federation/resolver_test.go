package federation_test

import (
	"context"
	"errors"
	"testing"

	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/domain"
	"github.com/pilab-dev/exam-sso/internal/federation"
	"github.com/pilab-dev/exam-sso/internal/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, policy federation.LinkingPolicy) (*federation.Resolver, *memstore.UserStore, *domain.User) {
		t.Helper()

		users := memstore.NewUserStore()
		existing := &domain.User{Email: "proctor@x.com", Status: domain.UserStatusActive, Roles: []string{"proctor"}}
		require.NoError(t, users.CreateUser(ctx, existing))

		return federation.NewResolver(users, memstore.NewFederatedIdentityStore(), policy, []string{"student"}), users, existing
	}

	t.Run("verified email links existing account, then subject matches", func(t *testing.T) {
		resolver, _, existing := setup(t, federation.LinkingPolicyRequireLinking)
		info := &federation.ExternalUserInfo{ProviderUserID: "sub-1", Email: "Proctor@x.com", EmailVerified: true}

		user, resolution, err := resolver.Resolve(ctx, "google", info)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, user.ID)
		assert.Equal(t, federation.ResolutionEmailMatch, resolution)

		// Same subject, email changed at the provider: still the linked account.
		info.Email = "renamed@x.com"
		user, resolution, err = resolver.Resolve(ctx, "google", info)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, user.ID)
		assert.Equal(t, federation.ResolutionLinked, resolution)
	})

	t.Run("unverified email never matches", func(t *testing.T) {
		resolver, _, _ := setup(t, federation.LinkingPolicyRequireLinking)

		_, _, err := resolver.Resolve(ctx, "google", &federation.ExternalUserInfo{
			ProviderUserID: "sub-2",
			Email:          "proctor@x.com",
		})
		assert.ErrorIs(t, err, examsso.ErrLinkingRequired)
	})

	t.Run("auto provision refuses to take over an unmatched existing email", func(t *testing.T) {
		resolver, _, _ := setup(t, federation.LinkingPolicyAutoProvision)

		_, _, err := resolver.Resolve(ctx, "google", &federation.ExternalUserInfo{
			ProviderUserID: "sub-3",
			Email:          "proctor@x.com",
		})
		assert.ErrorIs(t, err, examsso.ErrLinkingRequired)
	})

	t.Run("auto provision creates user once", func(t *testing.T) {
		resolver, users, _ := setup(t, federation.LinkingPolicyAutoProvision)
		info := &federation.ExternalUserInfo{ProviderUserID: "sub-4", Email: "fresh@x.com", EmailVerified: true, FirstName: "Fresh"}

		user, resolution, err := resolver.Resolve(ctx, "github", info)
		require.NoError(t, err)
		assert.Equal(t, federation.ResolutionProvisioned, resolution)
		assert.Equal(t, "Fresh", user.DisplayName)
		assert.True(t, user.EmailVerified)

		again, resolution, err := resolver.Resolve(ctx, "github", info)
		require.NoError(t, err)
		assert.Equal(t, user.ID, again.ID)
		assert.Equal(t, federation.ResolutionLinked, resolution)

		stored, err := users.GetUserByEmail(ctx, "fresh@x.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"student"}, stored.Roles)
	})

	t.Run("auto provision needs an email", func(t *testing.T) {
		resolver, _, _ := setup(t, federation.LinkingPolicyAutoProvision)

		_, _, err := resolver.Resolve(ctx, "github", &federation.ExternalUserInfo{ProviderUserID: "sub-5"})
		assert.ErrorIs(t, err, examsso.ErrUserInfoUnavailable)
	})

	t.Run("inactive account is not linked", func(t *testing.T) {
		users := memstore.NewUserStore()
		require.NoError(t, users.CreateUser(ctx, &domain.User{Email: "off@x.com", Status: domain.UserStatusDisabled}))
		identities := memstore.NewFederatedIdentityStore()
		resolver := federation.NewResolver(users, identities, federation.LinkingPolicyAutoProvision, nil)

		_, _, err := resolver.Resolve(ctx, "google", &federation.ExternalUserInfo{ProviderUserID: "sub-6", Email: "off@x.com", EmailVerified: true})
		assert.ErrorIs(t, err, examsso.ErrAccountInactive)

		_, err = identities.GetByProviderUserID(ctx, "google", "sub-6")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("failed link after provisioning is retried by email", func(t *testing.T) {
		users := memstore.NewUserStore()
		identities := &flakyIdentityStore{
			FederatedIdentityStore: memstore.NewFederatedIdentityStore(),
			failures:               1,
		}
		resolver := federation.NewResolver(users, identities, federation.LinkingPolicyAutoProvision, nil)
		info := &federation.ExternalUserInfo{ProviderUserID: "sub-7", Email: "half@x.com", EmailVerified: true}

		_, _, err := resolver.Resolve(ctx, "github", info)
		require.Error(t, err)

		provisioned, err := users.GetUserByEmail(ctx, "half@x.com")
		require.NoError(t, err)

		user, resolution, err := resolver.Resolve(ctx, "github", info)
		require.NoError(t, err)
		assert.Equal(t, provisioned.ID, user.ID)
		assert.Equal(t, federation.ResolutionEmailMatch, resolution)

		identity, err := identities.GetByProviderUserID(ctx, "github", "sub-7")
		require.NoError(t, err)
		assert.Equal(t, provisioned.ID, identity.UserID)
	})
}

type flakyIdentityStore struct {
	*memstore.FederatedIdentityStore
	failures int
}

func (s *flakyIdentityStore) Create(ctx context.Context, identity *domain.UserFederatedIdentity) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset")
	}

	return s.FederatedIdentityStore.Create(ctx, identity)
}

func TestParseLinkingPolicy(t *testing.T) {
	p, err := federation.ParseLinkingPolicy(" Auto_Provision ")
	require.NoError(t, err)
	assert.Equal(t, federation.LinkingPolicyAutoProvision, p)

	_, err = federation.ParseLinkingPolicy("guess")
	assert.Error(t, err)
}
