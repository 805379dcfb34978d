package federation_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/domain"
	"github.com/pilab-dev/exam-sso/internal/federation"
	mock_federation "github.com/pilab-dev/exam-sso/internal/federation/mock"
	"github.com/pilab-dev/exam-sso/internal/memstore"
	"github.com/pilab-dev/exam-sso/internal/oidcflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/oauth2"
)

const callbackURL = "https://sso.exam.test/auth/sso/mockprov/callback"

type serviceFixture struct {
	service  *federation.Service
	provider *mock_federation.MockIdentityProvider
	states   *oidcflow.StateManager
	store    *oidcflow.InMemoryStateStore
	users    *memstore.UserStore
}

func newServiceFixture(t *testing.T, policy federation.LinkingPolicy) *serviceFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	store := oidcflow.NewInMemoryStateStore(time.Hour)
	t.Cleanup(store.Close)

	f := &serviceFixture{
		provider: mock_federation.NewMockIdentityProvider(ctrl),
		states:   oidcflow.NewStateManager(store, 10*time.Minute),
		store:    store,
		users:    memstore.NewUserStore(),
	}
	resolver := federation.NewResolver(f.users, memstore.NewFederatedIdentityStore(), policy, []string{"student"})
	f.service = federation.NewService(f.states, resolver, "https://sso.exam.test/auth/sso/", time.Second)

	f.provider.EXPECT().Name().Return("mockprov").AnyTimes()
	require.NoError(t, f.service.RegisterProvider(f.provider))

	return f
}

func TestService_InitiateLogin(t *testing.T) {
	f := newServiceFixture(t, federation.LinkingPolicyAutoProvision)

	f.provider.EXPECT().
		AuthCodeURL(gomock.Any(), callbackURL).
		DoAndReturn(func(state, redirectURL string) string {
			return "https://idp.example/auth?state=" + url.QueryEscape(state)
		})

	authURL, state, err := f.service.InitiateLogin(context.Background(), "mockprov", "/exams/7")
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example/auth?state="+url.QueryEscape(state.State), authURL)
	assert.Equal(t, "/exams/7", state.RedirectURI)
	assert.Equal(t, "mockprov", state.Provider)

	_, _, err = f.service.InitiateLogin(context.Background(), "unknown", "/")
	assert.ErrorIs(t, err, examsso.ErrUnknownProvider)
}

func TestService_RegisterProviderTwice(t *testing.T) {
	f := newServiceFixture(t, federation.LinkingPolicyAutoProvision)

	err := f.service.RegisterProvider(f.provider)
	assert.ErrorIs(t, err, federation.ErrProviderRegistered)
	assert.Equal(t, []string{"mockprov"}, f.service.ProviderNames())
}

func TestService_ProviderNamesSorted(t *testing.T) {
	f := newServiceFixture(t, federation.LinkingPolicyAutoProvision)
	ctrl := gomock.NewController(t)

	for _, name := range []string{"zeta", "alpha", "github"} {
		p := mock_federation.NewMockIdentityProvider(ctrl)
		p.EXPECT().Name().Return(name).AnyTimes()
		require.NoError(t, f.service.RegisterProvider(p))
	}

	assert.Equal(t, []string{"alpha", "github", "mockprov", "zeta"}, f.service.ProviderNames())
}

func TestService_HandleCallback_Success(t *testing.T) {
	f := newServiceFixture(t, federation.LinkingPolicyAutoProvision)
	ctx := context.Background()

	state, err := f.states.IssueState(ctx, "mockprov", "/dashboard")
	require.NoError(t, err)

	token := &oauth2.Token{AccessToken: "provider-access"}
	f.provider.EXPECT().ExchangeCode(gomock.Any(), callbackURL, "auth-code").Return(token, nil)
	f.provider.EXPECT().FetchUserInfo(gomock.Any(), token).Return(&federation.ExternalUserInfo{
		ProviderUserID: "ext-123",
		Email:          "new@x.com",
		EmailVerified:  true,
		DisplayName:    "New Student",
	}, nil)

	result, err := f.service.HandleCallback(ctx, "mockprov", domain.SSOCallbackData{Code: "auth-code", State: state.State})
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", result.RedirectURI)
	assert.Equal(t, federation.ResolutionProvisioned, result.Resolution)
	assert.Equal(t, "new@x.com", result.User.Email)
	assert.Equal(t, []string{"student"}, result.User.Roles)

	// The state is spent.
	_, err = f.service.HandleCallback(ctx, "mockprov", domain.SSOCallbackData{Code: "auth-code", State: state.State})
	assert.ErrorIs(t, err, examsso.ErrStateAlreadyUsed)
	stage, ok := federation.FailedStage(err)
	require.True(t, ok)
	assert.Equal(t, federation.StageStateValidated, stage)
}

func TestService_HandleCallback_ProviderErrorSkipsExchange(t *testing.T) {
	f := newServiceFixture(t, federation.LinkingPolicyAutoProvision)
	ctx := context.Background()

	state, err := f.states.IssueState(ctx, "mockprov", "/")
	require.NoError(t, err)

	// No ExchangeCode expectation: gomock fails the test if it is called.
	_, err = f.service.HandleCallback(ctx, "mockprov", domain.SSOCallbackData{
		State:            state.State,
		Error:            "access_denied",
		ErrorDescription: "user cancelled",
	})
	require.ErrorIs(t, err, examsso.ErrProviderError)

	var providerErr *examsso.ProviderError
	require.True(t, errors.As(err, &providerErr))
	assert.Equal(t, "access_denied", providerErr.Code)
	assert.Equal(t, "user cancelled", providerErr.Description)

	// The state was not consumed by the failed callback.
	_, err = f.states.Consume(ctx, "mockprov", state.State)
	assert.NoError(t, err)
}

func TestService_HandleCallback_BadStateSkipsExchange(t *testing.T) {
	f := newServiceFixture(t, federation.LinkingPolicyAutoProvision)

	_, err := f.service.HandleCallback(context.Background(), "mockprov", domain.SSOCallbackData{Code: "c", State: "forged"})
	assert.ErrorIs(t, err, examsso.ErrStateNotFound)

	_, err = f.service.HandleCallback(context.Background(), "mockprov", domain.SSOCallbackData{State: "forged"})
	assert.ErrorIs(t, err, examsso.ErrInvalidRequest)

	issued := time.Now().UTC().Add(-11 * time.Minute)
	require.NoError(t, f.store.Save(context.Background(), &domain.SSOState{
		State:       "stale",
		Provider:    "mockprov",
		RedirectURI: "/",
		CreatedAt:   issued,
		ExpiresAt:   issued.Add(10 * time.Minute),
	}))

	_, err = f.service.HandleCallback(context.Background(), "mockprov", domain.SSOCallbackData{Code: "c", State: "stale"})
	assert.ErrorIs(t, err, examsso.ErrStateExpired)
	stage, ok := federation.FailedStage(err)
	require.True(t, ok)
	assert.Equal(t, federation.StageStateValidated, stage)
}

func TestService_HandleCallback_RedirectMismatch(t *testing.T) {
	f := newServiceFixture(t, federation.LinkingPolicyAutoProvision)
	ctx := context.Background()

	state, err := f.states.IssueState(ctx, "mockprov", "/exams")
	require.NoError(t, err)

	_, err = f.service.HandleCallback(ctx, "mockprov", domain.SSOCallbackData{
		Code:        "c",
		State:       state.State,
		RedirectURI: "https://evil.example/",
	})
	assert.ErrorIs(t, err, examsso.ErrRedirectURIMismatch)
}

func TestService_HandleCallback_UpstreamFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("exchange", func(t *testing.T) {
		f := newServiceFixture(t, federation.LinkingPolicyAutoProvision)
		state, err := f.states.IssueState(ctx, "mockprov", "/")
		require.NoError(t, err)

		f.provider.EXPECT().ExchangeCode(gomock.Any(), callbackURL, "c").Return(nil, errors.New("invalid_grant"))

		_, err = f.service.HandleCallback(ctx, "mockprov", domain.SSOCallbackData{Code: "c", State: state.State})
		assert.ErrorIs(t, err, examsso.ErrTokenExchangeFailed)
		stage, _ := federation.FailedStage(err)
		assert.Equal(t, federation.StageCodeExchanged, stage)
	})

	t.Run("userinfo", func(t *testing.T) {
		f := newServiceFixture(t, federation.LinkingPolicyAutoProvision)
		state, err := f.states.IssueState(ctx, "mockprov", "/")
		require.NoError(t, err)

		f.provider.EXPECT().ExchangeCode(gomock.Any(), callbackURL, "c").Return(&oauth2.Token{AccessToken: "a"}, nil)
		f.provider.EXPECT().FetchUserInfo(gomock.Any(), gomock.Any()).Return(nil, errors.New("503"))

		_, err = f.service.HandleCallback(ctx, "mockprov", domain.SSOCallbackData{Code: "c", State: state.State})
		assert.ErrorIs(t, err, examsso.ErrUserInfoUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		f := newServiceFixture(t, federation.LinkingPolicyAutoProvision)
		state, err := f.states.IssueState(ctx, "mockprov", "/")
		require.NoError(t, err)

		f.provider.EXPECT().ExchangeCode(gomock.Any(), callbackURL, "c").
			DoAndReturn(func(ctx context.Context, _, _ string) (*oauth2.Token, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})

		_, err = f.service.HandleCallback(ctx, "mockprov", domain.SSOCallbackData{Code: "c", State: state.State})
		assert.ErrorIs(t, err, examsso.ErrTokenExchangeFailed)
	})
}

func TestService_HandleCallback_LinkingRequired(t *testing.T) {
	f := newServiceFixture(t, federation.LinkingPolicyRequireLinking)
	ctx := context.Background()

	state, err := f.states.IssueState(ctx, "mockprov", "/")
	require.NoError(t, err)

	f.provider.EXPECT().ExchangeCode(gomock.Any(), callbackURL, "c").Return(&oauth2.Token{AccessToken: "a"}, nil)
	f.provider.EXPECT().FetchUserInfo(gomock.Any(), gomock.Any()).Return(&federation.ExternalUserInfo{
		ProviderUserID: "ext-9",
		Email:          "stranger@x.com",
		EmailVerified:  true,
	}, nil)

	_, err = f.service.HandleCallback(ctx, "mockprov", domain.SSOCallbackData{Code: "c", State: state.State})
	assert.ErrorIs(t, err, examsso.ErrLinkingRequired)
	stage, _ := federation.FailedStage(err)
	assert.Equal(t, federation.StageUserResolved, stage)
}
