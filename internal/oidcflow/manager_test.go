package oidcflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*StateManager, *InMemoryStateStore) {
	t.Helper()

	store := NewInMemoryStateStore(time.Hour)
	t.Cleanup(store.Close)

	return NewStateManager(store, 10*time.Minute), store
}

func TestStateManager_ConsumeOnce(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	state, err := m.IssueState(ctx, "google", "/exams")
	require.NoError(t, err)
	assert.Len(t, state.State, 43)
	assert.Equal(t, state.CreatedAt.Add(10*time.Minute), state.ExpiresAt)

	consumed, err := m.Consume(ctx, "google", state.State)
	require.NoError(t, err)
	assert.Equal(t, "/exams", consumed.RedirectURI)
	assert.NotNil(t, consumed.UsedAt)

	for i := 0; i < 3; i++ {
		_, err = m.Consume(ctx, "google", state.State)
		assert.ErrorIs(t, err, examsso.ErrStateAlreadyUsed)
	}
}

func TestStateManager_Errors(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	t.Run("unknown", func(t *testing.T) {
		_, err := m.Consume(ctx, "google", "forged")
		assert.ErrorIs(t, err, examsso.ErrStateNotFound)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := m.Consume(ctx, "google", "")
		assert.ErrorIs(t, err, examsso.ErrStateNotFound)
	})

	t.Run("other provider", func(t *testing.T) {
		state, err := m.IssueState(ctx, "github", "/")
		require.NoError(t, err)

		_, err = m.Consume(ctx, "google", state.State)
		assert.ErrorIs(t, err, examsso.ErrStateNotFound)

		// Still usable on the right provider.
		_, err = m.Consume(ctx, "github", state.State)
		assert.NoError(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		state, err := m.IssueState(ctx, "google", "/")
		require.NoError(t, err)

		m.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
		defer func() { m.now = time.Now }()

		_, err = m.Consume(ctx, "google", state.State)
		assert.ErrorIs(t, err, examsso.ErrStateExpired)
	})
}

func TestStateManager_ConcurrentConsume(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	state, err := m.IssueState(ctx, "google", "/")
	require.NoError(t, err)

	const attempts = 20
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		successes   int
		alreadyUsed int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Consume(ctx, "google", state.State)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, examsso.ErrStateAlreadyUsed) {
				alreadyUsed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, alreadyUsed)
}

type MockStateRepository struct {
	mock.Mock
}

func (m *MockStateRepository) Save(ctx context.Context, state *domain.SSOState) error {
	return m.Called(ctx, state).Error(0)
}

func (m *MockStateRepository) Get(ctx context.Context, state string) (*domain.SSOState, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SSOState), args.Error(1)
}

func (m *MockStateRepository) MarkUsed(ctx context.Context, state string, at time.Time) error {
	return m.Called(ctx, state, at).Error(0)
}

func TestStateManager_LostRaceIsAlreadyUsed(t *testing.T) {
	repo := new(MockStateRepository)
	m := NewStateManager(repo, time.Minute)

	repo.On("Get", mock.Anything, "s1").Return(&domain.SSOState{
		State:     "s1",
		Provider:  "google",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Minute),
	}, nil)
	repo.On("MarkUsed", mock.Anything, "s1", mock.Anything).Return(domain.ErrPreconditionFailed)

	_, err := m.Consume(context.Background(), "google", "s1")
	assert.ErrorIs(t, err, examsso.ErrStateAlreadyUsed)
	repo.AssertExpectations(t)
}

func TestStateManager_StoreFailure(t *testing.T) {
	repo := new(MockStateRepository)
	m := NewStateManager(repo, time.Minute)

	boom := errors.New("connection refused")
	repo.On("Save", mock.Anything, mock.AnythingOfType("*domain.SSOState")).Return(boom)

	_, err := m.IssueState(context.Background(), "google", "/")
	assert.ErrorIs(t, err, boom)
}

func TestInMemoryStateStore_Duplicate(t *testing.T) {
	_, store := newTestManager(t)
	ctx := context.Background()

	state := &domain.SSOState{State: "dup", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.Save(ctx, state))
	assert.ErrorIs(t, store.Save(ctx, state), domain.ErrAlreadyExists)
	assert.Equal(t, 1, store.Len())
}
