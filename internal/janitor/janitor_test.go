package janitor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/domain"
	"github.com/pilab-dev/exam-sso/internal/janitor"
	"github.com/pilab-dev/exam-sso/internal/memstore"
)

type failingPurger struct{}

func (failingPurger) PurgeExpired(context.Context, time.Duration) (int64, error) {
	return 0, errors.New("storage down")
}

func TestRunOncePurgesOnlyOldChains(t *testing.T) {
	ctx := context.Background()
	tokens := memstore.NewRefreshTokenStore()
	now := time.Now().UTC()

	require.NoError(t, tokens.Create(ctx, &domain.RefreshToken{
		Hash: "old", ChainID: "a", ChainExpiresAt: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, tokens.Create(ctx, &domain.RefreshToken{
		Hash: "recent", ChainID: "b", ChainExpiresAt: now.Add(-time.Hour),
	}))
	require.NoError(t, tokens.Create(ctx, &domain.RefreshToken{
		Hash: "live", ChainID: "c", ChainExpiresAt: now.Add(time.Hour),
	}))

	manager := examsso.NewRefreshTokenManager(tokens, memstore.NewUserStore(), nil, nil)
	j, err := janitor.New(manager, "@every 1h", 24*time.Hour)
	require.NoError(t, err)

	n, err := j.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, tokens.Len())
}

func TestRunOnceError(t *testing.T) {
	j, err := janitor.New(failingPurger{}, "0 3 * * *", time.Hour)
	require.NoError(t, err)

	_, err = j.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestInvalidSchedule(t *testing.T) {
	_, err := janitor.New(failingPurger{}, "every now and then", time.Hour)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	j, err := janitor.New(failingPurger{}, "@every 1h", time.Hour)
	require.NoError(t, err)

	j.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j.Stop(ctx)
	assert.NoError(t, ctx.Err())
}
