package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"layer-inspector/internal/domain/entity"
)

func TestMemoryUserRepository_GetCreatesOnce(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	got := make([]*entity.User, 16)
	errs := make([]error, len(got))
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i], errs[i] = repo.Get(ctx, 7, 70)
		}()
	}
	wg.Wait()

	for i, u := range got {
		require.NoError(t, errs[i])
		require.Same(t, got[0], u)
	}
	require.Equal(t, entity.StateMainMenu, got[0].State)
	require.Equal(t, int64(70), got[0].ChatID)
}

func TestMemoryUserRepository_Update(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	user, err := repo.Update(ctx, 1, 10, func(u *entity.User) error {
		u.SetState(entity.StateAwaitingArchive)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, entity.StateAwaitingArchive, user.State)

	boom := errors.New("boom")
	_, err = repo.Update(ctx, 1, 10, func(*entity.User) error { return boom })
	require.ErrorIs(t, err, boom)

	again, err := repo.Get(ctx, 1, 10)
	require.NoError(t, err)
	require.Same(t, user, again)
}

func TestMemoryUserRepository_SaveAndDelete(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	user := entity.NewUser(3, 30)
	user.SetState(entity.StateProcessing)
	require.NoError(t, repo.Save(ctx, user))

	got, err := repo.Get(ctx, 3, 30)
	require.NoError(t, err)
	require.Same(t, user, got)

	require.NoError(t, repo.Delete(ctx, 3))
	fresh, err := repo.Get(ctx, 3, 30)
	require.NoError(t, err)
	require.NotSame(t, user, fresh)
	require.Equal(t, entity.StateMainMenu, fresh.State)
}

func TestMemoryUserRepository_CancelledContext(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Get(ctx, 1, 1)
	require.ErrorIs(t, err, context.Canceled)
}
