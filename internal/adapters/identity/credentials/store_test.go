package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoadReturnsNilWhenSignedOut(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "credentials"))

	user, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestStoreSaveLoadRoundTripAndPermissions(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "credentials")
	store := NewStore(root)
	want := domain.User{ID: "user-1", Email: "ana@example.com"}

	require.NoError(t, store.Save(context.Background(), want))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(fileMode), info.Mode().Perm())

	dirInfo, err := os.Stat(root)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(storeDirMode), dirInfo.Mode().Perm())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStoreSaveRejectsMissingID(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	err := store.Save(context.Background(), domain.User{Email: "ana@example.com"})
	assert.ErrorIs(t, err, domain.ErrMissingIdentifier)
}

func TestStoreClearIsIdempotent(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	require.NoError(t, store.Save(context.Background(), domain.User{ID: "user-1"}))

	require.NoError(t, store.Clear(context.Background()))
	require.NoError(t, store.Clear(context.Background()))

	user, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestStoreLoadRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o600))

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "decode credentials")
}

func TestStoreWatchSignalsChangesFromOtherStores(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	root := filepath.Join(t.TempDir(), "credentials")

	changes, err := NewStore(root).Watch(ctx)
	require.NoError(t, err)

	writer := NewStore(root)
	require.NoError(t, writer.Save(ctx, domain.User{ID: "user-1"}))
	waitForChange(t, changes)

	require.NoError(t, writer.Clear(ctx))
	waitForChange(t, changes)

	cancel()
	for range changes {
	}
}

func waitForChange(t *testing.T, changes <-chan struct{}) {
	t.Helper()

	select {
	case _, ok := <-changes:
		require.True(t, ok, "watch closed")
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for credentials change")
	}
}
