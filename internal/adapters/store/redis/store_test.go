package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := Open(context.Background(), "redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func testAccount() domain.Account {
	return domain.Account{
		Name:      "Design",
		Price:     decimal.RequireFromString("15.75"),
		StartDate: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	ctx := context.Background()

	accountID, err := store.PushAccount(ctx, "u1", testAccount())
	require.NoError(t, err)
	require.NotEmpty(t, accountID)
	assert.True(t, mr.Exists("lsc:users/u1/accounts"))

	loc, err := domain.LoadReferenceLocation("")
	require.NoError(t, err)
	session := domain.NewSession(time.Date(2024, time.January, 20, 16, 0, 0, 0, time.UTC), loc)

	sessionID, err := store.PushSession(ctx, "u1", accountID, session)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lsc:"+domain.SessionsPath("u1", accountID)))

	snapshot, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, snapshot.Accounts, 1)

	account := snapshot.Accounts[0]
	assert.Equal(t, accountID, account.ID)
	assert.Equal(t, "Design", account.Name)
	assert.True(t, account.Price.Equal(decimal.RequireFromString("15.75")))
	assert.Equal(t, 15, account.StartDate.Day())
	require.Contains(t, account.Sessions, sessionID)
	assert.Equal(t, "2024-01-20T10:00:00-06:00", account.Sessions[sessionID].StartTime.Format(time.RFC3339))
	assert.Equal(t, 5*time.Hour, account.Sessions[sessionID].EndTime.Sub(account.Sessions[sessionID].StartTime))
}

func TestStorePushSessionUnknownAccount(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	_, err := store.PushSession(context.Background(), "u1", "missing", domain.NewSession(time.Now(), time.UTC))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStoreRemoveSessionIsIdempotent(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	accountID, err := store.PushAccount(ctx, "u1", testAccount())
	require.NoError(t, err)
	sessionID, err := store.PushSession(ctx, "u1", accountID, domain.NewSession(time.Now(), time.UTC))
	require.NoError(t, err)

	require.NoError(t, store.RemoveSession(ctx, "u1", accountID, sessionID))
	require.NoError(t, store.RemoveSession(ctx, "u1", accountID, sessionID))
	require.NoError(t, store.RemoveSession(ctx, "u1", "missing", "missing"))

	snapshot, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, snapshot.Accounts, 1)
	assert.Empty(t, snapshot.Accounts[0].Sessions)
}

func TestStoreSurfacesCorruptRecords(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	mr.HSet("lsc:users/u1/accounts", "bad", "{not json")

	_, err := store.Snapshot(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode account bad")
}

func TestStoreSubscribeDeliversSnapshotPerChange(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots, err := store.Subscribe(ctx, "u1")
	require.NoError(t, err)

	initial := nextSnapshot(t, snapshots)
	assert.Empty(t, initial.Accounts)

	accountID, err := store.PushAccount(context.Background(), "u1", testAccount())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case snapshot := <-snapshots:
			_, ok := snapshot.Account(accountID)
			return ok
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	_, err = store.PushAccount(context.Background(), "someone-else", testAccount())
	require.NoError(t, err)

	cancel()
	for range snapshots {
	}
}

func TestOpenRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "http://not-redis", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis url")
}

func nextSnapshot(t *testing.T, ch <-chan domain.Snapshot) domain.Snapshot {
	t.Helper()

	select {
	case snapshot, ok := <-ch:
		require.True(t, ok)
		return snapshot
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for snapshot")
	}
	return domain.Snapshot{}
}
