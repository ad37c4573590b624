package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStartDate(t *testing.T) {
	t.Parallel()

	parsed, err := ParseStartDate(" 2024-01-31 ")
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.January, 31), parsed)
	assert.Equal(t, "2024-01-31", FormatStartDate(parsed))

	_, err = ParseStartDate("31/01/2024")
	require.Error(t, err)
}

func TestSessionListFillsMissingIDs(t *testing.T) {
	t.Parallel()

	account := Account{Sessions: map[SessionID]Session{"k1": {StartTime: date(2024, 1, 2)}}}

	sessions := account.SessionList()
	require.Len(t, sessions, 1)
	assert.Equal(t, SessionID("k1"), sessions[0].ID)
}

func TestSnapshotOrdersAccountsAndLooksUpByID(t *testing.T) {
	t.Parallel()

	snapshot := NewSnapshot("u1", []Account{
		{ID: "3", Name: "zeta"},
		{ID: "2", Name: "Alpha"},
		{ID: "1", Name: "alpha"},
	})

	require.Len(t, snapshot.Accounts, 3)
	assert.Equal(t, AccountID("1"), snapshot.Accounts[0].ID)
	assert.Equal(t, AccountID("2"), snapshot.Accounts[1].ID)
	assert.Equal(t, AccountID("3"), snapshot.Accounts[2].ID)

	account, ok := snapshot.Account("2")
	assert.True(t, ok)
	assert.Equal(t, "Alpha", account.Name)

	_, ok = snapshot.Account("missing")
	assert.False(t, ok)
}

func TestPaths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "users/u1/accounts", AccountsPath("u1"))
	assert.Equal(t, "users/u1/accounts/a1/sessions", SessionsPath("u1", "a1"))
	assert.Equal(t, "users/u1/accounts/a1/sessions/s1", SessionPath("u1", "a1", "s1"))
}

func TestValidationErrorUnwrapsToInvalidAccount(t *testing.T) {
	t.Parallel()

	err := error(&ValidationError{Fields: []string{"name", "price"}})
	assert.ErrorIs(t, err, ErrInvalidAccount)
	assert.Equal(t, "complete all fields: name, price", err.Error())
}
