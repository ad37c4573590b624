package mocks

import (
	"context"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/bnema/license-sessions-cli/internal/ports"
	"github.com/stretchr/testify/mock"
)

type AccountStore struct {
	mock.Mock
}

var _ ports.AccountStore = (*AccountStore)(nil)

// NewAccountStore registers an expectation check on test cleanup.
func NewAccountStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *AccountStore {
	m := &AccountStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *AccountStore) Snapshot(ctx context.Context, userID domain.UserID) (domain.Snapshot, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.Snapshot), args.Error(1)
}

func (m *AccountStore) Subscribe(ctx context.Context, userID domain.UserID) (<-chan domain.Snapshot, error) {
	args := m.Called(ctx, userID)
	ch, _ := args.Get(0).(<-chan domain.Snapshot)
	return ch, args.Error(1)
}

func (m *AccountStore) PushAccount(ctx context.Context, userID domain.UserID, account domain.Account) (domain.AccountID, error) {
	args := m.Called(ctx, userID, account)
	return args.Get(0).(domain.AccountID), args.Error(1)
}

func (m *AccountStore) PushSession(ctx context.Context, userID domain.UserID, accountID domain.AccountID, session domain.Session) (domain.SessionID, error) {
	args := m.Called(ctx, userID, accountID, session)
	return args.Get(0).(domain.SessionID), args.Error(1)
}

func (m *AccountStore) RemoveSession(ctx context.Context, userID domain.UserID, accountID domain.AccountID, sessionID domain.SessionID) error {
	args := m.Called(ctx, userID, accountID, sessionID)
	return args.Error(0)
}
