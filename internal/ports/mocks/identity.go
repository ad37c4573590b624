package mocks

import (
	"context"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/bnema/license-sessions-cli/internal/ports"
	"github.com/stretchr/testify/mock"
)

type IdentityProvider struct {
	mock.Mock
}

var _ ports.IdentityProvider = (*IdentityProvider)(nil)

func NewIdentityProvider(t interface {
	mock.TestingT
	Cleanup(func())
}) *IdentityProvider {
	m := &IdentityProvider{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *IdentityProvider) SignIn(ctx context.Context, req domain.SignInRequest) (domain.User, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.User), args.Error(1)
}

func (m *IdentityProvider) SignOut(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type CredentialStore struct {
	mock.Mock
}

var _ ports.CredentialStore = (*CredentialStore)(nil)

func NewCredentialStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *CredentialStore {
	m := &CredentialStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *CredentialStore) Load(ctx context.Context) (*domain.User, error) {
	args := m.Called(ctx)
	user, _ := args.Get(0).(*domain.User)
	return user, args.Error(1)
}

func (m *CredentialStore) Save(ctx context.Context, user domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *CredentialStore) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
