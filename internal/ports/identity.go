package ports

import (
	"context"

	"github.com/bnema/license-sessions-cli/internal/domain"
)

type IdentityProvider interface {
	SignIn(ctx context.Context, req domain.SignInRequest) (domain.User, error)
	SignOut(ctx context.Context) error
}

// CredentialStore keeps the signed-in user between invocations. Load returns nil when nobody is signed in.
type CredentialStore interface {
	Load(ctx context.Context) (*domain.User, error)
	Save(ctx context.Context, user domain.User) error
	Clear(ctx context.Context) error
}

// CredentialWatcher is implemented by credential stores that can report changes made outside
// this process, such as a sign-out from another terminal.
type CredentialWatcher interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}
