// Package local signs users in by email alone. It suits single-machine setups where the
// account data never leaves the local store.
package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/bnema/license-sessions-cli/internal/ports"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// userNamespace derives stable user ids, so the same email always maps to the same data.
var userNamespace = uuid.MustParse("5b0f7a9e-3c1d-4c55-9a43-2f1c6e8d7b10")

type Provider struct {
	validate *validator.Validate
}

var _ ports.IdentityProvider = (*Provider)(nil)

func NewProvider() *Provider {
	return &Provider{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (p *Provider) SignIn(ctx context.Context, req domain.SignInRequest) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := p.validate.Var(email, "required,email"); err != nil {
		return domain.User{}, fmt.Errorf("invalid email %q", req.Email)
	}

	return domain.User{
		ID:    UserID(email),
		Email: email,
	}, nil
}

func (p *Provider) SignOut(context.Context) error {
	return nil
}

func UserID(email string) domain.UserID {
	normalized := strings.ToLower(strings.TrimSpace(email))
	return domain.UserID(uuid.NewSHA1(userNamespace, []byte(normalized)).String())
}
