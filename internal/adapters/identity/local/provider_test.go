package local

import (
	"context"
	"testing"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignInDerivesStableID(t *testing.T) {
	t.Parallel()

	provider := NewProvider()

	first, err := provider.SignIn(context.Background(), domain.SignInRequest{Email: "Ana@Example.com "})
	require.NoError(t, err)
	second, err := provider.SignIn(context.Background(), domain.SignInRequest{Email: "ana@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", first.Email)
	assert.Equal(t, first.ID, second.ID)

	parsed, err := uuid.Parse(string(first.ID))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestSignInSeparatesUsers(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, UserID("ana@example.com"), UserID("bo@example.com"))
}

func TestSignInRejectsInvalidEmail(t *testing.T) {
	t.Parallel()

	provider := NewProvider()
	for _, email := range []string{"", "   ", "not-an-email"} {
		_, err := provider.SignIn(context.Background(), domain.SignInRequest{Email: email})
		assert.Error(t, err, email)
	}
}

func TestSignInHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProvider().SignIn(ctx, domain.SignInRequest{Email: "ana@example.com"})
	assert.ErrorIs(t, err, context.Canceled)
}
