package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/license-sessions-cli/internal/config"
	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/spf13/cobra"
)

func newLoginCmd(app *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Long:  "Sign in with the configured identity provider. The local provider only needs an email; the oidc provider opens a browser authorization flow.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := domain.SignInRequest{Email: strings.TrimSpace(email)}

			if app.cfg.Auth.Provider != config.ProviderOIDC && req.Email == "" {
				answer, err := prompt(cmd, "Email: ")
				if err != nil {
					return err
				}
				req.Email = answer
			}

			user, err := signIn(cmd, app, req)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", displayUser(user), user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email to sign in with (login hint for oidc)")

	return cmd
}

func signIn(cmd *cobra.Command, app *app, req domain.SignInRequest) (domain.User, error) {
	if app.cfg.Auth.Provider != config.ProviderOIDC {
		return app.auth.SignIn(cmd.Context(), req)
	}

	var user domain.User
	err := runSpinner(cmd.Context(), cmd.ErrOrStderr(), "Waiting for browser sign-in...", func(ctx context.Context, notice func(string)) error {
		app.notice = notice
		defer func() { app.notice = nil }()

		var err error
		user, err = app.auth.SignIn(ctx, req)
		return err
	})
	return user, err
}

func newLogoutCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.auth.SignOut(cmd.Context()); err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := requireUser(cmd, app)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", displayUser(user), user.ID)
			return nil
		},
	}
}

func requireUser(cmd *cobra.Command, app *app) (domain.User, error) {
	user, err := app.auth.RequireUser(cmd.Context())
	if errors.Is(err, domain.ErrNotAuthenticated) {
		return domain.User{}, fmt.Errorf("%w; run `lsc login`", err)
	}
	return user, err
}

func displayUser(user domain.User) string {
	if user.Email != "" {
		return sanitizeForTerminal(user.Email)
	}
	return string(user.ID)
}
