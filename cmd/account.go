package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/license-sessions-cli/internal/adapters/render/dashboard"
	"github.com/bnema/license-sessions-cli/internal/application"
	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/spf13/cobra"
)

func newAccountCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}

	list := newDashboardCmd(app)
	list.Use = "list"
	list.Short = "List accounts with their usage (same as dashboard)"

	cmd.AddCommand(
		newAccountAddCmd(app),
		list,
		newAccountShowCmd(app),
	)

	return cmd
}

func newAccountAddCmd(app *app) *cobra.Command {
	var input application.AddAccountCommand

	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Add a license account",
		Example: `  lsc account add --name "Design Suite" --price 15.75 --start-date 2024-01-15`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := requireUser(cmd, app)
			if err != nil {
				return err
			}
			data, err := app.dataService(cmd.Context())
			if err != nil {
				return err
			}

			id, err := data.AddAccount(cmd.Context(), user.ID, input)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added account %s (%s)\n", sanitizeForTerminal(strings.TrimSpace(input.Name)), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&input.Name, "name", "", "Account name")
	cmd.Flags().StringVar(&input.Price, "price", "", "Monthly price in USD")
	cmd.Flags().StringVar(&input.StartDate, "start-date", "", "License start date (YYYY-MM-DD); its day is the billing day")

	return cmd
}

func newAccountShowCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <account>",
		Short: "Show an account and its sessions",
		Long:  "Show an account and its sessions, newest first. The account is matched by ID, unique ID prefix or name.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser(cmd, app)
			if err != nil {
				return err
			}
			data, err := app.dataService(cmd.Context())
			if err != nil {
				return err
			}

			accountID, err := data.ResolveAccountID(cmd.Context(), user.ID, args[0])
			if err == nil {
				var detail application.AccountDetail
				detail, err = data.AccountDetail(cmd.Context(), user.ID, accountID)
				if err == nil {
					return writeDetailOutput(cmd, app, detail, asJSON)
				}
			}
			if errors.Is(err, domain.ErrAccountNotFound) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Account not found")
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the account detail as JSON")

	return cmd
}

func writeDetailOutput(cmd *cobra.Command, app *app, detail application.AccountDetail, asJSON bool) error {
	if asJSON {
		return writeJSON(cmd, detail)
	}

	rendered, err := app.renderDetail(detail, dashboard.RenderOptions{Now: app.now(), Location: app.location})
	if err != nil {
		return fmt.Errorf("render account: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
