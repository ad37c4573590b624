package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/bnema/license-sessions-cli/internal/adapters/render/dashboard"
	"github.com/bnema/license-sessions-cli/internal/application"
	"github.com/spf13/cobra"
)

func newDashboardCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show every account with its usage in the current billing cycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := requireUser(cmd, app)
			if err != nil {
				return err
			}
			data, err := app.dataService(cmd.Context())
			if err != nil {
				return err
			}

			usages, err := data.Dashboard(cmd.Context(), user.ID)
			if err != nil {
				return err
			}

			return writeDashboardOutput(cmd, app, usages, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the dashboard as JSON")

	return cmd
}

func writeDashboardOutput(cmd *cobra.Command, app *app, usages []application.AccountUsage, asJSON bool) error {
	if asJSON {
		if usages == nil {
			usages = []application.AccountUsage{}
		}
		return writeJSON(cmd, usages)
	}

	rendered, err := app.renderDashboard(usages, dashboard.RenderOptions{Now: app.now(), Location: app.location})
	if err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
