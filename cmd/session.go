package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/license-sessions-cli/internal/application"
	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/spf13/cobra"
)

const sessionTimeLayout = "02 Jan 2006, 15:04:05"

func newSessionCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Start and delete sessions",
	}

	cmd.AddCommand(
		newSessionStartCmd(app),
		newSessionDeleteCmd(app),
	)

	return cmd
}

func newSessionStartCmd(app *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "start <account>",
		Short: "Start a 5-hour session on an account",
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
			if err != nil {
				return err
			}
			detail, err := data.AccountDetail(cmd.Context(), user.ID, accountID)
			if err != nil {
				return err
			}
			if !detail.Usage.CanStartSession {
				return fmt.Errorf("%s: %w", sanitizeForTerminal(detail.Usage.Account.Name), domain.ErrSessionQuotaReached)
			}

			ok, err := confirm(cmd, "Start a new session?", yes)
			if err != nil || !ok {
				return err
			}

			session, err := data.StartSession(cmd.Context(), user.ID, accountID)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Started session %s on %s\n  start: %s\n  end:   %s\n",
				session.ID,
				sanitizeForTerminal(detail.Usage.Account.Name),
				session.StartTime.In(app.location).Format(sessionTimeLayout),
				session.EndTime.In(app.location).Format(sessionTimeLayout),
			)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func newSessionDeleteCmd(app *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <account> <session>",
		Short: "Delete a session",
		Long:  "Delete a session. The session is matched by ID or unique ID prefix; deleting a session that does not exist is not an error.",
		Args:  cobra.ExactArgs(2),
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
			if err != nil {
				return err
			}
			detail, err := data.AccountDetail(cmd.Context(), user.ID, accountID)
			if err != nil {
				return err
			}
			sessionID, err := resolveSessionID(detail, args[1])
			if err != nil {
				return err
			}

			ok, err := confirm(cmd, "Delete this session?", yes)
			if err != nil || !ok {
				return err
			}

			if err := data.DeleteSession(cmd.Context(), user.ID, accountID, sessionID); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", sessionID)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

// resolveSessionID prefers an exact ID, then a unique prefix. Anything else is passed through
// unchanged so the delete stays a no-op.
func resolveSessionID(detail application.AccountDetail, selector string) (domain.SessionID, error) {
	trimmed := strings.TrimSpace(selector)
	if trimmed == "" {
		return "", fmt.Errorf("session %w", domain.ErrMissingIdentifier)
	}

	var matches []domain.SessionID
	for _, session := range detail.Sessions {
		if string(session.ID) == trimmed {
			return session.ID, nil
		}
		if strings.HasPrefix(string(session.ID), trimmed) {
			matches = append(matches, session.ID)
		}
	}

	switch len(matches) {
	case 0:
		return domain.SessionID(trimmed), nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("session %q is ambiguous (%d matches)", selector, len(matches))
	}
}
