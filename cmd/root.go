package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return run(newRootCmd())
}

// run executes rootCmd and always runs cleanup afterwards, including when the command fails.
func run(rootCmd *cobra.Command, cleanup func()) error {
	defer cleanup()
	return rootCmd.Execute()
}

// newRootCmd returns the command tree together with the cleanup that closes the store and
// flushes the logger.
func newRootCmd() (*cobra.Command, func()) {
	app, err := wireApp()
	if err != nil {
		rootCmd := baseRootCmd()
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd, func() {}
	}
	return newAppRootCmd(app), app.close
}

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "lsc",
		Short:         "License Sessions CLI (lsc): track sessions of shared licenses",
		Long:          "lsc keeps a list of shared licenses, counts the 5-hour sessions started in each monthly billing cycle and warns before the 50-session quota runs out.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
}

func newAppRootCmd(app *app) *cobra.Command {
	rootCmd := baseRootCmd()
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		app.authOut = cmd.ErrOrStderr()
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(app),
		newLogoutCmd(app),
		newWhoamiCmd(app),
		newAccountCmd(app),
		newSessionCmd(app),
		newDashboardCmd(app),
		newWatchCmd(app),
	)

	return rootCmd
}
