package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "logout",
		Short:         "Clear stored credentials",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(rootOpts, cmd)
		},
	}
	return cmd
}

func runLogout(opts *RootOptions, cmd *cobra.Command) error {
	mgr, err := newCredManager()
	if err != nil {
		return err
	}

	if err := mgr.Logout(context.Background()); err != nil {
		return WrapExitError(ExitCommandError, "failed to clear credentials", err)
	}

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.Success(map[string]string{"result": "logged_out"})
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	return nil
}
