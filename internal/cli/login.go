package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chutedev/chute/internal/creds"
)

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	Server   string
	Username string
	Password string
}

// LoginResult holds the login outcome for output.
type LoginResult struct {
	Server    string `json:"server"`
	TeamSlug  string `json:"team_slug,omitempty"`
	ExpiresAt string `json:"access_expires_at"`
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the sync server",
		Long: `Authenticate with username/password and store the resulting tokens.

Tokens are written to the user config directory (override with
CHUTE_CREDENTIALS) and refreshed silently by later commands.

Examples:
  chute login --server https://chute.example.com
  chute login --server https://chute.example.com --username alice`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", "", "sync server base URL (required)")
	_ = cmd.MarkFlagRequired("server")
	cmd.Flags().StringVar(&opts.Username, "username", "", "username (prompted when omitted)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password (prompted when omitted)")

	return cmd
}

func runLogin(opts *LoginOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	reader := bufio.NewReader(cmd.InOrStdin())
	username, err := promptIfEmpty(reader, cmd, opts.Username, "Username: ")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read username", err)
	}
	password, err := promptIfEmpty(reader, cmd, opts.Password, "Password: ")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read password", err)
	}

	mgr, err := newCredManager()
	if err != nil {
		return err
	}

	c, err := mgr.Login(ctx, opts.Server, username, password)
	if err != nil {
		var authErr *creds.AuthError
		if errors.As(err, &authErr) {
			return WrapExitError(ExitFailure, "login rejected", err)
		}
		return WrapExitError(ExitCommandError, "login failed", err)
	}

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	result := LoginResult{
		Server:    c.ServerURL,
		TeamSlug:  c.TeamSlug,
		ExpiresAt: c.AccessExpiresAt.Format("2006-01-02 15:04:05 MST"),
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Logged in to %s", result.Server)
	if result.TeamSlug != "" {
		fmt.Fprintf(w, " (team %s)", result.TeamSlug)
	}
	fmt.Fprintln(w)
	return nil
}

// promptIfEmpty returns value when set, otherwise prompts on stdout and
// reads one line from the command's stdin.
func promptIfEmpty(reader *bufio.Reader, cmd *cobra.Command, value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
