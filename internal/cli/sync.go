package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chutedev/chute/internal/syncer"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Transmit queued events to the sync server",
		Long: `Drain the offline queue and submit queued events as one batch.

Rejected events are retained with their reasons and resubmitted on the
next sync. Transport failures are warnings, not errors: the queue is
durable and the batch will go out when the network returns.

Exit codes:
  0 - Batch submitted (or nothing queued); transport failure with events retained
  1 - Not authenticated (run 'chute login')
  2 - Command error (no project file, store unreadable)

Examples:
  chute sync
  chute sync --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
	return cmd
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	ws, err := openWorkspace(ctx, opts)
	if err != nil {
		return err
	}
	defer ws.Close()

	mgr, err := newCredManager()
	if err != nil {
		return err
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	client := syncer.NewClient(ws.queue, mgr)
	formatter.VerboseLog("syncing queue at %s", ws.project.Root)
	rep, err := client.Sync(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "sync failed", err)
	}

	return outputSync(formatter, rep)
}

func outputSync(f *OutputFormatter, rep *syncer.Report) error {
	switch rep.Outcome {
	case syncer.OutcomeAuthError, syncer.OutcomeAuthExpired:
		if err := f.Error("E_AUTH", "not authenticated: run 'chute login'; queued events are retained", rep); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "not authenticated")

	case syncer.OutcomeServerError:
		// Warning, not an error: the queue is durable and the batch
		// goes out on the next sync. Warn on the diagnostic writer so
		// JSON output stays clean.
		fmt.Fprintf(f.GetErrWriter(),
			"Warning: server unreachable; %d event(s) retained for the next sync.\n", rep.Total)
		if f.Format == "json" {
			return f.Success(rep)
		}
		return nil
	}

	if f.Format == "json" {
		return f.Success(rep)
	}

	w := f.Writer
	if rep.Outcome == syncer.OutcomeEmpty {
		fmt.Fprintln(w, "Nothing to sync.")
		return nil
	}

	fmt.Fprintf(w, "Synced %d of %d event(s)", rep.Synced, rep.Total)
	if rep.Duplicates > 0 {
		fmt.Fprintf(w, " (%d already delivered)", rep.Duplicates)
	}
	fmt.Fprintln(w)

	if rep.Failed > 0 {
		fmt.Fprintf(w, "%d event(s) rejected and retained. Run 'chute report' for details.\n", rep.Failed)
		for _, fail := range rep.Failures {
			f.VerboseLog("  %s  [%s]  %s", fail.EventID, fail.Category, fail.Error)
		}
	}
	return nil
}
