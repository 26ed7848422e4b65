package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chutedev/chute/internal/syncer"
)

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the failure report for rejected events",
		Long: `Summarize every event the server has rejected, grouped by category.

Rejected events stay in the queue and are resubmitted on the next sync;
this report is how you find out what the server objected to.

Examples:
  chute report
  chute report --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(rootOpts, cmd)
		},
	}
	return cmd
}

func runReport(opts *RootOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	ws, err := openWorkspace(ctx, opts)
	if err != nil {
		return err
	}
	defer ws.Close()

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	rejected, err := ws.queue.Rejected(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}
	formatter.VerboseLog("%d rejected record(s) in queue", len(rejected))

	report := syncer.BuildFailureReport(&syncer.Report{GeneratedAt: time.Now()}, rejected)

	if opts.Format == "json" {
		return formatter.Success(report)
	}
	return outputReportText(formatter, report)
}

func outputReportText(f *OutputFormatter, report syncer.FailureReport) error {
	w := f.Writer

	if report.Summary.Failed == 0 {
		fmt.Fprintln(w, "No rejected events.")
		return nil
	}

	fmt.Fprintf(w, "Failure report (%s)\n", report.GeneratedAt)
	fmt.Fprintf(w, "%d rejected event(s):\n\n", report.Summary.Failed)
	for _, fail := range report.Failures {
		fmt.Fprintf(w, "  %s  [%s]  %s\n", fail.EventID, fail.Category, fail.Error)
	}

	fmt.Fprintln(w, "\nBy category:")
	for _, cat := range []syncer.Category{
		syncer.CategorySchemaMismatch,
		syncer.CategoryAuthExpired,
		syncer.CategoryServerError,
		syncer.CategoryUnknown,
	} {
		if n := report.Summary.Categories[cat]; n > 0 {
			fmt.Fprintf(w, "  %-16s %d\n", cat, n)
		}
	}
	return nil
}
