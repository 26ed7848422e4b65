package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// StatusResult holds the workspace status for output.
type StatusResult struct {
	ProjectSlug  string     `json:"project_slug,omitempty"`
	ProjectUUID  string     `json:"project_uuid,omitempty"`
	LocalOnly    bool       `json:"local_only"`
	NodeID       string     `json:"node_id"`
	LamportClock uint64     `json:"lamport_clock"`
	Pending      int        `json:"pending"`
	Rejected     int        `json:"rejected"`
	LastEvent    *LastEvent `json:"last_event,omitempty"`
}

// LastEvent summarizes the most recently recorded history entry.
type LastEvent struct {
	EventID     string `json:"event_id"`
	EventType   string `json:"event_type"`
	AggregateID string `json:"aggregate_id"`
	Timestamp   string `json:"timestamp"`
	LocalOnly   bool   `json:"local_only"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue depth and node identity",
		Long: `Show the local sync state: queued and rejected event counts, the
node identity, and the current Lamport clock position.

Examples:
  chute status
  chute status --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	ws, err := openWorkspace(ctx, opts)
	if err != nil {
		return err
	}
	defer ws.Close()

	pending, err := ws.queue.Len(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}
	rejected, err := ws.queue.Rejected(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}
	lamport, err := ws.clock.Current(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read clock", err)
	}
	recent, err := ws.history.Recent(ctx, 1)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}

	result := StatusResult{
		ProjectSlug:  ws.project.ProjectSlug,
		ProjectUUID:  ws.project.ProjectUUID,
		LocalOnly:    ws.project.ProjectUUID == "",
		NodeID:       ws.clock.NodeID(),
		LamportClock: lamport,
		Pending:      pending,
		Rejected:     len(rejected),
	}
	if len(recent) > 0 {
		result.LastEvent = &LastEvent{
			EventID:     recent[0].EventID,
			EventType:   string(recent[0].EventType),
			AggregateID: recent[0].AggregateID,
			Timestamp:   recent[0].Timestamp,
			LocalOnly:   recent[0].LocalOnly,
		}
	}

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	if result.ProjectSlug != "" {
		fmt.Fprintf(w, "Project:  %s\n", result.ProjectSlug)
	}
	if result.LocalOnly {
		fmt.Fprintln(w, "Mode:     local-only (no project UUID; events are never transmitted)")
	}
	fmt.Fprintf(w, "Node:     %s (clock %d)\n", result.NodeID, result.LamportClock)
	fmt.Fprintf(w, "Queued:   %d pending, %d rejected\n", result.Pending, result.Rejected)
	if result.LastEvent != nil {
		fmt.Fprintf(w, "Last:     %s %s (%s)\n",
			result.LastEvent.EventType, result.LastEvent.AggregateID, result.LastEvent.Timestamp)
	}
	return nil
}
