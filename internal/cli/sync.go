package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldworks/satchel/internal/engine"
)

// SyncResult is the JSON payload of the sync command.
type SyncResult struct {
	Offline  bool           `json:"offline"`
	Synced   int            `json:"synced"`
	Retried  int            `json:"retried"`
	Failed   int            `json:"failed"`
	PerStore map[string]int `json:"per_store,omitempty"`
	Duration string         `json:"duration,omitempty"`
	Failures []string       `json:"failures,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Drain the mutation queue once",
		Long: `Replay all pending mutations against the remote system of record.

Mutations replay per store in the order they were queued. Transient
failures retry with exponential backoff; exhausted or structurally
rejected mutations are marked failed and left in the queue for manual
retry.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}

	return cmd
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	formatter := newFormatter(opts, cmd)

	report, err := a.engine.SyncOnce(ctx)
	if err != nil {
		if err == engine.ErrSyncInProgress {
			return NewExitError(ExitCommandError, "another sync is already running")
		}
		return WrapExitError(ExitCommandError, "sync failed", err)
	}

	result := SyncResult{
		Offline: report.Offline,
		Synced:  report.Synced,
		Retried: report.Retried,
		Failed:  report.Failed,
	}
	if report.Synced > 0 {
		result.PerStore = report.PerStore
	}
	if !report.Offline {
		result.Duration = report.Duration.String()
	}
	for _, failure := range report.Failures {
		result.Failures = append(result.Failures, failure.Error())
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
		return syncExit(result)
	}

	out := cmd.OutOrStdout()
	switch {
	case result.Offline:
		fmt.Fprintln(out, "Offline, queue untouched.")
	case result.Synced == 0 && result.Failed == 0:
		fmt.Fprintln(out, "Nothing to sync.")
	default:
		fmt.Fprintf(out, "Synced %d mutation(s)", result.Synced)
		if result.Retried > 0 {
			fmt.Fprintf(out, ", %d retried", result.Retried)
		}
		if result.Failed > 0 {
			fmt.Fprintf(out, ", %d FAILED", result.Failed)
		}
		fmt.Fprintln(out)
		for _, failure := range result.Failures {
			fmt.Fprintf(out, "  %s\n", failure)
		}
	}

	return syncExit(result)
}

func syncExit(result SyncResult) error {
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d mutation(s) failed", result.Failed))
	}
	return nil
}
