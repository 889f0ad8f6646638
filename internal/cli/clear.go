package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop the cached data, keeping the mutation queue",
		Long: `Drop every cached record and all fetch metadata. Queued mutations
survive; they replay on the next sync regardless of cache state. Use
this to recover from corrupted cached data without losing local writes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(rootOpts, cmd)
		},
	}

	return cmd
}

func runClear(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.engine.ClearCache(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to clear cache", err)
	}

	formatter := newFormatter(opts, cmd)
	if opts.Format == "json" {
		return formatter.Success(map[string]bool{"cleared": true})
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared. Queued mutations kept.")
	return nil
}
