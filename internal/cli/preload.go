package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// PreloadResult is the JSON payload of the preload command.
type PreloadResult struct {
	Loaded       int      `json:"loaded"`
	Failed       int      `json:"failed"`
	Total        int      `json:"total"`
	FailedStores []string `json:"failed_stores,omitempty"`
}

// NewPreloadCommand creates the preload command.
func NewPreloadCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preload",
		Short: "Warm the cache with all preload-marked stores",
		Long: `Fetch every store marked for preload from the remote system, so
later offline operation has a complete dataset.

Stores are fetched one at a time; a failing store is skipped and
reported, it never aborts the rest.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreload(rootOpts, cmd)
		},
	}

	return cmd
}

func runPreload(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	formatter := newFormatter(opts, cmd)

	report, err := a.engine.Preload(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "preload failed", err)
	}

	result := PreloadResult{
		Loaded:       report.Loaded,
		Failed:       report.Failed,
		Total:        report.Total,
		FailedStores: report.FailedStores,
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, report.String())
	for _, name := range result.FailedStores {
		fmt.Fprintf(out, "  failed: %s\n", name)
	}
	return nil
}
