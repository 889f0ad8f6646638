package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RetryOptions holds flags for the retry command.
type RetryOptions struct {
	*RootOptions
	All bool
}

// RetryResult is the JSON payload of the retry command.
type RetryResult struct {
	Retried []string `json:"retried"`
}

// NewRetryCommand creates the retry command.
func NewRetryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RetryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "retry [correlation-id]",
		Short: "Return failed mutations to the queue",
		Long: `Return a failed mutation to the queue with a fresh attempt budget.
The next sync picks it up. Use --all to retry every failed mutation.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetry(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "retry every failed mutation")

	return cmd
}

func runRetry(opts *RetryOptions, args []string, cmd *cobra.Command) error {
	if opts.All == (len(args) == 1) {
		return NewExitError(ExitCommandError, "pass exactly one correlation id or --all")
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	formatter := newFormatter(opts.RootOptions, cmd)

	var ids []string
	if opts.All {
		failed, err := a.engine.FailedMutations(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list failed mutations", err)
		}
		for _, mut := range failed {
			ids = append(ids, mut.CorrelationID)
		}
	} else {
		ids = args
	}

	result := RetryResult{Retried: []string{}}
	for _, id := range ids {
		if err := a.engine.RetryFailed(ctx, id); err != nil {
			if outErr := formatter.Error(ErrCodeNotFound, err.Error(), nil); outErr != nil {
				return outErr
			}
			return NewExitError(ExitFailure, "retry failed")
		}
		result.Retried = append(result.Retried, id)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	if len(result.Retried) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No failed mutations.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d mutation(s). Run 'satchel sync' to replay.\n", len(result.Retried))
	return nil
}
