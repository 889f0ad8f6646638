package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the background sync loop",
		Long: `Establish a session and keep draining the mutation queue on the
configured interval until interrupted.

The loop wakes early when SIGUSR1 is received, for wiring to an
external connectivity watcher.

Example:
  satchel run --config ./satchel.yaml
  satchel run -c /etc/satchel/satchel.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(rootOpts, cmd)
		},
	}

	return cmd
}

func runLoop(opts *RootOptions, cmd *cobra.Command) error {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	// Setup signal handling for graceful shutdown and manual wakeup
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	wakeChan := make(chan os.Signal, 1)
	signal.Notify(wakeChan, syscall.SIGUSR1)
	defer signal.Stop(wakeChan)

	trigger := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-wakeChan:
				select {
				case trigger <- struct{}{}:
				default:
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		select {
		case sig := <-sigChan:
			fmt.Fprintf(cmd.ErrOrStderr(), "received %s, shutting down\n", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Sync loop started, interval %s. Press Ctrl-C to stop.\n",
		a.cfg.Sync.Interval.Std())

	err = a.engine.Run(ctx, a.cfg.Sync.Interval.Std(), trigger)
	if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return WrapExitError(ExitFailure, "sync loop error", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Stopped.")
	return nil
}
