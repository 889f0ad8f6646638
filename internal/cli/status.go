package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// StatusResult summarizes the local queue and session state.
type StatusResult struct {
	User       string        `json:"user"`
	Tenant     string        `json:"tenant,omitempty"`
	AllTenants bool          `json:"all_tenants,omitempty"`
	Pending    []StoreCount  `json:"pending,omitempty"`
	Failed     []FailedEntry `json:"failed,omitempty"`
}

// StoreCount is the number of unconfirmed mutations for one store.
type StoreCount struct {
	Store string `json:"store"`
	Count int    `json:"count"`
}

// FailedEntry describes a mutation awaiting manual retry.
type FailedEntry struct {
	CorrelationID string `json:"correlation_id"`
	Store         string `json:"store"`
	Operation     string `json:"operation"`
	Attempts      int    `json:"attempts"`
	LastError     string `json:"last_error,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending and failed mutations",
		Long: `Show the sync state of the local data layer: how many mutations
wait for replay per store, and which mutations have failed permanently
and await manual retry.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}

	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	formatter := newFormatter(opts, cmd)

	result := StatusResult{
		User:       a.cfg.Identity.User,
		Tenant:     a.cfg.Identity.Tenant,
		AllTenants: a.cfg.Identity.AllTenants,
	}

	defs := a.store.Definitions()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	for _, def := range defs {
		n, err := a.engine.PendingCount(ctx, def.Name)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to count pending mutations", err)
		}
		if n > 0 {
			result.Pending = append(result.Pending, StoreCount{Store: def.Name, Count: n})
		}
	}

	failed, err := a.engine.FailedMutations(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list failed mutations", err)
	}
	for _, mut := range failed {
		result.Failed = append(result.Failed, FailedEntry{
			CorrelationID: mut.CorrelationID,
			Store:         mut.TargetStore,
			Operation:     string(mut.Operation),
			Attempts:      mut.Attempts,
			LastError:     mut.LastError,
		})
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
		return statusExit(result)
	}

	out := cmd.OutOrStdout()
	if result.AllTenants {
		fmt.Fprintf(out, "Session: %s (all tenants)\n", result.User)
	} else {
		fmt.Fprintf(out, "Session: %s @ %s\n", result.User, result.Tenant)
	}

	if len(result.Pending) == 0 {
		fmt.Fprintln(out, "Queue empty, everything synced.")
	} else {
		for _, p := range result.Pending {
			fmt.Fprintf(out, "  %s: %d pending sync\n", p.Store, p.Count)
		}
	}

	for _, f := range result.Failed {
		fmt.Fprintf(out, "  FAILED %s %s/%s after %d attempts: %s\n",
			f.CorrelationID, f.Store, f.Operation, f.Attempts, f.LastError)
	}

	return statusExit(result)
}

// statusExit makes failed mutations visible to scripts via exit code.
func statusExit(result StatusResult) error {
	if len(result.Failed) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d failed mutation(s)", len(result.Failed)))
	}
	return nil
}
