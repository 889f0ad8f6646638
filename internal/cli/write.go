package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldworks/satchel/internal/engine"
	"github.com/fieldworks/satchel/internal/record"
)

// WriteResult is the JSON payload of the write and complete commands.
type WriteResult struct {
	Store   string `json:"store"`
	ID      string `json:"id"`
	Queued  bool   `json:"queued"`
	Pending int    `json:"pending"`
}

// WriteOptions holds flags for the write command.
type WriteOptions struct {
	*RootOptions
	ID     string
	Update bool
}

// NewWriteCommand creates the write command.
func NewWriteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WriteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "write <store> <payload-json>",
		Short: "Write a record locally and queue it for sync",
		Long: `Apply an optimistic local write and queue the mutation for replay.

The payload is validated against the store's schema before anything is
stored. The write is immediately visible to reads; the remote call
happens when connectivity allows. Repeating the same logical action
while the first is unconfirmed collapses into one queue entry.

Example:
  satchel write orders '{"title": "pump service", "status": "open"}'
  satchel write orders --id o-123 --update '{"title": "pump service", "status": "completed"}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "record id (generated for creates if omitted)")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "update an existing record instead of creating")

	return cmd
}

func runWrite(opts *WriteOptions, storeName, payloadJSON string, cmd *cobra.Command) error {
	var payload map[string]any
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return WrapExitError(ExitCommandError, "payload is not valid JSON", err)
	}

	op := record.OpCreate
	if opts.Update {
		if opts.ID == "" {
			return NewExitError(ExitCommandError, "--update requires --id")
		}
		op = record.OpUpdate
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	formatter := newFormatter(opts.RootOptions, cmd)

	id, err := a.engine.Write(ctx, storeName, opts.ID, payload, op)
	if err != nil {
		code := ErrCodeGeneric
		if engine.IsSchemaMismatch(err) {
			code = ErrCodeSchema
		}
		if outErr := formatter.Error(code, err.Error(), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, "write failed")
	}

	pending, err := a.engine.PendingCount(ctx, storeName)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count pending mutations", err)
	}

	result := WriteResult{Store: storeName, ID: id, Queued: true, Pending: pending}
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s/%s (%d pending sync)\n", storeName, id, pending)
	return nil
}

// NewCompleteCommand creates the complete command for dependent
// sub-items of a parent record.
func NewCompleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <store> <parent-id> <sub-id> <payload-json>",
		Short: "Complete a sub-item of a parent record",
		Long: `Queue the completion of a dependent sub-item, such as one protocol
step of a maintenance order.

If the parent record's own create has not synced yet, the sub-item is
chained behind it and replays only after the parent's server id is
known.`,
		Args:          cobra.ExactArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComplete(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runComplete(opts *RootOptions, args []string, cmd *cobra.Command) error {
	storeName, parentID, subID, payloadJSON := args[0], args[1], args[2], args[3]

	var payload map[string]any
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return WrapExitError(ExitCommandError, "payload is not valid JSON", err)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	formatter := newFormatter(opts, cmd)

	id, err := a.engine.CompleteSubItem(ctx, storeName, parentID, subID, payload)
	if err != nil {
		if outErr := formatter.Error(ErrCodeGeneric, err.Error(), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, "complete failed")
	}

	pending, err := a.engine.PendingCount(ctx, storeName)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count pending mutations", err)
	}

	result := WriteResult{Store: storeName, ID: id, Queued: true, Pending: pending}
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s/%s (%d pending sync)\n", storeName, id, pending)
	return nil
}
