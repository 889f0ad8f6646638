package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldworks/satchel/internal/engine"
)

// ReadResult is the JSON payload of the read command.
type ReadResult struct {
	Store   string       `json:"store"`
	Records []ReadRecord `json:"records"`
}

// ReadRecord is one cached record as presented to the user.
type ReadRecord struct {
	ID       string         `json:"id"`
	RemoteID string         `json:"remote_id,omitempty"`
	Synced   bool           `json:"synced"`
	Payload  map[string]any `json:"payload"`
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <store>",
		Short: "Read a store's records",
		Long: `Read the records of one store visible to the configured identity.

Fresh cached data is served directly; stale data races a remote refresh
against a short timeout and falls back to the cache. Offline reads are
served from the cache unconditionally.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runRead(opts *RootOptions, storeName string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	formatter := newFormatter(opts, cmd)

	recs, err := a.engine.Read(ctx, storeName)
	if err != nil {
		code := ErrCodeGeneric
		switch {
		case engine.IsOfflineNoData(err):
			code = ErrCodeOffline
		case engine.IsRemoteFetch(err):
			code = ErrCodeFetch
		}
		if outErr := formatter.Error(code, err.Error(), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, "read failed")
	}

	result := ReadResult{Store: storeName, Records: make([]ReadRecord, 0, len(recs))}
	for _, rec := range recs {
		result.Records = append(result.Records, ReadRecord{
			ID:       rec.ID,
			RemoteID: rec.RemoteID,
			Synced:   rec.Synced,
			Payload:  rec.Payload,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d record(s)\n", storeName, len(result.Records))
	for _, rec := range result.Records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return err
		}
		marker := " "
		if !rec.Synced {
			marker = "*" // unconfirmed local write
		}
		fmt.Fprintf(out, " %s %s %s\n", marker, rec.ID, payload)
	}
	return nil
}
