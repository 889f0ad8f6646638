package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fieldworks/satchel/internal/schema"
)

// ValidationResult holds validation results for a stores directory.
type ValidationResult struct {
	Valid  bool          `json:"valid"`
	Stores []StoreReport `json:"stores,omitempty"`
}

// StoreReport describes one validated store declaration.
type StoreReport struct {
	Name     string `json:"name"`
	Scope    string `json:"scope"`
	Endpoint string `json:"endpoint"`
	TTL      string `json:"ttl,omitempty"`
	Preload  bool   `json:"preload,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <stores-dir>",
		Short: "Validate store declarations without opening the database",
		Long: `Validate the CUE store declarations in a directory.

Checks scope, endpoint, TTL, and schema constraints for every declared
store. Faster than a full command run for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, storesDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	reg, err := schema.LoadDir(storesDir)
	if err != nil {
		if outErr := formatter.Error(ErrCodeStores, err.Error(), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	defs := reg.Definitions()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	result := ValidationResult{Valid: true}
	for _, def := range defs {
		report := StoreReport{
			Name:     def.Name,
			Scope:    string(def.Scope),
			Endpoint: def.Endpoint,
			Preload:  def.Preload,
		}
		if def.TTL > 0 {
			report.TTL = def.TTL.String()
		}
		result.Stores = append(result.Stores, report)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Valid: %d store(s)\n", len(result.Stores))
	for _, s := range result.Stores {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s (%s) -> %s\n", s.Name, s.Scope, s.Endpoint)
	}
	return nil
}
