package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/abm1119/bita/internal/ledger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "text" | "json" | "yaml"
	ConfigFile string
	DataDir    string

	// Clock and IDs override the session defaults (for testing).
	// If nil, the wall clock and UUIDv7 identifiers are used.
	Clock ledger.Clock
	IDs   ledger.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the bita CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bita",
		Short: "bita - local-first vendor and invoice ledger",
		Long: `bita keeps a vendor and invoice ledger on this machine and mirrors it
to a remote backup slot after every change.

The ledger lives in the data directory. When remote.url is configured, every
command first restores the account's remote backup and every change is
uploaded afterwards.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./bita.yaml or $HOME/.config/bita/bita.yaml)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "local data directory (overrides data_dir)")

	// Add subcommands
	cmd.AddCommand(NewVendorCommand(opts))
	cmd.AddCommand(NewInvoiceCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))
	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewAccountCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewSlotCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}
