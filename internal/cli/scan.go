package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/abm1119/bita/internal/extract"
)

// NewScanCommand creates the scan command group.
func NewScanCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Import invoices read from images",
	}
	cmd.AddCommand(newScanImportCommand(opts))
	return cmd
}

func newScanImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <response-file>",
		Short: "Import an invoice from a saved extraction response",
		Long: `Import an invoice from the text response of an invoice-reading model.
Markdown fences and surrounding prose are ignored. The vendor is matched by
name, or created when no vendor matches.

Example:
  bita scan import response.txt
  cat response.txt | bita scan import -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read response", err)
			}
			candidate, err := extract.Decode(string(data))
			if err != nil {
				return WrapExitError(ExitCommandError, "unusable extraction response", err)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.session.ImportCandidate(ctx, candidate)
				vendorNote := "existing vendor"
				if res.NewVendor {
					vendorNote = "new vendor"
				}
				return a.finish("import invoice", err, res,
					"Imported invoice %s (%s) for %s %s, total %s",
					res.Invoice.ID, res.Invoice.InvoiceNumber, vendorNote, res.Vendor.Name, res.Invoice.TotalAmount.StringFixed(2))
			})
		},
	}
}
