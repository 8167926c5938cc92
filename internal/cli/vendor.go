package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/abm1119/bita/internal/ledger"
)

// NewVendorCommand creates the vendor command group.
func NewVendorCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendor",
		Short: "Manage vendors",
	}
	cmd.AddCommand(newVendorAddCommand(opts))
	cmd.AddCommand(newVendorListCommand(opts))
	cmd.AddCommand(newVendorDeleteCommand(opts))
	return cmd
}

func newVendorAddCommand(opts *RootOptions) *cobra.Command {
	var v ledger.Vendor

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a vendor",
		Long: `Add a vendor. Passing --id of an existing vendor replaces it.

Example:
  bita vendor add --name "Acme Mills" --contact Sam --phone 555-0100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				stored, err := a.session.AddVendor(ctx, v)
				return a.finish("add vendor", err, stored, "Added vendor %s (%s)", stored.ID, stored.Name)
			})
		},
	}

	cmd.Flags().StringVar(&v.ID, "id", "", "vendor id (generated when empty)")
	cmd.Flags().StringVar(&v.Name, "name", "", "vendor name (required)")
	cmd.Flags().StringVar(&v.ContactPerson, "contact", "", "contact person")
	cmd.Flags().StringVar(&v.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&v.Email, "email", "", "email address")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newVendorListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List vendors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				vendors, err := a.session.Vendors(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list vendors", err)
				}
				return a.out.Render(vendors, func(w io.Writer) error {
					return writeVendors(w, vendors)
				})
			})
		},
	}
}

func writeVendors(w io.Writer, vendors []ledger.Vendor) error {
	if len(vendors) == 0 {
		_, err := fmt.Fprintln(w, "No vendors.")
		return err
	}
	if _, err := fmt.Fprintf(w, "%-36s  %-24s %-16s %-14s %s\n", "ID", "NAME", "CONTACT", "PHONE", "EMAIL"); err != nil {
		return err
	}
	for _, v := range vendors {
		if _, err := fmt.Fprintf(w, "%-36s  %-24s %-16s %-14s %s\n", v.ID, v.Name, v.ContactPerson, v.Phone, v.Email); err != nil {
			return err
		}
	}
	return nil
}

func newVendorDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a vendor and all of its invoices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				err := a.session.DeleteVendor(ctx, args[0])
				return a.finish("delete vendor", err, map[string]string{"deleted": args[0]}, "Deleted vendor %s", args[0])
			})
		},
	}
}
