package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/abm1119/bita/internal/extract"
	"github.com/abm1119/bita/internal/ledger"
)

// NewInvoiceCommand creates the invoice command group.
func NewInvoiceCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Manage invoices",
	}
	cmd.AddCommand(newInvoiceAddCommand(opts))
	cmd.AddCommand(newInvoiceListCommand(opts))
	cmd.AddCommand(newInvoiceDeleteCommand(opts))
	cmd.AddCommand(newInvoicePayCommand(opts))
	return cmd
}

// InvoiceAddOptions holds flags for invoice add.
type InvoiceAddOptions struct {
	*RootOptions
	ID       string
	VendorID string
	Number   string
	Date     string
	Items    []string
	Total    string
}

func newInvoiceAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvoiceAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an unpaid invoice",
		Long: `Add an unpaid invoice. Each --item is name:category:quantity:unit-price;
the total is the sum of the line subtotals unless --total is given.

Example:
  bita invoice add --vendor v-1 --number INV-42 --date 2024-03-01 \
    --item "Flour:Baking:10:3.50" --item "Salt::1:0.75"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := opts.invoice()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid invoice", err)
			}
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				if inv.IssueDate.IsZero() {
					inv.IssueDate = ledger.Today(clockOf(rootOpts))
				}
				stored, err := a.session.AddInvoice(ctx, inv)
				return a.finish("add invoice", err, stored,
					"Added invoice %s (%s, total %s)", stored.ID, stored.InvoiceNumber, stored.TotalAmount.StringFixed(2))
			})
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "invoice id (generated when empty)")
	cmd.Flags().StringVar(&opts.VendorID, "vendor", "", "vendor id (required)")
	cmd.Flags().StringVar(&opts.Number, "number", "", "invoice number (required)")
	cmd.Flags().StringVar(&opts.Date, "date", "", "issue date YYYY-MM-DD (default today)")
	cmd.Flags().StringArrayVar(&opts.Items, "item", nil, "line item name:category:quantity:unit-price (repeatable)")
	cmd.Flags().StringVar(&opts.Total, "total", "", "invoice total (default sum of line items)")
	_ = cmd.MarkFlagRequired("vendor")
	_ = cmd.MarkFlagRequired("number")

	return cmd
}

func (o *InvoiceAddOptions) invoice() (ledger.Invoice, error) {
	var issued ledger.Date
	if o.Date != "" {
		d, err := ledger.ParseDate(o.Date)
		if err != nil {
			return ledger.Invoice{}, err
		}
		issued = d
	}

	items := make([]ledger.LineItem, 0, len(o.Items))
	for _, raw := range o.Items {
		item, err := parseItem(raw)
		if err != nil {
			return ledger.Invoice{}, err
		}
		items = append(items, item)
	}

	inv := ledger.NewInvoice(o.ID, o.VendorID, o.Number, issued, items)
	if o.Total != "" {
		total, err := decimal.NewFromString(o.Total)
		if err != nil {
			return ledger.Invoice{}, fmt.Errorf("total %q: %w", o.Total, err)
		}
		inv.TotalAmount = total
	}
	return inv, nil
}

// parseItem reads name:category:quantity:unit-price.
func parseItem(raw string) (ledger.LineItem, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 4 {
		return ledger.LineItem{}, fmt.Errorf("item %q: want name:category:quantity:unit-price", raw)
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil {
		return ledger.LineItem{}, fmt.Errorf("item %q: quantity: %w", raw, err)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(parts[3]))
	if err != nil {
		return ledger.LineItem{}, fmt.Errorf("item %q: unit price: %w", raw, err)
	}
	category := strings.TrimSpace(parts[1])
	if category == "" {
		category = extract.DefaultCategory
	}
	return ledger.LineItem{
		Name:      strings.TrimSpace(parts[0]),
		Category:  category,
		Quantity:  qty,
		UnitPrice: price,
	}, nil
}

func clockOf(opts *RootOptions) ledger.Clock {
	if opts.Clock != nil {
		return opts.Clock
	}
	return ledger.SystemClock{}
}

func newInvoiceListCommand(opts *RootOptions) *cobra.Command {
	var vendorID, status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !ledger.PaymentStatus(status).Valid() {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q: must be Unpaid, Partial or Paid", status))
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				invoices, err := a.session.Invoices(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list invoices", err)
				}
				vendors, err := a.session.Vendors(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list vendors", err)
				}

				filtered := make([]ledger.Invoice, 0, len(invoices))
				for _, inv := range invoices {
					if vendorID != "" && inv.VendorID != vendorID {
						continue
					}
					if status != "" && string(inv.Status) != status {
						continue
					}
					filtered = append(filtered, inv)
				}
				return a.out.Render(filtered, func(w io.Writer) error {
					return writeInvoices(w, vendors, filtered)
				})
			})
		},
	}

	cmd.Flags().StringVar(&vendorID, "vendor", "", "only invoices of this vendor id")
	cmd.Flags().StringVar(&status, "status", "", "only invoices with this status (Unpaid|Partial|Paid)")
	return cmd
}

func writeInvoices(w io.Writer, vendors []ledger.Vendor, invoices []ledger.Invoice) error {
	if len(invoices) == 0 {
		_, err := fmt.Fprintln(w, "No invoices.")
		return err
	}
	const row = "%-36s  %-12s %-16s %-10s %10s %10s  %-7s %s\n"
	if _, err := fmt.Fprintf(w, row, "ID", "NUMBER", "VENDOR", "ISSUED", "TOTAL", "PAID", "STATUS", "PAID ON"); err != nil {
		return err
	}
	for _, inv := range invoices {
		paidOn := ""
		if inv.PaymentDate != nil {
			paidOn = inv.PaymentDate.String()
		}
		if _, err := fmt.Fprintf(w, row, inv.ID, inv.InvoiceNumber, ledger.VendorName(vendors, inv.VendorID),
			inv.IssueDate, inv.TotalAmount.StringFixed(2), inv.PaidAmount.StringFixed(2), inv.Status, paidOn); err != nil {
			return err
		}
	}
	return nil
}

func newInvoiceDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				err := a.session.DeleteInvoice(ctx, args[0])
				return a.finish("delete invoice", err, map[string]string{"deleted": args[0]}, "Deleted invoice %s", args[0])
			})
		},
	}
}

func newInvoicePayCommand(opts *RootOptions) *cobra.Command {
	var amount, date string

	cmd := &cobra.Command{
		Use:   "pay <id>",
		Short: "Set the amount paid on an invoice",
		Long: `Set the running amount paid on an invoice. The status follows from the
amount; the payment date defaults to today when the invoice becomes Paid.

Example:
  bita invoice pay inv-1 --amount 35
  bita invoice pay inv-1 --amount 35 --date 2024-03-02`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paid, err := decimal.NewFromString(amount)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --amount", err)
			}
			var on *ledger.Date
			if date != "" {
				d, err := ledger.ParseDate(date)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --date", err)
				}
				on = &d
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				inv, err := a.session.RecordPayment(ctx, args[0], paid, on)
				return a.finish("record payment", err, inv,
					"Invoice %s is %s (paid %s of %s)", inv.ID, inv.Status, inv.PaidAmount.StringFixed(2), inv.TotalAmount.StringFixed(2))
			})
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "total amount paid so far (required)")
	cmd.Flags().StringVar(&date, "date", "", "payment date YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
