package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/abm1119/bita/internal/report"
)

// NewReportCommand creates the report command group.
func NewReportCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show ledger reports",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Show outstanding balances and this month's settlements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				s, err := a.session.Summary(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to build summary", err)
				}
				return a.out.Render(s, func(w io.Writer) error { return report.WriteSummary(w, s) })
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "prices [filter]",
		Short: "Show unit price history per item",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ""
			if len(args) == 1 {
				filter = args[0]
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				items, err := a.session.PriceHistory(ctx, filter)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to build price history", err)
				}
				return a.out.Render(items, func(w io.Writer) error { return report.WritePriceHistory(w, items) })
			})
		},
	})
	return cmd
}
