package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewAccountCommand creates the account command group.
func NewAccountCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage the signed-in account",
	}

	var yes bool
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Erase the local ledger and the remote backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "refusing to delete account data without --yes")
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				acct := a.session.Account().ID
				if err := a.session.DeleteAccount(ctx); err != nil {
					return WrapExitError(ExitFailure, "account deletion incomplete", err)
				}
				return a.print(map[string]string{"deleted": acct}, "Deleted all data of account %s", acct)
			})
		},
	}
	deleteCmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	cmd.AddCommand(deleteCmd)

	return cmd
}
