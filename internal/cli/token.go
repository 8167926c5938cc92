package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/abm1119/bita/internal/identity"
)

// NewTokenCommand creates the token command group.
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage account tokens",
	}

	var (
		account string
		email   string
		ttl     time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for an account",
		Long: `Issue an HS256 token for an account, signed with auth.secret. The slot
server accepts the token for that account's backup only.

Example:
  BITA_AUTH_SECRET=... bita token issue --account bakery-1 --ttl 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return NewExitError(ExitCommandError, "auth.secret is not configured")
			}
			verifier, err := identity.NewJWTVerifier(cfg.Auth.Secret)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid auth.secret", err)
			}
			token, err := verifier.Issue(identity.Account{ID: account, Email: email}, ttl)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to issue token", err)
			}
			out := newFormatter(cmd, opts)
			if out.isStructured() {
				return out.Success(map[string]string{"account": account, "token": token})
			}
			return out.Success(token)
		},
	}
	issue.Flags().StringVar(&account, "account", "", "account id (required)")
	issue.Flags().StringVar(&email, "email", "", "account email")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (0 never expires)")
	_ = issue.MarkFlagRequired("account")
	cmd.AddCommand(issue)

	return cmd
}
