package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/abm1119/bita/internal/remote"
	"github.com/abm1119/bita/internal/session"
)

// NewSyncCommand creates the sync command group.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Transfer the ledger to and from the remote backup slot",
	}
	cmd.AddCommand(newSyncPullCommand(opts))
	cmd.AddCommand(newSyncPushCommand(opts))
	cmd.AddCommand(newSyncStatusCommand(opts))
	return cmd
}

func requireSync(a *app) error {
	if !a.session.SyncEnabled() {
		return WrapExitError(ExitCommandError, "remote.url is not configured", session.ErrSyncDisabled)
	}
	return nil
}

func newSyncPullCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Replace the local ledger with the remote backup",
		Long: `Restore the ledger from the account's remote backup. Every command
already does this on start; pull only reports the outcome. An empty slot
leaves local data untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := requireSync(a); err != nil {
					return err
				}
				if w := a.session.Warning(); remote.IsUnavailable(w) {
					return WrapExitError(ExitFailure, "remote backup unavailable, local data kept", w)
				}
				result := map[string]bool{"restored": a.restored}
				if a.restored {
					return a.print(result, "Restored ledger from remote backup.")
				}
				return a.print(result, "No remote backup; local ledger unchanged.")
			})
		},
	}
}

func newSyncPushCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Overwrite the remote backup with the local ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := requireSync(a); err != nil {
					return err
				}
				if err := a.session.Push(ctx); err != nil {
					return WrapExitError(ExitFailure, "upload failed", err)
				}
				return a.print(map[string]bool{"uploaded": true}, "Uploaded ledger to remote backup.")
			})
		},
	}
}

// SyncStatus is the output of sync status.
type SyncStatus struct {
	Account      string     `json:"account" yaml:"account"`
	RemoteExists bool       `json:"remoteExists" yaml:"remoteExists"`
	RemoteSaved  *time.Time `json:"remoteSaved,omitempty" yaml:"remoteSaved,omitempty"`
	LocalSaved   *time.Time `json:"localSaved,omitempty" yaml:"localSaved,omitempty"`
	LocalSaves   uint64     `json:"localSaves" yaml:"localSaves"`
}

func newSyncStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show when the local and remote copies were last written",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := requireSync(a); err != nil {
					return err
				}
				status := SyncStatus{Account: a.session.Account().ID}

				saved, ok, err := a.session.RemoteStatus(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "remote backup unavailable", err)
				}
				if ok {
					status.RemoteExists = true
					status.RemoteSaved = &saved
				}

				rev, ok, err := a.cache.Revision()
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read local revision", err)
				}
				if ok {
					status.LocalSaved = &rev.SavedAt
					status.LocalSaves = rev.Counter
				}

				remoteText, localText := "none", "never"
				if status.RemoteSaved != nil {
					remoteText = status.RemoteSaved.UTC().Format(time.RFC3339)
				}
				if status.LocalSaved != nil {
					localText = status.LocalSaved.UTC().Format(time.RFC3339)
				}
				return a.print(status, "Account %s\n  remote backup: %s\n  local copy:    %s (%d saves)",
					status.Account, remoteText, localText, status.LocalSaves)
			})
		},
	}
}
