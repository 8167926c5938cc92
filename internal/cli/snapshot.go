package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewSnapshotCommand creates the snapshot command group.
func NewSnapshotCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or import the raw ledger database image",
	}
	cmd.AddCommand(newSnapshotExportCommand(opts))
	cmd.AddCommand(newSnapshotImportCommand(opts))
	return cmd
}

func newSnapshotExportCommand(opts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the database image to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				data, err := a.session.ExportSnapshot(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "export failed", err)
				}
				if output == "-" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o600); err != nil {
					return WrapExitError(ExitFailure, "failed to write snapshot", err)
				}
				return a.print(map[string]any{"file": output, "bytes": len(data)},
					"Wrote %d bytes to %s", len(data), output)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (required)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newSnapshotImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the ledger with a database image",
		Long: `Replace the whole ledger with a database image written by snapshot
export. A corrupt image is rejected and the ledger is left unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read snapshot", err)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				err := a.session.ImportSnapshot(ctx, data)
				return a.finish("import snapshot", err, map[string]any{"file": args[0], "bytes": len(data)},
					"Imported %d bytes from %s", len(data), args[0])
			})
		},
	}
}

// readInput reads path, or standard input when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
