package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abm1119/bita/internal/identity"
	"github.com/abm1119/bita/internal/metrics"
	"github.com/abm1119/bita/internal/slotserver"
)

// shutdownTimeout bounds graceful shutdown of the slot server.
const shutdownTimeout = 10 * time.Second

// NewSlotCommand creates the slot command group.
func NewSlotCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Run the remote backup slot service",
	}
	cmd.AddCommand(newSlotServeCommand(opts))
	return cmd
}

// SlotServeOptions holds flags for slot serve.
type SlotServeOptions struct {
	*RootOptions
	Addr     string
	Database string

	// Ready, if set, receives the bound address once the server listens
	// (for testing).
	Ready chan<- string
}

func newSlotServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SlotServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve per-account backup slots over HTTP",
		Long: `Serve GET/PUT/DELETE /users/{account}/sqlite_backup.json for bita clients.
Requests need a bearer token signed with auth.secret whose subject is the
account. Slots are kept in a SQLite database.

Example:
  BITA_AUTH_SECRET=... bita slot serve --addr :8787 --db ./slots.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveSlots(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides server.db)")

	return cmd
}

func serveSlots(cmd *cobra.Command, opts *SlotServeOptions) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	if opts.Database != "" {
		cfg.Server.DB = opts.Database
	}
	log, err := newLogger(cmd, opts.RootOptions, cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	verifier, err := identity.NewJWTVerifier(cfg.Auth.Secret)
	if err != nil {
		return WrapExitError(ExitCommandError, "auth.secret is required to serve slots", err)
	}

	db, err := slotserver.Connect(cfg.Server.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open slot database", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv := slotserver.New(db, verifier,
		slotserver.WithLogger(log.Named("slotserver")),
		slotserver.WithMetrics(metrics.NewSlotMetrics(reg), reg),
	)

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	httpServer := &http.Server{
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	addr := ln.Addr().String()
	log.Info("slot server listening", zap.String("addr", addr), zap.String("db", cfg.Server.DB))
	fmt.Fprintf(cmd.OutOrStdout(), "Serving backup slots on %s\n", addr)
	if opts.Ready != nil {
		opts.Ready <- addr
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "slot server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down slot server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "slot server shutdown", err)
	}
	return nil
}
