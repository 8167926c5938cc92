package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abm1119/bita/internal/config"
	"github.com/abm1119/bita/internal/identity"
	"github.com/abm1119/bita/internal/ledger"
	"github.com/abm1119/bita/internal/localcache"
	"github.com/abm1119/bita/internal/logging"
	"github.com/abm1119/bita/internal/remote"
	"github.com/abm1119/bita/internal/session"
)

// closeTimeout bounds how long a command waits for background uploads.
const closeTimeout = 30 * time.Second

// app is the state shared by commands that work on the ledger.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	out      *OutputFormatter
	cache    *localcache.Badger
	session  *session.Session
	restored bool
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, opts *RootOptions, cfg config.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	log, err := logging.New(logging.Options{
		Level:  level,
		Format: logging.Format(cfg.Log.Format),
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid log settings", err)
	}
	return log, nil
}

// verifierFor checks tokens locally when the secret is known. Otherwise the
// account is read from the token and the slot server does the checking.
func verifierFor(cfg config.Config) (identity.Verifier, error) {
	if cfg.Auth.Secret == "" {
		return identity.Unverified{}, nil
	}
	return identity.NewJWTVerifier(cfg.Auth.Secret)
}

// openApp loads the configuration and starts a session over the local
// data directory.
func openApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cmd, opts, cfg)
	if err != nil {
		return nil, err
	}
	out := newFormatter(cmd, opts)

	out.VerboseLog("Opening data directory %s", cfg.DataDir)
	cacheOpts := []localcache.Option{localcache.WithLogger(log.Named("cache"))}
	if opts.Clock != nil {
		cacheOpts = append(cacheOpts, localcache.WithClock(opts.Clock.Now))
	}
	cache, err := localcache.Open(cfg.DataDir, cacheOpts...)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to open local data", err)
	}

	deps := session.Deps{
		Cache:      cache,
		Clock:      opts.Clock,
		IDs:        opts.IDs,
		Logger:     log,
		Background: cfg.Sync.Background,
	}
	if cfg.SyncEnabled() {
		slot, err := remote.NewHTTPSlot(cfg.Remote.URL,
			remote.WithToken(cfg.Auth.Token),
			remote.WithHTTPClient(&http.Client{Timeout: cfg.Remote.Timeout}),
			remote.WithLogger(log.Named("remote")),
		)
		if err != nil {
			cache.Close()
			return nil, WrapExitError(ExitCommandError, "invalid remote.url", err)
		}
		verifier, err := verifierFor(cfg)
		if err != nil {
			cache.Close()
			return nil, WrapExitError(ExitCommandError, "invalid auth settings", err)
		}
		deps.Slot = slot
		deps.Verifier = verifier
		out.VerboseLog("Syncing with %s", cfg.Remote.URL)
	}

	s, restored, err := session.Start(commandContext(cmd), deps, cfg.Auth.Token)
	if err != nil {
		cache.Close()
		if errors.Is(err, identity.ErrUnauthenticated) {
			return nil, WrapExitError(ExitCommandError, "sign-in failed", err)
		}
		return nil, WrapExitError(ExitFailure, "failed to start session", err)
	}
	if w := s.Warning(); w != nil {
		out.VerboseLog("warning: %v", w)
	}
	if restored {
		out.VerboseLog("Restored ledger from remote backup")
	}

	return &app{cfg: cfg, log: log, out: out, cache: cache, session: s, restored: restored}, nil
}

func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	err := a.session.Close(ctx)
	if cerr := a.cache.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	_ = a.log.Sync()
	return err
}

// withApp runs fn with an open session and closes it afterwards.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *app) error) (err error) {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = WrapExitError(ExitFailure, "failed to close session", cerr)
		}
	}()
	return fn(commandContext(cmd), a)
}

// mutationError classifies the error of a session mutation. applied is true
// when the change took effect in the ledger even though err is not nil.
func mutationError(action string, err error) (applied bool, exit error) {
	switch {
	case err == nil:
		return true, nil
	case localcache.IsLocalStorage(err), remote.IsUnavailable(err):
		return true, WrapExitError(ExitFailure, action+" applied but not fully saved", err)
	case ledger.IsValidation(err):
		return false, WrapExitError(ExitCommandError, "invalid input", err)
	default:
		return false, WrapExitError(ExitFailure, action+" failed", err)
	}
}

// print writes data in the structured formats, or the formatted line for
// text output.
func (a *app) print(data any, format string, args ...any) error {
	return a.out.Render(data, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, format+"\n", args...)
		return err
	})
}

// finish reports the outcome of a mutation. The result is printed whenever
// the change took effect, even if saving or uploading it failed.
func (a *app) finish(action string, err error, data any, format string, args ...any) error {
	applied, exit := mutationError(action, err)
	if !applied {
		return exit
	}
	if perr := a.print(data, format, args...); perr != nil {
		return perr
	}
	return exit
}
