// Package session is the explicit handle for one signed-in account.
//
// A session is built in a fixed order: verify the identity, open the engine
// over the local cache, then pull the account's remote backup once, or
// upload local changes the backup never received. After that every
// mutation is applied locally first and then uploaded.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/abm1119/bita/internal/identity"
	"github.com/abm1119/bita/internal/ledger"
	"github.com/abm1119/bita/internal/localcache"
	"github.com/abm1119/bita/internal/metrics"
	"github.com/abm1119/bita/internal/remote"
	"github.com/abm1119/bita/internal/store"
	"github.com/abm1119/bita/internal/syncer"
)

// ErrSyncDisabled is returned by sync operations of a session started
// without a remote slot.
var ErrSyncDisabled = errors.New("sync disabled: no remote slot configured")

// Deps are the collaborators of a session. Only Cache is required.
type Deps struct {
	Cache localcache.Cache

	// Verifier resolves the sign-in token. Defaults to identity.Local.
	Verifier identity.Verifier

	// Slot is the remote backup store. Nil disables sync.
	Slot remote.Slot

	// Snapshot, when set, seeds the engine instead of the local cache.
	Snapshot []byte

	Clock   ledger.Clock
	IDs     ledger.IDGenerator
	Logger  *zap.Logger
	Metrics *metrics.SyncMetrics

	// Background makes mutations return before their upload finishes.
	Background bool
}

// Session is safe for concurrent use.
type Session struct {
	account    identity.Account
	store      *store.Store
	sync       *syncer.Syncer
	cache      localcache.Cache
	clock      ledger.Clock
	ids        ledger.IDGenerator
	log        *zap.Logger
	background bool

	uploads sync.WaitGroup
	warning error
}

// Start signs in with token and prepares the account's ledger. restored
// reports whether the remote backup replaced local data. Local saves whose
// upload failed are uploaded instead, unless the remote backup is newer.
//
// Only identity and engine failures are fatal. A failed download leaves
// local data in place and is reported by Warning.
func Start(ctx context.Context, deps Deps, token string) (s *Session, restored bool, err error) {
	if deps.Cache == nil {
		return nil, false, errors.New("start session: no local cache")
	}
	if deps.Verifier == nil {
		deps.Verifier = identity.Local{}
	}
	if deps.Clock == nil {
		deps.Clock = ledger.SystemClock{}
	}
	if deps.IDs == nil {
		deps.IDs = ledger.UUIDv7Generator{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	acct, err := deps.Verifier.Verify(ctx, token)
	if err != nil {
		return nil, false, fmt.Errorf("start session: %w", err)
	}
	log := deps.Logger.With(zap.String("account", acct.ID))

	// A cache without a revision has never been written on this device.
	_, saved, revErr := deps.Cache.Revision()
	fresh := revErr == nil && !saved

	opts := []store.Option{store.WithClock(deps.Clock), store.WithLogger(log.Named("store"))}
	if len(deps.Snapshot) > 0 {
		opts = append(opts, store.WithSnapshot(deps.Snapshot))
	}
	st, err := store.Open(ctx, deps.Cache, opts...)
	if err != nil {
		return nil, false, fmt.Errorf("start session: %w", err)
	}

	s = &Session{
		account:    acct,
		store:      st,
		cache:      deps.Cache,
		clock:      deps.Clock,
		ids:        deps.IDs,
		log:        log,
		background: deps.Background,
		warning:    st.InitWarning(),
	}
	if fresh {
		s.settleFreshCache()
	}

	if deps.Slot != nil {
		s.sync = syncer.New(st, deps.Slot, acct.ID,
			syncer.WithLogger(log.Named("sync")),
			syncer.WithMetrics(deps.Metrics),
			syncer.WithClock(deps.Clock.Now),
			syncer.WithRevisions(deps.Cache),
		)
		// Unsynced local saves are only trusted when they were loaded as
		// they are.
		if len(deps.Snapshot) == 0 && s.warning == nil {
			restored, err = s.sync.Resume(ctx)
		} else {
			restored, err = s.sync.DownloadBackup(ctx)
		}
		if err != nil {
			s.warning = errors.Join(s.warning, err)
		}
	}

	log.Info("session started", zap.Bool("restored", restored), zap.Bool("sync", s.sync != nil))
	return s, restored, nil
}

// settleFreshCache marks the ledger written by the first open as synced. It
// holds no changes of its own, so it must not be uploaded over a backup.
func (s *Session) settleFreshCache() {
	rev, ok, err := s.cache.Revision()
	if err == nil && ok {
		err = s.cache.MarkSynced(rev.Counter)
	}
	if err != nil {
		s.log.Warn("marking new local ledger as synced", zap.Error(err))
	}
}

// Account returns the signed-in account.
func (s *Session) Account() identity.Account { return s.account }

// SyncEnabled reports whether the session has a remote slot.
func (s *Session) SyncEnabled() bool { return s.sync != nil }

// Warning returns the non-fatal problems met by Start: skipped corrupt
// snapshots, local storage faults and a failed initial download.
func (s *Session) Warning() error { return s.warning }

// SyncStats returns the upload and download counters. It is the zero value
// for sessions without sync.
func (s *Session) SyncStats() syncer.Stats {
	if s.sync == nil {
		return syncer.Stats{}
	}
	return s.sync.Stats()
}

// afterMutation uploads the new state once a mutation has been applied.
//
// A local storage error does not undo the mutation, so the upload still
// runs. Any other error means nothing changed.
func (s *Session) afterMutation(ctx context.Context, localErr error) error {
	if localErr != nil && !localcache.IsLocalStorage(localErr) {
		return localErr
	}
	if s.sync == nil {
		return localErr
	}

	if s.background {
		uctx := context.WithoutCancel(ctx)
		s.uploads.Go(func() {
			// Failures are logged and counted by the syncer.
			_ = s.sync.UploadBackup(uctx)
		})
		return localErr
	}
	return errors.Join(localErr, s.sync.UploadBackup(ctx))
}

// waitUploads blocks until background uploads finish or ctx is done.
func (s *Session) waitUploads(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.uploads.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signs out. It waits for background uploads until ctx is done and
// then abandons them. The local cache is left open for the caller.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if err := s.waitUploads(ctx); err != nil {
		s.log.Warn("abandoning background uploads", zap.Error(err))
		errs = append(errs, fmt.Errorf("close session: pending uploads abandoned: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close session: %w", err))
	}
	s.log.Info("session closed")
	return errors.Join(errs...)
}

// DeleteAccount erases the account's data: the local durable copy and the
// remote backup. The session is closed afterwards.
func (s *Session) DeleteAccount(ctx context.Context) error {
	var errs []error
	if err := s.waitUploads(ctx); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if err := s.cache.ClearAll(); err != nil {
		errs = append(errs, err)
	}
	if s.sync != nil {
		if err := s.sync.DeleteBackup(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("delete account: %w", errors.Join(errs...))
	}
	s.log.Info("account deleted")
	return nil
}
