// Package syncer mirrors the local engine to the account's remote backup
// slot.
//
// The policy is download once at session start (or upload, when local
// changes never reached the slot), then upload the whole snapshot after
// every local mutation. Uploads and downloads for an account
// never overlap: they share one single-slot semaphore.
//
// An upload requested while another upload is already queued (waiting for
// the semaphore, not yet exporting) is merged into the queued one. The
// queued upload exports after the request was made, so its snapshot already
// contains the caller's change. The caller waits for it and receives its
// result. If the queued upload is abandoned before it runs, the caller
// queues its own.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/abm1119/bita/internal/localcache"
	"github.com/abm1119/bita/internal/metrics"
	"github.com/abm1119/bita/internal/remote"
)

// SnapshotEngine is the part of the engine the syncer needs.
type SnapshotEngine interface {
	ExportSnapshot(ctx context.Context) ([]byte, error)
	ImportSnapshot(ctx context.Context, data []byte) error
}

// Stats counts sync activity since the Syncer was created.
type Stats struct {
	Uploads        int // uploads that reached the slot successfully
	Coalesced      int // upload requests merged into a queued upload
	UploadFailures int
	Downloads      int // downloads attempted
	Restores       int // downloads that replaced local state
	LastUpload     time.Time
}

type pendingUpload struct {
	done      chan struct{}
	err       error
	abandoned bool // never acquired the semaphore
}

// Revisions is the part of the local cache that records which saved
// revision the slot holds.
type Revisions interface {
	Revision() (localcache.Revision, bool, error)
	MarkSynced(counter uint64) error
}

type Syncer struct {
	engine    SnapshotEngine
	slot      remote.Slot
	account   string
	revisions Revisions

	sem     *semaphore.Weighted
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.SyncMetrics

	mu      sync.Mutex
	pending *pendingUpload
	stats   Stats
}

// Option configures a Syncer.
type Option func(*Syncer)

func WithLogger(log *zap.Logger) Option {
	return func(s *Syncer) { s.log = log }
}

// WithMetrics records sync outcomes in m.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(s *Syncer) { s.metrics = m }
}

// WithRevisions tracks synced revisions in r. Successful uploads and
// restores mark the local revision as synced.
func WithRevisions(r Revisions) Option {
	return func(s *Syncer) { s.revisions = r }
}

// WithClock sets the source of backup timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// New returns a Syncer for account's slot.
func New(engine SnapshotEngine, slot remote.Slot, account string, opts ...Option) *Syncer {
	s := &Syncer{
		engine:  engine,
		slot:    slot,
		account: account,
		sem:     semaphore.NewWeighted(1),
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("account", account))
	return s
}

// Account returns the account whose slot this Syncer mirrors to.
func (s *Syncer) Account() string {
	return s.account
}

// Stats returns a copy of the activity counters.
func (s *Syncer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// DownloadBackup restores the engine from the remote slot. It reports
// whether local state was replaced; an empty slot leaves it untouched.
// restored can be true together with a local storage error.
//
// Errors are for reporting only. Local state is never damaged by a failed
// download.
func (s *Syncer) DownloadBackup(ctx context.Context) (bool, error) {
	start := s.now()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("download backup: %w", err)
	}
	defer s.sem.Release(1)

	s.mu.Lock()
	s.stats.Downloads++
	s.mu.Unlock()

	restored, size, err := s.download(ctx)
	result := metrics.ResultSuccess
	switch {
	case restored:
		s.mu.Lock()
		s.stats.Restores++
		s.mu.Unlock()
		s.metrics.SetSnapshotBytes(size)
		if err != nil {
			s.log.Warn("restored from remote backup, local save failed", zap.Int("bytes", size), zap.Error(err))
		} else {
			s.log.Info("restored from remote backup", zap.Int("bytes", size))
		}
	case err != nil:
		result = metrics.ResultFailed
		s.log.Warn("download failed, keeping local data", zap.Error(err))
	default:
		result = metrics.ResultAbsent
		s.log.Info("no remote backup")
	}
	s.metrics.Observe(metrics.OpDownload, result, s.now().Sub(start))
	return restored, err
}

func (s *Syncer) download(ctx context.Context) (bool, int, error) {
	b, ok, err := s.slot.Get(ctx, s.account)
	if err != nil {
		return false, 0, err
	}
	if !ok {
		return false, 0, nil
	}

	data, err := b.Decode()
	if err != nil {
		return false, 0, fmt.Errorf("download backup: %w", err)
	}
	if len(data) == 0 {
		// An empty payload would wipe local data; treat it as no backup.
		return false, 0, nil
	}

	if err := s.engine.ImportSnapshot(ctx, data); err != nil {
		// The engine switched to the backup in memory; only its local
		// save failed.
		if localcache.IsLocalStorage(err) {
			return true, len(data), fmt.Errorf("download backup: %w", err)
		}
		return false, 0, fmt.Errorf("download backup: %w", err)
	}
	if rev, ok := s.localRevision(); ok {
		s.markSynced(rev.Counter)
	}
	return true, len(data), nil
}

// UploadBackup overwrites the remote slot with the engine's current
// snapshot. See the package comment for how concurrent calls are merged.
//
// A failed upload leaves local state as it is; the next call tries again.
func (s *Syncer) UploadBackup(ctx context.Context) error {
	start := s.now()
	for {
		p, owner := s.queueUpload()
		if owner {
			return s.runUpload(ctx, p, start)
		}

		s.metrics.Observe(metrics.OpUpload, metrics.ResultCoalesced, 0)
		select {
		case <-p.done:
		case <-ctx.Done():
			return fmt.Errorf("upload backup: %w", ctx.Err())
		}
		if !p.abandoned {
			return p.err
		}
		// The queued upload never ran; queue a new one.
	}
}

// queueUpload joins the queued upload, or queues a new one owned by the
// caller.
func (s *Syncer) queueUpload() (p *pendingUpload, owner bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.stats.Coalesced++
		return s.pending, false
	}
	s.pending = &pendingUpload{done: make(chan struct{})}
	return s.pending, true
}

func (s *Syncer) runUpload(ctx context.Context, p *pendingUpload, start time.Time) error {
	err := s.sem.Acquire(ctx, 1)

	// Once the semaphore is held this upload may export at any moment, so
	// later callers must queue a new one.
	s.mu.Lock()
	if s.pending == p {
		s.pending = nil
	}
	s.mu.Unlock()

	if err != nil {
		p.err = fmt.Errorf("upload backup: %w", err)
		p.abandoned = true
		close(p.done)
		return p.err
	}

	size, err := s.upload(ctx)
	s.sem.Release(1)

	s.mu.Lock()
	if err != nil {
		s.stats.UploadFailures++
	} else {
		s.stats.Uploads++
		s.stats.LastUpload = s.now()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("upload failed, remote backup is stale", zap.Error(err))
		s.metrics.Observe(metrics.OpUpload, metrics.ResultFailed, s.now().Sub(start))
	} else {
		s.log.Debug("uploaded backup", zap.Int("bytes", size))
		s.metrics.Observe(metrics.OpUpload, metrics.ResultSuccess, s.now().Sub(start))
		s.metrics.SetSnapshotBytes(size)
	}

	p.err = err
	close(p.done)
	return err
}

func (s *Syncer) upload(ctx context.Context) (int, error) {
	// Read before exporting: the export holds at least this revision.
	rev, haveRev := s.localRevision()

	data, err := s.engine.ExportSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("upload backup: export: %w", err)
	}
	if err := s.slot.Put(ctx, s.account, remote.EncodeBackup(data, s.now())); err != nil {
		return 0, err
	}
	if haveRev {
		s.markSynced(rev.Counter)
	}
	return len(data), nil
}

func (s *Syncer) localRevision() (localcache.Revision, bool) {
	if s.revisions == nil {
		return localcache.Revision{}, false
	}
	rev, ok, err := s.revisions.Revision()
	if err != nil {
		s.log.Warn("reading local revision", zap.Error(err))
		return localcache.Revision{}, false
	}
	return rev, ok
}

func (s *Syncer) markSynced(counter uint64) {
	if err := s.revisions.MarkSynced(counter); err != nil {
		s.log.Warn("recording synced revision", zap.Uint64("revision", counter), zap.Error(err))
	}
}

// Resume brings the engine and the slot together when a session starts.
//
// Local saves that never reached the slot are uploaded, unless the remote
// backup was written after the last of them; in that case, and whenever
// local state is already synced, the remote backup is restored as by
// DownloadBackup. Without WithRevisions, Resume is DownloadBackup.
func (s *Syncer) Resume(ctx context.Context) (bool, error) {
	rev, ok := s.localRevision()
	if !ok || !rev.Unsynced() {
		return s.DownloadBackup(ctx)
	}

	remoteAt, exists, err := s.RemoteStatus(ctx)
	if err != nil {
		return false, fmt.Errorf("resume: %w", err)
	}
	if exists && remoteAt.After(rev.SavedAt) {
		s.log.Warn("remote backup is newer than unsynced local changes, restoring it",
			zap.Time("remote", remoteAt), zap.Time("local", rev.SavedAt))
		return s.DownloadBackup(ctx)
	}

	s.log.Info("uploading local changes missing from the remote backup",
		zap.Uint64("revision", rev.Counter), zap.Uint64("synced", rev.Synced))
	return false, s.UploadBackup(ctx)
}

// RemoteStatus reports the timestamp of the account's remote backup
// without importing it.
func (s *Syncer) RemoteStatus(ctx context.Context) (time.Time, bool, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return time.Time{}, false, fmt.Errorf("remote status: %w", err)
	}
	defer s.sem.Release(1)

	b, ok, err := s.slot.Get(ctx, s.account)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return b.Time(), true, nil
}

// DeleteBackup empties the account's slot. It waits for in-flight sync
// operations.
func (s *Syncer) DeleteBackup(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("delete backup: %w", err)
	}
	defer s.sem.Release(1)

	if err := s.slot.Delete(ctx, s.account); err != nil {
		return err
	}
	s.log.Info("deleted remote backup")
	return nil
}
