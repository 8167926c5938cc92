package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/abm1119/bita/internal/codec"
	"github.com/abm1119/bita/internal/ledger"
	"github.com/abm1119/bita/internal/localcache"
)

var (
	// ErrNotFound is returned for operations on an id that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("store closed")
)

// Store is the ledger engine. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	db    *sql.DB
	cache localcache.Cache
	clock ledger.Clock
	log   *zap.Logger

	warning error
}

// Option configures Open.
type Option func(*options)

type options struct {
	snapshot []byte
	clock    ledger.Clock
	log      *zap.Logger
}

// WithSnapshot starts the store from data instead of the local cache.
func WithSnapshot(data []byte) Option {
	return func(o *options) { o.snapshot = data }
}

// WithClock sets the clock used for default payment dates.
func WithClock(c ledger.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// Open builds the engine on top of cache. The cache stays owned by the
// caller and is not closed by Close.
//
// Open only fails if no database can be created at all. Problems with the
// stored state are reported by InitWarning.
func Open(ctx context.Context, cache localcache.Cache, opts ...Option) (*Store, error) {
	o := options{clock: ledger.SystemClock{}, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{cache: cache, clock: o.clock, log: o.log}
	if err := s.init(ctx, o.snapshot); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context, snapshot []byte) error {
	var warnings []error

	if len(snapshot) > 0 {
		db, err := codec.Load(ctx, snapshot)
		if err == nil {
			s.db = db
			s.log.Info("loaded supplied snapshot", zap.Int("bytes", len(snapshot)))
			s.keepWarning(s.persistLocked(ctx))
			return nil
		}
		if !codec.IsCorrupt(err) {
			return fmt.Errorf("load snapshot: %w", err)
		}
		s.log.Warn("supplied snapshot is corrupt, falling back to local cache", zap.Error(err))
		warnings = append(warnings, err)
	}

	data, ok, err := s.cache.Load()
	switch {
	case err != nil:
		// The stored blob may be fine; don't overwrite it with an empty one.
		s.log.Warn("local cache unreadable, starting empty", zap.Error(err))
		db, nerr := codec.New(ctx)
		if nerr != nil {
			return fmt.Errorf("create database: %w", nerr)
		}
		s.db = db
		s.warning = errors.Join(append(warnings, err)...)
		return nil

	case ok:
		db, lerr := codec.Load(ctx, data)
		if lerr == nil {
			s.db = db
			s.log.Debug("loaded local snapshot", zap.Int("bytes", len(data)))
			s.warning = errors.Join(warnings...)
			return nil
		}
		if !codec.IsCorrupt(lerr) {
			return fmt.Errorf("load local snapshot: %w", lerr)
		}
		s.log.Warn("local snapshot is corrupt, starting empty", zap.Error(lerr))
		warnings = append(warnings, lerr)
	}

	db, err := codec.New(ctx)
	if err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	s.db = db
	s.warning = errors.Join(warnings...)
	s.keepWarning(s.persistLocked(ctx))
	return nil
}

func (s *Store) keepWarning(err error) {
	if err != nil {
		s.warning = errors.Join(s.warning, err)
	}
}

// InitWarning reports problems found while Open chose its starting state:
// corrupt snapshots that were skipped, or local storage failures. It is nil
// when the store started cleanly.
func (s *Store) InitWarning() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warning
}

// Close releases the in-memory database. Durable state is unaffected.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// ExportSnapshot returns the full database image without side effects.
func (s *Store) ExportSnapshot(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	return codec.Export(ctx, s.db)
}

// ImportSnapshot replaces the whole engine state with data and saves it as
// the local durable copy.
//
// If data is corrupt the current state is left untouched and the error
// satisfies codec.IsCorrupt.
func (s *Store) ImportSnapshot(ctx context.Context, data []byte) error {
	db, err := codec.Load(ctx, data)
	if err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		db.Close()
		return ErrClosed
	}

	old := s.db
	s.db = db
	if err := old.Close(); err != nil {
		s.log.Warn("closing replaced database", zap.Error(err))
	}

	s.log.Info("imported snapshot", zap.Int("bytes", len(data)))
	return s.persistLocked(ctx)
}

// mutate runs fn in a transaction and saves the resulting image.
func (s *Store) mutate(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return s.persistLocked(ctx)
}

// persistLocked exports the database and saves it to the cache.
// Caller must hold s.mu for writing.
func (s *Store) persistLocked(ctx context.Context) error {
	data, err := codec.Export(ctx, s.db)
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	if err := s.cache.Save(data); err != nil {
		s.log.Warn("local save failed, in-memory state kept", zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) today() ledger.Date {
	return ledger.Today(s.clock)
}
