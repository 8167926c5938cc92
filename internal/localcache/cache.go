// Package localcache keeps the latest ledger snapshot in on-device durable
// storage.
//
// The snapshot blob and a small revision marker live under fixed keys in a
// single badger database. Both keys are written in one transaction, so a
// process that dies mid-save leaves the previous value intact.
package localcache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/abm1119/bita/internal/logging"
)

// Fixed key layout. Local storage is not partitioned by account.
const (
	StoreName   = "bita_storage"
	BlobKey     = StoreName + "/ledger_data/sqlite_binary"
	RevisionKey = StoreName + "/meta/bita_rev"
	SyncedKey   = StoreName + "/meta/bita_synced"
)

// Cache is the durable home of the snapshot blob.
type Cache interface {
	// Save replaces the stored blob and advances the revision marker.
	Save(data []byte) error

	// Load returns the last saved blob. ok is false if nothing was saved.
	Load() (data []byte, ok bool, err error)

	// Revision returns the marker without reading the blob.
	Revision() (rev Revision, ok bool, err error)

	// MarkSynced records that the state saved as revision counter matches
	// the remote backup. The synced counter never moves backwards.
	MarkSynced(counter uint64) error

	// ClearAll removes the blob and both markers.
	ClearAll() error

	Close() error
}

// Revision is the lightweight marker written alongside every save.
type Revision struct {
	Counter uint64
	SavedAt time.Time

	// Synced is the last Counter known to match the remote backup.
	Synced uint64
}

// Unsynced reports whether saves happened after the last sync.
func (r Revision) Unsynced() bool {
	return r.Counter > r.Synced
}

const revisionSize = 16

func (r Revision) encode() []byte {
	b := make([]byte, revisionSize)
	binary.BigEndian.PutUint64(b[0:8], r.Counter)
	binary.BigEndian.PutUint64(b[8:16], uint64(r.SavedAt.UnixMilli()))
	return b
}

func decodeRevision(b []byte) (Revision, error) {
	if len(b) != revisionSize {
		return Revision{}, fmt.Errorf("revision marker has %d bytes, want %d", len(b), revisionSize)
	}
	return Revision{
		Counter: binary.BigEndian.Uint64(b[0:8]),
		SavedAt: time.UnixMilli(int64(binary.BigEndian.Uint64(b[8:16]))).UTC(),
	}, nil
}

// LocalStorageError reports a durable read or write failure.
type LocalStorageError struct {
	Op  string
	Err error
}

func (e *LocalStorageError) Error() string {
	return fmt.Sprintf("local storage %s: %v", e.Op, e.Err)
}

func (e *LocalStorageError) Unwrap() error {
	return e.Err
}

// IsLocalStorage reports whether err is a LocalStorageError.
// Uses errors.As to handle wrapped errors.
func IsLocalStorage(err error) bool {
	var le *LocalStorageError
	return errors.As(err, &le)
}

// Option configures a Badger cache.
type Option func(*options)

type options struct {
	log *zap.Logger
	now func() time.Time
}

// WithLogger routes badger's internal logging through log.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithClock sets the time source for revision markers.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Badger is a Cache backed by a badger database.
type Badger struct {
	db  *badger.DB
	now func() time.Time
	log *zap.Logger
}

var _ Cache = (*Badger)(nil)

// Open opens or creates the cache in dir. Writes are synced to disk before
// Save returns.
func Open(dir string, opts ...Option) (*Badger, error) {
	if dir == "" {
		return nil, &LocalStorageError{Op: "open", Err: errors.New("empty directory")}
	}
	return open(badger.DefaultOptions(dir).WithSyncWrites(true), opts)
}

// OpenInMemory opens a cache that lives only as long as the process.
func OpenInMemory(opts ...Option) (*Badger, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), opts)
}

func open(bopts badger.Options, opts []Option) (*Badger, error) {
	o := options{log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	bopts = bopts.WithLogger(logging.NewBadgerLogger(o.log))
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, &LocalStorageError{Op: "open", Err: err}
	}
	return &Badger{db: db, now: o.now, log: o.log}, nil
}

// Close releases the underlying database.
func (c *Badger) Close() error {
	if err := c.db.Close(); err != nil {
		return &LocalStorageError{Op: "close", Err: err}
	}
	return nil
}

func (c *Badger) Save(data []byte) error {
	var next Revision
	err := c.db.Update(func(txn *badger.Txn) error {
		prev, _, err := readRevision(txn)
		if err != nil {
			return err
		}
		next = Revision{Counter: prev.Counter + 1, SavedAt: c.now().UTC()}

		if err := txn.Set([]byte(BlobKey), data); err != nil {
			return fmt.Errorf("set blob: %w", err)
		}
		if err := txn.Set([]byte(RevisionKey), next.encode()); err != nil {
			return fmt.Errorf("set revision: %w", err)
		}
		return nil
	})
	if err != nil {
		return &LocalStorageError{Op: "save", Err: err}
	}

	c.log.Debug("saved snapshot",
		zap.Int("bytes", len(data)),
		zap.Uint64("revision", next.Counter))
	return nil
}

func (c *Badger) Load() ([]byte, bool, error) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(BlobKey))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &LocalStorageError{Op: "load", Err: err}
	}
	return data, true, nil
}

func (c *Badger) Revision() (Revision, bool, error) {
	var (
		rev Revision
		ok  bool
	)
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		rev, ok, err = readRevision(txn)
		return err
	})
	if err != nil {
		return Revision{}, false, &LocalStorageError{Op: "revision", Err: err}
	}
	return rev, ok, nil
}

func (c *Badger) MarkSynced(counter uint64) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		prev, err := readSynced(txn)
		if err != nil {
			return err
		}
		if counter <= prev {
			return nil
		}
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, counter)
		return txn.Set([]byte(SyncedKey), b)
	})
	if err != nil {
		return &LocalStorageError{Op: "mark synced", Err: err}
	}
	return nil
}

func (c *Badger) ClearAll() error {
	err := c.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{BlobKey, RevisionKey, SyncedKey} {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &LocalStorageError{Op: "clear", Err: err}
	}
	c.log.Info("cleared local snapshot")
	return nil
}

func readRevision(txn *badger.Txn) (Revision, bool, error) {
	item, err := txn.Get([]byte(RevisionKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Revision{}, false, nil
	}
	if err != nil {
		return Revision{}, false, err
	}

	var rev Revision
	err = item.Value(func(val []byte) error {
		var derr error
		rev, derr = decodeRevision(val)
		return derr
	})
	if err != nil {
		return Revision{}, false, err
	}
	rev.Synced, err = readSynced(txn)
	if err != nil {
		return Revision{}, false, err
	}
	return rev, true, nil
}

func readSynced(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get([]byte(SyncedKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var counter uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("synced marker has %d bytes, want 8", len(val))
		}
		counter = binary.BigEndian.Uint64(val)
		return nil
	})
	return counter, err
}
