package testutil

import (
	"errors"
	"sync"

	"github.com/abm1119/bita/internal/localcache"
)

// ErrInjected is the cause of every failure produced by FlakyCache.
var ErrInjected = errors.New("injected storage failure")

// FlakyCache wraps a localcache.Cache and fails on demand.
//
// Failures are reported as *localcache.LocalStorageError, the same as a
// real storage fault.
type FlakyCache struct {
	localcache.Cache

	mu        sync.Mutex
	failSave  bool
	failLoad  bool
	saveCalls int
}

// NewFlakyCache wraps c.
func NewFlakyCache(c localcache.Cache) *FlakyCache {
	return &FlakyCache{Cache: c}
}

// FailSaves makes subsequent Save calls fail (or succeed again).
func (f *FlakyCache) FailSaves(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSave = fail
}

// FailLoads makes subsequent Load calls fail (or succeed again).
func (f *FlakyCache) FailLoads(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failLoad = fail
}

// SaveCalls returns how many times Save was called, failed or not.
func (f *FlakyCache) SaveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCalls
}

func (f *FlakyCache) Save(data []byte) error {
	f.mu.Lock()
	f.saveCalls++
	fail := f.failSave
	f.mu.Unlock()

	if fail {
		return &localcache.LocalStorageError{Op: "save", Err: ErrInjected}
	}
	return f.Cache.Save(data)
}

func (f *FlakyCache) Load() ([]byte, bool, error) {
	f.mu.Lock()
	fail := f.failLoad
	f.mu.Unlock()

	if fail {
		return nil, false, &localcache.LocalStorageError{Op: "load", Err: ErrInjected}
	}
	return f.Cache.Load()
}
