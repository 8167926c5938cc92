package remote

import (
	"context"
	"errors"
	"sync"
)

// Slot stores one Backup per account.
type Slot interface {
	// Get returns the account's backup. ok is false if the slot is empty.
	Get(ctx context.Context, account string) (b Backup, ok bool, err error)

	// Put overwrites the account's backup.
	Put(ctx context.Context, account string, b Backup) error

	// Delete empties the account's slot. Deleting an empty slot succeeds.
	Delete(ctx context.Context, account string) error
}

// ErrOffline is the cause of failures injected into a MemorySlot.
var ErrOffline = errors.New("slot offline")

// MemorySlot is an in-process Slot. It is safe for concurrent use.
type MemorySlot struct {
	mu      sync.Mutex
	backups map[string]Backup
	offline bool
	puts    int
	gets    int

	// hook, if set, runs at the start of every call outside the lock.
	hook func(op string)
}

var _ Slot = (*MemorySlot)(nil)

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{backups: make(map[string]Backup)}
}

// SetOffline makes every call fail with a RemoteUnavailableError.
func (m *MemorySlot) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// OnCall installs fn to run before each Get, Put or Delete. Tests use it to
// block or observe calls.
func (m *MemorySlot) OnCall(fn func(op string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}

// Puts returns the number of Put calls that stored a backup.
func (m *MemorySlot) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// Gets returns the number of Get calls that reached the store.
func (m *MemorySlot) Gets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

func (m *MemorySlot) enter(ctx context.Context, op, account string) error {
	m.mu.Lock()
	hook := m.hook
	m.mu.Unlock()
	if hook != nil {
		hook(op)
	}

	if err := ctx.Err(); err != nil {
		return unavailable(op, account, 0, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return unavailable(op, account, 0, ErrOffline)
	}
	return nil
}

func (m *MemorySlot) Get(ctx context.Context, account string) (Backup, bool, error) {
	if err := m.enter(ctx, "get", account); err != nil {
		return Backup{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	b, ok := m.backups[account]
	return b, ok, nil
}

func (m *MemorySlot) Put(ctx context.Context, account string, b Backup) error {
	if err := m.enter(ctx, "put", account); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.backups[account] = b
	return nil
}

func (m *MemorySlot) Delete(ctx context.Context, account string) error {
	if err := m.enter(ctx, "delete", account); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.backups, account)
	return nil
}
