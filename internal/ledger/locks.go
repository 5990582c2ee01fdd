package ledger

import (
	"context" // Deadline-aware acquisition
	"errors"  // Deadline error detection
	"sync"    // Registry mutex

	"bank_ledger/internal/domain" // Timeout error kind

	"github.com/google/uuid"      // Lock keys
	"golang.org/x/sync/semaphore" // Context-aware mutual exclusion
)

// LockManager hands out exclusive locks keyed by account ID. Each key is a
// weight-1 semaphore so acquisition blocks without polling and honors
// context deadlines. Entries are reference counted and removed once no
// holder or waiter remains, keeping the registry bounded by the number of
// accounts currently in flight.
type LockManager struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*accountLock
}

type accountLock struct {
	sem  *semaphore.Weighted
	refs int
}

// NewLockManager returns an empty lock registry.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[uuid.UUID]*accountLock)}
}

// Acquire blocks until the exclusive lock for id is granted or ctx expires.
// A deadline expiry is reported as a Timeout domain error so callers can
// surface the stable kind.
func (m *LockManager) Acquire(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &accountLock{sem: semaphore.NewWeighted(1)}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		m.unref(id)
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.E(domain.KindTimeout, "timed out waiting for account lock")
		}
		return domain.WrapStorage(err, "lock acquisition interrupted")
	}
	return nil
}

// Release frees the exclusive lock for id. It must only be called by the
// current holder.
func (m *LockManager) Release(id uuid.UUID) {
	m.mu.Lock()
	l, ok := m.locks[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	l.sem.Release(1)
	m.unref(id)
}

func (m *LockManager) unref(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		return
	}
	l.refs--
	if l.refs <= 0 {
		delete(m.locks, id)
	}
}
