package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"bank_ledger/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockManagerMutualExclusion(t *testing.T) {
	m := NewLockManager()
	id := uuid.New()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	const workers = 50
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Acquire(ctx, id))
			counter++ // safe only under the lock
			m.Release(id)
		}()
	}
	wg.Wait()
	assert.Equal(t, workers, counter)
}

func TestLockManagerBlocksUntilRelease(t *testing.T) {
	m := NewLockManager()
	id := uuid.New()
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, id))
	acquired := make(chan struct{})
	go func() {
		assert.NoError(t, m.Acquire(ctx, id))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	m.Release(id)
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter was not woken by the release")
	}
	m.Release(id)
}

func TestLockManagerTimeout(t *testing.T) {
	m := NewLockManager()
	id := uuid.New()

	require.NoError(t, m.Acquire(context.Background(), id))
	defer m.Release(id)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := m.Acquire(ctx, id)
	require.Error(t, err)
	assert.Equal(t, domain.KindTimeout, domain.KindOf(err))
}

func TestLockManagerIndependentKeys(t *testing.T) {
	m := NewLockManager()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, m.Acquire(ctx, a))
	// A held lock on a must not block b.
	require.NoError(t, m.Acquire(ctx, b))
	m.Release(a)
	m.Release(b)
}

func TestLockManagerCleansUpIdleEntries(t *testing.T) {
	m := NewLockManager()
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, m.Acquire(ctx, id))
	m.Release(id)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.locks, "released keys must not accumulate")
}
