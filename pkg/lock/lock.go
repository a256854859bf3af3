// Package lock provides non-blocking per-key mutual exclusion for pipeline
// runs.
package lock

import (
	"errors"
	"sync"
)

// ErrLocked is returned when the key is already held.
var ErrLocked = errors.New("lock is held")

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func()

// Locker grants at most one holder per key at a time. TryLock never blocks.
type Locker interface {
	TryLock(key string) (Unlock, error)
}

// memoryLocker tracks the keys currently held. A key is only present while
// a run holds it, so the table never outgrows the number of active runs.
type memoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// Ensure memoryLocker implements Locker.
var _ Locker = (*memoryLocker)(nil)

// NewMemoryLocker creates a process-local Locker.
func NewMemoryLocker() Locker {
	return &memoryLocker{
		held: make(map[string]struct{}),
	}
}

// TryLock acquires key or returns ErrLocked.
func (l *memoryLocker) TryLock(key string) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}

	l.held[key] = struct{}{}

	return onceUnlock(func() { l.release(key) }), nil
}

func (l *memoryLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, key)
}

// size returns the number of held keys.
func (l *memoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.held)
}

func onceUnlock(fn func()) Unlock {
	var once sync.Once

	return func() {
		once.Do(fn)
	}
}
