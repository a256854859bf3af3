package lock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func testLockers(t *testing.T) map[string]Locker {
	t.Helper()

	fileLocker, err := NewFileLocker(logrus.New(), t.TempDir())
	require.NoError(t, err)

	return map[string]Locker{
		"memory": NewMemoryLocker(),
		"file":   fileLocker,
	}
}

func TestTryLock(t *testing.T) {
	for name, l := range testLockers(t) {
		t.Run(name, func(t *testing.T) {
			unlock, err := l.TryLock("project-a")
			require.NoError(t, err)

			_, err = l.TryLock("project-a")
			require.ErrorIs(t, err, ErrLocked)

			other, err := l.TryLock("project-b")
			require.NoError(t, err, "distinct keys never contend")

			other()
			unlock()
			unlock()

			again, err := l.TryLock("project-a")
			require.NoError(t, err)
			again()
		})
	}
}

func TestTryLockConcurrent(t *testing.T) {
	l := NewMemoryLocker()

	var (
		wg       sync.WaitGroup
		winners  atomic.Int32
		attempts atomic.Int32
		start    = make(chan struct{})
		release  = make(chan struct{})
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			<-start

			unlock, err := l.TryLock("same")
			attempts.Add(1)

			if err != nil {
				return
			}

			winners.Add(1)
			<-release
			unlock()
		}()
	}

	close(start)

	assert.Eventually(t, func() bool { return attempts.Load() == 16 }, timeout, tick)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestLockFileName(t *testing.T) {
	assert.Equal(t, "a_b.lock", lockFileName("a/b"))
	assert.Equal(t, "__etc_passwd.lock", lockFileName("../etc/passwd"))
}

func TestMemoryLockerForgetsReleasedKeys(t *testing.T) {
	l, ok := NewMemoryLocker().(*memoryLocker)
	require.True(t, ok)

	for _, key := range []string{"project-a", "project-b", "project-c"} {
		unlock, err := l.TryLock(key)
		require.NoError(t, err)
		unlock()
	}

	assert.Equal(t, 0, l.size())

	held, err := l.TryLock("project-a")
	require.NoError(t, err)
	assert.Equal(t, 1, l.size())

	stale, err := l.TryLock("project-b")
	require.NoError(t, err)
	stale()
	stale()

	_, err = l.TryLock("project-a")
	require.ErrorIs(t, err, ErrLocked, "a repeated unlock of another key leaves held keys alone")

	held()
	assert.Equal(t, 0, l.size())
}
