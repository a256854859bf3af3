package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

// fileLocker holds an advisory lock file per key, so that several specsync
// processes sharing a directory exclude each other.
type fileLocker struct {
	log logrus.FieldLogger
	dir string
}

// Ensure fileLocker implements Locker.
var _ Locker = (*fileLocker)(nil)

// NewFileLocker creates a Locker backed by lock files in dir.
func NewFileLocker(log logrus.FieldLogger, dir string) (Locker, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	return &fileLocker{
		log: log.WithField("component", "lock"),
		dir: dir,
	}, nil
}

// TryLock acquires the lock file for key or returns ErrLocked.
func (l *fileLocker) TryLock(key string) (Unlock, error) {
	fl := flock.New(filepath.Join(l.dir, lockFileName(key)))

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", fl.Path(), err)
	}

	if !locked {
		return nil, ErrLocked
	}

	return onceUnlock(func() {
		if err := fl.Unlock(); err != nil {
			l.log.WithError(err).WithField("key", key).Warn("Failed to release lock file")
		}
	}), nil
}

func lockFileName(key string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key) + ".lock"
}
