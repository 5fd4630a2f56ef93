package eventlog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when the repository lock could not be acquired
// within the configured timeout.
var ErrLockTimeout = errors.New("eventlog: repository lock timed out")

// withLock runs fn while holding the repository's exclusive lock file.
// Acquisition is non-blocking and retried every LockRetry until LockTimeout
// elapses. A fresh flock.Flock per call means goroutines of one process
// contend on the lock exactly like separate processes do.
func (s *Store) withLock(ctx context.Context, fn func() error) error {
	fl := flock.New(filepath.Join(s.dir, lockFileName))

	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, s.opts.LockRetry)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrLockTimeout
		}
		return fmt.Errorf("acquire repository lock: %w", err)
	}
	if !locked {
		return ErrLockTimeout
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}
