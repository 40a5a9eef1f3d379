package apply

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/netwrench/netwrench/internal/errors"
)

// LockManager grants per-interface exclusive apply locks. In-process
// exclusion uses a named mutex map; cross-process exclusion uses flock on a
// lock file per interface, so two netwrench processes cannot interleave
// applies against the same interface either.
type LockManager struct {
	dir  string
	mu   sync.Mutex
	held map[string]bool
}

func NewLockManager(dir string) *LockManager {
	return &LockManager{dir: dir, held: make(map[string]bool)}
}

// Acquire takes the lock for iface without blocking: a busy lock is an
// immediate, distinct error rather than a queue, because a queued apply
// would checkpoint state mid-mutation. The returned release function must be
// called exactly once.
func (m *LockManager) Acquire(iface string) (func(), error) {
	m.mu.Lock()
	if m.held[iface] {
		m.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeLocked, "another apply is already in flight for %s", iface)
	}
	m.held[iface] = true
	m.mu.Unlock()

	release := func(file *os.File) func() {
		return func() {
			if file != nil {
				unix.Flock(int(file.Fd()), unix.LOCK_UN)
				file.Close()
			}
			m.mu.Lock()
			delete(m.held, iface)
			m.mu.Unlock()
		}
	}

	if m.dir == "" {
		return release(nil), nil
	}

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		release(nil)()
		return nil, errors.Wrap(errors.ErrCodeInternal, fmt.Sprintf("failed to create lock directory %s", m.dir), err)
	}

	path := filepath.Join(m.dir, iface+".lock")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		release(nil)()
		return nil, errors.Wrap(errors.ErrCodeInternal, fmt.Sprintf("failed to open lock file %s", path), err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		release(nil)()
		if err == unix.EWOULDBLOCK {
			return nil, errors.Newf(errors.ErrCodeLocked, "another process holds the apply lock for %s", iface)
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, fmt.Sprintf("failed to lock %s", path), err)
	}

	return release(file), nil
}
