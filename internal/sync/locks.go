package sync

import (
	stdsync "sync"

	"github.com/adstack/adsync/internal/ads"
)

// lockKey identifies one sync unit. Exclusivity is per (team, platform):
// two accounts on the same platform still serialize, because SyncRun
// rows and canonical campaigns are keyed the same way.
type lockKey struct {
	teamID   string
	platform ads.Platform
}

// keyedLocks provides non-blocking, non-reentrant try-locks per
// (team, platform). A unit that finds its key held is skipped; there
// is no queue and no blocking wait.
type keyedLocks struct {
	mu   stdsync.Mutex
	held map[lockKey]struct{}
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{held: make(map[lockKey]struct{})}
}

// tryAcquire attempts to take the lock for key. Returns false when the
// key is already held.
func (l *keyedLocks) tryAcquire(key lockKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return false
	}

	l.held[key] = struct{}{}

	return true
}

// release frees the lock for key. Releasing an unheld key is a no-op.
func (l *keyedLocks) release(key lockKey) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, key)
}
