package services

import "sync"

// sessionLocks hands out one mutex per session id so summarization
// runs serialize within a session while distinct sessions proceed
// concurrently. Entries are created lazily and dropped when the
// session is deleted, so the map does not grow unboundedly.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

// Acquire returns the lock for a session, creating it on first use.
func (l *sessionLocks) Acquire(sessionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[sessionID] = lock
	}
	return lock
}

// Forget drops a session's lock entry. A holder of the old mutex is
// unaffected; the next Acquire hands out a fresh one.
func (l *sessionLocks) Forget(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, sessionID)
}
