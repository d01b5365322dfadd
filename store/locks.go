package store

import (
	"sync"
	"time"
)

const lockPollInterval = time.Millisecond

// timedRWMutex is a read-write mutex whose write acquisition is bounded in
// time. Writers poll TryLock so a contended thread fails fast with
// ErrLockTimeout instead of queuing indefinitely; readers block normally,
// their critical sections only cover snapshot copies.
type timedRWMutex struct {
	mu sync.RWMutex
}

func (m *timedRWMutex) lockTimeout(d time.Duration) bool {
	if m.mu.TryLock() {
		return true
	}
	deadline := time.Now().Add(d)
	for {
		time.Sleep(lockPollInterval)
		if m.mu.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
	}
}

func (m *timedRWMutex) unlock()  { m.mu.Unlock() }
func (m *timedRWMutex) rLock()   { m.mu.RLock() }
func (m *timedRWMutex) rUnlock() { m.mu.RUnlock() }
