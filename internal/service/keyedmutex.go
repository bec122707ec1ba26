package service

import "sync"

// keyedMutex serializes work per string key. Entries are reference counted
// and removed once the last holder unlocks, so the map does not grow with
// the number of sessions ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the lock for key, blocking until it is available.
func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases the lock for key.
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	l := k.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	l.mu.Unlock()
}
