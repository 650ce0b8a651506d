package refresh

import (
	"slices"
	"sync"
)

// keyedMutex serializes work on overlapping sets of keys.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

// Lock acquires every key and returns a function releasing them. Keys are
// acquired in sorted order so overlapping callers cannot deadlock.
func (k *keyedMutex) Lock(keys []string) (unlock func()) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]*keyLock, 0, len(sorted))
	for _, key := range sorted {
		held = append(held, k.acquire(key))
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.release(sorted[i], held[i])
		}
	}
}

func (k *keyedMutex) acquire(key string) *keyLock {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return l
}

func (k *keyedMutex) release(key string, l *keyLock) {
	l.mu.Unlock()

	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// size returns the number of keys currently held or waited on.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
