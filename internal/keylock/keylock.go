// Package keylock serializes work per key while letting distinct keys
// proceed in parallel.
package keylock

import "sync"

// Locker hands out one mutex per key. Entries are reference counted and
// dropped once unused.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New returns an empty Locker.
func New() *Locker { return &Locker{locks: make(map[string]*entry)} }

// Lock blocks until the key is held and returns the matching unlock func.
func (l *Locker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// With runs f while holding the key.
func (l *Locker) With(key string, f func() error) error {
	unlock := l.Lock(key)
	defer unlock()
	return f()
}

func (l *Locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
