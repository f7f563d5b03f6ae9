package k8s

import "sync"

// lazyValue holds a value computed on first use. A failed computation is
// not stored, so the next Get tries again.
type lazyValue[T any] struct {
	mu    sync.RWMutex
	value T
	set   bool
}

// Get returns the stored value, computing it with load when absent.
// Concurrent callers wait for a single load.
func (l *lazyValue[T]) Get(load func() (T, error)) (T, error) {
	l.mu.RLock()
	if l.set {
		v := l.value
		l.mu.RUnlock()
		return v, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set {
		return l.value, nil
	}

	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	l.value = v
	l.set = true
	return v, nil
}

// IsSet reports whether a value is stored.
func (l *lazyValue[T]) IsSet() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.set
}
