package cache

import (
	"fmt"
	"sync"
)

// Versioned scopes a Cache to a data version. Observing a version other
// than the last one seen purges everything, so a derived value can never
// outlive the records it was computed from.
type Versioned[T any] struct {
	mu      sync.Mutex
	inner   Cache[T]
	version uint64
	seen    bool
}

func NewVersioned[T any](inner Cache[T]) *Versioned[T] {
	return &Versioned[T]{inner: inner}
}

// observe reports false for versions older than the newest one seen.
func (v *Versioned[T]) observe(version uint64) bool {
	if v.seen && version < v.version {
		return false
	}
	if !v.seen || version != v.version {
		v.inner.Purge()
		v.version = version
		v.seen = true
	}
	return true
}

func (v *Versioned[T]) Get(version uint64, key string) (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.observe(version) {
		var zero T
		return zero, false
	}
	return v.inner.Get(versionKey(version, key))
}

func (v *Versioned[T]) Set(version uint64, key string, data T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	// A slower reader may finish after a newer version was observed.
	if !v.observe(version) {
		return
	}
	v.inner.Set(versionKey(version, key), data)
}

func (v *Versioned[T]) Size() int {
	return v.inner.Size()
}

func versionKey(version uint64, key string) string {
	return fmt.Sprintf("v%d:%s", version, key)
}
