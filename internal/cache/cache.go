// Package cache holds the query-result caches: a TTL-bounded LRU, a
// wrapper that scopes entries to a store version, and a manager that
// expires entries in the background.
package cache

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"steady/internal/metrics"
)

type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Purge()
	Size() int
}

// Cleaner is a cache the Manager can expire and measure.
type Cleaner interface {
	CleanExpired() int
	Size() int
}

// Manager expires registered caches on a ticker and reports their sizes.
type Manager struct {
	mu     sync.Mutex
	caches map[string]Cleaner

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	started  bool
}

func NewManager() *Manager {
	return &Manager{
		caches: make(map[string]Cleaner),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Register adds a cache under name; registering a name again replaces it.
func (m *Manager) Register(name string, c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches[name] = c
}

// Sweep expires every registered cache once and returns the number of
// entries removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	caches := make([]Cleaner, len(names))
	for i, name := range names {
		caches[i] = m.caches[name]
	}
	m.mu.Unlock()

	total := 0
	for i, c := range caches {
		n := c.CleanExpired()
		total += n
		metrics.CacheExpired.WithLabelValues(names[i]).Add(float64(n))
		metrics.CacheEntries.WithLabelValues(names[i]).Set(float64(c.Size()))
	}
	return total
}

func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()
	go m.loop(interval)
}

func (m *Manager) loop(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Debug("Expired cache entries removed", "count", n)
			}
		case <-m.stop:
			return
		}
	}
}

// Stop ends the cleanup loop and waits for it. Safe to call repeatedly,
// and before StartCleanup.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.done
		}
	})
}
