package cache

import (
	"log/slog"
	"sync"
	"time"

	"bunchee/internal/core"
)

// Cache is the key/value contract shared by the caches in this package.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, data V)
	Delete(key K)
	Size() int
}

// MonthKey identifies one calendar month.
type MonthKey struct {
	Year  int
	Month int
}

type chartKey struct {
	MonthKey
	Kind core.Kind
}

// Stats caches the two dashboard aggregates per month. Writes to a month
// must call Invalidate for that month.
//
// Readers take a Generation before loading from storage and pass it to the
// setters. A value computed across an invalidation is not stored.
type Stats struct {
	charts *LRUCache[chartKey, core.ChartData]
	stats  *LRUCache[MonthKey, core.MonthlyStats]

	mu    sync.Mutex
	epoch uint64
	gens  map[MonthKey]uint64
}

// Generation marks the cache state of one month at read time.
type Generation struct {
	epoch uint64
	month uint64
}

// NewStats creates a Stats cache. Each aggregate keeps at most size months.
func NewStats(size int, ttl time.Duration) *Stats {
	return &Stats{
		charts: NewLRUCache[chartKey, core.ChartData](size*2, ttl),
		stats:  NewLRUCache[MonthKey, core.MonthlyStats](size, ttl),
		gens:   make(map[MonthKey]uint64),
	}
}

// Generation returns the current generation of month m.
func (s *Stats) Generation(m MonthKey) Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Generation{epoch: s.epoch, month: s.gens[m]}
}

// current reports whether gen is still the generation of m. Callers hold mu.
func (s *Stats) current(m MonthKey, gen Generation) bool {
	return gen.epoch == s.epoch && gen.month == s.gens[m]
}

func (s *Stats) ChartData(kind core.Kind, m MonthKey) (core.ChartData, bool) {
	return s.charts.Get(chartKey{MonthKey: m, Kind: kind})
}

// SetChartData stores data unless m was invalidated since gen was taken.
func (s *Stats) SetChartData(kind core.Kind, m MonthKey, gen Generation, data core.ChartData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(m, gen) {
		return false
	}
	s.charts.Set(chartKey{MonthKey: m, Kind: kind}, data)
	return true
}

func (s *Stats) MonthlyStats(m MonthKey) (core.MonthlyStats, bool) {
	return s.stats.Get(m)
}

// SetMonthlyStats stores stats unless m was invalidated since gen was taken.
func (s *Stats) SetMonthlyStats(m MonthKey, gen Generation, stats core.MonthlyStats) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(m, gen) {
		return false
	}
	s.stats.Set(m, stats)
	return true
}

// Invalidate drops everything cached for month m.
func (s *Stats) Invalidate(m MonthKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[m]++
	s.charts.DeleteFunc(func(k chartKey) bool { return k.MonthKey == m })
	s.stats.Delete(m)
}

// Purge drops everything. Bulk operations that touch many months use it.
func (s *Stats) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	clear(s.gens)
	s.charts.Purge()
	s.stats.Purge()
}

// CleanExpired implements Cleaner.
func (s *Stats) CleanExpired() int {
	return s.charts.CleanExpired() + s.stats.CleanExpired()
}

// Cleaner is a cache that can drop its expired items.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically cleans registered caches.
type Manager struct {
	mu          sync.Mutex
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	started     bool
}

func NewManager() *Manager {
	return &Manager{}
}

// Register adds a cache to the cleanup cycle.
func (m *Manager) Register(c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, c)
}

// StartCleanup begins periodic cleanup of all registered caches.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.stopCleanup = make(chan struct{})
	m.cleanupDone = make(chan struct{})
	go m.cleanup(interval, m.stopCleanup, m.cleanupDone)
}

func (m *Manager) cleanup(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				slog.Debug("Cache cleanup", "component", "cache", "removed", n)
			}
		case <-stop:
			return
		}
	}
}

// CleanNow runs one cleanup pass and returns the number of removed items.
func (m *Manager) CleanNow() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop ends the cleanup routine. It is safe to call when never started,
// and StartCleanup may be called again afterwards.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	stop, done := m.stopCleanup, m.cleanupDone
	m.mu.Unlock()

	close(stop)
	<-done
}
