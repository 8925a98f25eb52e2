// Package cache provides the two-level read-through cache in front of
// tiered storage: an in-process LRU plus a persistent disk cache.
//
// The cache is strictly a faster path to storage, never the source of
// truth. It can be cleared or rebuilt at any time without data loss.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"memvault/internal/config"
)

// Stats aggregates hit/miss counters and per-level sizes.
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRate       float64 `json:"hit_rate"`
	MemoryEntries int     `json:"memory_entries"`
	DiskEntries   int     `json:"disk_entries"`
}

// Manager composes the LRU and disk levels. Reads check the LRU first; a
// disk hit is promoted into the LRU before returning (promotion never
// removes the disk copy). Writes go to both levels.
type Manager struct {
	memory *lruCache
	disk   *diskCache
	logger *zap.SugaredLogger

	promote singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64

	sweepInterval time.Duration
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	startOnce     sync.Once
	stopOnce      sync.Once
}

// New creates a cache manager rooted at dir.
func New(cfg config.CacheConfig, dir string, logger *zap.SugaredLogger) (*Manager, error) {
	disk, err := newDiskCache(dir, cfg.DiskEntries, cfg.TTLDuration(), logger)
	if err != nil {
		return nil, err
	}
	return &Manager{
		memory:        newLRUCache(cfg.MemoryEntries, cfg.TTLDuration()),
		disk:          disk,
		logger:        logger,
		sweepInterval: cfg.SweepIntervalDuration(),
	}, nil
}

// Start launches the background TTL sweep over the disk level. Errors inside
// one iteration are logged and the loop continues.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.wg.Add(1)
		go m.sweepLoop(ctx)
		m.logger.Infow("Cache TTL sweep started", "interval", m.sweepInterval)
	})
}

// Stop cancels the sweep loop and waits for it to exit. Idempotent.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
			m.wg.Wait()
		}
	})
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired := m.disk.sweep(); expired > 0 {
				m.logger.Debugw("Cache sweep removed expired entries", "expired", expired)
			}
		}
	}
}

// Get returns the cached value for key, checking the LRU first and falling
// back to disk. Concurrent disk promotions for the same key are
// deduplicated.
func (m *Manager) Get(key string) (string, bool) {
	if value, ok := m.memory.get(key); ok {
		m.hits.Add(1)
		return value, true
	}

	v, err, _ := m.promote.Do(key, func() (interface{}, error) {
		value, ok := m.disk.get(key)
		if !ok {
			return nil, errMiss
		}
		m.memory.put(key, value)
		return value, nil
	})
	if err != nil {
		m.misses.Add(1)
		return "", false
	}

	m.hits.Add(1)
	return v.(string), true
}

// Put writes the value to both levels.
func (m *Manager) Put(key, value string) {
	m.memory.put(key, value)
	m.disk.put(key, value)
}

// Remove drops the key from both levels.
func (m *Manager) Remove(key string) {
	m.memory.remove(key)
	m.disk.remove(key)
}

// Clear empties both levels. Always safe: the cache never holds the only
// copy of a value.
func (m *Manager) Clear() {
	m.memory.clear()
	m.disk.clear()
	m.logger.Infow("Cache cleared")
}

// Stats returns hit/miss counters and per-level entry counts.
func (m *Manager) Stats() Stats {
	hits := m.hits.Load()
	misses := m.misses.Load()
	s := Stats{
		Hits:          hits,
		Misses:        misses,
		MemoryEntries: m.memory.len(),
		DiskEntries:   m.disk.len(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// errMiss signals a disk-level miss through the singleflight group. It
// never escapes Get.
var errMiss = missError{}

type missError struct{}

func (missError) Error() string { return "cache miss" }
