package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"memvault/internal/errors"
)

// diskRecord is the on-disk form of one entry: <dir>/<md5(key)>.json.
// Timestamps are unix seconds; the layout is fixed for compatibility.
type diskRecord struct {
	Value      string  `json:"value"`
	Timestamp  float64 `json:"timestamp"`
	AccessTime float64 `json:"access_time"`
}

// diskMeta is the per-key entry of the metadata.json sidecar index.
type diskMeta struct {
	Timestamp  float64 `json:"timestamp"`
	AccessTime float64 `json:"access_time"`
	Size       int64   `json:"size"`
}

// diskCache is the persistent level. One mutex serializes every mutation;
// the metadata index is persisted synchronously after each one (durability
// over raw throughput). I/O failures degrade to misses.
type diskCache struct {
	dir        string
	maxEntries int
	ttl        time.Duration
	logger     *zap.SugaredLogger

	mu    sync.Mutex
	index map[string]*diskMeta
}

func newDiskCache(dir string, maxEntries int, ttl time.Duration, logger *zap.SugaredLogger) (*diskCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(errors.ErrCache, "create cache dir %s: %v", dir, err)
	}
	d := &diskCache{
		dir:        dir,
		maxEntries: maxEntries,
		ttl:        ttl,
		logger:     logger,
		index:      make(map[string]*diskMeta),
	}
	d.loadIndex()
	return d, nil
}

func (d *diskCache) metadataPath() string {
	return filepath.Join(d.dir, "metadata.json")
}

func (d *diskCache) entryPath(key string) string {
	sum := md5.Sum([]byte(key))
	return filepath.Join(d.dir, hex.EncodeToString(sum[:])+".json")
}

// loadIndex rebuilds the in-memory index from the sidecar file. A missing
// or corrupt sidecar starts empty; the cache is never the source of truth.
func (d *diskCache) loadIndex() {
	data, err := os.ReadFile(d.metadataPath())
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Warnw("Disk cache metadata unreadable, starting empty",
				"path", d.metadataPath(), "error", err)
		}
		return
	}
	if err := json.Unmarshal(data, &d.index); err != nil {
		d.logger.Warnw("Disk cache metadata corrupt, starting empty",
			"path", d.metadataPath(), "error", err)
		d.index = make(map[string]*diskMeta)
	}
}

// persistIndex writes the sidecar. Callers hold d.mu.
func (d *diskCache) persistIndex() {
	data, err := json.Marshal(d.index)
	if err != nil {
		d.logger.Errorw("Disk cache metadata marshal failed", "error", err)
		return
	}
	tmp := d.metadataPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		d.logger.Errorw("Disk cache metadata write failed", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, d.metadataPath()); err != nil {
		d.logger.Errorw("Disk cache metadata rename failed", "path", d.metadataPath(), "error", err)
	}
}

// get reads an entry, updating its access time. Expired, missing, or
// unreadable entries are misses.
func (d *diskCache) get(key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	meta, ok := d.index[key]
	if !ok {
		return "", false
	}

	now := unixNow()
	if d.ttl > 0 && now-meta.Timestamp > d.ttl.Seconds() {
		d.removeLocked(key)
		d.persistIndex()
		return "", false
	}

	data, err := os.ReadFile(d.entryPath(key))
	if err != nil {
		d.logger.Warnw("Disk cache entry unreadable, dropping", "key", key, "error", err)
		d.removeLocked(key)
		d.persistIndex()
		return "", false
	}
	var rec diskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		d.logger.Warnw("Disk cache entry corrupt, dropping", "key", key, "error", err)
		d.removeLocked(key)
		d.persistIndex()
		return "", false
	}

	meta.AccessTime = now
	rec.AccessTime = now
	// Keep the entry file and the sidecar index in agreement; a failed
	// rewrite still serves the value.
	if updated, err := json.Marshal(rec); err == nil {
		if err := os.WriteFile(d.entryPath(key), updated, 0644); err != nil {
			d.logger.Warnw("Disk cache entry rewrite failed", "key", key, "error", err)
		}
	}
	d.persistIndex()
	return rec.Value, true
}

// put writes an entry and enforces capacity. When the item count exceeds the
// limit, the oldest 10% by last access are evicted in one batch to amortize
// cleanup cost.
func (d *diskCache) put(key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := unixNow()
	rec := diskRecord{Value: value, Timestamp: now, AccessTime: now}
	data, err := json.Marshal(rec)
	if err != nil {
		d.logger.Errorw("Disk cache entry marshal failed", "key", key, "error", err)
		return
	}
	if err := os.WriteFile(d.entryPath(key), data, 0644); err != nil {
		d.logger.Errorw("Disk cache entry write failed", "key", key, "error", err)
		return
	}

	d.index[key] = &diskMeta{Timestamp: now, AccessTime: now, Size: int64(len(data))}

	if d.maxEntries > 0 && len(d.index) > d.maxEntries {
		d.evictOldestLocked()
	}
	d.persistIndex()
}

// evictOldestLocked removes the oldest 10% of entries by last access time.
func (d *diskCache) evictOldestLocked() {
	type aged struct {
		key    string
		access float64
	}
	entries := make([]aged, 0, len(d.index))
	for k, m := range d.index {
		entries = append(entries, aged{k, m.AccessTime})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].access < entries[j].access })

	n := len(entries) / 10
	if n < 1 {
		n = 1
	}
	for _, e := range entries[:n] {
		d.removeLocked(e.key)
	}
	d.logger.Debugw("Disk cache batch eviction", "evicted", n, "remaining", len(d.index))
}

func (d *diskCache) removeLocked(key string) {
	delete(d.index, key)
	if err := os.Remove(d.entryPath(key)); err != nil && !os.IsNotExist(err) {
		d.logger.Warnw("Disk cache entry remove failed", "key", key, "error", err)
	}
}

func (d *diskCache) remove(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.index[key]; ok {
		d.removeLocked(key)
		d.persistIndex()
	}
}

// sweep removes TTL-expired entries. Called by the background task.
func (d *diskCache) sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ttl <= 0 {
		return 0
	}
	now := unixNow()
	var expired []string
	for k, m := range d.index {
		if now-m.Timestamp > d.ttl.Seconds() {
			expired = append(expired, k)
		}
	}
	for _, k := range expired {
		d.removeLocked(k)
	}
	if len(expired) > 0 {
		d.persistIndex()
	}
	return len(expired)
}

func (d *diskCache) clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k := range d.index {
		d.removeLocked(k)
	}
	d.persistIndex()
}

func (d *diskCache) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.index)
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
