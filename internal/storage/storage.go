// Package storage persists encrypted chunks in hot/warm/cold tiers,
// placing each item by size and usage and migrating between tiers on a
// schedule.
//
// On-disk layout, fixed for compatibility:
//
//	storage/{hot,warm,cold}/<key>.dat
//	storage/storage_metadata.json
package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"memvault/internal/config"
	"memvault/internal/errors"
)

// Tier is one of the hot/warm/cold storage classes.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Placement and promotion policy constants.
const (
	hotMaxObjectSize  = 10 << 20  // objects below this may go hot
	warmMaxObjectSize = 100 << 20 // objects below this may go warm

	// promoteAccessThreshold triggers a best-effort promotion on retrieve
	// once an item's access count exceeds it.
	promoteAccessThreshold = 10

	// Age/activity demotion thresholds for Migrate.
	hotDemoteAge          = 30 * 24 * time.Hour
	hotDemoteAccessCount  = 5
	warmDemoteAge         = 90 * 24 * time.Hour
	warmDemoteAccessCount = 10
)

// Record is the metadata for one persisted chunk. Exactly one live Record
// exists per key, and the backing file must exist whenever the Record does;
// orphaned records are dropped on miss.
type Record struct {
	Key          string            `json:"key"`
	Tier         Tier              `json:"tier"`
	Size         int64             `json:"size"`
	CreatedAt    time.Time         `json:"created_at"`
	LastAccessed time.Time         `json:"last_accessed"`
	AccessCount  int               `json:"access_count"`
	Path         string            `json:"path"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// MigrationStats reports one Migrate pass.
type MigrationStats struct {
	Promoted int `json:"promoted"`
	Demoted  int `json:"demoted"`
}

// VerifyStats reports one Verify sweep.
type VerifyStats struct {
	Checked         int `json:"checked"`
	OrphanedRecords int `json:"orphaned_records"`
	UntrackedFiles  int `json:"untracked_files"`
}

// Stats aggregates per-tier item counts and byte usage.
type Stats struct {
	Items     int            `json:"items"`
	TierItems map[Tier]int   `json:"tier_items"`
	TierBytes map[Tier]int64 `json:"tier_bytes"`
}

// Manager owns the tier directories and the metadata index. One mutex
// serializes all mutations; the index is rewritten (temp file + rename)
// synchronously after each one.
type Manager struct {
	dir    string
	limits map[Tier]int64 // 0 = unlimited
	logger *zap.SugaredLogger

	mu      sync.Mutex
	records map[string]*Record
	usage   map[Tier]int64

	interval  time.Duration
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates the tier directories and loads the metadata index.
func New(cfg config.StorageConfig, dir string, logger *zap.SugaredLogger) (*Manager, error) {
	m := &Manager{
		dir: dir,
		limits: map[Tier]int64{
			TierHot:  cfg.HotLimit,
			TierWarm: cfg.WarmLimit,
			TierCold: cfg.ColdLimit,
		},
		logger:   logger,
		records:  make(map[string]*Record),
		usage:    map[Tier]int64{TierHot: 0, TierWarm: 0, TierCold: 0},
		interval: cfg.MigrationIntervalDuration(),
	}

	for _, tier := range []Tier{TierHot, TierWarm, TierCold} {
		if err := os.MkdirAll(m.tierDir(tier), 0755); err != nil {
			return nil, errors.Wrapf(errors.ErrStorage, "create tier dir %s: %v", tier, err)
		}
	}
	if err := m.loadMetadata(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) tierDir(tier Tier) string {
	return filepath.Join(m.dir, string(tier))
}

func (m *Manager) metadataPath() string {
	return filepath.Join(m.dir, "storage_metadata.json")
}

func (m *Manager) loadMetadata() error {
	data, err := os.ReadFile(m.metadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(errors.ErrStorage, "read metadata: %v", err)
	}
	if err := json.Unmarshal(data, &m.records); err != nil {
		return errors.Wrapf(errors.ErrStorage, "parse metadata: %v", err)
	}
	for _, rec := range m.records {
		m.usage[rec.Tier] += rec.Size
	}
	return nil
}

// persistMetadata rewrites the whole index via temp file + rename so a crash
// mid-write never truncates it. Callers hold m.mu.
func (m *Manager) persistMetadata() error {
	data, err := json.MarshalIndent(m.records, "", "  ")
	if err != nil {
		return errors.Wrapf(errors.ErrStorage, "marshal metadata: %v", err)
	}
	tmp := m.metadataPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(errors.ErrStorage, "write metadata: %v", err)
	}
	if err := os.Rename(tmp, m.metadataPath()); err != nil {
		return errors.Wrapf(errors.ErrStorage, "replace metadata: %v", err)
	}
	return nil
}

// Store persists data under key and returns the tier it was placed in.
// Placement is first-fit at write time: hot for small objects while the hot
// tier has room, then warm, then cold. Storing an existing key replaces it.
func (m *Manager) Store(key string, data []byte, metadata map[string]string) (Tier, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.records[key]; ok {
		m.removeRecordLocked(old)
	}

	size := int64(len(data))
	tier := m.placeLocked(size)
	path := filepath.Join(m.tierDir(tier), key+".dat")

	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", errors.Wrapf(errors.ErrStorage, "write %s: %v", path, err)
	}

	now := time.Now().UTC()
	rec := &Record{
		Key:          key,
		Tier:         tier,
		Size:         size,
		CreatedAt:    now,
		LastAccessed: now,
		AccessCount:  0,
		Path:         path,
		Metadata:     metadata,
	}
	m.records[key] = rec
	m.usage[tier] += size

	if err := m.persistMetadata(); err != nil {
		return "", err
	}
	m.logger.Debugw("Stored item", "key", key, "tier", tier, "size", size)
	return tier, nil
}

// placeLocked picks the write-time tier for an object of the given size.
func (m *Manager) placeLocked(size int64) Tier {
	if size < hotMaxObjectSize && m.fitsLocked(TierHot, size) {
		return TierHot
	}
	if size < warmMaxObjectSize && m.fitsLocked(TierWarm, size) {
		return TierWarm
	}
	return TierCold
}

func (m *Manager) fitsLocked(tier Tier, size int64) bool {
	limit := m.limits[tier]
	return limit == 0 || m.usage[tier]+size <= limit
}

// Retrieve returns the stored bytes and updates access bookkeeping. A
// missing backing file is silent data loss: the record is dropped and
// ErrNotFound returned. A hot streak (access count past the threshold)
// triggers a best-effort promotion.
func (m *Manager) Retrieve(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, errors.NewNotFound("key %q", key)
	}

	data, err := os.ReadFile(rec.Path)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Warnw("Backing file missing, dropping record", "key", key, "path", rec.Path)
			m.removeRecordLocked(rec)
			if perr := m.persistMetadata(); perr != nil {
				m.logger.Errorw("Metadata persist failed after orphan drop", "error", perr)
			}
			return nil, errors.NewNotFound("key %q (backing file lost)", key)
		}
		return nil, errors.Wrapf(errors.ErrStorage, "read %s: %v", rec.Path, err)
	}

	rec.LastAccessed = time.Now().UTC()
	rec.AccessCount++

	if rec.AccessCount > promoteAccessThreshold && rec.Tier != TierHot {
		// Best-effort: a full hot tier leaves the item in place.
		if rec.Size < hotMaxObjectSize && m.fitsLocked(TierHot, rec.Size) {
			if err := m.moveLocked(rec, TierHot); err != nil {
				m.logger.Debugw("Promotion skipped", "key", key, "error", err)
			} else {
				m.logger.Infow("Promoted item to hot tier", "key", key, "accesses", rec.AccessCount)
			}
		}
	}

	if err := m.persistMetadata(); err != nil {
		m.logger.Errorw("Metadata persist failed after retrieve", "error", err)
	}
	return data, nil
}

// Delete removes the item and its record. Reports whether the key existed;
// deleting an absent key is not an error.
func (m *Manager) Delete(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return false, nil
	}
	if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
		return false, errors.Wrapf(errors.ErrStorage, "remove %s: %v", rec.Path, err)
	}
	m.removeRecordLocked(rec)
	if err := m.persistMetadata(); err != nil {
		return true, err
	}
	m.logger.Debugw("Deleted item", "key", key, "tier", rec.Tier)
	return true, nil
}

// removeRecordLocked drops the record and its usage accounting. The backing
// file is the caller's concern.
func (m *Manager) removeRecordLocked(rec *Record) {
	m.usage[rec.Tier] -= rec.Size
	if m.usage[rec.Tier] < 0 {
		m.usage[rec.Tier] = 0
	}
	delete(m.records, rec.Key)
}

// moveLocked relocates the backing file to the target tier and updates the
// record in place. The logical key never changes.
func (m *Manager) moveLocked(rec *Record, target Tier) error {
	newPath := filepath.Join(m.tierDir(target), rec.Key+".dat")
	if err := os.Rename(rec.Path, newPath); err != nil {
		return errors.Wrapf(errors.ErrStorage, "relocate %s to %s: %v", rec.Key, target, err)
	}
	m.usage[rec.Tier] -= rec.Size
	if m.usage[rec.Tier] < 0 {
		m.usage[rec.Tier] = 0
	}
	m.usage[target] += rec.Size
	rec.Tier = target
	rec.Path = newPath
	return nil
}

// Keys returns all live keys, sorted.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetRecord returns a copy of the record for key.
func (m *Manager) GetRecord(key string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Stats returns per-tier item counts and byte usage.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Items:     len(m.records),
		TierItems: map[Tier]int{TierHot: 0, TierWarm: 0, TierCold: 0},
		TierBytes: map[Tier]int64{},
	}
	for _, rec := range m.records {
		s.TierItems[rec.Tier]++
	}
	for tier, bytes := range m.usage {
		s.TierBytes[tier] = bytes
	}
	return s
}

// Close stops the migration loop and flushes metadata. Idempotent.
func (m *Manager) Close() error {
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistMetadata()
}

func validateKey(key string) error {
	if key == "" {
		return errors.NewValidation("empty storage key")
	}
	if strings.ContainsAny(key, "/\\") || key == "." || key == ".." {
		return errors.NewValidation("storage key %q contains path separators", key)
	}
	return nil
}
