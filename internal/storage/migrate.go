package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Start launches the background migration loop. Errors inside one iteration
// are logged and the loop continues on its next scheduled run.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.wg.Add(1)
		go m.migrationLoop(ctx)
		m.logger.Infow("Storage migration loop started", "interval", m.interval)
	})
}

// Stop cancels the migration loop and waits for it to exit. Idempotent.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
			m.wg.Wait()
		}
	})
}

func (m *Manager) migrationLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := m.Migrate()
			if err != nil {
				m.logger.Warnw("Scheduled migration failed", "error", err)
				continue
			}
			if stats.Demoted > 0 || stats.Promoted > 0 {
				m.logger.Infow("Scheduled migration complete",
					"promoted", stats.Promoted, "demoted", stats.Demoted)
			}
		}
	}
}

// Migrate runs one migration pass:
//
//  1. Age/activity demotion: hot items older than 30 days with fewer than 5
//     accesses move to warm; warm items older than 90 days with fewer than
//     10 accesses move to cold.
//  2. Capacity demotion: while hot usage exceeds its limit, hot items are
//     demoted in oldest-last-access order.
//
// Demotion is a tier move, never a deletion.
func (m *Manager) Migrate() (MigrationStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats MigrationStats
	now := time.Now().UTC()

	for _, rec := range m.recordsSortedLocked() {
		switch rec.Tier {
		case TierHot:
			if now.Sub(rec.CreatedAt) > hotDemoteAge && rec.AccessCount < hotDemoteAccessCount {
				if err := m.moveLocked(rec, TierWarm); err != nil {
					m.logger.Warnw("Demotion failed", "key", rec.Key, "error", err)
					continue
				}
				stats.Demoted++
			}
		case TierWarm:
			if now.Sub(rec.CreatedAt) > warmDemoteAge && rec.AccessCount < warmDemoteAccessCount {
				if err := m.moveLocked(rec, TierCold); err != nil {
					m.logger.Warnw("Demotion failed", "key", rec.Key, "error", err)
					continue
				}
				stats.Demoted++
			}
		}
	}

	if limit := m.limits[TierHot]; limit > 0 && m.usage[TierHot] > limit {
		stats.Demoted += m.demoteForCapacityLocked(limit)
	}

	if err := m.persistMetadata(); err != nil {
		return stats, err
	}
	return stats, nil
}

// demoteForCapacityLocked demotes hot items, oldest last access first, until
// hot usage is back under the limit.
func (m *Manager) demoteForCapacityLocked(limit int64) int {
	var hot []*Record
	for _, rec := range m.records {
		if rec.Tier == TierHot {
			hot = append(hot, rec)
		}
	}
	sort.Slice(hot, func(i, j int) bool {
		return hot[i].LastAccessed.Before(hot[j].LastAccessed)
	})

	demoted := 0
	for _, rec := range hot {
		if m.usage[TierHot] <= limit {
			break
		}
		if err := m.moveLocked(rec, TierWarm); err != nil {
			m.logger.Warnw("Capacity demotion failed", "key", rec.Key, "error", err)
			continue
		}
		demoted++
	}
	return demoted
}

// recordsSortedLocked returns records in key order so migration decisions
// are deterministic run to run.
func (m *Manager) recordsSortedLocked() []*Record {
	recs := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	return recs
}

// Verify sweeps records against backing files: records whose file is gone
// are dropped (self-healing), and tier-directory files with no record are
// counted as untracked.
func (m *Manager) Verify() (VerifyStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats VerifyStats

	var orphans []*Record
	for _, rec := range m.records {
		stats.Checked++
		if _, err := os.Stat(rec.Path); os.IsNotExist(err) {
			orphans = append(orphans, rec)
		}
	}
	for _, rec := range orphans {
		m.logger.Warnw("Dropping orphaned record", "key", rec.Key, "path", rec.Path)
		m.removeRecordLocked(rec)
		stats.OrphanedRecords++
	}

	tracked := make(map[string]bool, len(m.records))
	for _, rec := range m.records {
		tracked[rec.Path] = true
	}
	for _, tier := range []Tier{TierHot, TierWarm, TierCold} {
		entries, err := os.ReadDir(m.tierDir(tier))
		if err != nil {
			m.logger.Warnw("Tier dir unreadable during verify", "tier", tier, "error", err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".dat") {
				continue
			}
			path := filepath.Join(m.tierDir(tier), e.Name())
			if !tracked[path] {
				stats.UntrackedFiles++
			}
		}
	}

	if stats.OrphanedRecords > 0 {
		if err := m.persistMetadata(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
