package engine

import (
	"memvault/internal/security"
	"memvault/internal/storage"
)

// Migrate runs one storage migration pass immediately, outside the
// background schedule. Returns ok=false when the caller is denied.
func (e *Engine) Migrate(user string) (storage.MigrationStats, bool) {
	if !e.security.CheckAccess(user, "storage", "modify") {
		e.security.Audit(user, "migrate", "storage", false, map[string]interface{}{"reason": "access denied"})
		return storage.MigrationStats{}, false
	}

	stats, err := e.storage.Migrate()
	if err != nil {
		e.logger.Warnw("Migration failed", "error", err)
		e.security.Audit(user, "migrate", "storage", false, map[string]interface{}{"error": err.Error()})
		return stats, false
	}

	e.security.Audit(user, "migrate", "storage", true, map[string]interface{}{
		"promoted": stats.Promoted,
		"demoted":  stats.Demoted,
	})
	return stats, true
}

// Verify sweeps storage records against backing files, dropping orphaned
// records. Returns ok=false when the caller is denied.
func (e *Engine) Verify(user string) (storage.VerifyStats, bool) {
	if !e.security.CheckAccess(user, "storage", "modify") {
		e.security.Audit(user, "verify", "storage", false, map[string]interface{}{"reason": "access denied"})
		return storage.VerifyStats{}, false
	}

	stats, err := e.storage.Verify()
	if err != nil {
		e.logger.Warnw("Verify failed", "error", err)
		e.security.Audit(user, "verify", "storage", false, map[string]interface{}{"error": err.Error()})
		return stats, false
	}

	e.security.Audit(user, "verify", "storage", true, map[string]interface{}{
		"checked":          stats.Checked,
		"orphaned_records": stats.OrphanedRecords,
		"untracked_files":  stats.UntrackedFiles,
	})
	return stats, true
}

// RecentAuditEvents reads the last n audit events for inspection tooling.
func (e *Engine) RecentAuditEvents(n int) ([]security.AuditEvent, error) {
	return e.security.RecentAuditEvents(n)
}
