// Package security provides the security layer every read and write passes
// through: payload encryption, PII detection and redaction, access control,
// and audit logging.
package security

import (
	"go.uber.org/zap"

	"memvault/internal/config"
	"memvault/internal/errors"
)

// Operations denied to anonymous callers under the coarse default policy.
// Read-like operations stay open; fine-grained checks go through the
// AccessControl sub-component when explicit grants are configured.
var mutatingOps = map[string]bool{
	"delete": true,
	"modify": true,
	"admin":  true,
}

// Manager combines encryption, PII detection, access control, and audit
// logging behind one constructor. Disabled features degrade to no-ops;
// the only fatal condition is key load or generation failure.
type Manager struct {
	cfg       config.SecurityConfig
	logger    *zap.SugaredLogger
	encryptor *Encryptor // nil when encryption is disabled
	detectors []detector
	access    *AccessControl
	audit     *AuditLogger // nil when audit logging is disabled
}

// NewManager builds the security manager from configuration. paths for the
// key file and audit log are resolved by the caller.
func NewManager(cfg config.SecurityConfig, keyFile, auditFile string, logger *zap.SugaredLogger) (*Manager, error) {
	m := &Manager{
		cfg:    cfg,
		logger: logger,
		access: NewAccessControl(),
	}

	if cfg.Encryption {
		enc, err := NewEncryptor(keyFile)
		if err != nil {
			// Fatal: without the key, every stored chunk would be
			// unreadable or written in the clear.
			return nil, err
		}
		m.encryptor = enc
	}

	if cfg.PIIDetection {
		m.detectors = builtinDetectors
		if cfg.CustomPatternsFile != "" {
			custom, err := loadCustomDetectors(cfg.CustomPatternsFile, logger)
			if err != nil {
				logger.Warnw("Custom PII patterns unavailable",
					"file", cfg.CustomPatternsFile, "error", err)
			} else {
				m.detectors = append(append([]detector{}, builtinDetectors...), custom...)
			}
		}
	}

	if cfg.AuditLog {
		al, err := NewAuditLogger(auditFile, logger)
		if err != nil {
			return nil, err
		}
		m.audit = al
	}

	return m, nil
}

// Encrypt seals text. With encryption disabled it is the identity
// string-to-bytes conversion.
func (m *Manager) Encrypt(text string) ([]byte, error) {
	if m.encryptor == nil {
		return []byte(text), nil
	}
	return m.encryptor.Encrypt(text)
}

// Decrypt opens data. With encryption disabled it is the identity
// bytes-to-string conversion. Corrupt ciphertext returns ErrEncryption and
// the caller must treat the payload as lost.
func (m *Manager) Decrypt(data []byte) (string, error) {
	if m.encryptor == nil {
		return string(data), nil
	}
	return m.encryptor.Decrypt(data)
}

// EncryptionEnabled reports whether payloads are actually encrypted.
func (m *Manager) EncryptionEnabled() bool {
	return m.encryptor != nil
}

// DetectPII scans text with the configured detectors. Returns nil when PII
// detection is disabled.
func (m *Manager) DetectPII(text string) []Finding {
	if len(m.detectors) == 0 {
		return nil
	}
	return detectPII(text, m.detectors)
}

// Sanitize replaces detected PII spans with [REDACTED_<KIND>] placeholders.
// With redact false (or detection disabled) the input is returned unchanged.
func (m *Manager) Sanitize(text string, redact bool) string {
	if !redact || len(m.detectors) == 0 {
		return text
	}
	return sanitize(text, detectPII(text, m.detectors))
}

// CheckAccess decides whether user may perform operation on resource. When
// access control is disabled every check passes. When enabled, anonymous
// callers are denied mutating operations and allowed read-like ones; any
// named user is allowed. This is the coarse default policy — explicit
// grants go through Access().
func (m *Manager) CheckAccess(user, resource, operation string) bool {
	if !m.cfg.AccessControl {
		return true
	}
	if user == "" || user == "anonymous" {
		if mutatingOps[operation] {
			m.logger.Warnw("Access denied for anonymous user",
				"operation", operation, "resource", resource)
			return false
		}
		return true
	}
	return true
}

// Audit appends an audit event. No-op when audit logging is disabled.
func (m *Manager) Audit(user, operation, resource string, success bool, details map[string]interface{}) {
	if m.audit == nil {
		return
	}
	merged := make(map[string]interface{}, len(details)+2)
	for k, v := range details {
		merged[k] = v
	}
	merged["resource"] = resource
	merged["success"] = success
	m.audit.Log(operation, user, merged)
}

// RecentAuditEvents reads the last n audit events. Returns ErrValidation
// when audit logging is disabled.
func (m *Manager) RecentAuditEvents(n int) ([]AuditEvent, error) {
	if m.audit == nil {
		return nil, errors.NewValidation("audit logging is disabled")
	}
	return m.audit.Recent(n)
}

// Access exposes the fine-grained access control sub-component.
func (m *Manager) Access() *AccessControl {
	return m.access
}

// Close releases the audit log file handle. Idempotent.
func (m *Manager) Close() error {
	if m.audit == nil {
		return nil
	}
	return m.audit.Close()
}
