package security

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"memvault/internal/errors"
)

// AuditEvent is one append-only record of a security-relevant operation.
// Events are write-once: the subsystem never mutates or deletes them.
type AuditEvent struct {
	ID        string
	Time      time.Time
	EventType string
	User      string
	Details   map[string]interface{}
}

// AuditLogger appends events to a line-oriented text file, one event per
// line:
//
//	<RFC3339 timestamp> - <event_type> - <user> - <details JSON>
//
// Writes are mutex-serialized and synchronous.
type AuditLogger struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	logger *zap.SugaredLogger
}

// NewAuditLogger opens (or creates) the audit log for appending.
func NewAuditLogger(path string, logger *zap.SugaredLogger) (*AuditLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "create audit dir %s", dir)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open audit log %s", path)
	}
	return &AuditLogger{file: f, path: path, logger: logger}, nil
}

// Log appends one event. Write failures are logged, never propagated: audit
// logging must not fail the operation being audited.
func (a *AuditLogger) Log(eventType, user string, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["event_id"] = uuid.NewString()

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}
	if user == "" {
		user = "anonymous"
	}

	line := fmt.Sprintf("%s - %s - %s - %s\n",
		time.Now().UTC().Format(time.RFC3339), eventType, user, detailsJSON)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		return
	}
	if _, err := a.file.WriteString(line); err != nil {
		a.logger.Errorw("Audit write failed", "path", a.path, "error", err)
	}
}

// Recent reads the last n events from the log. Read-only; never mutates the
// file. Unparseable lines are skipped.
func (a *AuditLogger) Recent(n int) ([]AuditEvent, error) {
	a.mu.Lock()
	path := a.path
	a.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "open audit log %s", path)
	}
	defer f.Close()

	var events []AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		ev, ok := parseAuditLine(scanner.Text())
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read audit log %s", path)
	}

	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

// Close flushes and closes the log file. Idempotent.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

func parseAuditLine(line string) (AuditEvent, bool) {
	parts := strings.SplitN(line, " - ", 4)
	if len(parts) != 4 {
		return AuditEvent{}, false
	}
	ts, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return AuditEvent{}, false
	}

	ev := AuditEvent{
		Time:      ts,
		EventType: parts[1],
		User:      parts[2],
		Details:   make(map[string]interface{}),
	}
	if err := json.Unmarshal([]byte(parts[3]), &ev.Details); err != nil {
		return AuditEvent{}, false
	}
	if id, ok := ev.Details["event_id"].(string); ok {
		ev.ID = id
	}
	return ev, true
}
