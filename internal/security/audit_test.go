package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"memvault/internal/logging"
)

func newTestAuditLogger(t *testing.T) (*AuditLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	al, err := NewAuditLogger(path, logging.Nop())
	if err != nil {
		t.Fatalf("new audit logger: %v", err)
	}
	t.Cleanup(func() { al.Close() })
	return al, path
}

func TestAuditLineFormat(t *testing.T) {
	al, path := newTestAuditLogger(t)

	al.Log("add_document", "alice", map[string]interface{}{"chunks": 3})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))

	parts := strings.SplitN(line, " - ", 4)
	if len(parts) != 4 {
		t.Fatalf("line has %d ' - '-separated fields, want 4: %q", len(parts), line)
	}
	if _, err := time.Parse(time.RFC3339, parts[0]); err != nil {
		t.Errorf("timestamp not RFC3339: %q", parts[0])
	}
	if parts[1] != "add_document" {
		t.Errorf("event type = %q", parts[1])
	}
	if parts[2] != "alice" {
		t.Errorf("user = %q", parts[2])
	}
	if !strings.Contains(parts[3], `"chunks":3`) {
		t.Errorf("details missing payload: %q", parts[3])
	}
}

func TestAuditAnonymousUser(t *testing.T) {
	al, path := newTestAuditLogger(t)

	al.Log("get_context", "", nil)

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), " - anonymous - ") {
		t.Errorf("empty user not recorded as anonymous: %q", string(data))
	}
}

func TestAuditRecent(t *testing.T) {
	al, _ := newTestAuditLogger(t)

	for i := 0; i < 5; i++ {
		al.Log("op", "bob", map[string]interface{}{"n": i})
	}

	events, err := al.Recent(3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	// Last three in order.
	for i, ev := range events {
		if n, ok := ev.Details["n"].(float64); !ok || int(n) != i+2 {
			t.Errorf("event %d has n=%v, want %d", i, ev.Details["n"], i+2)
		}
		if ev.ID == "" {
			t.Error("event missing id")
		}
		if ev.User != "bob" || ev.EventType != "op" {
			t.Errorf("event fields wrong: %+v", ev)
		}
	}
}

func TestAuditRecentMissingFile(t *testing.T) {
	al, err := NewAuditLogger(filepath.Join(t.TempDir(), "audit.log"), logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer al.Close()

	// Remove the file out from under the logger; Recent must not fail.
	os.Remove(filepath.Join(filepath.Dir(al.path), "audit.log"))
	events, err := al.Recent(10)
	if err != nil {
		t.Errorf("recent on missing file: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestAuditCloseIdempotent(t *testing.T) {
	al, _ := newTestAuditLogger(t)
	if err := al.Close(); err != nil {
		t.Errorf("first close: %v", err)
	}
	if err := al.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	// Logging after close must not panic.
	al.Log("op", "x", nil)
}
