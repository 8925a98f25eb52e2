package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"memvault/internal/logging"
)

func TestDetectPIIKinds(t *testing.T) {
	cases := []struct {
		name string
		text string
		kind string
	}{
		{"email", "reach me at alice@example.com today", "EMAIL"},
		{"phone", "call 555-123-4567 now", "PHONE"},
		{"ssn", "ssn is 123-45-6789", "SSN"},
		{"credit card", "card 4111 1111 1111 1111 on file", "CREDIT_CARD"},
		{"ip address", "server at 192.168.1.10 is down", "IP_ADDRESS"},
		{"credential", "set api_key=sk-abcdef123456 in env", "CREDENTIAL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			findings := detectPII(tc.text, builtinDetectors)
			found := false
			for _, f := range findings {
				if f.Kind == tc.kind {
					found = true
					if f.Confidence != 0.9 {
						t.Errorf("confidence = %v, want fixed 0.9", f.Confidence)
					}
					if tc.text[f.Start:f.End] != f.Value {
						t.Errorf("span [%d,%d) does not match value %q", f.Start, f.End, f.Value)
					}
				}
			}
			if !found {
				t.Errorf("kind %s not detected in %q (got %+v)", tc.kind, tc.text, findings)
			}
		})
	}
}

func TestDetectPIINoMatches(t *testing.T) {
	if findings := detectPII("nothing sensitive here", builtinDetectors); len(findings) != 0 {
		t.Errorf("expected no findings, got %+v", findings)
	}
}

func TestSanitizeEmailAndPhone(t *testing.T) {
	got := sanitize("Contact me at a@b.com or 555-123-4567",
		detectPII("Contact me at a@b.com or 555-123-4567", builtinDetectors))

	if !strings.Contains(got, "[REDACTED_EMAIL]") {
		t.Errorf("email not redacted: %q", got)
	}
	if !strings.Contains(got, "[REDACTED_PHONE]") {
		t.Errorf("phone not redacted: %q", got)
	}
	if strings.Contains(got, "a@b.com") || strings.Contains(got, "555") {
		t.Errorf("residual PII in output: %q", got)
	}
	if !strings.HasPrefix(got, "Contact me at ") {
		t.Errorf("surrounding text damaged: %q", got)
	}
}

func TestSanitizeDescendingOffsets(t *testing.T) {
	// Multiple findings: replacing in ascending order would shift the
	// later spans. Both must land exactly.
	text := "a@b.com then c@d.com then e@f.com"
	got := sanitize(text, detectPII(text, builtinDetectors))
	want := "[REDACTED_EMAIL] then [REDACTED_EMAIL] then [REDACTED_EMAIL]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitizeNoFindings(t *testing.T) {
	if got := sanitize("clean text", nil); got != "clean text" {
		t.Errorf("sanitize mutated clean text: %q", got)
	}
}

func TestCustomDetectorsAugmentBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	yaml := `
- kind: EMPLOYEE_ID
  pattern: 'EMP-\d{6}'
- kind: BROKEN
  pattern: '([unclosed'
- kind: ""
  pattern: 'ignored'
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	custom, err := loadCustomDetectors(path, logging.Nop())
	if err != nil {
		t.Fatalf("load custom detectors: %v", err)
	}
	if len(custom) != 1 {
		t.Fatalf("expected 1 valid custom detector, got %d", len(custom))
	}

	detectors := append(append([]detector{}, builtinDetectors...), custom...)
	text := "badge EMP-123456 email a@b.com"
	findings := detectPII(text, detectors)

	kinds := make(map[string]bool)
	for _, f := range findings {
		kinds[f.Kind] = true
	}
	if !kinds["EMPLOYEE_ID"] || !kinds["EMAIL"] {
		t.Errorf("custom patterns must augment, never replace, built-ins: %+v", findings)
	}
}
