package security

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"memvault/internal/errors"
)

// Finding is a located, typed PII match. Confidence is a fixed constant kept
// for output compatibility; it is informational only and never used for
// filtering.
type Finding struct {
	Kind       string  `json:"kind"`
	Value      string  `json:"value"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

const findingConfidence = 0.9

// detector pairs a PII kind with its pattern.
type detector struct {
	kind string
	re   *regexp.Regexp
}

// Built-in detectors. Deterministic, high-recall pattern matching; no
// statistical NER and no false-negative guarantee.
var builtinDetectors = []detector{
	{"EMAIL", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"PHONE", regexp.MustCompile(`\b(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`)},
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"CREDIT_CARD", regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)},
	{"IP_ADDRESS", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{"CREDENTIAL", regexp.MustCompile(`(?i)\b(?:api[_-]?key|secret|token|password|passwd)\b\s*[=:]\s*\S+`)},
}

// customPattern is one entry of the optional custom-patterns YAML file.
type customPattern struct {
	Kind    string `yaml:"kind"`
	Pattern string `yaml:"pattern"`
}

// loadCustomDetectors parses a YAML file of additional detectors. Invalid
// entries are logged and skipped; custom detectors run after the built-ins.
func loadCustomDetectors(path string, logger *zap.SugaredLogger) ([]detector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read custom patterns %s", path)
	}

	var patterns []customPattern
	if err := yaml.Unmarshal(data, &patterns); err != nil {
		return nil, errors.Wrapf(err, "parse custom patterns %s", path)
	}

	var detectors []detector
	for _, p := range patterns {
		if p.Kind == "" || p.Pattern == "" {
			logger.Warnw("Skipping custom PII pattern with empty kind or pattern", "file", path)
			continue
		}
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			logger.Warnw("Skipping invalid custom PII pattern",
				"kind", p.Kind, "pattern", p.Pattern, "error", err)
			continue
		}
		detectors = append(detectors, detector{kind: p.Kind, re: re})
	}
	return detectors, nil
}

// detectPII scans text with the given detectors and returns findings sorted
// by start offset.
func detectPII(text string, detectors []detector) []Finding {
	var findings []Finding
	for _, d := range detectors {
		for _, loc := range d.re.FindAllStringIndex(text, -1) {
			findings = append(findings, Finding{
				Kind:       d.kind,
				Value:      text[loc[0]:loc[1]],
				Start:      loc[0],
				End:        loc[1],
				Confidence: findingConfidence,
			})
		}
	}
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Start != findings[j].Start {
			return findings[i].Start < findings[j].Start
		}
		return findings[i].End > findings[j].End
	})
	return findings
}

// sanitize replaces each finding's span with a typed placeholder, processing
// matches in descending start offset so earlier replacements don't shift
// later offsets. Overlapping findings are collapsed into the first
// replacement that covers them.
func sanitize(text string, findings []Finding) string {
	if len(findings) == 0 {
		return text
	}

	ordered := make([]Finding, len(findings))
	copy(ordered, findings)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Start > ordered[j].Start
	})

	out := text
	lastStart := len(text) + 1
	for _, f := range ordered {
		if f.End > lastStart {
			// Overlaps a span already replaced; clamp to avoid
			// splitting the placeholder token.
			if f.Start >= lastStart {
				continue
			}
			f.End = lastStart
		}
		out = out[:f.Start] + fmt.Sprintf("[REDACTED_%s]", f.Kind) + out[f.End:]
		lastStart = f.Start
	}
	return out
}
