package chunker

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"memvault/internal/config"
)

// Content types recognized by the adaptive chunker.
const (
	ContentText  = "text"
	ContentCode  = "code"
	ContentList  = "list"
	ContentTable = "table"
)

// Per-type target sizes. Code chunks are smaller to preserve function-sized
// units; table chunks are larger to avoid splitting rows.
const (
	codeTargetSize  = 800
	listTargetSize  = 1000
	tableTargetSize = 1400
)

// Marker-density thresholds, in markers per 1000 characters.
const (
	codeDensityThreshold  = 3.0
	listDensityThreshold  = 8.0
	tableDensityThreshold = 4.0
)

var (
	codeTokenRe  = regexp.MustCompile(`(?m)^\s*(?:def |class |import |func |package |return |#include)`)
	listMarkerRe = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
)

// AdaptiveChunker wraps a semantic Chunker with content-type classification
// and a per-type target size.
type AdaptiveChunker struct {
	base   *Chunker
	logger *zap.SugaredLogger
}

// NewAdaptive creates an adaptive chunker from configuration.
func NewAdaptive(cfg config.ChunkerConfig, logger *zap.SugaredLogger) *AdaptiveChunker {
	return &AdaptiveChunker{
		base:   New(cfg, logger),
		logger: logger,
	}
}

// Chunk classifies text when contentType is empty, adjusts the target size
// for the detected type, and chunks semantically. The adjustment is applied
// to a copy of the base chunker, so it never leaks into subsequent calls.
func (a *AdaptiveChunker) Chunk(text, source, contentType string) ([]Chunk, error) {
	if contentType == "" {
		contentType = DetectContentType(text)
	}

	target := a.base.targetSize
	switch contentType {
	case ContentCode:
		target = codeTargetSize
	case ContentList:
		target = listTargetSize
	case ContentTable:
		target = tableTargetSize
	}

	return a.base.withTarget(target).chunkSemantic(text, source, MethodAdaptive, contentType)
}

// Base exposes the underlying semantic chunker for callers that want the
// unadjusted modes.
func (a *AdaptiveChunker) Base() *Chunker {
	return a.base
}

// DetectContentType classifies text by marker density per 1000 characters:
// code fences and definition tokens, leading list markers, pipe-delimited
// table rows. The highest density above its threshold wins, with precedence
// code > list > table on ties; anything else is plain text.
func DetectContentType(text string) string {
	if len(text) == 0 {
		return ContentText
	}
	scale := 1000.0 / float64(len(text))

	codeCount := strings.Count(text, "```") + len(codeTokenRe.FindAllString(text, -1))
	listCount := len(listMarkerRe.FindAllString(text, -1))
	tableCount := countTableRows(text)

	best := ContentText
	bestDensity := 0.0
	for _, c := range []struct {
		kind      string
		density   float64
		threshold float64
	}{
		{ContentCode, float64(codeCount) * scale, codeDensityThreshold},
		{ContentList, float64(listCount) * scale, listDensityThreshold},
		{ContentTable, float64(tableCount) * scale, tableDensityThreshold},
	} {
		if c.density > c.threshold && c.density > bestDensity {
			best = c.kind
			bestDensity = c.density
		}
	}
	return best
}

// countTableRows counts lines that look like pipe-delimited table rows.
func countTableRows(text string) int {
	count := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.Count(line, "|") >= 2 {
			count++
		}
	}
	return count
}
