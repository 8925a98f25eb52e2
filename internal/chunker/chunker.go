// Package chunker splits raw text into bounded, retrievable units.
//
// Semantic mode descends through structural boundaries (sections,
// paragraphs, sentences, words), falling back to a finer boundary whenever a
// unit still exceeds the target size. Simple mode uses fixed windows with
// overlap. The adaptive variant classifies content first and adjusts the
// target size per type.
package chunker

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"memvault/internal/config"
	"memvault/internal/errors"
)

// Chunking methods recorded on produced chunks.
const (
	MethodSemantic = "semantic"
	MethodSimple   = "simple"
	MethodAdaptive = "adaptive"
)

// Chunk is a bounded slice of a document. Never mutated after creation;
// re-chunking produces new chunks that supersede the old ones.
type Chunk struct {
	Text        string
	Source      string
	Index       int
	Total       int
	Size        int
	Method      string
	ContentType string
}

var (
	headerRe    = regexp.MustCompile(`^#{1,6}\s`)
	paragraphRe = regexp.MustCompile(`\n\s*\n`)
	sentenceRe  = regexp.MustCompile(`[.!?]+(?:\s+|$)`)
)

// Chunker splits text along structural boundaries.
type Chunker struct {
	targetSize int
	overlap    int
	minSize    int
	logger     *zap.SugaredLogger
}

// New creates a semantic chunker from configuration.
func New(cfg config.ChunkerConfig, logger *zap.SugaredLogger) *Chunker {
	c := &Chunker{
		targetSize: cfg.TargetSize,
		overlap:    cfg.Overlap,
		minSize:    cfg.MinSize,
		logger:     logger,
	}
	if c.targetSize <= 0 {
		c.targetSize = 1000
	}
	if c.overlap < 0 || c.overlap >= c.targetSize {
		c.overlap = c.targetSize / 5
	}
	if c.minSize < 0 {
		c.minSize = 0
	}
	return c
}

// Chunk splits text in semantic mode. Empty or whitespace-only input is a
// validation error.
func (c *Chunker) Chunk(text, source string) ([]Chunk, error) {
	return c.chunkSemantic(text, source, MethodSemantic, "")
}

func (c *Chunker) chunkSemantic(text, source, method, contentType string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.NewValidation("empty input for source %q", source)
	}

	var pieces []string
	for _, section := range splitSections(text) {
		if len(section) <= c.targetSize {
			pieces = append(pieces, section)
			continue
		}
		pieces = append(pieces, c.splitParagraphs(section)...)
	}

	chunks := c.assemble(pieces, source, method, contentType)
	c.logger.Debugw("Chunked document",
		"source", source, "method", method, "chunks", len(chunks), "chars", len(text))
	return chunks, nil
}

// ChunkSimple splits text into fixed-size windows advancing by
// targetSize - overlap characters, breaking on whitespace so words are not
// cut. Overlap applies only in this mode.
func (c *Chunker) ChunkSimple(text, source string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.NewValidation("empty input for source %q", source)
	}

	var pieces []string
	start := 0
	for start < len(text) {
		for start < len(text) && isSpace(text[start]) {
			start++
		}
		if start >= len(text) {
			break
		}

		end := start + c.targetSize
		if end >= len(text) {
			pieces = append(pieces, strings.TrimSpace(text[start:]))
			break
		}
		// Break on the last whitespace inside the window. A single
		// token longer than the window is cut hard.
		if i := strings.LastIndexAny(text[start:end], " \t\n"); i > 0 {
			end = start + i
		}
		pieces = append(pieces, strings.TrimSpace(text[start:end]))

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	chunks := c.assemble(pieces, source, MethodSimple, "")
	c.logger.Debugw("Chunked document",
		"source", source, "method", MethodSimple, "chunks", len(chunks), "chars", len(text))
	return chunks, nil
}

// assemble drops pieces below the minimum size and stamps ordinals. Index
// and Total are required for reconstructing document order later.
func (c *Chunker) assemble(pieces []string, source, method, contentType string) []Chunk {
	kept := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if len(p) >= c.minSize && strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}

	chunks := make([]Chunk, len(kept))
	for i, p := range kept {
		chunks[i] = Chunk{
			Text:        p,
			Source:      source,
			Index:       i,
			Total:       len(kept),
			Size:        len(p),
			Method:      method,
			ContentType: contentType,
		}
	}
	return chunks
}

// splitSections splits on leading #-style header markers. The header line
// stays with its section.
func splitSections(text string) []string {
	lines := strings.Split(text, "\n")

	var sections []string
	var current []string
	for _, line := range lines {
		if headerRe.MatchString(line) && len(current) > 0 {
			sections = append(sections, strings.Join(current, "\n"))
			current = current[:0]
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		sections = append(sections, strings.Join(current, "\n"))
	}
	return sections
}

// splitParagraphs accumulates blank-line-separated paragraphs into a running
// buffer, flushing when the next paragraph would overflow the target.
func (c *Chunker) splitParagraphs(section string) []string {
	return c.accumulate(paragraphRe.Split(section, -1), "\n\n", c.splitSentences)
}

// splitSentences splits an oversized paragraph on sentence-ending
// punctuation with the same accumulate-and-flush rule.
func (c *Chunker) splitSentences(paragraph string) []string {
	var sentences []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(paragraph, -1) {
		sentences = append(sentences, strings.TrimSpace(paragraph[last:loc[1]]))
		last = loc[1]
	}
	if last < len(paragraph) {
		if rest := strings.TrimSpace(paragraph[last:]); rest != "" {
			sentences = append(sentences, rest)
		}
	}
	if len(sentences) == 0 {
		sentences = []string{paragraph}
	}
	return c.accumulate(sentences, " ", c.splitWords)
}

// splitWords is the finest boundary. A single word longer than the target is
// kept whole; it is indivisible.
func (c *Chunker) splitWords(sentence string) []string {
	return c.accumulate(strings.Fields(sentence), " ", func(word string) []string {
		return []string{word}
	})
}

// accumulate packs units into pieces no larger than the target, descending
// into finer via splitFiner for any unit that alone exceeds it.
func (c *Chunker) accumulate(units []string, sep string, splitFiner func(string) []string) []string {
	var pieces []string
	buf := ""
	for _, u := range units {
		if strings.TrimSpace(u) == "" {
			continue
		}
		if len(u) > c.targetSize {
			if buf != "" {
				pieces = append(pieces, buf)
				buf = ""
			}
			pieces = append(pieces, splitFiner(u)...)
			continue
		}
		if buf == "" {
			buf = u
			continue
		}
		if len(buf)+len(sep)+len(u) <= c.targetSize {
			buf += sep + u
		} else {
			pieces = append(pieces, buf)
			buf = u
		}
	}
	if buf != "" {
		pieces = append(pieces, buf)
	}
	return pieces
}

// withTarget returns a copy with an adjusted target size, clamping overlap
// and minimum size to stay consistent. The receiver is never mutated, so a
// per-call adjustment cannot leak into subsequent calls.
func (c *Chunker) withTarget(target int) *Chunker {
	copied := *c
	copied.targetSize = target
	if copied.overlap >= target {
		copied.overlap = target / 5
	}
	return &copied
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
