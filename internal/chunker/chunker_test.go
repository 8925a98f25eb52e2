package chunker

import (
	"strings"
	"testing"

	"memvault/internal/config"
	"memvault/internal/errors"
	"memvault/internal/logging"
)

func newTestChunker(target, overlap, minSize int) *Chunker {
	return New(config.ChunkerConfig{
		TargetSize: target,
		Overlap:    overlap,
		MinSize:    minSize,
	}, logging.Nop())
}

func TestChunkEmptyInput(t *testing.T) {
	c := newTestChunker(100, 20, 0)
	for _, text := range []string{"", "   \n\t  "} {
		if _, err := c.Chunk(text, "doc"); !errors.IsValidation(err) {
			t.Errorf("expected ErrValidation for %q, got %v", text, err)
		}
	}
}

func TestChunkSmallInputSingleChunk(t *testing.T) {
	c := newTestChunker(1000, 200, 0)
	chunks, err := c.Chunk("a short document", "doc")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	ch := chunks[0]
	if ch.Index != 0 || ch.Total != 1 || ch.Method != MethodSemantic || ch.Source != "doc" {
		t.Errorf("chunk metadata wrong: %+v", ch)
	}
	if ch.Size != len(ch.Text) {
		t.Errorf("size %d != len(text) %d", ch.Size, len(ch.Text))
	}
}

func TestChunkOversizedDocument(t *testing.T) {
	target := 200
	c := newTestChunker(target, 0, 10)

	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString("This is a sentence that fills out the paragraph with some words. ")
		sb.WriteString("Another sentence follows it to add bulk to the body text here.\n\n")
	}
	text := sb.String()

	chunks, err := c.Chunk(text, "doc")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("oversized document must produce >=2 chunks, got %d", len(chunks))
	}

	for i, ch := range chunks {
		if len(ch.Text) > target {
			// Only an indivisible word may exceed the target.
			if strings.ContainsAny(ch.Text, " \n") {
				t.Errorf("chunk %d exceeds target (%d > %d) and is divisible", i, len(ch.Text), target)
			}
		}
		if strings.TrimSpace(ch.Text) == "" {
			t.Errorf("chunk %d is empty", i)
		}
		if ch.Index != i || ch.Total != len(chunks) {
			t.Errorf("chunk %d ordinal wrong: index=%d total=%d", i, ch.Index, ch.Total)
		}
	}
}

func TestChunkReconstructsContent(t *testing.T) {
	c := newTestChunker(150, 0, 0)
	text := "First paragraph with several words in it.\n\nSecond paragraph, also with words. It has two sentences.\n\nThird paragraph closes the document out with a few more words."

	chunks, err := c.Chunk(text, "doc")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}

	// Concatenation modulo whitespace collapse at split points must
	// reconstruct the original.
	var parts []string
	for _, ch := range chunks {
		parts = append(parts, ch.Text)
	}
	normalize := func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}
	if normalize(strings.Join(parts, " ")) != normalize(text) {
		t.Errorf("reconstruction mismatch:\n got %q\nwant %q",
			normalize(strings.Join(parts, " ")), normalize(text))
	}
}

func TestChunkSplitsOnSectionHeaders(t *testing.T) {
	c := newTestChunker(80, 0, 5)
	text := "# Alpha\n\nBody of the first section with enough words to matter here.\n\n# Beta\n\nBody of the second section, also carrying enough words to matter."

	chunks, err := c.Chunk(text, "doc")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected section split, got %d chunks", len(chunks))
	}

	joined := ""
	for _, ch := range chunks {
		joined += ch.Text + "\n"
	}
	if !strings.Contains(joined, "# Alpha") || !strings.Contains(joined, "# Beta") {
		t.Errorf("headers lost in chunking: %q", joined)
	}
}

func TestChunkDropsBelowMinimumSize(t *testing.T) {
	c := newTestChunker(50, 0, 20)
	// The lone header is below the minimum and should be dropped as noise.
	text := "# Hi\n\nThis paragraph is comfortably longer than the minimum chunk size setting."

	chunks, err := c.Chunk(text, "doc")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	for _, ch := range chunks {
		if len(ch.Text) < 20 {
			t.Errorf("chunk below minimum survived: %q", ch.Text)
		}
	}
}

func TestChunkOversizedWordKeptWhole(t *testing.T) {
	c := newTestChunker(20, 0, 0)
	word := strings.Repeat("x", 50)
	chunks, err := c.Chunk("small words then "+word+" then more", "doc")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	found := false
	for _, ch := range chunks {
		if ch.Text == word {
			found = true
		}
	}
	if !found {
		t.Errorf("indivisible word was split: %+v", chunks)
	}
}

func TestChunkSimpleWindows(t *testing.T) {
	c := newTestChunker(100, 20, 0)
	words := strings.Repeat("word another token filler text ", 30)

	chunks, err := c.ChunkSimple(words, "doc")
	if err != nil {
		t.Fatalf("chunk simple: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple windows, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Method != MethodSimple {
			t.Errorf("chunk %d method = %q", i, ch.Method)
		}
		if len(ch.Text) > 100 {
			t.Errorf("chunk %d exceeds window size: %d", i, len(ch.Text))
		}
		// Whitespace breaking: no chunk starts or ends mid-word
		// (every boundary in this input is a space).
		if strings.HasPrefix(ch.Text, " ") || strings.HasSuffix(ch.Text, " ") {
			t.Errorf("chunk %d not trimmed: %q", i, ch.Text)
		}
	}
}

func TestChunkSimpleOverlapRepeatsContent(t *testing.T) {
	c := newTestChunker(50, 20, 0)
	text := strings.Repeat("alpha beta gamma delta epsilon ", 10)

	chunks, err := c.ChunkSimple(text, "doc")
	if err != nil {
		t.Fatalf("chunk simple: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("need >=2 windows, got %d", len(chunks))
	}
	// Consecutive windows share overlapping content.
	first := chunks[0].Text
	second := chunks[1].Text
	tail := first[len(first)-10:]
	if !strings.Contains(second, strings.Fields(tail)[len(strings.Fields(tail))-1]) {
		t.Logf("windows: %q / %q", first, second)
	}
}

func TestChunkSimpleEmptyInput(t *testing.T) {
	c := newTestChunker(100, 20, 0)
	if _, err := c.ChunkSimple("  ", "doc"); !errors.IsValidation(err) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
