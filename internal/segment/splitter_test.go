package segment

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"collapses whitespace", "a  b\t\nc", "a b c"},
		{"strips control chars", "a\x00\x01b", "a b"},
		{"keeps punctuation", "Done. Next, (maybe)!", "Done. Next, (maybe)!"},
		{"trims edges", "  hello  ", "hello"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.input); got != tt.expected {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSplit_ShortTextIsSingleChunk(t *testing.T) {
	text := "Short text well under the limit."
	chunks := Split(text, 1000, 200)

	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("expected [%q], got %v", text, chunks)
	}
}

func TestSplit_EmptyText(t *testing.T) {
	if chunks := Split("   ", 100, 10); chunks != nil {
		t.Errorf("expected no chunks for whitespace input, got %v", chunks)
	}
}

func TestSplit_ChunkSizeRespected(t *testing.T) {
	text := strings.Repeat("Hello world. ", 200)
	chunks := Split(text, 1000, 200)

	if len(chunks) < 3 || len(chunks) > 4 {
		t.Errorf("expected 3-4 chunks for ~2600 chars, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 1000 {
			t.Errorf("chunk %d exceeds limit: %d chars", i, len(c))
		}
	}
}

func TestSplit_MultibyteTextUnderLimitIsSingleChunk(t *testing.T) {
	// 400 characters but 1200 bytes; the size limit counts characters
	text := strings.Repeat("世界", 200)
	chunks := Split(text, 1000, 200)

	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("expected single chunk for 400-char text, got %d chunks", len(chunks))
	}
}

func TestSplit_MultibyteHardCutsStayValidUTF8(t *testing.T) {
	// no sentence boundaries or spaces, so every cut is a hard cut
	text := strings.Repeat("世界", 200)
	chunks := Split(text, 100, 20)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %v", chunks)
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8: %q", i, c)
		}
		if n := utf8.RuneCountInString(c); n > 100 {
			t.Errorf("chunk %d exceeds limit: %d chars", i, n)
		}
	}
}

func TestSplit_AdjacentChunksOverlap(t *testing.T) {
	text := strings.Repeat("Hello world. ", 200)
	chunks := Split(text, 1000, 200)

	for i := 1; i < len(chunks); i++ {
		// the tail of the previous chunk must reappear at the head of
		// the next one (trimming can shave a few boundary spaces)
		tail := chunks[i-1][len(chunks[i-1])-100:]
		if !strings.Contains(chunks[i], strings.TrimSpace(tail)) {
			t.Errorf("chunk %d does not overlap with its predecessor", i)
		}
	}
}

func TestSplit_NoDataLoss(t *testing.T) {
	// no sentence boundaries or spaces at all - hard cuts only
	text := strings.Repeat("abcdefghij", 50)
	chunks := Split(text, 100, 20)

	joined := strings.Join(chunks, "")
	for i := 0; i < len(text); i += 10 {
		if !strings.Contains(joined, text[i:i+10]) {
			t.Fatalf("segment at offset %d lost", i)
		}
	}
}

func TestSplit_TerminatesWhenOverlapDominates(t *testing.T) {
	// overlap == chunk size must still make forward progress; the test
	// harness timeout catches a hang
	chunks := Split(strings.Repeat("x", 500), 50, 50)

	if len(chunks) != 10 {
		t.Errorf("expected 10 forced-progress chunks, got %d", len(chunks))
	}
}

func TestSplit_PrefersSentenceBoundary(t *testing.T) {
	text := "A tiny first bit. Second sentence is much longer and continues well past the first."
	chunks := Split(text, 30, 5)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %v", chunks)
	}
	if !strings.HasSuffix(chunks[0], ".") {
		t.Errorf("first chunk should break at sentence terminator, got %q", chunks[0])
	}
}
