package ingest

import (
	"strings"
	"testing"
)

func TestSplitterEmpty(t *testing.T) {
	s := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)

	if got := s.Split(""); got != nil {
		t.Errorf("Split(\"\") = %v, want nil", got)
	}
	if got := s.Split("   \n\t  "); got != nil {
		t.Errorf("Split(whitespace) = %v, want nil", got)
	}
}

func TestSplitterShortText(t *testing.T) {
	s := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)

	text := "A short paragraph that fits in one chunk."
	got := s.Split(text)
	if len(got) != 1 || got[0] != text {
		t.Errorf("Split(short) = %v, want single unchanged chunk", got)
	}
}

func TestSplitterRespectsChunkSize(t *testing.T) {
	s := NewSplitter(100, 20)

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Sentence number one here. ")
	}
	chunks := s.Split(b.String())

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d has %d chars, want <= 100", i, len(c))
		}
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is blank", i)
		}
	}
}

func TestSplitterOverlap(t *testing.T) {
	s := NewSplitter(100, 30)

	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("alpha beta gamma delta epsilon ")
	}
	chunks := s.Split(b.String())
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Each chunk after the first starts with material from its predecessor.
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		head := chunks[i]
		if len(head) > 10 {
			head = head[:10]
		}
		if !strings.Contains(prev, strings.TrimSpace(head)) {
			t.Errorf("chunk %d does not overlap its predecessor", i)
		}
	}
}

func TestSplitterPrefersParagraphBoundaries(t *testing.T) {
	s := NewSplitter(60, 0)

	text := "First paragraph stays whole.\n\nSecond paragraph stays whole too."
	chunks := s.Split(text)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %v", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[0], "First paragraph") {
		t.Errorf("chunk 0 = %q", chunks[0])
	}
	if !strings.HasPrefix(chunks[1], "Second paragraph") {
		t.Errorf("chunk 1 = %q", chunks[1])
	}
}

func TestSplitterHardCutsUnbreakableText(t *testing.T) {
	s := NewSplitter(50, 0)

	text := strings.Repeat("x", 175)
	chunks := s.Split(text)

	total := 0
	for i, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk %d has %d chars, want <= 50", i, len(c))
		}
		total += len(c)
	}
	if total != 175 {
		t.Errorf("total chars = %d, want 175 (nothing lost)", total)
	}
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	s := NewSplitter(100, 100)
	if s.overlap >= s.chunkSize {
		t.Errorf("overlap %d not clamped below chunk size %d", s.overlap, s.chunkSize)
	}
}
