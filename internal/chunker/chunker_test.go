package chunker

import (
	"strings"
	"testing"
)

func TestChunkSplitsOnParagraphBoundaries(t *testing.T) {
	text := "para one here.\n\npara two here.\n\npara three here."
	chunks := Chunk(text, 15)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for small chunk_size, got %d: %v", len(chunks), chunks)
	}
	for _, c := range chunks {
		if strings.TrimSpace(c) == "" {
			t.Fatal("no chunk should be empty")
		}
	}
}

func TestChunkNeverReordersParagraphs(t *testing.T) {
	text := "alpha paragraph.\n\nbeta paragraph.\n\ngamma paragraph."
	chunks := Chunk(text, 10)
	joined := strings.Join(chunks, "\n\n")
	if strings.Index(joined, "alpha") > strings.Index(joined, "beta") ||
		strings.Index(joined, "beta") > strings.Index(joined, "gamma") {
		t.Fatalf("paragraphs must stay in original order: %v", chunks)
	}
}

func TestChunkKeepsOpenDialogueTogether(t *testing.T) {
	text := "他说道\n\n\"这是一句很长的对话内容，还没有结束呢\n\n这句话还在继续，没有引号闭合。\""
	// The block is 38 runes: within the 20% overrun cap of a size-32 chunk.
	chunks := Chunk(text, 32)
	if len(chunks) != 1 {
		t.Fatalf("expected the whole open dialogue block kept in one chunk, got %d: %v", len(chunks), chunks)
	}
}

func TestChunkEmptyTextReturnsNoChunks(t *testing.T) {
	if chunks := Chunk("   \n\n  ", 500); len(chunks) != 0 {
		t.Fatalf("expected no chunks for blank text, got %v", chunks)
	}
}

func TestChunkRespectsOverrunCapWithoutOpenDialogue(t *testing.T) {
	text := strings.Repeat("plain narration paragraph without any quotes at all. ", 20)
	paragraphs := strings.Split(text, ". ")
	var b strings.Builder
	for i, p := range paragraphs {
		if p == "" {
			continue
		}
		b.WriteString(p)
		b.WriteString(".")
		if i != len(paragraphs)-1 {
			b.WriteString("\n\n")
		}
	}
	chunks := Chunk(b.String(), 50)
	for _, c := range chunks {
		if len([]rune(c)) > 50*2 {
			t.Fatalf("chunk without open dialogue grew unexpectedly large: %d chars", len([]rune(c)))
		}
	}
}
