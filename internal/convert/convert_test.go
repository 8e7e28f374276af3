package convert

import (
	"context"
	"os"
	"testing"

	"github.com/novelforge/novelforge/internal/book"
)

func testBook(t *testing.T) (book.Dir, book.Progress) {
	t.Helper()
	root := t.TempDir()
	dir := book.NewDir(root, "test-book")
	if err := os.MkdirAll(dir.TranslatedDir(), 0o755); err != nil {
		t.Fatal(err)
	}

	snap := book.Progress{
		Title:  "Original Title",
		Author: "Original Author",
		Chapters: []book.Chapter{
			{Index: 1, TitleSource: "Chapter One", Status: book.StatusTranslated},
			{Index: 2, TitleSource: "Chapter Two", Status: book.StatusTranslated},
		},
	}
	for _, ch := range snap.Chapters {
		if err := os.WriteFile(dir.TranslatedFile(ch.Index), []byte("translated body "+ch.TitleSource), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir, snap
}

func TestAssembleEPUBWritesOutputFile(t *testing.T) {
	dir, snap := testBook(t)
	a := NewAssembler("vi")

	path, err := a.Assemble(context.Background(), dir, snap, FormatEPUB)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected output file at %s: %v", path, err)
	}
	if info.Size() == 0 {
		t.Fatal("expected non-empty epub file")
	}
}

func TestAssembleRefusesWhenAnyChapterNotTranslated(t *testing.T) {
	dir, snap := testBook(t)
	snap.Chapters[1].Status = book.StatusCrawled
	a := NewAssembler("vi")

	if _, err := a.Assemble(context.Background(), dir, snap, FormatEPUB); err == nil {
		t.Fatal("expected an error when a chapter is not translated")
	}
}

func TestAssembleRejectsUnknownFormat(t *testing.T) {
	dir, snap := testBook(t)
	a := NewAssembler("vi")

	if _, err := a.Assemble(context.Background(), dir, snap, Format("txt")); err == nil {
		t.Fatal("expected an error for an unsupported format")
	}
}

func TestAssembleAZW3FailsClearlyWithoutCalibre(t *testing.T) {
	dir, snap := testBook(t)
	a := &Assembler{Language: "vi", ConverterPath: "definitely-not-a-real-binary"}

	_, err := a.Assemble(context.Background(), dir, snap, FormatAZW3)
	if err == nil {
		t.Fatal("expected an error when the converter binary can't be found")
	}
}

func TestCheckConverterAvailableFailsForUnknownBinary(t *testing.T) {
	if err := CheckConverterAvailable("definitely-not-a-real-binary"); err == nil {
		t.Fatal("expected an error for a nonexistent converter binary")
	}
}
