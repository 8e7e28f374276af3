// Package convert assembles a book's translated chapters into a
// distributable ebook: an EPUB 3 directly via internal/epub, or AZW3/MOBI/
// PDF by handing that EPUB to the external calibre ebook-convert binary.
// Grounded on the teacher's ffmpeg/ffprobe subprocess wrapper
// (internal/jobs/tts_generate_openai/ffmpeg.go) — CommandContext plus
// captured combined output on failure, and a LookPath availability check
// ahead of the actual call.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/novelforge/novelforge/internal/book"
	"github.com/novelforge/novelforge/internal/epub"
)

// Format is a supported output ebook format.
type Format string

const (
	FormatEPUB Format = "epub"
	FormatAZW3 Format = "azw3"
	FormatMOBI Format = "mobi"
	FormatPDF  Format = "pdf"
)

// Valid reports whether f is one of the four supported formats.
func (f Format) Valid() bool {
	switch f {
	case FormatEPUB, FormatAZW3, FormatMOBI, FormatPDF:
		return true
	default:
		return false
	}
}

// Assembler builds a distributable ebook from a book's on-disk translated
// chapters (§ ebook assembler, out of core scope but still part of the
// operated system).
type Assembler struct {
	// ConverterPath overrides the calibre binary name/path. Empty means
	// "ebook-convert" resolved via PATH.
	ConverterPath string
	Language      string // target-language ISO 639-1 code, e.g. "vi"
}

// NewAssembler returns an Assembler producing the given target language's
// EPUB metadata.
func NewAssembler(language string) *Assembler {
	return &Assembler{Language: language}
}

// Assemble builds dir's translated chapters into the requested format and
// returns the output file's path. Every chapter in snap must be
// TRANSLATED; Assemble refuses otherwise, naming the first offender, since
// a partial ebook is not a meaningful deliverable (§1 ebook assembler is
// an all-or-nothing terminal step).
func (a *Assembler) Assemble(ctx context.Context, dir book.Dir, snap book.Progress, format Format) (string, error) {
	if !format.Valid() {
		return "", fmt.Errorf("convert: unsupported format %q", format)
	}
	for _, ch := range snap.Chapters {
		if ch.Status != book.StatusTranslated {
			return "", fmt.Errorf("convert: chapter %d is not translated (status %s)", ch.Index, ch.Status)
		}
	}

	epubChapters, err := loadChapters(dir, snap)
	if err != nil {
		return "", err
	}

	title := snap.TitleTranslated
	if title == "" {
		title = snap.Title
	}
	author := snap.AuthorTranslated
	if author == "" {
		author = snap.Author
	}
	language := a.Language
	if language == "" {
		language = "en"
	}

	builder := epub.NewBuilder(epub.Book{
		ID:          filepath.Base(dir.Root),
		Title:       title,
		Author:      author,
		Language:    language,
		CreatedAt:   time.Now(),
		SourceTitle: snap.Title,
	}, epubChapters)

	if err := os.MkdirAll(dir.OutputDir(), 0o755); err != nil {
		return "", fmt.Errorf("convert: create output directory: %w", err)
	}

	epubPath := dir.OutputFile(string(FormatEPUB))
	if err := builder.Build(epubPath); err != nil {
		return "", fmt.Errorf("convert: build epub: %w", err)
	}
	if format == FormatEPUB {
		return epubPath, nil
	}

	outPath := dir.OutputFile(string(format))
	if err := a.convertVia(ctx, epubPath, outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

func loadChapters(dir book.Dir, snap book.Progress) ([]epub.Chapter, error) {
	chapters := make([]epub.Chapter, 0, len(snap.Chapters))
	for _, ch := range snap.Chapters {
		text, err := os.ReadFile(dir.TranslatedFile(ch.Index))
		if err != nil {
			return nil, fmt.Errorf("convert: read translated chapter %d: %w", ch.Index, err)
		}
		title := ch.TitleTranslated
		if title == "" {
			title = ch.TitleSource
		}
		chapters = append(chapters, epub.Chapter{
			ID:             book.ChapterID(ch.Index),
			Title:          title,
			Level:          2,
			LevelName:      "chapter",
			EntryNumber:    fmt.Sprintf("%d", ch.Index),
			MatterType:     "body",
			TranslatedText: string(text),
			SortOrder:      ch.Index,
		})
	}
	return chapters, nil
}

// convertVia shells out to calibre's ebook-convert to turn an EPUB into
// AZW3/MOBI/PDF.
func (a *Assembler) convertVia(ctx context.Context, inputPath, outputPath string) error {
	converter := a.ConverterPath
	if converter == "" {
		converter = "ebook-convert"
	}
	if _, err := exec.LookPath(converter); err != nil {
		return fmt.Errorf("convert: %s not found in PATH (requires calibre): %w", converter, err)
	}

	cmd := exec.CommandContext(ctx, converter, inputPath, outputPath)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("convert: %s failed: %w\noutput: %s", converter, err, combined.String())
	}
	return nil
}

// CheckConverterAvailable reports whether the calibre ebook-convert binary
// can be found, so callers can surface a clear error before starting a
// long translation run that ends in an assembly step they can't complete.
func CheckConverterAvailable(converterPath string) error {
	converter := converterPath
	if converter == "" {
		converter = "ebook-convert"
	}
	if _, err := exec.LookPath(converter); err != nil {
		return fmt.Errorf("convert: %s not found in PATH: %w", converter, err)
	}
	return nil
}
