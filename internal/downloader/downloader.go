// Package downloader implements the chapter downloader (spec §4.4): fetch,
// decode, extract, persist raw text, and advance chapter status — the
// producer side of the pipeline.
package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/novelforge/novelforge/internal/book"
	"github.com/novelforge/novelforge/internal/fetcher"
	"github.com/novelforge/novelforge/internal/progress"
)

// Downloader fetches and persists one chapter at a time.
type Downloader struct {
	fetcher *fetcher.Fetcher
	dir     book.Dir
	store   *progress.Store
}

// New returns a Downloader writing into dir and tracking state via store.
func New(f *fetcher.Fetcher, dir book.Dir, store *progress.Store) *Downloader {
	return &Downloader{fetcher: f, dir: dir, store: store}
}

// Download fetches chapter's source URL, decodes and extracts its body per
// patterns, writes raw/<NNNN>.txt, and marks the chapter CRAWLED. On
// persistent failure after the fetcher's retries (or an extraction that
// still yields fewer than 100 characters), it marks the chapter ERROR with a short
// reason and returns nil — a single chapter failing must not halt the
// pipeline.
func (d *Downloader) Download(ctx context.Context, ch book.Chapter, patterns book.Patterns, declaredEncoding string) error {
	page, err := d.fetcher.Fetch(ctx, ch.SourceURL, declaredEncoding)
	if err != nil {
		return d.markError(ch.Index, fmt.Sprintf("fetch failed: %v", err))
	}

	text, err := fetcher.Extract(page.HTML, patterns.ContentSelector, ch.SourceURL)
	if err != nil {
		return d.markError(ch.Index, fmt.Sprintf("extraction failed: %v", err))
	}
	const minRawChars = 100
	if utf8.RuneCountInString(text) < minRawChars {
		return d.markError(ch.Index, "extraction yielded too little text")
	}

	if err := d.store.SetEncoding(page.Encoding); err != nil {
		return fmt.Errorf("downloader: record encoding: %w", err)
	}

	if err := writeFile(d.dir.RawFile(ch.Index), text); err != nil {
		return fmt.Errorf("downloader: write raw file: %w", err)
	}

	return d.store.UpdateChapter(ch.Index, func(c *book.Chapter) {
		c.Status = book.StatusCrawled
		c.LastError = ""
	})
}

func (d *Downloader) markError(index int, reason string) error {
	return d.store.UpdateChapter(index, func(c *book.Chapter) {
		c.Status = book.StatusError
		c.LastError = reason
	})
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
