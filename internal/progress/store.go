// Package progress implements the per-book progress store: a single JSON
// document reconciled against on-disk chapter files on load, and written
// atomically (temp file + rename) so a crash mid-write never corrupts it.
//
// Grounded on the teacher's atomic-write discipline elsewhere in the
// codebase (config.WriteDefault, defra pid-file handling) generalized to
// the read-modify-write cycle the spec requires; encoding/json plus
// os.Rename is stdlib because no third-party library in the example pack
// offers anything beyond what they already provide for this job.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/novelforge/novelforge/internal/book"
)

// Store guards one book's progress record behind a mutex so UpdateChapter
// calls from concurrent workers serialize cleanly; it is the sole
// in-process owner of the document's mutable copy.
type Store struct {
	mu   sync.Mutex
	dir  book.Dir
	prog *book.Progress
}

// Load reads book.json (creating a fresh record if absent) and reconciles
// every chapter's status against the raw/translated files actually on
// disk, per the rules in the data model: a TRANSLATED chapter missing its
// raw file is demoted to PENDING (translated file left stale on disk); a
// CRAWLED chapter missing its raw file is demoted to PENDING.
func Load(dir book.Dir, sourceURL string) (*Store, error) {
	prog, err := readOrInit(dir, sourceURL)
	if err != nil {
		return nil, err
	}
	reconcile(dir, prog)
	return &Store{dir: dir, prog: prog}, nil
}

func readOrInit(dir book.Dir, sourceURL string) (*book.Progress, error) {
	data, err := os.ReadFile(dir.ProgressPath())
	if os.IsNotExist(err) {
		return &book.Progress{SourceURL: sourceURL, Chapters: []book.Chapter{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("progress: read: %w", err)
	}
	var prog book.Progress
	if err := json.Unmarshal(data, &prog); err != nil {
		return nil, fmt.Errorf("progress: parse %s: %w", dir.ProgressPath(), err)
	}
	return &prog, nil
}

// reconcile demotes chapters whose on-disk files no longer back their
// claimed status. It is the sole recovery mechanism after an external
// mutation (e.g. a raw file deleted by hand) or an interrupted run.
func reconcile(dir book.Dir, prog *book.Progress) {
	for i := range prog.Chapters {
		c := &prog.Chapters[i]
		rawOK := fileNonEmpty(dir.RawFile(c.Index))
		translatedOK := fileNonEmpty(dir.TranslatedFile(c.Index))

		switch c.Status {
		case book.StatusTranslated:
			if !rawOK {
				c.Status = book.StatusPending
			} else if !translatedOK {
				c.Status = book.StatusCrawled
			}
		case book.StatusCrawled:
			if !rawOK {
				c.Status = book.StatusPending
			}
		}
	}
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// Snapshot returns a deep-enough copy of the current in-memory progress
// for read-only consumers (stats publisher, status CLI).
func (s *Store) Snapshot() book.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.prog
	cp.Chapters = append([]book.Chapter(nil), s.prog.Chapters...)
	return cp
}

// Chapters returns the chapter sequence in index order.
func (s *Store) Chapters() []book.Chapter {
	return s.Snapshot().Chapters
}

// EnsureChapters grows the chapter slice to contain exactly the given
// source-indexed titles and URLs, used after a fresh crawl of the index
// page discovers the chapter list for the first time. Existing chapters
// keep their current status; new ones start PENDING.
func (s *Store) EnsureChapters(entries []ChapterSeed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[int]*book.Chapter, len(s.prog.Chapters))
	for i := range s.prog.Chapters {
		existing[s.prog.Chapters[i].Index] = &s.prog.Chapters[i]
	}

	chapters := make([]book.Chapter, 0, len(entries))
	for _, e := range entries {
		if c, ok := existing[e.Index]; ok {
			c.TitleSource = e.TitleSource
			c.SourceURL = e.SourceURL
			chapters = append(chapters, *c)
			continue
		}
		chapters = append(chapters, book.Chapter{
			Index:       e.Index,
			ID:          book.ChapterID(e.Index),
			TitleSource: e.TitleSource,
			SourceURL:   e.SourceURL,
			Status:      book.StatusPending,
		})
	}
	s.prog.Chapters = chapters
	return s.saveLocked()
}

// ChapterSeed is a newly discovered chapter reference from the index page.
type ChapterSeed struct {
	Index       int
	TitleSource string
	SourceURL   string
}

// SetPatterns records the one-shot analyzer output and persists it.
func (s *Store) SetPatterns(p book.Patterns) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prog.Patterns = &p
	return s.saveLocked()
}

// SetEncoding records the discovered byte encoding on first crawl.
func (s *Store) SetEncoding(enc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prog.Encoding != "" {
		return nil
	}
	s.prog.Encoding = enc
	return s.saveLocked()
}

// SetTitles records translated title/author metadata.
func (s *Store) SetTitles(title, author string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prog.TitleTranslated = title
	s.prog.AuthorTranslated = author
	return s.saveLocked()
}

// UpdateChapter applies mutator to the chapter at index and saves the
// result atomically. Exactly one task ever advances a given chapter, so
// this is safe without per-chapter locking beyond the store-wide mutex
// that serializes the save.
func (s *Store) UpdateChapter(index int, mutator func(*book.Chapter)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.chapterLocked(index)
	if c == nil {
		return fmt.Errorf("progress: chapter %d not found", index)
	}
	mutator(c)
	return s.saveLocked()
}

func (s *Store) chapterLocked(index int) *book.Chapter {
	for i := range s.prog.Chapters {
		if s.prog.Chapters[i].Index == index {
			return &s.prog.Chapters[i]
		}
	}
	return nil
}

// Save persists the current in-memory record atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	return writeAtomic(s.dir.ProgressPath(), s.prog)
}

func writeAtomic(path string, prog *book.Progress) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("progress: mkdir: %w", err)
	}

	data, err := json.MarshalIndent(prog, "", "  ")
	if err != nil {
		return fmt.Errorf("progress: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".book-*.json.tmp")
	if err != nil {
		return fmt.Errorf("progress: tempfile: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("progress: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("progress: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("progress: close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("progress: rename: %w", err)
	}
	return nil
}
