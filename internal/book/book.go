// Package book defines the persistent data model for one serialized novel:
// its progress record, chapter sequence, and directory layout.
package book

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Status is the closed enumeration a chapter moves through.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCrawled    Status = "crawled"
	StatusTranslated Status = "translated"
	StatusError      Status = "error"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCrawled, StatusTranslated, StatusError:
		return true
	default:
		return false
	}
}

// Patterns is the one-shot result of analyzing the index page: the
// CSS-like selectors used by the downloader to locate chapter links and
// chapter content. Populated once and persisted in Progress.
type Patterns struct {
	ChapterLinkSelector string `json:"chapter_link_selector"`
	ChapterTitleAttr    string `json:"chapter_title_attr,omitempty"`
	ContentSelector     string `json:"content_selector"`
	NextPageSelector    string `json:"next_page_selector,omitempty"`
}

// Chapter is one element of a book's chapter sequence.
type Chapter struct {
	Index           int    `json:"index"`
	ID              string `json:"id"`
	TitleSource     string `json:"title_source"`
	TitleTranslated string `json:"title_translated,omitempty"`
	Status          Status `json:"status"`
	LastError       string `json:"last_error,omitempty"`

	// ChunkCount is the number of chunks the last successful translation
	// produced. Zero if the chapter has never been translated.
	ChunkCount int `json:"chunk_count,omitempty"`

	// SourceURL is the absolute URL this chapter was (or will be) fetched
	// from, discovered from the index page during analysis.
	SourceURL string `json:"source_url,omitempty"`
}

// ChapterID formats the stable, zero-padded identifier for a 1-based
// chapter index, matching the "raw/<NNNN>.txt" naming convention.
func ChapterID(index int) string {
	return fmt.Sprintf("%04d", index)
}

// Progress is the total persistent state of one book, serialized as
// book.json. Unknown top-level fields are preserved round-trip via extra.
type Progress struct {
	SourceURL        string     `json:"source_url"`
	Title            string     `json:"title"`
	TitleTranslated  string     `json:"title_translated,omitempty"`
	Author           string     `json:"author,omitempty"`
	AuthorTranslated string     `json:"author_translated,omitempty"`
	Encoding         string     `json:"encoding,omitempty"`
	Patterns         *Patterns  `json:"patterns,omitempty"`
	Chapters         []Chapter  `json:"chapters"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`

	extra map[string]json.RawMessage
}

// progressAlias avoids infinite recursion in custom (Un)MarshalJSON.
type progressAlias Progress

// MarshalJSON re-emits any unrecognized fields captured at load time
// alongside the known ones, so round-tripping never silently drops data a
// newer writer added.
func (p Progress) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal((*progressAlias)(&p))
	if err != nil {
		return nil, err
	}
	if len(p.extra) == 0 {
		return known, nil
	}

	merged := map[string]json.RawMessage{}
	for k, v := range p.extra {
		merged[k] = v
	}
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return nil, err
	}
	for k, v := range knownMap {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON captures unrecognized top-level fields into extra.
func (p *Progress) UnmarshalJSON(data []byte) error {
	var alias progressAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*p = Progress(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := knownProgressFields()
	extra := map[string]json.RawMessage{}
	for k, v := range raw {
		if !known[k] {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		p.extra = extra
	}
	return nil
}

func knownProgressFields() map[string]bool {
	return map[string]bool{
		"source_url": true, "title": true, "title_translated": true,
		"author": true, "author_translated": true, "encoding": true,
		"patterns": true, "chapters": true, "updated_at": true,
	}
}

// Chapter returns a pointer to the chapter with the given 1-based index,
// or nil if not present.
func (p *Progress) Chapter(index int) *Chapter {
	for i := range p.Chapters {
		if p.Chapters[i].Index == index {
			return &p.Chapters[i]
		}
	}
	return nil
}

// CountByStatus tallies chapters per status.
func (p *Progress) CountByStatus() map[Status]int {
	counts := map[Status]int{
		StatusPending: 0, StatusCrawled: 0, StatusTranslated: 0, StatusError: 0,
	}
	for _, c := range p.Chapters {
		counts[c.Status]++
	}
	return counts
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a filesystem- and URL-safe directory name from a source
// index-page URL: lowercase host + path with non-alphanumerics collapsed
// to single hyphens.
func Slug(sourceURL string) string {
	s := strings.ToLower(sourceURL)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = norm.NFKD.String(s)
	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	slug := slugInvalid.ReplaceAllString(b.String(), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "book"
	}
	if len(slug) > 120 {
		slug = slug[:120]
	}
	return slug
}

// Dir is the on-disk layout owned by one book.
type Dir struct {
	Root string
}

// NewDir returns the Dir rooted at root/slug.
func NewDir(root, slug string) Dir {
	return Dir{Root: filepath.Join(root, slug)}
}

func (d Dir) ProgressPath() string  { return filepath.Join(d.Root, "book.json") }
func (d Dir) GlossaryPath() string  { return filepath.Join(d.Root, "glossary.csv") }
func (d Dir) RawDir() string        { return filepath.Join(d.Root, "raw") }
func (d Dir) TranslatedDir() string { return filepath.Join(d.Root, "translated") }

func (d Dir) RawFile(index int) string {
	return filepath.Join(d.RawDir(), ChapterID(index)+".txt")
}

func (d Dir) TranslatedFile(index int) string {
	return filepath.Join(d.TranslatedDir(), ChapterID(index)+".txt")
}

func (d Dir) OutputDir() string { return filepath.Join(d.Root, "output") }

// OutputFile returns the path for an assembled ebook in the given format
// ("epub", "azw3", "mobi", "pdf").
func (d Dir) OutputFile(format string) string {
	return filepath.Join(d.OutputDir(), filepath.Base(d.Root)+"."+format)
}
