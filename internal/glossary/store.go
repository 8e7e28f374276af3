// Package glossary implements the shared terminology store: a CSV file on
// disk, a single-writer/many-reader in-memory index, and a monotonic
// version counter that the term scorer uses to decide when to rebuild.
//
// The writer/reader split is the design point called out in the spec:
// extraction batches (writes) are infrequent relative to translation
// reads, so readers must never block on each other. encoding/csv is used
// because no third-party CSV library appears anywhere in the example
// pack — this is stdlib by absence of a better option, not by default.
package glossary

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

var header = []string{"source", "target", "category", "notes"}

// Store is the in-memory glossary guarded by a reader-writer mutex.
// Add/Remove take the write lock. Persist copies the rows out under the
// read lock and writes the file with no lock held, so concurrent Persist
// calls are not serialized with each other. Everything else takes the read
// lock and returns a value copied out of the map, so callers never hold
// the store's lock across an LLM call.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]Entry
	order   []string // insertion order, for the scorer's unfitted fallback
	version uint64
}

// Load reads path if it exists (creating an empty glossary otherwise).
func Load(path string) (*Store, error) {
	s := &Store{path: path, entries: map[string]Entry{}}

	data, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("glossary: open: %w", err)
	}
	defer data.Close()

	r := csv.NewReader(data)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("glossary: parse %s: %w", path, err)
	}
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		if len(row) < 2 {
			continue
		}
		e := Entry{SourceTerm: row[0], TargetTerm: row[1]}
		if len(row) > 2 {
			e.Category = Category(row[2])
		}
		if len(row) > 3 {
			e.Notes = row[3]
		}
		if !e.Category.Valid() {
			e.Category = CategoryGeneral
		}
		if _, exists := s.entries[e.SourceTerm]; !exists {
			s.order = append(s.order, e.SourceTerm)
		}
		s.entries[e.SourceTerm] = e
	}
	return s, nil
}

// Version returns the monotonic mutation counter.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Len returns the current entry count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of all entries, safe for a reader to hold for
// the duration of one chunk translation without blocking writers.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceTerm < out[j].SourceTerm })
	return out
}

// Get returns a single entry by source term.
func (s *Store) Get(sourceTerm string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[sourceTerm]
	return e, ok
}

// Add merges a batch of entries under the write lock and returns the
// count of genuinely new source terms. Any mutation increments Version.
func (s *Store) Add(batch []Entry, mode Mode) (added int, err error) {
	if len(batch) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	for _, e := range batch {
		if e.SourceTerm == "" {
			continue
		}
		if !e.Category.Valid() {
			e.Category = CategoryGeneral
		}
		existing, exists := s.entries[e.SourceTerm]
		switch {
		case !exists:
			s.entries[e.SourceTerm] = e
			s.order = append(s.order, e.SourceTerm)
			added++
		case mode == ModeReplace:
			s.entries[e.SourceTerm] = e
		default: // ModeMerge: keep existing target/category, only fill blank notes
			if existing.Notes == "" && e.Notes != "" {
				existing.Notes = e.Notes
				s.entries[e.SourceTerm] = existing
			}
		}
	}
	s.version++
	s.mu.Unlock()

	return added, s.Persist()
}

// Remove deletes a source term, persisting the result. Returns false if
// the term was not present (no version bump, no write).
func (s *Store) Remove(sourceTerm string) (bool, error) {
	s.mu.Lock()
	if _, ok := s.entries[sourceTerm]; !ok {
		s.mu.Unlock()
		return false, nil
	}
	delete(s.entries, sourceTerm)
	for i, t := range s.order {
		if t == sourceTerm {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.version++
	s.mu.Unlock()

	return true, s.Persist()
}

// InsertionOrder returns entries in first-seen order (CSV load order, then
// Add order), for the scorer's unfitted fallback. Unlike Snapshot, this is
// NOT sorted by source term.
func (s *Store) InsertionOrder() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.order))
	for _, t := range s.order {
		if e, ok := s.entries[t]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Persist writes the complete glossary atomically (temp file + rename).
func (s *Store) Persist() error {
	rows := s.csvRows()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("glossary: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".glossary-*.csv.tmp")
	if err != nil {
		return fmt.Errorf("glossary: tempfile: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("glossary: write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("glossary: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("glossary: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("glossary: close: %w", err)
	}
	return os.Rename(tmpPath, s.path)
}

func (s *Store) csvRows() [][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := make([]string, 0, len(s.entries))
	for k := range s.entries {
		terms = append(terms, k)
	}
	sort.Strings(terms)

	rows := make([][]string, 0, len(terms))
	for _, t := range terms {
		e := s.entries[t]
		rows = append(rows, []string{e.SourceTerm, e.TargetTerm, string(e.Category), e.Notes})
	}
	return rows
}
