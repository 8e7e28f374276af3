package llmcall

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LogFileName is the call log's filename within a book directory.
const LogFileName = "calls.jsonl"

// Store appends Call records to a book's call log, one JSON object per
// line. Concurrent translate/glossary/crawl workers all append through the
// same Store, so writes are serialized under a mutex; os.O_APPEND alone
// does not guarantee atomicity across goroutines within one process.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore opens (creating if needed) the call log at dir/calls.jsonl.
func NewStore(dir string) (*Store, error) {
	path := filepath.Join(dir, LogFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("llmcall: open %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("llmcall: close %s: %w", path, err)
	}
	return &Store{path: path}, nil
}

// Append writes one Call as a JSON line. A nil call is a no-op.
func (s *Store) Append(call *Call) error {
	if call == nil {
		return nil
	}
	line, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("llmcall: marshal call %s: %w", call.ID, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("llmcall: open %s for append: %w", s.path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("llmcall: write to %s: %w", s.path, err)
	}
	return nil
}
