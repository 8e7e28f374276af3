// Package events defines the orchestrator's event stream types and a
// broadcaster for fanning them out to subscribers (CLI progress display,
// HTTP/SSE surface). Grounded on the codenerd example's Glass Box event
// bus (internal/transparency/event_bus.go): a
// subscribe/unsubscribe channel registry, dropped-not-blocked delivery to
// slow subscribers. Batching is dropped — the orchestrator's event volume
// is low enough (per-chapter, not per-token) that immediate delivery needs
// no coalescing window.
package events

import (
	"reflect"
	"sync"
	"time"
)

// Kind names one of the seven event types in the orchestrator's stream.
type Kind string

const (
	ChapterCrawled   Kind = "chapter.crawled"
	ChapterTranslated Kind = "chapter.translated"
	ChapterError     Kind = "chapter.error"
	WorkerStatus     Kind = "worker.status"
	GlossaryUpdated  Kind = "glossary.updated"
	Progress         Kind = "progress"
	Done             Kind = "done"
)

// Event is one item on the orchestrator's stream. Fields are a union of
// every kind's payload; only the ones relevant to Kind are populated.
type Event struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// chapter.crawled, chapter.translated, chapter.error
	Index       int    `json:"index,omitempty"`
	TitleSource string `json:"title_source,omitempty"`
	ChunkCount  int    `json:"chunk_count,omitempty"`
	Reason      string `json:"reason,omitempty"`

	// worker.status
	WorkerID int    `json:"worker_id,omitempty"`
	Tag      string `json:"tag,omitempty"`

	// glossary.updated
	GlossaryVersion uint64 `json:"glossary_version,omitempty"`
	EntryCount      int    `json:"entry_count,omitempty"`

	// progress
	CountsByStatus map[string]int `json:"counts_by_status,omitempty"`
	GlossarySize   int            `json:"glossary_size,omitempty"`

	// done
	AllDone   bool `json:"all_done,omitempty"`
	Cancelled bool `json:"cancelled,omitempty"`
}

// Bus fans out events to subscribers. One Bus per pipeline run. Safe for
// concurrent Emit/Subscribe/Unsubscribe from any goroutine.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Event
}

// NewBus returns an empty, ready-to-use Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel that receives every event emitted from this
// point forward. The channel is buffered; a subscriber that falls behind
// has events dropped rather than stalling the emitter (matching testable
// property 7: cancellation bound is never extended by a slow consumer).
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel previously returned
// by Subscribe.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	if ch == nil {
		return
	}
	target := reflect.ValueOf(ch).Pointer()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if reflect.ValueOf(sub).Pointer() == target {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// Emit dispatches an event to every current subscriber. Stamps Timestamp
// if unset.
func (b *Bus) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		select {
		case sub <- e:
		default: // slow subscriber; drop rather than block the orchestrator
		}
	}
}

// Close closes every subscriber channel. Call once after the orchestrator
// emits its final Done event.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = nil
}
