// Package extractor implements the progressive glossary extractor (§4.7):
// a single long-lived background task that periodically samples newly
// translated chapter text, asks an LLM for new glossary candidates via a
// tool call, and merges them into the glossary store under its writer
// lock. Grounded on the teacher's ticker-driven background job
// (internal/jobs/timer.go) generalized from a fixed-duration wait to a
// recurring drain-and-extract loop, and on the teacher's ChatWithTools /
// structured-output plumbing in internal/providers.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/novelforge/novelforge/internal/book"
	"github.com/novelforge/novelforge/internal/events"
	"github.com/novelforge/novelforge/internal/glossary"
	"github.com/novelforge/novelforge/internal/llmcall"
	"github.com/novelforge/novelforge/internal/promptlib"
	"github.com/novelforge/novelforge/internal/providers"
)

// candidateSchema is the JSON Schema the propose_terms tool call's
// arguments must satisfy.
const candidateSchema = `{
  "type": "object",
  "required": ["terms"],
  "properties": {
    "terms": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source_term", "target_term"],
        "properties": {
          "source_term": {"type": "string"},
          "target_term": {"type": "string"},
          "category": {"type": "string"},
          "notes": {"type": "string"}
        }
      }
    }
  }
}`

var proposeTermsTool = providers.Tool{
	Type: "function",
	Function: providers.ToolFunction{
		Name:        "propose_terms",
		Description: "Propose new glossary terms found in the excerpts",
		Parameters:  json.RawMessage(candidateSchema),
	},
}

// Config holds the extractor's tunables, drawn from the pipeline
// configuration (§6).
type Config struct {
	BatchInterval  time.Duration
	SampleSize     int // max chars sampled per chapter
	SampleChapters int // chapters sampled for initial seed generation
	MinEntries     int
	MaxEntries     int
	RandomSample   bool
	WaitTimeout    time.Duration
	RebuildDelta   uint64

	SourceLanguage string
	TargetLanguage string
}

// ChapterText is a reference the producer/consumer hand the extractor once
// a chapter's source text is available for term mining.
type ChapterText struct {
	Index int
	Text  string
}

// Extractor runs the single background extraction loop for one book.
type Extractor struct {
	client  providers.LLMClient
	gloss   *glossary.Store
	prompts *promptlib.Resolver
	calls   *llmcall.Store
	bus     *events.Bus
	cfg     Config
	logger  *slog.Logger

	mu      sync.Mutex
	pending []ChapterText

	seeded   chan struct{}
	seedOnce sync.Once

	rebuildDelta uint64
}

// New constructs an Extractor. client may be nil only in tests that never
// call Run.
func New(client providers.LLMClient, gloss *glossary.Store, prompts *promptlib.Resolver, calls *llmcall.Store, bus *events.Bus, cfg Config) *Extractor {
	return &Extractor{
		client:  client,
		gloss:   gloss,
		prompts: prompts,
		calls:   calls,
		bus:     bus,
		cfg:     cfg,
		logger:  slog.Default(),
		seeded:  make(chan struct{}),
	}
}

// SetLogger overrides the extractor's logger.
func (e *Extractor) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Enqueue marks a chapter's source text newly eligible for term mining.
// Called by a translator on chapter completion.
func (e *Extractor) Enqueue(ct ChapterText) {
	e.mu.Lock()
	e.pending = append(e.pending, ct)
	e.mu.Unlock()
}

// WaitSeed blocks until the initial glossary seed generation has completed
// (or never runs, if the glossary was already non-empty), or until timeout
// elapses — in which case translation proceeds with an empty glossary
// (§4.7 "Initial generation").
func (e *Extractor) WaitSeed(ctx context.Context) {
	if e.gloss.Len() > 0 {
		return
	}
	timeout := e.cfg.WaitTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	select {
	case <-e.seeded:
	case <-time.After(timeout):
		e.logger.Warn("glossary seed wait timed out; proceeding with empty glossary")
	case <-ctx.Done():
	}
}

// Run drains pending chapters every BatchInterval and extracts candidate
// terms, until ctx is cancelled. Intended to run in its own goroutine,
// stopped by the orchestrator after all consumers have exited (§4.8).
func (e *Extractor) Run(ctx context.Context, seedSource func() []ChapterText) {
	interval := e.cfg.BatchInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	if e.gloss.Len() == 0 && seedSource != nil {
		e.runSeed(ctx, seedSource)
	} else {
		e.seedOnce.Do(func() { close(e.seeded) })
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drainAndExtract(ctx)
			return
		case <-ticker.C:
			e.drainAndExtract(ctx)
		}
	}
}

// maxSeedPollInterval caps how infrequently runSeed re-polls seedSource;
// seedPollInterval shrinks below this for a short WaitTimeout so a test (or
// an operator-tuned fast timeout) still gets several polls in, not just one.
const maxSeedPollInterval = 500 * time.Millisecond

// seedPollInterval picks a poll cadence that fits inside timeout: roughly a
// tenth of it, floored at 10ms and capped at maxSeedPollInterval.
func seedPollInterval(timeout time.Duration) time.Duration {
	interval := timeout / 10
	if interval > maxSeedPollInterval {
		return maxSeedPollInterval
	}
	if interval < 10*time.Millisecond {
		return 10 * time.Millisecond
	}
	return interval
}

// runSeed picks glossary_sample_chapters CRAWLED chapters and extracts an
// initial batch before signaling readiness. For a fresh book nothing is
// CRAWLED yet when Run starts, so seedSource is re-polled on an interval
// until it reports enough chapters, ctx is cancelled, or WaitTimeout
// elapses (§4.7 "Initial generation... may have to wait") — whatever it
// has accumulated by then, even zero, is what gets used.
func (e *Extractor) runSeed(ctx context.Context, seedSource func() []ChapterText) {
	defer e.seedOnce.Do(func() { close(e.seeded) })

	want := e.cfg.SampleChapters
	if want <= 0 {
		want = 5
	}

	timeout := e.cfg.WaitTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	deadline := time.Now().Add(timeout)
	interval := seedPollInterval(timeout)

	var chapters []ChapterText
	for {
		chapters = seedSource()
		if len(chapters) >= want {
			break
		}
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(interval):
		}
	}

	if len(chapters) == 0 {
		return
	}
	if e.cfg.RandomSample && len(chapters) > want {
		rand.Shuffle(len(chapters), func(i, j int) { chapters[i], chapters[j] = chapters[j], chapters[i] })
	}
	if len(chapters) > want {
		chapters = chapters[:want]
	}

	if err := e.extract(ctx, chapters); err != nil {
		e.logger.Warn("glossary seed extraction failed", "error", err)
	}
}

// drainAndExtract pulls everything queued since the last drain and runs one
// extraction call over it. Failures are logged and swallowed per §4.7: the
// extractor is best-effort and must never take down the pipeline.
func (e *Extractor) drainAndExtract(ctx context.Context) {
	e.mu.Lock()
	batch := e.pending
	e.pending = nil
	e.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := e.extract(ctx, batch); err != nil {
		e.logger.Warn("glossary extraction failed", "error", err, "chapter_count", len(batch))
	}
}

func (e *Extractor) extract(ctx context.Context, batch []ChapterText) error {
	sampleSize := e.cfg.SampleSize
	if sampleSize <= 0 {
		sampleSize = 4000
	}

	var samples strings.Builder
	for _, ct := range batch {
		text := ct.Text
		if r := []rune(text); len(r) > sampleSize {
			text = string(r[:sampleSize])
		}
		fmt.Fprintf(&samples, "--- chapter %d ---\n%s\n\n", ct.Index, text)
	}

	existing := e.gloss.Snapshot()
	var existingFormatted strings.Builder
	for _, entry := range existing {
		fmt.Fprintf(&existingFormatted, "%s -> %s (%s)\n", entry.SourceTerm, entry.TargetTerm, entry.Category)
	}

	prompt, err := e.prompts.Render("glossary.extract", map[string]string{
		"SourceLanguage":   e.cfg.SourceLanguage,
		"TargetLanguage":   e.cfg.TargetLanguage,
		"ExistingGlossary": existingFormatted.String(),
		"Samples":          samples.String(),
	})
	if err != nil {
		return fmt.Errorf("extractor: render prompt: %w", err)
	}

	candidates, err := e.callAndParse(ctx, prompt)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	added, err := e.gloss.Add(candidates, glossary.ModeMerge)
	if err != nil {
		return fmt.Errorf("extractor: merge candidates: %w", err)
	}
	if added == 0 {
		return nil
	}

	e.rebuildDelta += uint64(added)
	version := e.gloss.Version()
	if e.bus != nil {
		e.bus.Emit(events.Event{Kind: events.GlossaryUpdated, GlossaryVersion: version, EntryCount: e.gloss.Len()})
	}
	return nil
}

// callAndParse makes the propose_terms tool call, validating and, on
// failure, issuing up to MaxStructuredRepairAttempts repair follow-ups.
func (e *Extractor) callAndParse(ctx context.Context, prompt string) ([]glossary.Entry, error) {
	messages := []providers.Message{{Role: "user", Content: prompt}}
	tools := []providers.Tool{proposeTermsTool}

	var lastIssue error
	for attempt := 0; attempt <= providers.MaxStructuredRepairAttempts; attempt++ {
		res, err := e.client.ChatWithTools(ctx, &providers.ChatRequest{Messages: messages}, tools)
		if e.calls != nil && res != nil {
			_ = e.calls.Append(llmcall.FromChatResult(res, llmcall.RecordOptions{
				Task:       providers.TaskGlossary,
				PromptKey:  "glossary.extract",
				PromptHash: promptlib.HashText(prompt),
			}))
		}
		if err != nil {
			return nil, fmt.Errorf("extractor: LLM call: %w", err)
		}
		if len(res.ToolCalls) == 0 {
			return nil, fmt.Errorf("extractor: no tool call in response")
		}

		args := json.RawMessage(res.ToolCalls[0].Function.Arguments)
		if verifyErr := providers.ValidateStructuredJSON(json.RawMessage(candidateSchema), args); verifyErr != nil {
			lastIssue = verifyErr
			repair := providers.StructuredRepairPrompt(json.RawMessage(candidateSchema), res.ToolCalls[0].Function.Arguments, verifyErr)
			messages = append(messages, providers.Message{Role: "assistant", Content: res.ToolCalls[0].Function.Arguments})
			messages = append(messages, providers.Message{Role: "user", Content: repair})
			continue
		}

		return parseCandidates(args)
	}

	return nil, fmt.Errorf("extractor: structured output invalid after %d repair attempts: %w", providers.MaxStructuredRepairAttempts, lastIssue)
}

type candidatePayload struct {
	Terms []struct {
		SourceTerm string `json:"source_term"`
		TargetTerm string `json:"target_term"`
		Category   string `json:"category"`
		Notes      string `json:"notes"`
	} `json:"terms"`
}

func parseCandidates(raw json.RawMessage) ([]glossary.Entry, error) {
	var payload candidatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("extractor: unmarshal candidates: %w", err)
	}

	entries := make([]glossary.Entry, 0, len(payload.Terms))
	for _, t := range payload.Terms {
		if t.SourceTerm == "" || t.TargetTerm == "" {
			continue
		}
		category := glossary.Category(t.Category)
		if !category.Valid() {
			category = glossary.CategoryGeneral
		}
		entries = append(entries, glossary.Entry{
			SourceTerm: t.SourceTerm,
			TargetTerm: t.TargetTerm,
			Category:   category,
			Notes:      t.Notes,
		})
	}
	return entries, nil
}

// SeedFromChapterLoader adapts a book.Dir-backed lookup into the
// seedSource callback Run expects, reading raw chapter files for whatever
// CRAWLED chapter indices listCrawled currently reports. listCrawled is
// called fresh on every invocation of the returned closure, so a caller
// that polls it (runSeed) observes chapters the producer crawls
// concurrently rather than a one-time snapshot.
func SeedFromChapterLoader(dir book.Dir, listCrawled func() []int, readRaw func(index int) (string, error)) func() []ChapterText {
	return func() []ChapterText {
		indices := listCrawled()
		out := make([]ChapterText, 0, len(indices))
		for _, idx := range indices {
			text, err := readRaw(idx)
			if err != nil {
				continue
			}
			out = append(out, ChapterText{Index: idx, Text: text})
		}
		return out
	}
}
