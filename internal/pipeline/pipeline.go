// Package pipeline implements the streaming orchestrator (§4.8): the
// producer/consumer/extractor/stats-publisher goroutine topology that
// drives one book from PENDING chapters through to a fully TRANSLATED
// book.json. Grounded on the teacher's job-scheduler topology
// (internal/jobs/scheduler*.go) — a fixed set of long-lived goroutines
// coordinated by channels and WaitGroups — narrowed from the teacher's
// general job-type dispatch down to this spec's four fixed roles.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/novelforge/novelforge/internal/analyzer"
	"github.com/novelforge/novelforge/internal/book"
	"github.com/novelforge/novelforge/internal/config"
	"github.com/novelforge/novelforge/internal/downloader"
	"github.com/novelforge/novelforge/internal/events"
	"github.com/novelforge/novelforge/internal/extractor"
	"github.com/novelforge/novelforge/internal/fetcher"
	"github.com/novelforge/novelforge/internal/glossary"
	"github.com/novelforge/novelforge/internal/llmcall"
	"github.com/novelforge/novelforge/internal/progress"
	"github.com/novelforge/novelforge/internal/promptlib"
	"github.com/novelforge/novelforge/internal/providers"
	"github.com/novelforge/novelforge/internal/queue"
	"github.com/novelforge/novelforge/internal/scorer"
	"github.com/novelforge/novelforge/internal/translate"
)

// Mode selects which phases of the pipeline run.
type Mode string

const (
	ModeFull          Mode = "full"
	ModeCrawlOnly     Mode = "crawl-only"
	ModeTranslateOnly Mode = "translate-only"
)

// Range is an optional inclusive chapter-index bound. A zero Range (Set
// false) means unbounded.
type Range struct {
	Start, End int
	Set        bool
}

func (r Range) contains(index int) bool {
	if !r.Set {
		return true
	}
	return index >= r.Start && index <= r.End
}

// Result is the orchestrator's terminal outcome.
type Result struct {
	AllDone         bool
	Cancelled       bool
	AnyChapterError bool
}

// Exit codes at the orchestrator boundary (§6).
const (
	ExitDone           = 0
	ExitDoneWithErrors = 2
	ExitCancelled      = 3
	ExitFatalInitError = 4
)

// ExitCode maps a Run outcome to the orchestrator's documented exit code.
func ExitCode(initErr error, res Result) int {
	switch {
	case initErr != nil:
		return ExitFatalInitError
	case res.Cancelled:
		return ExitCancelled
	case res.AnyChapterError:
		return ExitDoneWithErrors
	default:
		return ExitDone
	}
}

// Config aggregates the pipeline's tunables, built from the loaded
// configuration (internal/config) before Run is called.
type Config struct {
	Fetcher    fetcher.Config
	Translate  translate.Config
	Extractor  extractor.Config
	Workers    int
	Force      bool
	StatsEvery time.Duration
}

// FromAppConfig builds a pipeline Config from the loaded application
// configuration (internal/config), used by cmd/novelforge before calling
// Run. The per-task LLM endpoints themselves are wired separately into a
// providers.Registry via providers.NewRegistryFromConfig.
func FromAppConfig(cfg *config.Config) Config {
	return Config{
		Fetcher: fetcher.Config{
			Delay:      time.Duration(cfg.CrawlDelayMs) * time.Millisecond,
			MaxRetries: cfg.CrawlMaxRetries,
			Timeout:    time.Duration(cfg.CrawlTimeoutS) * time.Second,
		},
		Translate: translate.Config{
			ChunkSize:          cfg.ChunkSize,
			ChunkOverlap:       cfg.ChunkOverlap,
			GlossaryMaxEntries: cfg.GlossaryMaxEntries,
			GlossaryMinEntries: cfg.GlossaryMinEntries,
			ScorerThreshold:    cfg.GlossaryScorerRebuildThreshold,
			EnablePolishPass:   cfg.EnablePolishPass,
			PolishTemperature:  cfg.PolishTemperature,
			PolishMaxRetries:   cfg.PolishMaxRetries,
		},
		Extractor: extractor.Config{
			BatchInterval:  time.Duration(cfg.GlossaryBatchIntervalS) * time.Second,
			SampleSize:     cfg.GlossarySampleSize,
			SampleChapters: cfg.GlossarySampleChapters,
			MinEntries:     cfg.GlossaryMinEntries,
			MaxEntries:     cfg.GlossaryMaxEntries,
			RandomSample:   cfg.GlossaryRandomSample,
			WaitTimeout:    time.Duration(cfg.GlossaryWaitTimeoutS) * time.Second,
			RebuildDelta:   cfg.GlossaryScorerRebuildThreshold,
		},
		Workers: cfg.Workers,
	}
}

// Run drives one book through crawl/translate per §4.8. dir's root is
// created if absent; sourceURL is the index page URL, required the first
// time a book is discovered (no chapters yet recorded in book.json).
func Run(ctx context.Context, dir book.Dir, sourceURL string, mode Mode, rng Range, style translate.Style, registry *providers.Registry, bus *events.Bus, cfg Config) (Result, error) {
	if err := os.MkdirAll(dir.Root, 0o755); err != nil {
		return Result{}, fmt.Errorf("pipeline: create book directory: %w", err)
	}

	store, err := progress.Load(dir, sourceURL)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: load progress: %w", err)
	}

	gloss, err := glossary.Load(dir.GlossaryPath())
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: load glossary: %w", err)
	}

	snap := store.Snapshot()
	if len(snap.Chapters) == 0 {
		if sourceURL == "" {
			return Result{}, fmt.Errorf("pipeline: fresh book requires a source URL")
		}
		if err := discover(ctx, store, sourceURL, cfg.Fetcher); err != nil {
			return Result{}, fmt.Errorf("pipeline: discover chapters: %w", err)
		}
		snap = store.Snapshot()
	}
	if snap.Patterns == nil {
		return Result{}, fmt.Errorf("pipeline: book has no stored index patterns")
	}

	toCrawl, toTranslate := workingSets(snap, mode, rng, cfg.Force)

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	fetch := fetcher.New(cfg.Fetcher)
	dl := downloader.New(fetch, dir, store)

	prompts, err := promptlib.NewResolver()
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: load prompts: %w", err)
	}
	calls, err := llmcall.NewStore(dir.Root)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: open call log: %w", err)
	}

	translateEnabled := mode == ModeFull || mode == ModeTranslateOnly

	extractorCfg := cfg.Extractor
	extractorCfg.SourceLanguage = style.SourceLanguage
	extractorCfg.TargetLanguage = style.TargetLanguage
	ex := extractor.New(pickClient(registry, providers.TaskGlossary), gloss, prompts, calls, bus, extractorCfg)

	engine := translate.New(
		pickClient(registry, providers.TaskTranslate), gloss, scorer.New(), prompts, calls, bus, store, dir,
		cfg.Translate, style,
		func() []string { return recentTranslatedSamples(dir, store, 5) },
	)

	q := queue.New[book.Chapter]()

	extractCtx, stopExtractor := context.WithCancel(context.Background())
	statsCtx, stopStats := context.WithCancel(context.Background())
	defer stopExtractor()
	defer stopStats()

	statsEvery := cfg.StatsEvery
	if statsEvery <= 0 {
		statsEvery = 5 * time.Second
	}
	var statsWG sync.WaitGroup
	statsWG.Add(1)
	go func() {
		defer statsWG.Done()
		publishStats(statsCtx, store, gloss, bus, statsEvery)
	}()

	// The producer starts crawling immediately; it never waits on the
	// glossary seed, only the translation consumers below do.
	var producerWG sync.WaitGroup
	producerWG.Add(1)
	go func() {
		defer producerWG.Done()
		runProducer(ctx, dl, store, snap.Patterns, snap.Encoding, toCrawl, q, translateEnabled, bus)
	}()

	var extractorWG sync.WaitGroup
	if translateEnabled {
		seedSource := extractor.SeedFromChapterLoader(dir, func() []int {
			return seedIndices(store.Snapshot())
		}, func(idx int) (string, error) {
			return os.ReadFile(dir.RawFile(idx))
		})
		extractorWG.Add(1)
		go func() {
			defer extractorWG.Done()
			ex.Run(extractCtx, seedSource)
		}()
		ex.WaitSeed(ctx)
	}

	var mu sync.Mutex
	var anyChapterError bool

	var consumerWG sync.WaitGroup
	if translateEnabled {
		for i := 0; i < workers; i++ {
			consumerWG.Add(1)
			workerID := i + 1
			go func() {
				defer consumerWG.Done()
				runConsumer(ctx, workerID, dir, engine, ex, q, bus, &mu, &anyChapterError)
			}()
		}
		for _, ch := range toTranslate {
			q.Send(ch)
		}
	}

	producerWG.Wait()
	if translateEnabled {
		q.Close()
	}
	consumerWG.Wait()

	stopExtractor()
	extractorWG.Wait()
	stopStats()
	statsWG.Wait()

	cancelled := ctx.Err() != nil
	res := Result{
		Cancelled:       cancelled,
		AllDone:         !cancelled && allDone(store, mode, rng),
		AnyChapterError: anyChapterError,
	}

	if bus != nil {
		bus.Emit(events.Event{Kind: events.Done, AllDone: res.AllDone, Cancelled: res.Cancelled})
	}
	return res, nil
}

func seedIndices(snap book.Progress) []int {
	var out []int
	for _, ch := range snap.Chapters {
		if ch.Status == book.StatusCrawled || ch.Status == book.StatusTranslated {
			out = append(out, ch.Index)
		}
	}
	return out
}

func workingSets(snap book.Progress, mode Mode, rng Range, force bool) (toCrawl, toTranslate []book.Chapter) {
	for _, ch := range snap.Chapters {
		if !rng.contains(ch.Index) {
			continue
		}
		switch mode {
		case ModeCrawlOnly:
			if force || ch.Status == book.StatusPending {
				toCrawl = append(toCrawl, ch)
			}
		case ModeTranslateOnly:
			if force || ch.Status == book.StatusCrawled {
				toTranslate = append(toTranslate, ch)
			}
		default: // ModeFull
			if force {
				toCrawl = append(toCrawl, ch)
				toTranslate = append(toTranslate, ch)
				continue
			}
			switch ch.Status {
			case book.StatusPending:
				toCrawl = append(toCrawl, ch)
			case book.StatusCrawled:
				toTranslate = append(toTranslate, ch)
			}
		}
	}
	return toCrawl, toTranslate
}

func allDone(store *progress.Store, mode Mode, rng Range) bool {
	snap := store.Snapshot()
	want := book.StatusTranslated
	if mode == ModeCrawlOnly {
		want = book.StatusCrawled
	}
	for _, ch := range snap.Chapters {
		if !rng.contains(ch.Index) {
			continue
		}
		if ch.Status != want {
			return false
		}
	}
	return true
}

func runProducer(ctx context.Context, dl *downloader.Downloader, store *progress.Store, patterns *book.Patterns, declaredEncoding string, toCrawl []book.Chapter, q *queue.Queue[book.Chapter], translateEnabled bool, bus *events.Bus) {
	for _, ch := range toCrawl {
		if ctx.Err() != nil {
			return
		}
		if err := dl.Download(ctx, ch, *patterns, declaredEncoding); err != nil {
			if bus != nil {
				bus.Emit(events.Event{Kind: events.ChapterError, Index: ch.Index, Reason: err.Error()})
			}
			continue
		}

		snap := store.Snapshot()
		updated := snap.Chapter(ch.Index)
		if updated == nil {
			continue
		}
		if bus != nil {
			switch updated.Status {
			case book.StatusCrawled:
				bus.Emit(events.Event{Kind: events.ChapterCrawled, Index: ch.Index, TitleSource: updated.TitleSource})
			case book.StatusError:
				bus.Emit(events.Event{Kind: events.ChapterError, Index: ch.Index, Reason: updated.LastError})
			}
		}
		if translateEnabled && updated.Status == book.StatusCrawled {
			q.Send(*updated)
		}
	}
}

func runConsumer(ctx context.Context, workerID int, dir book.Dir, engine *translate.Engine, ex *extractor.Extractor, q *queue.Queue[book.Chapter], bus *events.Bus, mu *sync.Mutex, anyChapterError *bool) {
	emitStatus := func(tag string) {
		if bus != nil {
			bus.Emit(events.Event{Kind: events.WorkerStatus, WorkerID: workerID, Tag: tag})
		}
	}
	emitStatus("idle")

	for {
		ch, ok := q.Recv()
		if !ok {
			emitStatus("done")
			return
		}

		emitStatus("working")
		err := engine.Translate(ctx, ch)
		switch {
		case err == nil:
			if raw, readErr := os.ReadFile(dir.RawFile(ch.Index)); readErr == nil {
				ex.Enqueue(extractor.ChapterText{Index: ch.Index, Text: string(raw)})
			}
		case errors.Is(err, translate.ErrCancelled):
			// leave the chapter at its last committed state (§7)
		default:
			mu.Lock()
			*anyChapterError = true
			mu.Unlock()
			if bus != nil {
				bus.Emit(events.Event{Kind: events.ChapterError, Index: ch.Index, Reason: err.Error()})
			}
		}
		emitStatus("idle")
	}
}

func publishStats(ctx context.Context, store *progress.Store, gloss *glossary.Store, bus *events.Bus, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if bus == nil {
				continue
			}
			snap := store.Snapshot()
			counts := snap.CountByStatus()
			byStatus := make(map[string]int, len(counts))
			for status, n := range counts {
				byStatus[string(status)] = n
			}
			bus.Emit(events.Event{Kind: events.Progress, CountsByStatus: byStatus, GlossarySize: gloss.Len()})
		}
	}
}

func discover(ctx context.Context, store *progress.Store, sourceURL string, fetchCfg fetcher.Config) error {
	fetch := fetcher.New(fetchCfg)
	indexPage, err := fetch.Fetch(ctx, sourceURL, "")
	if err != nil {
		return fmt.Errorf("fetch index page: %w", err)
	}

	patterns, links, err := analyzer.Analyze(indexPage.HTML, sourceURL, "")
	if err != nil {
		return fmt.Errorf("analyze index page: %w", err)
	}

	seeds := make([]progress.ChapterSeed, len(links))
	for i, l := range links {
		seeds[i] = progress.ChapterSeed{Index: l.Index, TitleSource: l.Title, SourceURL: l.URL}
	}
	if err := store.EnsureChapters(seeds); err != nil {
		return fmt.Errorf("save discovered chapters: %w", err)
	}
	return store.SetPatterns(*patterns)
}

func pickClient(registry *providers.Registry, task string) providers.LLMClient {
	if registry == nil {
		return nil
	}
	client, err := registry.Get(task)
	if err != nil {
		return nil
	}
	return client
}

// recentTranslatedSamples reads up to n of the most recently translated
// chapters' text for the scorer's opportunistic refit (§4.3). Best-effort:
// a chapter whose file can't be read is silently skipped.
func recentTranslatedSamples(dir book.Dir, store *progress.Store, n int) []string {
	snap := store.Snapshot()
	var indices []int
	for _, ch := range snap.Chapters {
		if ch.Status == book.StatusTranslated {
			indices = append(indices, ch.Index)
		}
	}
	if len(indices) > n {
		indices = indices[len(indices)-n:]
	}
	var out []string
	for _, idx := range indices {
		if text, err := os.ReadFile(dir.TranslatedFile(idx)); err == nil {
			out = append(out, string(text))
		}
	}
	return out
}
