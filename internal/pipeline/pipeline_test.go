package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/novelforge/novelforge/internal/book"
	"github.com/novelforge/novelforge/internal/config"
	"github.com/novelforge/novelforge/internal/events"
	"github.com/novelforge/novelforge/internal/glossary"
	"github.com/novelforge/novelforge/internal/progress"
	"github.com/novelforge/novelforge/internal/providers"
	"github.com/novelforge/novelforge/internal/translate"
)

func newRegistry(client providers.LLMClient) *providers.Registry {
	r := providers.NewRegistry()
	r.Register(providers.TaskDefault, client)
	return r
}

// glossaryStubClient answers any propose_terms tool call with a single
// fixed candidate, satisfying candidateSchema. providers.MockClient always
// returns empty tool arguments ("{}"), which never validates against the
// extractor's schema, so it can't stand in for a glossary-producing LLM in
// a test that needs to observe real seed extraction.
type glossaryStubClient struct{}

func (glossaryStubClient) Name() string { return "glossary-stub" }

func (glossaryStubClient) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResult, error) {
	return &providers.ChatResult{Success: true}, nil
}

func (glossaryStubClient) ChatWithTools(ctx context.Context, req *providers.ChatRequest, tools []providers.Tool) (*providers.ChatResult, error) {
	args := `{"terms":[{"source_term":"道","target_term":"Dao","category":"general"}]}`
	return &providers.ChatResult{
		Success: true,
		ToolCalls: []providers.ToolCall{{
			ID:   "call-1",
			Type: "function",
			Function: struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			}{Name: tools[0].Function.Name, Arguments: args},
		}},
	}, nil
}

const chapterBody = "The quick brown fox jumps over the lazy dog. This sentence repeats to pad the chapter body well past the extractor's minimum length threshold so extraction never falls back to readability. "

func newTestServer(t *testing.T, chapterCount int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	var links strings.Builder
	for i := 1; i <= chapterCount; i++ {
		fmt.Fprintf(&links, `<a href="/chapter/%d.html">Chapter %d</a>`, i, i)
		idx := i
		mux.HandleFunc(fmt.Sprintf("/chapter/%d.html", idx), func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `<html><body><div id="content">%s (chapter %d)</div></body></html>`, strings.Repeat(chapterBody, 2), idx)
		})
	}
	mux.HandleFunc("/index.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><div class="chapter-list">%s</div></body></html>`, links.String())
	})

	return httptest.NewServer(mux)
}

func testConfig() Config {
	appCfg := config.DefaultConfig()
	appCfg.EnablePolishPass = false
	appCfg.Workers = 2
	appCfg.CrawlMaxRetries = 2
	appCfg.CrawlTimeoutS = 5

	cfg := FromAppConfig(appCfg)
	// Test-only overrides: the production defaults (30s batch interval,
	// 60s seed wait) would make every test wait out a real timer.
	cfg.Extractor.BatchInterval = 20 * time.Millisecond
	cfg.Extractor.WaitTimeout = 200 * time.Millisecond
	cfg.StatsEvery = 20 * time.Millisecond
	return cfg
}

func testStyle() translate.Style {
	return translate.Style{SourceLanguage: "English", TargetLanguage: "English", Temperature: 0.5}
}

func TestRunFreshBookFullCycleTranslatesEveryChapter(t *testing.T) {
	server := newTestServer(t, 3)
	defer server.Close()

	root := t.TempDir()
	dir := book.NewDir(root, "fresh-book")

	client := providers.NewMockClient()
	registry := newRegistry(client)
	registry.Register(providers.TaskGlossary, glossaryStubClient{})
	bus := events.NewBus()

	res, err := Run(context.Background(), dir, server.URL+"/index.html", ModeFull, Range{}, testStyle(), registry, bus, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.AllDone {
		t.Fatal("expected AllDone")
	}
	if res.Cancelled || res.AnyChapterError {
		t.Fatalf("unexpected cancelled=%v anyChapterError=%v", res.Cancelled, res.AnyChapterError)
	}

	store, err := progress.Load(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	snap := store.Snapshot()
	if len(snap.Chapters) != 3 {
		t.Fatalf("expected 3 discovered chapters, got %d", len(snap.Chapters))
	}
	for _, ch := range snap.Chapters {
		if ch.Status != book.StatusTranslated {
			t.Fatalf("chapter %d: expected TRANSLATED, got %s", ch.Index, ch.Status)
		}
		if _, err := os.Stat(dir.TranslatedFile(ch.Index)); err != nil {
			t.Fatalf("chapter %d: missing translated file: %v", ch.Index, err)
		}
	}

	gloss, err := glossary.Load(dir.GlossaryPath())
	if err != nil {
		t.Fatal(err)
	}
	// A fresh book has nothing CRAWLED when Run starts; this only passes if
	// the seed source re-polls the store for chapters the producer crawls
	// concurrently instead of freezing an empty pre-crawl snapshot.
	if gloss.Len() == 0 {
		t.Fatal("expected the initial glossary seed to populate from concurrently crawled chapters, got an empty glossary")
	}
}

func TestRunResumePicksUpOnlyOutstandingWork(t *testing.T) {
	server := newTestServer(t, 1)
	defer server.Close()

	root := t.TempDir()
	dir := book.NewDir(root, "resume-book")
	if err := os.MkdirAll(dir.RawDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir.TranslatedDir(), 0o755); err != nil {
		t.Fatal(err)
	}

	store, err := progress.Load(dir, "https://example.com/index")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.EnsureChapters([]progress.ChapterSeed{
		{Index: 1, TitleSource: "Chapter One"},
		{Index: 2, TitleSource: "Chapter Two"},
		{Index: 3, TitleSource: "Chapter Three", SourceURL: server.URL + "/chapter/1.html"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetPatterns(book.Patterns{ContentSelector: "#content"}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir.RawFile(1), []byte(chapterBody), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir.TranslatedFile(1), []byte(chapterBody), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateChapter(1, func(c *book.Chapter) {
		c.Status = book.StatusTranslated
		c.ChunkCount = 1
	}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir.RawFile(2), []byte(chapterBody), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateChapter(2, func(c *book.Chapter) {
		c.Status = book.StatusCrawled
	}); err != nil {
		t.Fatal(err)
	}
	// chapter 3 stays PENDING, crawled fresh from the test server below.

	client := providers.NewMockClient()
	registry := newRegistry(client)
	bus := events.NewBus()

	res, err := Run(context.Background(), dir, "", ModeFull, Range{}, testStyle(), registry, bus, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.AllDone || res.Cancelled || res.AnyChapterError {
		t.Fatalf("unexpected result: %+v", res)
	}

	final, err := progress.Load(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	snap := final.Snapshot()
	for _, ch := range snap.Chapters {
		if ch.Status != book.StatusTranslated {
			t.Fatalf("chapter %d: expected TRANSLATED after resume, got %s", ch.Index, ch.Status)
		}
	}
}

func TestRunCancelledBeforeStartLeavesChaptersUntouched(t *testing.T) {
	server := newTestServer(t, 2)
	defer server.Close()

	root := t.TempDir()
	dir := book.NewDir(root, "cancel-book")
	if err := os.MkdirAll(dir.RawDir(), 0o755); err != nil {
		t.Fatal(err)
	}

	// Pre-populate the chapter list and patterns so Run skips the
	// network-bound discovery step entirely: discovery itself isn't
	// cancellation-aware (it's a one-shot setup call, not a loop), so a
	// ctx already cancelled at discovery time would surface as a fetch
	// error rather than a clean Cancelled result. Cancellation semantics
	// apply to the crawl/translate loops, which this test exercises.
	store, err := progress.Load(dir, "https://example.com/index")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.EnsureChapters([]progress.ChapterSeed{
		{Index: 1, TitleSource: "Chapter One", SourceURL: server.URL + "/chapter/1.html"},
		{Index: 2, TitleSource: "Chapter Two", SourceURL: server.URL + "/chapter/2.html"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetPatterns(book.Patterns{ContentSelector: "#content"}); err != nil {
		t.Fatal(err)
	}

	client := providers.NewMockClient()
	client.Latency = 50 * time.Millisecond
	registry := newRegistry(client)
	bus := events.NewBus()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, dir, "", ModeFull, Range{}, testStyle(), registry, bus, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Cancelled {
		t.Fatal("expected Cancelled")
	}
	if res.AnyChapterError {
		t.Fatal("cancellation must never surface as a chapter error")
	}

	final, err := progress.Load(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, ch := range final.Snapshot().Chapters {
		if ch.Status == book.StatusError {
			t.Fatalf("chapter %d: cancellation must never leave a chapter in ERROR, got %s", ch.Index, ch.Status)
		}
		if ch.Status == book.StatusTranslated {
			t.Fatalf("chapter %d: expected no progress past crawl on immediate cancellation, got %s", ch.Index, ch.Status)
		}
	}
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		name    string
		initErr error
		res     Result
		want    int
	}{
		{"fatal init error", fmt.Errorf("boom"), Result{}, ExitFatalInitError},
		{"cancelled", nil, Result{Cancelled: true}, ExitCancelled},
		{"done with errors", nil, Result{AnyChapterError: true}, ExitDoneWithErrors},
		{"clean done", nil, Result{AllDone: true}, ExitDone},
	}
	for _, tc := range cases {
		if got := ExitCode(tc.initErr, tc.res); got != tc.want {
			t.Errorf("%s: ExitCode() = %d, want %d", tc.name, got, tc.want)
		}
	}
}
