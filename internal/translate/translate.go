// Package translate implements the per-chapter translation engine (§4.6):
// sequential chunk translation with glossary context and prior-output-tail
// threading, followed by an optional polish pass. Grounded on the
// teacher's retry-go usage in internal/fetcher (exponential backoff over
// transient failures) and on the provider/llmcall/promptlib packages this
// session built for the rest of the pipeline.
package translate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/avast/retry-go/v4"

	"github.com/novelforge/novelforge/internal/book"
	"github.com/novelforge/novelforge/internal/chunker"
	"github.com/novelforge/novelforge/internal/events"
	"github.com/novelforge/novelforge/internal/glossary"
	"github.com/novelforge/novelforge/internal/llmcall"
	"github.com/novelforge/novelforge/internal/progress"
	"github.com/novelforge/novelforge/internal/promptlib"
	"github.com/novelforge/novelforge/internal/providers"
	"github.com/novelforge/novelforge/internal/scorer"
)

// ErrCancelled is returned when the caller's context is cancelled before
// or during a chunk's LLM call. Per §7, cancellation is not an error: the
// chapter is left at its last committed state (no status change, no
// partial translated file), distinct from a chunk-level translation
// failure which marks the chapter ERROR.
var ErrCancelled = errors.New("translate: cancelled")

// softErrorMinRatio is the minimum fraction of the source chunk's
// character length a translated chunk must reach to avoid being treated
// as a soft (truncated-completion) error. Resolves spec §9 Open Question 3.
const softErrorMinRatio = 0.30

// Style carries the translation voice: source/target language and the
// style template's guidelines and preferred vocabulary, rendered into the
// system prompt every chunk.
type Style struct {
	SourceLanguage string
	TargetLanguage string
	Guidelines     string
	Vocabulary     string
	Temperature    float64
}

// Config holds the per-engine tunables drawn from the pipeline's
// configuration (§6).
type Config struct {
	ChunkSize          int
	ChunkOverlap       int
	MaxAttempts        int
	GlossaryMaxEntries int
	GlossaryMinEntries int
	ScorerThreshold    uint64
	EnablePolishPass   bool
	PolishTemperature  float64
	PolishMaxRetries   int
}

// DocumentSampler returns a sample of recently translated chapter text for
// the term scorer's opportunistic rebuild.
type DocumentSampler func() []string

// Engine translates one chapter at a time. One Engine instance backs one
// worker; chunks within a chapter are always sequential (§5).
type Engine struct {
	client   providers.LLMClient
	glossary *glossary.Store
	scorer   *scorer.Scorer
	prompts  *promptlib.Resolver
	calls    *llmcall.Store
	bus      *events.Bus
	progress *progress.Store
	dir      book.Dir
	cfg      Config
	style    Style
	sample   DocumentSampler
}

// New constructs a translation Engine.
func New(
	client providers.LLMClient,
	gloss *glossary.Store,
	sc *scorer.Scorer,
	prompts *promptlib.Resolver,
	calls *llmcall.Store,
	bus *events.Bus,
	prog *progress.Store,
	dir book.Dir,
	cfg Config,
	style Style,
	sample DocumentSampler,
) *Engine {
	return &Engine{
		client: client, glossary: gloss, scorer: sc, prompts: prompts,
		calls: calls, bus: bus, progress: prog, dir: dir,
		cfg: cfg, style: style, sample: sample,
	}
}

// Translate runs the full per-chapter pipeline: chunk, translate each
// chunk in order, assemble the draft, optionally polish, then persist.
// A non-nil, non-ErrCancelled error means the chapter should be marked
// ERROR by the caller; ErrCancelled means the caller leaves the chapter
// at its current status untouched.
func (e *Engine) Translate(ctx context.Context, ch book.Chapter) error {
	raw, err := os.ReadFile(e.dir.RawFile(ch.Index))
	if err != nil {
		return fmt.Errorf("translate: read raw chapter %d: %w", ch.Index, err)
	}

	chunks := chunker.Chunk(string(raw), e.cfg.ChunkSize)
	drafts := make([]string, len(chunks))
	priorTail := ""

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			return ErrCancelled
		}

		e.maybeRebuildScorer()

		glossaryExcerpt := e.glossary.FormatRelevant(chunk, e.scorer, e.cfg.GlossaryMaxEntries, e.cfg.GlossaryMinEntries)
		systemPrompt, err := e.prompts.Render("translate.system", map[string]string{
			"SourceLanguage":  e.style.SourceLanguage,
			"TargetLanguage":  e.style.TargetLanguage,
			"StyleGuidelines": e.style.Guidelines,
			"StyleVocabulary": e.style.Vocabulary,
		})
		if err != nil {
			return fmt.Errorf("translate: render system prompt: %w", err)
		}
		userPrompt, err := e.prompts.Render("translate.user", map[string]string{
			"Glossary":     glossaryExcerpt,
			"PriorContext": priorTail,
			"Chunk":        chunk,
		})
		if err != nil {
			return fmt.Errorf("translate: render user prompt: %w", err)
		}

		translated, err := e.translateChunk(ctx, ch.Index, systemPrompt, userPrompt, utf8.RuneCountInString(chunk))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
				return ErrCancelled
			}
			return fmt.Errorf("translate: chunk %d/%d of chapter %d: %w", i+1, len(chunks), ch.Index, err)
		}

		drafts[i] = translated
		priorTail = tail(translated, e.cfg.ChunkOverlap)
	}

	draft := strings.Join(drafts, "\n\n")
	final := draft

	if e.cfg.EnablePolishPass {
		if polished, err := e.polish(ctx, string(raw), draft, ch.Index); err == nil {
			final = polished
		}
		// Any polish failure, including cancellation mid-polish, falls back
		// to draft: once all chunks succeed the draft is durable output.
	}

	if err := writeFile(e.dir.TranslatedFile(ch.Index), final); err != nil {
		return fmt.Errorf("translate: write translated chapter %d: %w", ch.Index, err)
	}

	if err := e.progress.UpdateChapter(ch.Index, func(c *book.Chapter) {
		c.Status = book.StatusTranslated
		c.ChunkCount = len(chunks)
		c.LastError = ""
	}); err != nil {
		return fmt.Errorf("translate: save progress for chapter %d: %w", ch.Index, err)
	}

	e.bus.Emit(events.Event{Kind: events.ChapterTranslated, Index: ch.Index, ChunkCount: len(chunks)})
	return nil
}

// maybeRebuildScorer triggers an opportunistic scorer rebuild per the
// policy in §4.3: if the glossary has drifted by ScorerThreshold
// mutations since the scorer's last fit, refit against a sample of
// recently translated chapters.
func (e *Engine) maybeRebuildScorer() {
	version := e.glossary.Version()
	if !e.scorer.NeedsRebuild(version, e.cfg.ScorerThreshold) {
		return
	}
	entries := e.glossary.Snapshot()
	terms := make([]string, len(entries))
	for i, entry := range entries {
		terms[i] = entry.SourceTerm
	}
	var documents []string
	if e.sample != nil {
		documents = e.sample()
	}
	e.scorer.Fit(documents, terms, version)
}

// translateChunk sends one chunk to the LLM, applying the soft-error
// policy (resolves spec §9 Open Question 3): a response under 30% of the
// source chunk's length earns one free retry outside the main attempt
// budget; if still short, it becomes a normal retryable failure.
func (e *Engine) translateChunk(ctx context.Context, chapterIndex int, systemPrompt, userPrompt string, sourceLen int) (string, error) {
	var result string
	bonusGranted := false

	attempt := func() error {
		res, err := e.callLLM(ctx, chapterIndex, systemPrompt, userPrompt, e.style.Temperature)
		if err != nil {
			return err
		}
		if !isShort(res.Content, sourceLen) {
			result = res.Content
			return nil
		}
		if bonusGranted {
			result = res.Content
			return fmt.Errorf("translate: chunk response too short (%d chars for %d source chars)", utf8.RuneCountInString(res.Content), sourceLen)
		}
		bonusGranted = true
		retryRes, retryErr := e.callLLM(ctx, chapterIndex, systemPrompt, userPrompt, e.style.Temperature)
		if retryErr == nil && !isShort(retryRes.Content, sourceLen) {
			result = retryRes.Content
			return nil
		}
		if retryErr == nil {
			result = retryRes.Content
		}
		return fmt.Errorf("translate: chunk response too short after soft-error retry")
	}

	maxAttempts := e.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	err := retry.Do(attempt,
		retry.Context(ctx),
		retry.Attempts(uint(maxAttempts)),
		retry.DelayType(retry.BackOffDelay),
	)
	if err != nil {
		return "", err
	}
	return result, nil
}

func isShort(content string, sourceLen int) bool {
	return float64(utf8.RuneCountInString(content)) < softErrorMinRatio*float64(sourceLen)
}

// polish sends the entire source chapter and the assembled draft for one
// editing pass at a lower temperature, retrying up to PolishMaxRetries.
func (e *Engine) polish(ctx context.Context, source, draft string, chapterIndex int) (string, error) {
	prompt, err := e.prompts.Render("polish.user", map[string]string{
		"Source":         source,
		"Draft":          draft,
		"TargetLanguage": e.style.TargetLanguage,
	})
	if err != nil {
		return "", err
	}

	var result string
	attempt := func() error {
		res, err := e.callLLM(ctx, chapterIndex, "", prompt, e.cfg.PolishTemperature)
		if err != nil {
			return err
		}
		result = res.Content
		return nil
	}

	maxAttempts := e.cfg.PolishMaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	err = retry.Do(attempt,
		retry.Context(ctx),
		retry.Attempts(uint(maxAttempts)),
		retry.DelayType(retry.BackOffDelay),
	)
	if err != nil {
		return "", err
	}
	return result, nil
}

func (e *Engine) callLLM(ctx context.Context, chapterIndex int, systemPrompt, userPrompt string, temperature float64) (*providers.ChatResult, error) {
	var messages []providers.Message
	if systemPrompt != "" {
		messages = append(messages, providers.Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, providers.Message{Role: "user", Content: userPrompt})

	res, err := e.client.Chat(ctx, &providers.ChatRequest{
		Messages:    messages,
		Temperature: temperature,
	})

	if e.calls != nil && res != nil {
		temp := temperature
		_ = e.calls.Append(llmcall.FromChatResult(res, llmcall.RecordOptions{
			ChapterIndex: chapterIndex,
			Task:         providers.TaskTranslate,
			PromptKey:    "translate.user",
			PromptHash:   promptlib.HashText(userPrompt),
			Temperature:  &temp,
		}))
	}
	return res, err
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
