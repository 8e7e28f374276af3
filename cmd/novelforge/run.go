package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/novelforge/novelforge/internal/book"
	"github.com/novelforge/novelforge/internal/config"
	"github.com/novelforge/novelforge/internal/events"
	"github.com/novelforge/novelforge/internal/home"
	"github.com/novelforge/novelforge/internal/pipeline"
	"github.com/novelforge/novelforge/internal/providers"
	"github.com/novelforge/novelforge/internal/translate"
)

var (
	runMode       string
	runRange      string
	runWorkers    int
	runForce      bool
	runNoPolish   bool
	runSourceLang string
	runTargetLang string
	runGuidelines string
	runVocabulary string
	runTemp       float64
)

var runCmd = &cobra.Command{
	Use:   "run <index-url-or-book-slug>",
	Short: "Crawl and translate a book",
	Long: `Crawl and translate one book to completion (or until cancelled).

The argument is the book's index-page URL the first time a slug is run
(the slug is derived from the URL); any run after that can pass just
the slug, resuming from whatever state is already recorded in that
book's book.json.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "full", "full, crawl-only, or translate-only")
	runCmd.Flags().StringVar(&runRange, "range", "", "inclusive chapter range \"N-M\" to restrict this run to")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "translation worker count (default: config value)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "re-crawl/re-translate chapters regardless of current status")
	runCmd.Flags().BoolVar(&runNoPolish, "no-polish", false, "skip the post-translation polish pass for this run")
	runCmd.Flags().StringVar(&runSourceLang, "source-lang", "Chinese", "source language name")
	runCmd.Flags().StringVar(&runTargetLang, "target-lang", "English", "target language name")
	runCmd.Flags().StringVar(&runGuidelines, "guidelines", "", "freeform style guidelines for the translator prompt")
	runCmd.Flags().StringVar(&runVocabulary, "vocabulary", "", "freeform vocabulary notes for the translator prompt")
	runCmd.Flags().Float64Var(&runTemp, "temperature", 0.7, "translation sampling temperature")
}

func runRun(cmd *cobra.Command, args []string) error {
	arg := args[0]
	ctx := cmd.Context()
	logger := newLogger()

	var sourceURL, slug string
	if strings.Contains(arg, "://") {
		sourceURL = arg
		slug = book.Slug(arg)
	} else {
		slug = arg
	}

	var mode pipeline.Mode
	switch runMode {
	case "full":
		mode = pipeline.ModeFull
	case "crawl-only":
		mode = pipeline.ModeCrawlOnly
	case "translate-only":
		mode = pipeline.ModeTranslateOnly
	default:
		return fmt.Errorf("unknown --mode %q: must be full, crawl-only, or translate-only", runMode)
	}

	rng, err := parseRange(runRange)
	if err != nil {
		return err
	}

	h, err := home.New(homeDir)
	if err != nil {
		return err
	}
	if err := h.EnsureExists(); err != nil {
		return err
	}

	appCfg, cfgPath, err := loadAppConfig(h)
	if err != nil {
		return err
	}
	logger.Info("configuration loaded", "file", cfgPath)

	registry := providers.NewRegistryFromConfig(appCfg.ToProviderRegistryConfig())

	pcfg := pipeline.FromAppConfig(appCfg)
	pcfg.Force = runForce
	if runNoPolish {
		pcfg.Translate.EnablePolishPass = false
	}
	if runWorkers > 0 {
		pcfg.Workers = runWorkers
	}

	style := translate.Style{
		SourceLanguage: runSourceLang,
		TargetLanguage: runTargetLang,
		Guidelines:     runGuidelines,
		Vocabulary:     runVocabulary,
		Temperature:    runTemp,
	}

	dir := book.NewDir(h.BooksPath(), slug)
	bus := events.NewBus()
	sub := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		printEvents(sub)
	}()

	res, runErr := pipeline.Run(ctx, dir, sourceURL, mode, rng, style, registry, bus, pcfg)
	bus.Close()
	<-done

	if runErr != nil {
		return runErr
	}

	switch {
	case res.Cancelled:
		logger.Warn("run cancelled")
	case res.AnyChapterError:
		logger.Warn("run finished with chapter errors")
	case res.AllDone:
		logger.Info("run finished, all requested chapters done")
	default:
		logger.Info("run finished")
	}

	os.Exit(pipeline.ExitCode(nil, res))
	return nil
}

func printEvents(ch <-chan events.Event) {
	for ev := range ch {
		switch ev.Kind {
		case events.ChapterCrawled:
			fmt.Printf("[crawled]    chapter %d: %s\n", ev.Index, ev.TitleSource)
		case events.ChapterTranslated:
			fmt.Printf("[translated] chapter %d (%d chunks)\n", ev.Index, ev.ChunkCount)
		case events.ChapterError:
			fmt.Printf("[error]      chapter %d: %s\n", ev.Index, ev.Reason)
		case events.WorkerStatus:
			// quiet by default; surfaced via --log-level debug in a future pass
		case events.GlossaryUpdated:
			fmt.Printf("[glossary]   v%d, %d entries\n", ev.GlossaryVersion, ev.EntryCount)
		case events.Progress:
			fmt.Printf("[progress]   %v, glossary=%d\n", ev.CountsByStatus, ev.GlossarySize)
		case events.Done:
			fmt.Printf("[done]       all_done=%v cancelled=%v\n", ev.AllDone, ev.Cancelled)
		}
	}
}

// parseRange parses a "--range N-M" value into a pipeline.Range. An empty
// spec means unbounded.
func parseRange(spec string) (pipeline.Range, error) {
	if spec == "" {
		return pipeline.Range{}, nil
	}
	dash := strings.Index(spec, "-")
	if dash <= 0 {
		return pipeline.Range{}, fmt.Errorf("--range must be \"N-M\", got %q", spec)
	}
	start, err := strconv.Atoi(spec[:dash])
	if err != nil {
		return pipeline.Range{}, fmt.Errorf("--range must be \"N-M\", got %q", spec)
	}
	end, err := strconv.Atoi(spec[dash+1:])
	if err != nil {
		return pipeline.Range{}, fmt.Errorf("--range must be \"N-M\", got %q", spec)
	}
	return pipeline.Range{Start: start, End: end, Set: true}, nil
}

// loadAppConfig resolves the config file path (--config flag > ./config.yaml
// > <home>/config.yaml), writing the default config on first use, then loads
// it. Mirrors the teacher's serve.go resolution order.
func loadAppConfig(h *home.Dir) (*config.Config, string, error) {
	configFile := cfgFile
	if configFile == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			configFile = "config.yaml"
		} else {
			configFile = filepath.Join(h.Path(), "config.yaml")
		}
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err := config.WriteDefault(configFile); err != nil {
			return nil, "", fmt.Errorf("write default config: %w", err)
		}
	}

	mgr, err := config.NewManager(configFile)
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	return mgr.Get(), configFile, nil
}
