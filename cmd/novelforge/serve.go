package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/novelforge/novelforge/internal/config"
	"github.com/novelforge/novelforge/internal/home"
	"github.com/novelforge/novelforge/internal/pipeline"
	"github.com/novelforge/novelforge/internal/providers"
	"github.com/novelforge/novelforge/internal/server"
	"github.com/novelforge/novelforge/internal/translate"
)

var (
	serveHost       string
	servePort       string
	serveSourceLang string
	serveTargetLang string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the novelforge HTTP/SSE server",
	Long: `Start the novelforge HTTP server, exposing POST /books/:slug/run and
GET /books/:slug/events against the books stored under the novelforge
home directory.

Examples:
  novelforge serve                    # start on 127.0.0.1:8080
  novelforge serve --port 3000        # start on a custom port
  novelforge serve --host 0.0.0.0     # bind to all interfaces`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "port to listen on")
	serveCmd.Flags().StringVar(&serveSourceLang, "source-lang", "Chinese", "default source language for runs started over HTTP")
	serveCmd.Flags().StringVar(&serveTargetLang, "target-lang", "English", "default target language for runs started over HTTP")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()

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

	cfgMgr, err := config.NewManager(cfgPath)
	if err == nil {
		cfgMgr.OnChange(func(cfg *config.Config) {
			logger.Info("config changed, reloading provider registry")
			registry.Reload(cfg.ToProviderRegistryConfig())
		})
		cfgMgr.WatchConfig()
	}

	pcfg := pipeline.FromAppConfig(appCfg)
	style := translate.Style{
		SourceLanguage: serveSourceLang,
		TargetLanguage: serveTargetLang,
		Temperature:    appCfg.LLM.Default.Temperature,
	}

	srv := server.New(h.BooksPath(), registry, pcfg, style)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", serveHost, servePort),
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
