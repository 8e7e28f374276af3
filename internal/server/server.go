// Package server implements the thin HTTP/SSE surface that drives the
// orchestrator remotely (§6 expansion), explicitly outside the core per
// §1: a POST endpoint starts a pipeline.Run in the background, a GET
// endpoint relays its event.Bus as an SSE stream. Grounded on
// nsxzhou-z-novel-ai-api's gin stack — its StreamHandler's
// c.Stream/c.SSEvent loop over a channel fed by a background goroutine
// (internal/interfaces/http/handler/stream.go) — adapted from one LLM
// generation's token stream to one book run's event.Bus.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/novelforge/novelforge/internal/book"
	"github.com/novelforge/novelforge/internal/events"
	"github.com/novelforge/novelforge/internal/pipeline"
	"github.com/novelforge/novelforge/internal/providers"
	"github.com/novelforge/novelforge/internal/translate"
)

// Server holds the shared state behind the HTTP surface: one root
// directory of book directories, an LLM provider registry, and the set
// of runs currently in flight.
type Server struct {
	root     string
	registry *providers.Registry
	cfg      pipeline.Config
	style    translate.Style

	mu   sync.Mutex
	runs map[string]*run
}

// run tracks one in-flight (or just-finished) pipeline.Run for a book
// slug, so a GET /events request issued after the POST /run request can
// still attach to its event stream.
type run struct {
	bus    *events.Bus
	cancel context.CancelFunc
	done   bool
	result pipeline.Result
	err    error
}

// New constructs a Server. cfg and style are the defaults applied to a
// run unless its request body overrides them.
func New(root string, registry *providers.Registry, cfg pipeline.Config, style translate.Style) *Server {
	return &Server{
		root:     root,
		registry: registry,
		cfg:      cfg,
		style:    style,
		runs:     make(map[string]*run),
	}
}

// Router builds the gin engine exposing this server's two routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	books := r.Group("/books/:slug")
	books.POST("/run", s.handleRun)
	books.GET("/events", s.handleEvents)
	return r
}

// runRequest is the POST /books/:slug/run body. SourceURL is required
// only the first time a book is run.
type runRequest struct {
	SourceURL string `json:"source_url"`
	Mode      string `json:"mode"`
	Force     bool   `json:"force"`
	Start     int    `json:"range_start"`
	End       int    `json:"range_end"`
}

func (s *Server) handleRun(c *gin.Context) {
	slug := c.Param("slug")

	s.mu.Lock()
	if existing, ok := s.runs[slug]; ok && !existing.done {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress for this book"})
		return
	}
	s.mu.Unlock()

	var req runRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	mode := pipeline.ModeFull
	switch req.Mode {
	case "", string(pipeline.ModeFull):
		mode = pipeline.ModeFull
	case string(pipeline.ModeCrawlOnly):
		mode = pipeline.ModeCrawlOnly
	case string(pipeline.ModeTranslateOnly):
		mode = pipeline.ModeTranslateOnly
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown mode %q", req.Mode)})
		return
	}

	rng := pipeline.Range{}
	if req.Start != 0 || req.End != 0 {
		rng = pipeline.Range{Start: req.Start, End: req.End, Set: true}
	}

	cfg := s.cfg
	cfg.Force = req.Force

	dir := book.NewDir(s.root, slug)
	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())

	r := &run{bus: bus, cancel: cancel}
	s.mu.Lock()
	s.runs[slug] = r
	s.mu.Unlock()

	go func() {
		res, err := pipeline.Run(ctx, dir, req.SourceURL, mode, rng, s.style, s.registry, bus, cfg)
		s.mu.Lock()
		r.done = true
		r.result = res
		r.err = err
		s.mu.Unlock()
		bus.Close()
	}()

	c.JSON(http.StatusAccepted, gin.H{"slug": slug, "status": "started"})
}

func (s *Server) handleEvents(c *gin.Context) {
	slug := c.Param("slug")

	s.mu.Lock()
	r, ok := s.runs[slug]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run found for this book; POST /run first"})
		return
	}

	ch := r.bus.Subscribe()
	defer r.bus.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// Stop cancels an in-flight run for slug, if one exists. Used by
// graceful-shutdown paths in cmd/novelforge.
func (s *Server) Stop(slug string) {
	s.mu.Lock()
	r, ok := s.runs[slug]
	s.mu.Unlock()
	if ok {
		r.cancel()
	}
}
