package providers

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrLLMNotFound is returned when an LLM client is not found in the registry.
var ErrLLMNotFound = errors.New("LLM client not found")

// Task names the registry's three callers: crawl-time cleanup, glossary
// extraction, and chapter translation. A task without its own provider
// config falls back to "default".
const (
	TaskDefault   = "default"
	TaskCrawl     = "crawl"
	TaskGlossary  = "glossary"
	TaskTranslate = "translate"
)

// Registry holds one LLMClient per task name, supporting config-driven
// instantiation and viper-triggered hot-reload.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]LLMClient
	logger  *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]LLMClient),
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register registers an LLM client under a task name.
func (r *Registry) Register(task string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[task] = client
	if r.logger != nil {
		r.logger.Info("registered LLM client", "task", task)
	}
}

// Get returns the client for task, falling back to TaskDefault if task has
// no client of its own.
func (r *Registry) Get(task string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.clients[task]; ok {
		return c, nil
	}
	if c, ok := r.clients[TaskDefault]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrLLMNotFound, task)
}

// TaskConfig is one task's (or the default's) LLM endpoint configuration.
type TaskConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	RateLimit   float64 // requests per minute
}

// RegistryConfig maps task name to its endpoint configuration. Tasks absent
// from the map use TaskDefault's client via Get's fallback.
type RegistryConfig struct {
	Tasks map[string]TaskConfig
}

// NewRegistryFromConfig builds a registry with one OpenAIClient per
// configured task.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.applyConfig(cfg)
	return r
}

// Reload rebuilds any task whose configuration changed, leaving unaffected
// clients (and their in-flight rate limiter state) untouched. Driven by the
// config package's fsnotify watch.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool, len(cfg.Tasks))
	for task, taskCfg := range cfg.Tasks {
		want[task] = true
		existing, hasExisting := r.clients[task]
		if !hasExisting || needsUpdate(existing, taskCfg) {
			r.clients[task] = newOpenAIClientFromTaskConfig(taskCfg)
			if r.logger != nil {
				r.logger.Info("reloaded LLM client", "task", task, "model", taskCfg.Model)
			}
		}
	}
	for task := range r.clients {
		if !want[task] && task != TaskDefault {
			delete(r.clients, task)
			if r.logger != nil {
				r.logger.Info("unregistered LLM client", "task", task)
			}
		}
	}
}

func (r *Registry) applyConfig(cfg RegistryConfig) {
	for task, taskCfg := range cfg.Tasks {
		r.clients[task] = newOpenAIClientFromTaskConfig(taskCfg)
	}
}

func newOpenAIClientFromTaskConfig(cfg TaskConfig) *OpenAIClient {
	return NewOpenAIClient(OpenAIConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		RateLimit:   cfg.RateLimit,
	})
}

func needsUpdate(client LLMClient, cfg TaskConfig) bool {
	c, ok := client.(*OpenAIClient)
	if !ok {
		return true
	}
	return c.apiKey != cfg.APIKey || c.baseURL != cfg.BaseURL || c.model != cfg.Model ||
		c.maxTokens != cfg.MaxTokens || c.temperature != cfg.Temperature ||
		c.limiter.requestsPerMinute != NewRateLimiter(int(cfg.RateLimit)).requestsPerMinute
}
