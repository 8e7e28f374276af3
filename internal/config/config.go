// Package config loads and hot-reloads the pipeline's configuration via
// viper, grounded on the teacher's Manager (internal/config/config.go):
// defaults seeded into viper, optional YAML file, NOVELFORGE_-prefixed
// environment overrides, and fsnotify-driven reload that rebuilds only
// the provider registry entries that actually changed.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/novelforge/novelforge/internal/providers"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("chunk_size", defaults.ChunkSize)
	viper.SetDefault("chunk_overlap", defaults.ChunkOverlap)
	viper.SetDefault("workers", defaults.Workers)
	viper.SetDefault("crawl_delay_ms", defaults.CrawlDelayMs)
	viper.SetDefault("crawl_max_retries", defaults.CrawlMaxRetries)
	viper.SetDefault("crawl_timeout_s", defaults.CrawlTimeoutS)
	viper.SetDefault("glossary_sample_chapters", defaults.GlossarySampleChapters)
	viper.SetDefault("glossary_sample_size", defaults.GlossarySampleSize)
	viper.SetDefault("glossary_min_entries", defaults.GlossaryMinEntries)
	viper.SetDefault("glossary_max_entries", defaults.GlossaryMaxEntries)
	viper.SetDefault("glossary_random_sample", defaults.GlossaryRandomSample)
	viper.SetDefault("glossary_wait_timeout", defaults.GlossaryWaitTimeoutS)
	viper.SetDefault("glossary_batch_interval", defaults.GlossaryBatchIntervalS)
	viper.SetDefault("glossary_scorer_rebuild_threshold", defaults.GlossaryScorerRebuildThreshold)
	viper.SetDefault("enable_polish_pass", defaults.EnablePolishPass)
	viper.SetDefault("polish_temperature", defaults.PolishTemperature)
	viper.SetDefault("polish_max_retries", defaults.PolishMaxRetries)
	viper.SetDefault("llm", defaults.LLM)

	viper.SetEnvPrefix("NOVELFORGE")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.novelforge")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("config: read config file: %w", err)
		}
	}

	return nil
}

func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration.
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback invoked with the new config after a
// successful reload.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables fsnotify-driven hot reload.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToProviderRegistryConfig converts the config into providers.RegistryConfig,
// resolving ${ENV_VAR} references in every task's API key and always
// including TaskDefault so Registry.Get's fallback has somewhere to land.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{Tasks: make(map[string]providers.TaskConfig)}

	for _, task := range []string{providers.TaskDefault, providers.TaskCrawl, providers.TaskGlossary, providers.TaskTranslate} {
		ep := c.endpointForTask(task)
		if task != providers.TaskDefault {
			if _, overridden := c.LLM.Tasks[task]; !overridden {
				continue // no task-specific entry; Registry.Get falls back to TaskDefault itself
			}
		}
		cfg.Tasks[task] = providers.TaskConfig{
			APIKey:      ResolveEnvVars(ep.APIKey),
			BaseURL:     ep.BaseURL,
			Model:       ep.Model,
			MaxTokens:   ep.MaxTokens,
			Temperature: ep.Temperature,
			RateLimit:   ep.RateLimit,
		}
	}

	return cfg
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	header := []byte(`# novelforge configuration
# API keys use ${ENV_VAR} syntax to reference environment variables.
# Set these in your shell, e.g.: export OPENAI_API_KEY=sk-...

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
