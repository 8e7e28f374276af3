package config

// Config holds the pipeline's full configuration, loaded by viper from a
// YAML file (with environment variable overrides under the NOVELFORGE_
// prefix) and re-unmarshaled on every fsnotify change event.
//
// Stored at: <config-path> (default ./config.yaml or ~/.novelforge/config.yaml)
type Config struct {
	ChunkSize    int `mapstructure:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" yaml:"chunk_overlap"`
	Workers      int `mapstructure:"workers" yaml:"workers"`

	CrawlDelayMs    int `mapstructure:"crawl_delay_ms" yaml:"crawl_delay_ms"`
	CrawlMaxRetries int `mapstructure:"crawl_max_retries" yaml:"crawl_max_retries"`
	CrawlTimeoutS   int `mapstructure:"crawl_timeout_s" yaml:"crawl_timeout_s"`

	GlossarySampleChapters        int  `mapstructure:"glossary_sample_chapters" yaml:"glossary_sample_chapters"`
	GlossarySampleSize            int  `mapstructure:"glossary_sample_size" yaml:"glossary_sample_size"`
	GlossaryMinEntries            int  `mapstructure:"glossary_min_entries" yaml:"glossary_min_entries"`
	GlossaryMaxEntries            int  `mapstructure:"glossary_max_entries" yaml:"glossary_max_entries"`
	GlossaryRandomSample          bool `mapstructure:"glossary_random_sample" yaml:"glossary_random_sample"`
	GlossaryWaitTimeoutS          int  `mapstructure:"glossary_wait_timeout" yaml:"glossary_wait_timeout"`
	GlossaryBatchIntervalS        int  `mapstructure:"glossary_batch_interval" yaml:"glossary_batch_interval"`
	GlossaryScorerRebuildThreshold uint64 `mapstructure:"glossary_scorer_rebuild_threshold" yaml:"glossary_scorer_rebuild_threshold"`

	EnablePolishPass  bool    `mapstructure:"enable_polish_pass" yaml:"enable_polish_pass"`
	PolishTemperature float64 `mapstructure:"polish_temperature" yaml:"polish_temperature"`
	PolishMaxRetries  int     `mapstructure:"polish_max_retries" yaml:"polish_max_retries"`

	// LLM holds the default endpoint plus per-task overrides (crawl,
	// glossary, translate). A task absent from Tasks falls back to Default.
	LLM LLMConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMConfig is the `{crawl, glossary, translate}` endpoint-parameters
// block named in §6: a default plus per-task overrides, field-wise.
type LLMConfig struct {
	Default LLMEndpoint            `mapstructure:"default" yaml:"default"`
	Tasks   map[string]LLMEndpoint `mapstructure:"tasks" yaml:"tasks"`
}

// LLMEndpoint is one task's (or the default's) LLM settings.
type LLMEndpoint struct {
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Model       string  `mapstructure:"model" yaml:"model"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	RateLimit   float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// DefaultConfig returns the configuration a fresh book starts with absent
// any config file.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:    2000,
		ChunkOverlap: 200,
		Workers:      4,

		CrawlDelayMs:    500,
		CrawlMaxRetries: 3,
		CrawlTimeoutS:   30,

		GlossarySampleChapters:         5,
		GlossarySampleSize:             4000,
		GlossaryMinEntries:            10,
		GlossaryMaxEntries:            30,
		GlossaryRandomSample:          false,
		GlossaryWaitTimeoutS:          60,
		GlossaryBatchIntervalS:        30,
		GlossaryScorerRebuildThreshold: 5,

		EnablePolishPass:  true,
		PolishTemperature: 0.2,
		PolishMaxRetries:  2,

		LLM: LLMConfig{
			Default: LLMEndpoint{
				Model:       "gpt-4o",
				MaxTokens:   4096,
				Temperature: 0.7,
				RateLimit:   60,
			},
			Tasks: map[string]LLMEndpoint{},
		},
	}
}

// endpointForTask resolves one task's endpoint, merging unset fields from
// the default per §6 ("A task without its own setting falls back to the
// default LLM config" — applied field-wise, not all-or-nothing).
func (c *Config) endpointForTask(task string) LLMEndpoint {
	def := c.LLM.Default
	override, ok := c.LLM.Tasks[task]
	if !ok {
		return def
	}
	merged := def
	if override.APIKey != "" {
		merged.APIKey = override.APIKey
	}
	if override.BaseURL != "" {
		merged.BaseURL = override.BaseURL
	}
	if override.Model != "" {
		merged.Model = override.Model
	}
	if override.MaxTokens != 0 {
		merged.MaxTokens = override.MaxTokens
	}
	if override.Temperature != 0 {
		merged.Temperature = override.Temperature
	}
	if override.RateLimit != 0 {
		merged.RateLimit = override.RateLimit
	}
	return merged
}
