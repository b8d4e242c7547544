package model

import "time"

// Config holds all runtime settings for dossier
type Config struct {
	LLM      LLMConfig      `yaml:"llm" mapstructure:"llm"`
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	Scrape   ScrapeConfig   `yaml:"scrape" mapstructure:"scrape"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Graph    GraphConfig    `yaml:"graph" mapstructure:"graph"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Proxy    ProxyConfig    `yaml:"proxy" mapstructure:"proxy"`
}

// ProviderConfig describes one generation backend
type ProviderConfig struct {
	Backend string        `yaml:"backend" mapstructure:"backend"` // openai, anthropic, ollama
	Model   string        `yaml:"model" mapstructure:"model"`
	APIKey  string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LLMConfig holds the two named providers tasks are routed between
type LLMConfig struct {
	OpenAI         ProviderConfig `yaml:"openai" mapstructure:"openai"`
	Gemini         ProviderConfig `yaml:"gemini" mapstructure:"gemini"`
	RequestTimeout time.Duration  `yaml:"request_timeout" mapstructure:"request_timeout"`
}

// SearchConfig configures the web search provider
type SearchConfig struct {
	APIKey            string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	MaxResults        int     `yaml:"max_results" mapstructure:"max_results"`
	Depth             string  `yaml:"depth" mapstructure:"depth"`
	Workers           int     `yaml:"workers" mapstructure:"workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// ScrapeConfig configures optional page enrichment of search hits
type ScrapeConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	UserAgent       string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxBytes        int64         `yaml:"max_bytes" mapstructure:"max_bytes"`
	MinContentChars int           `yaml:"min_content_chars" mapstructure:"min_content_chars"`
	MaxChars        int           `yaml:"max_chars" mapstructure:"max_chars"`
	RespectRobots   bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// CacheConfig configures search result caching
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// PipelineConfig bounds the research loop
type PipelineConfig struct {
	MaxIterations       int     `yaml:"max_iterations" mapstructure:"max_iterations"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	MaxSteps            int     `yaml:"max_steps" mapstructure:"max_steps"`
}

// GraphConfig configures the identity graph store
type GraphConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	URI      string `yaml:"uri" mapstructure:"uri"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	Database string `yaml:"database,omitempty" mapstructure:"database"`
}

// StoreConfig selects the job store
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // memory, sqlite
	Path   string `yaml:"path" mapstructure:"path"`
}

// OutputConfig controls where reports are written
type OutputConfig struct {
	ReportsDir string `yaml:"reports_dir" mapstructure:"reports_dir"`
}

// LogConfig controls structured logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text, json
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// ProxyConfig applies to every outbound HTTP client.
// Empty values fall back to the HTTP_PROXY family of environment variables.
type ProxyConfig struct {
	HTTP    string `yaml:"http,omitempty" mapstructure:"http"`
	HTTPS   string `yaml:"https,omitempty" mapstructure:"https"`
	NoProxy string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			OpenAI: ProviderConfig{
				Backend: "openai",
				Model:   "openai/gpt-4o-mini",
				BaseURL: "https://openrouter.ai/api/v1",
				Timeout: 120 * time.Second,
			},
			Gemini: ProviderConfig{
				Backend: "openai",
				Model:   "google/gemini-2.5-flash",
				BaseURL: "https://openrouter.ai/api/v1",
				Timeout: 120 * time.Second,
			},
			RequestTimeout: 180 * time.Second,
		},
		Search: SearchConfig{
			BaseURL:           "https://api.tavily.com",
			MaxResults:        5,
			Depth:             "advanced",
			Workers:           5,
			RequestsPerSecond: 5,
			Burst:             5,
		},
		Scrape: ScrapeConfig{
			Enabled:         false,
			UserAgent:       "dossier/0.1 (+https://github.com/ppiankov/dossier)",
			Timeout:         15 * time.Second,
			MaxBytes:        2 * 1024 * 1024,
			MinContentChars: 200,
			MaxChars:        10000,
			RespectRobots:   true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       "",
			MemoryTTL: 1 * time.Hour,
			DiskTTL:   24 * time.Hour,
		},
		Pipeline: PipelineConfig{
			MaxIterations:       5,
			ConfidenceThreshold: 0.7,
			MaxSteps:            200,
		},
		Graph: GraphConfig{
			Enabled:  false,
			URI:      "neo4j://localhost:7687",
			Username: "neo4j",
		},
		Store: StoreConfig{
			Driver: "memory",
			Path:   "dossier.db",
		},
		Output: OutputConfig{
			ReportsDir: "reports",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}
