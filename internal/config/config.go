package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Jobs       JobsConfig       `yaml:"jobs" mapstructure:"jobs"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	NLP        NLPConfig        `yaml:"nlp" mapstructure:"nlp"`
	Match      MatchConfig      `yaml:"match" mapstructure:"match"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// JobsConfig configures the job manager.
type JobsConfig struct {
	Store               string `yaml:"store" mapstructure:"store"`
	MaxRunning          int    `yaml:"max_running" mapstructure:"max_running"`
	RetentionMins       int    `yaml:"retention_mins" mapstructure:"retention_mins"`
	CleanupIntervalSecs int    `yaml:"cleanup_interval_secs" mapstructure:"cleanup_interval_secs"`
}

// Retention returns how long terminal jobs stay pollable.
func (c JobsConfig) Retention() time.Duration {
	return time.Duration(c.RetentionMins) * time.Minute
}

// CleanupInterval returns the janitor sweep period.
func (c JobsConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSecs) * time.Second
}

// StoreConfig holds connection settings for persistent job stores.
type StoreConfig struct {
	SQLitePath    string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL   string `yaml:"database_url" mapstructure:"database_url"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
}

// SearchConfig configures the query source fan-out.
type SearchConfig struct {
	Provider       string         `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs    int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec     float64        `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst          int            `yaml:"burst" mapstructure:"burst"`
	EnabledSources []string       `yaml:"enabled_sources" mapstructure:"enabled_sources"`
	Sources        []SourceConfig `yaml:"sources" mapstructure:"sources"`
	Retry          RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Circuit        CircuitConfig  `yaml:"circuit" mapstructure:"circuit"`
}

// Timeout returns the per-call search timeout.
func (c SearchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// SourceConfig overrides a query source definition.
type SourceConfig struct {
	Category string `yaml:"category" mapstructure:"category"`
	Template string `yaml:"template" mapstructure:"template"`
	Limit    int    `yaml:"limit" mapstructure:"limit"`
}

// RetryConfig is the retry extension point for external calls. One attempt
// means no retries.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures per-source circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// GoogleConfig holds Google Custom Search credentials. APIKeys and CSEIDs are
// paired by index and tried in order.
type GoogleConfig struct {
	APIKeys  []string `yaml:"api_keys" mapstructure:"api_keys"`
	CSEIDs   []string `yaml:"cse_ids" mapstructure:"cse_ids"`
	Country  string   `yaml:"country" mapstructure:"country"`
	Language string   `yaml:"language" mapstructure:"language"`
	Endpoint string   `yaml:"endpoint" mapstructure:"endpoint"`
}

// JinaConfig holds Jina Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// LLMConfig selects the generative provider used for enrichment.
type LLMConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// Timeout returns the per-call generation timeout.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	EntityModel string `yaml:"entity_model" mapstructure:"entity_model"`
}

// GeminiConfig holds Gemini API settings. Keys are tried in order.
type GeminiConfig struct {
	Keys  []string `yaml:"keys" mapstructure:"keys"`
	Model string   `yaml:"model" mapstructure:"model"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// SearchRecency limits web grounding to "day", "week", "month" or "year".
	// Empty searches all dates.
	SearchRecency string `yaml:"search_recency" mapstructure:"search_recency"`
}

// NLPConfig configures entity extraction.
type NLPConfig struct {
	Recognizer  string `yaml:"recognizer" mapstructure:"recognizer"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	MaxEntities int    `yaml:"max_entities" mapstructure:"max_entities"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the bound on the whole extraction stage.
func (c NLPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// MatchConfig holds the fuzzy matching parameters.
type MatchConfig struct {
	TitleSimilarity  float64  `yaml:"title_similarity" mapstructure:"title_similarity"`
	NameSimilarity   float64  `yaml:"name_similarity" mapstructure:"name_similarity"`
	TokenSimilarity  float64  `yaml:"token_similarity" mapstructure:"token_similarity"`
	EntitySimilarity float64  `yaml:"entity_similarity" mapstructure:"entity_similarity"`
	MinTermLength    int      `yaml:"min_term_length" mapstructure:"min_term_length"`
	SourcePriority   []string `yaml:"source_priority" mapstructure:"source_priority"`
}

// ReportConfig configures report generation.
type ReportConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OSINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("jobs.store", "memory")
	v.SetDefault("jobs.max_running", 5)
	v.SetDefault("jobs.retention_mins", 10)
	v.SetDefault("jobs.cleanup_interval_secs", 60)
	v.SetDefault("store.sqlite_path", "osint.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("search.provider", "google")
	v.SetDefault("search.timeout_secs", 10)
	v.SetDefault("search.rate_per_sec", 5.0)
	v.SetDefault("search.burst", 7)
	v.SetDefault("search.enabled_sources", []string{})
	v.SetDefault("search.retry.max_attempts", 1)
	v.SetDefault("search.retry.initial_backoff_ms", 500)
	v.SetDefault("search.retry.max_backoff_ms", 5000)
	v.SetDefault("search.retry.multiplier", 2.0)
	v.SetDefault("search.retry.jitter_fraction", 0.25)
	v.SetDefault("search.circuit.failure_threshold", 5)
	v.SetDefault("search.circuit.reset_timeout_secs", 60)
	v.SetDefault("google.api_keys", []string{})
	v.SetDefault("google.cse_ids", []string{})
	v.SetDefault("google.country", "in")
	v.SetDefault("google.language", "en")
	v.SetDefault("google.endpoint", "")
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.timeout_secs", 60)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.entity_model", "claude-haiku-4-5-20251001")
	v.SetDefault("gemini.keys", []string{})
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("perplexity.key", "")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.search_recency", "")
	v.SetDefault("nlp.recognizer", "prose")
	v.SetDefault("nlp.concurrency", 4)
	v.SetDefault("nlp.max_entities", 15)
	v.SetDefault("nlp.timeout_secs", 30)
	v.SetDefault("match.title_similarity", 0.90)
	v.SetDefault("match.name_similarity", 0.90)
	v.SetDefault("match.token_similarity", 0.85)
	v.SetDefault("match.entity_similarity", 0.85)
	v.SetDefault("match.min_term_length", 3)
	v.SetDefault("match.source_priority", []string{
		"professional", "news_legal", "wikipedia", "business", "academic", "reddit", "general",
	})
	v.SetDefault("report.dir", "reports")
	v.SetDefault("report.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
