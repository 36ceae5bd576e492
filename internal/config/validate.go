package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the settings needed by the given command are present.
// Mode is "serve" or "search".
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		add("server.port must be between 1 and 65535")
	}

	switch c.Jobs.Store {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			add("store.sqlite_path is required for the sqlite job store")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required for the postgres job store")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			add("store.redis_addr is required for the redis job store")
		}
	default:
		add("jobs.store %q is not supported", c.Jobs.Store)
	}
	if c.Jobs.MaxRunning <= 0 {
		add("jobs.max_running must be positive")
	}

	switch c.Search.Provider {
	case "google":
		if len(c.Google.APIKeys) == 0 {
			add("google.api_keys is required")
		}
		if len(c.Google.APIKeys) != len(c.Google.CSEIDs) {
			add("google.api_keys and google.cse_ids must have the same length")
		}
	case "jina":
		if c.Jina.Key == "" {
			add("jina.key is required")
		}
	default:
		add("search.provider %q is not supported", c.Search.Provider)
	}

	switch c.LLM.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			add("anthropic.key is required")
		}
	case "gemini":
		if len(c.Gemini.Keys) == 0 {
			add("gemini.keys is required")
		}
	case "perplexity":
		if c.Perplexity.Key == "" {
			add("perplexity.key is required")
		}
		switch c.Perplexity.SearchRecency {
		case "", "day", "week", "month", "year":
		default:
			add("perplexity.search_recency %q is not supported", c.Perplexity.SearchRecency)
		}
	default:
		add("llm.provider %q is not supported", c.LLM.Provider)
	}

	switch c.NLP.Recognizer {
	case "prose", "llm":
	default:
		add("nlp.recognizer %q is not supported", c.NLP.Recognizer)
	}

	for name, v := range map[string]float64{
		"match.title_similarity":  c.Match.TitleSimilarity,
		"match.name_similarity":   c.Match.NameSimilarity,
		"match.token_similarity":  c.Match.TokenSimilarity,
		"match.entity_similarity": c.Match.EntitySimilarity,
	} {
		if v <= 0 || v > 1 {
			add("%s must be in (0, 1]", name)
		}
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}
