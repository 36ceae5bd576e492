package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Jobs.Store)
	assert.Equal(t, 5, cfg.Jobs.MaxRunning)
	assert.Equal(t, 10*time.Minute, cfg.Jobs.Retention())
	assert.Equal(t, time.Minute, cfg.Jobs.CleanupInterval())
	assert.Equal(t, "google", cfg.Search.Provider)
	assert.Equal(t, 10*time.Second, cfg.Search.Timeout())
	assert.Equal(t, 1, cfg.Search.Retry.MaxAttempts)
	assert.Equal(t, "in", cfg.Google.Country)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.Equal(t, "prose", cfg.NLP.Recognizer)
	assert.InDelta(t, 0.90, cfg.Match.TitleSimilarity, 0.001)
	assert.InDelta(t, 0.85, cfg.Match.TokenSimilarity, 0.001)
	assert.Equal(t, "professional", cfg.Match.SourcePriority[0])
	assert.Equal(t, "general", cfg.Match.SourcePriority[len(cfg.Match.SourcePriority)-1])
	assert.Equal(t, "reports", cfg.Report.Dir)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
jobs:
  store: sqlite
  max_running: 2
search:
  provider: jina
  sources:
    - category: professional
      template: "site:linkedin.com/in {name}"
      limit: 3
google:
  api_keys: [k1, k2]
  cse_ids: [c1, c2]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Jobs.Store)
	assert.Equal(t, 2, cfg.Jobs.MaxRunning)
	assert.Equal(t, "jina", cfg.Search.Provider)
	require.Len(t, cfg.Search.Sources, 1)
	assert.Equal(t, 3, cfg.Search.Sources[0].Limit)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Google.APIKeys)
	// Defaults still apply for unset values
	assert.Equal(t, 5000, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("OSINT_LOG_LEVEL", "warn")
	t.Setenv("OSINT_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OSINT_ANTHROPIC_KEY=sk-from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("OSINT_ANTHROPIC_KEY") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-dotenv", cfg.Anthropic.Key)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config that passes validation for every mode.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 5000
	cfg.Jobs.Store = "memory"
	cfg.Jobs.MaxRunning = 5
	cfg.Search.Provider = "google"
	cfg.Google.APIKeys = []string{"key"}
	cfg.Google.CSEIDs = []string{"cx"}
	cfg.LLM.Provider = "anthropic"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.NLP.Recognizer = "prose"
	cfg.Match = MatchConfig{TitleSimilarity: 0.9, NameSimilarity: 0.9, TokenSimilarity: 0.85, EntitySimilarity: 0.85}
	return cfg
}

func TestValidate_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
	assert.NoError(t, validDefaults().Validate("search"))
}

func TestValidate_MissingCredentials(t *testing.T) {
	cfg := validDefaults()
	cfg.Google.APIKeys = nil
	cfg.Anthropic.Key = ""

	err := cfg.Validate("search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "google.api_keys is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidate_Perplexity(t *testing.T) {
	cfg := validDefaults()
	cfg.LLM.Provider = "perplexity"
	assert.ErrorContains(t, cfg.Validate("search"), "perplexity.key is required")

	cfg.Perplexity.Key = "pplx-key"
	assert.NoError(t, cfg.Validate("search"))

	cfg.Perplexity.SearchRecency = "week"
	assert.NoError(t, cfg.Validate("search"))

	cfg.Perplexity.SearchRecency = "decade"
	assert.ErrorContains(t, cfg.Validate("search"), `perplexity.search_recency "decade" is not supported`)
}

func TestValidate_MismatchedGoogleKeys(t *testing.T) {
	cfg := validDefaults()
	cfg.Google.CSEIDs = []string{"a", "b"}

	err := cfg.Validate("search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "same length")
}

func TestValidate_StoreDrivers(t *testing.T) {
	cfg := validDefaults()
	cfg.Jobs.Store = "postgres"
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url")

	cfg.Store.DatabaseURL = "postgres://localhost/osint"
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Jobs.Store = "mongo"
	assert.ErrorContains(t, cfg.Validate("serve"), "not supported")
}

func TestValidate_InvalidPortOnlyForServe(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	assert.ErrorContains(t, cfg.Validate("serve"), "server.port")
	assert.NoError(t, cfg.Validate("search"))
}

func TestValidate_Thresholds(t *testing.T) {
	cfg := validDefaults()
	cfg.Match.TitleSimilarity = 1.5

	assert.ErrorContains(t, cfg.Validate("search"), "match.title_similarity")
}
