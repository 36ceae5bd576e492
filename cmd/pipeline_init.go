package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/osint-investigator/internal/config"
	"github.com/sells-group/osint-investigator/internal/job"
	"github.com/sells-group/osint-investigator/internal/llm"
	"github.com/sells-group/osint-investigator/internal/monitoring"
	"github.com/sells-group/osint-investigator/internal/nlp"
	"github.com/sells-group/osint-investigator/internal/pipeline"
	"github.com/sells-group/osint-investigator/internal/resilience"
	"github.com/sells-group/osint-investigator/internal/server"
	"github.com/sells-group/osint-investigator/internal/store"
	anthropicpkg "github.com/sells-group/osint-investigator/pkg/anthropic"
	"github.com/sells-group/osint-investigator/pkg/google"
	"github.com/sells-group/osint-investigator/pkg/jina"
	"github.com/sells-group/osint-investigator/pkg/perplexity"
)

// pipelineEnv holds the initialized clients, store, pipeline and job manager
// needed by the serve and search commands.
type pipelineEnv struct {
	Store      store.Store
	Pipeline   *pipeline.Pipeline
	Manager    *job.Manager
	Metrics    *monitoring.Metrics
	Breakers   *resilience.Breakers
	Recognizer nlp.Recognizer
	closers    []func() error
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	for i := len(pe.closers) - 1; i >= 0; i-- {
		if err := pe.closers[i](); err != nil {
			zap.L().Warn("close resource", zap.Error(err))
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// Readiness summarizes the configured providers for /health.
func (pe *pipelineEnv) Readiness(c *config.Config) server.Readiness {
	return server.Readiness{
		StoreDriver:    c.Jobs.Store,
		SearchProvider: c.Search.Provider,
		LLMProvider:    c.LLM.Provider,
		Recognizer:     c.NLP.Recognizer,
		NLPLoaded:      pe.Recognizer != nil,
		GoogleKeys:     len(google.Pair(c.Google.APIKeys, c.Google.CSEIDs)),
		GeminiKeys:     len(c.Gemini.Keys),
	}
}

// initPipeline validates the config for mode, then sets up the store, the
// provider clients, the pipeline and the job manager. Jobs run on ctx.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, c *config.Config, mode string, reg prometheus.Registerer) (*pipelineEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	env := &pipelineEnv{Metrics: monitoring.New(reg)}
	fail := func(err error) (*pipelineEnv, error) {
		env.Close()
		return nil, err
	}

	searcher, err := initSearcher(ctx, c)
	if err != nil {
		return fail(err)
	}

	gen, closeGen, err := initGenerator(ctx, c)
	if err != nil {
		return fail(err)
	}
	if closeGen != nil {
		env.closers = append(env.closers, closeGen)
	}
	env.Recognizer = initRecognizer(c, gen)

	breakerSettings := resilience.SettingsFromConfig(c.Search.Circuit)
	breakerSettings.OnChange = func(name string, _, to resilience.State) {
		env.Metrics.Breaker(name, int(to))
	}
	env.Breakers = resilience.NewBreakers(breakerSettings)

	priority := pipeline.NewPriority(c.Match.SourcePriority)
	routerOpts := []pipeline.RouterOption{
		pipeline.WithPriority(priority),
		pipeline.WithSearchTimeout(c.Search.Timeout()),
		pipeline.WithGuard(&resilience.Guard{
			Breakers: env.Breakers,
			Policy:   resilience.PolicyFromConfig(c.Search.Retry),
		}),
		pipeline.WithRouterMetrics(env.Metrics),
	}
	if c.Search.RatePerSec > 0 {
		routerOpts = append(routerOpts, pipeline.WithLimiter(
			rate.NewLimiter(rate.Limit(c.Search.RatePerSec), max(1, c.Search.Burst)),
		))
	}
	router := pipeline.NewRouter(searcher, pipeline.SourcesFromConfig(c.Search), routerOpts...)

	extractor := pipeline.NewEntityExtractor(env.Recognizer, pipeline.ExtractorSettings{
		Similarity:  c.Match.EntitySimilarity,
		Concurrency: c.NLP.Concurrency,
		MaxEntities: c.NLP.MaxEntities,
		Timeout:     c.NLP.Timeout(),
	})
	enricher := pipeline.NewEnricher(gen, c.LLM.Timeout())
	env.Pipeline = pipeline.New(router, extractor, enricher,
		pipeline.MatchSettingsFromConfig(c.Match), priority, env.Metrics)

	st, err := store.Open(ctx, c)
	if err != nil {
		return fail(eris.Wrap(err, "open job store"))
	}
	env.Store = st

	env.Manager = job.NewManager(ctx, st, env.Pipeline, job.Options{
		MaxRunning:      c.Jobs.MaxRunning,
		Retention:       c.Jobs.Retention(),
		CleanupInterval: c.Jobs.CleanupInterval(),
		Metrics:         env.Metrics,
	})

	zap.L().Info("pipeline initialized",
		zap.String("search_provider", c.Search.Provider),
		zap.String("llm_provider", c.LLM.Provider),
		zap.String("recognizer", c.NLP.Recognizer),
		zap.String("store", c.Jobs.Store),
		zap.Int("sources", len(router.Sources())),
	)
	return env, nil
}

// initSearcher builds the web search backend named by search.provider.
func initSearcher(ctx context.Context, c *config.Config) (pipeline.Searcher, error) {
	switch c.Search.Provider {
	case "google":
		opts := []google.Option{google.WithLocale(c.Google.Country, c.Google.Language)}
		if c.Google.Endpoint != "" {
			opts = append(opts, google.WithEndpoint(c.Google.Endpoint))
		}
		client, err := google.NewClient(ctx, google.Pair(c.Google.APIKeys, c.Google.CSEIDs), opts...)
		if err != nil {
			return nil, eris.Wrap(err, "init google search")
		}
		return &pipeline.GoogleSearcher{Client: client}, nil
	case "jina":
		var opts []jina.Option
		if c.Jina.SearchBaseURL != "" {
			opts = append(opts, jina.WithBaseURL(c.Jina.SearchBaseURL))
		}
		return &pipeline.JinaSearcher{Client: jina.NewClient(c.Jina.Key, opts...)}, nil
	default:
		return nil, eris.Errorf("search provider %q is not supported", c.Search.Provider)
	}
}

// initGenerator builds the enrichment model client. The returned closer may
// be nil.
func initGenerator(ctx context.Context, c *config.Config) (llm.Generator, func() error, error) {
	switch c.LLM.Provider {
	case "anthropic":
		client := anthropicpkg.NewClient(c.Anthropic.Key)
		return llm.NewClaude(client, c.Anthropic.Model, c.LLM.MaxTokens), nil, nil
	case "gemini":
		g, err := llm.NewGemini(ctx, c.Gemini.Keys, c.Gemini.Model)
		if err != nil {
			return nil, nil, eris.Wrap(err, "init gemini")
		}
		return g, g.Close, nil
	case "perplexity":
		client := perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		)
		return llm.NewSonar(client, c.Perplexity.Model, int(c.LLM.MaxTokens),
			llm.WithSearchRecency(c.Perplexity.SearchRecency),
		), nil, nil
	default:
		return nil, nil, eris.Errorf("llm provider %q is not supported", c.LLM.Provider)
	}
}

// initRecognizer picks the entity recognizer. The generative recognizer
// uses the smaller entity model when Claude is the provider.
func initRecognizer(c *config.Config, gen llm.Generator) nlp.Recognizer {
	switch c.NLP.Recognizer {
	case "llm":
		if c.LLM.Provider == "anthropic" && c.Anthropic.EntityModel != "" {
			client := anthropicpkg.NewClient(c.Anthropic.Key)
			return nlp.NewGenerative(llm.NewClaude(client, c.Anthropic.EntityModel, 1024))
		}
		return nlp.NewGenerative(gen)
	default:
		return nlp.NewProse()
	}
}
