package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/osint-investigator/internal/model"
	"github.com/sells-group/osint-investigator/internal/monitoring"
	"github.com/sells-group/osint-investigator/internal/resilience"
)

// DefaultSearchTimeout bounds one source call when no timeout is configured.
const DefaultSearchTimeout = 10 * time.Second

// DispatchResult is the merged output of one fan-out.
type DispatchResult struct {
	Hits    []model.RawHit
	Queried int
	Failed  int
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithPriority sets the order used to concatenate source results.
func WithPriority(p Priority) RouterOption {
	return func(r *Router) { r.priority = p }
}

// WithSearchTimeout bounds each source call.
func WithSearchTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLimiter shares a rate limiter across all source calls.
func WithLimiter(l *rate.Limiter) RouterOption {
	return func(r *Router) { r.limiter = l }
}

// WithGuard runs source calls under circuit breakers and a retry policy.
func WithGuard(g *resilience.Guard) RouterOption {
	return func(r *Router) { r.guard = g }
}

// WithRouterMetrics records per-source results.
func WithRouterMetrics(m *monitoring.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// Router fans a request out to every configured source concurrently.
type Router struct {
	searcher Searcher
	sources  []Source
	priority Priority
	timeout  time.Duration
	limiter  *rate.Limiter
	guard    *resilience.Guard
	metrics  *monitoring.Metrics
}

// NewRouter creates a Router over the given sources.
func NewRouter(searcher Searcher, sources []Source, opts ...RouterOption) *Router {
	r := &Router{
		searcher: searcher,
		sources:  sources,
		priority: DefaultPriority(),
		timeout:  DefaultSearchTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Sources returns the configured sources.
func (r *Router) Sources() []Source { return r.sources }

// Dispatch queries every source and joins the results. A failing source is
// logged and contributes no hits; Dispatch itself never fails. onDone, when
// set, is called after each source finishes with the number finished so far;
// calls are serialized and done increases by one each time.
func (r *Router) Dispatch(ctx context.Context, req model.SearchRequest, onDone func(done, total int)) DispatchResult {
	total := len(r.sources)
	perSource := make([][]model.RawHit, total)
	failed := make([]bool, total)

	var mu sync.Mutex
	done := 0

	g, gCtx := errgroup.WithContext(ctx)
	for i, src := range r.sources {
		g.Go(func() error {
			hits, err := r.query(gCtx, src, req)
			r.metrics.SourceResult(string(src.Category), len(hits), err)
			if err != nil {
				failed[i] = true
				zap.L().Warn("pipeline: source unavailable",
					zap.String("source", string(src.Category)),
					zap.Error(fmt.Errorf("%w: %w", ErrSourceUnavailable, err)),
				)
			} else {
				perSource[i] = hits
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			if onDone != nil {
				onDone(done, total)
			}
			return nil
		})
	}
	_ = g.Wait()

	order := make([]int, total)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return r.priority.Rank(r.sources[a].Category) - r.priority.Rank(r.sources[b].Category)
	})

	res := DispatchResult{Queried: total}
	for _, i := range order {
		if failed[i] {
			res.Failed++
			continue
		}
		res.Hits = append(res.Hits, perSource[i]...)
	}
	return res
}

func (r *Router) query(ctx context.Context, src Source, req model.SearchRequest) ([]model.RawHit, error) {
	query := BuildQuery(src.Template, req)
	source := string(src.Category)

	return resilience.Run(ctx, r.guard, source, func(ctx context.Context) ([]model.RawHit, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		if r.limiter != nil {
			if err := r.limiter.Wait(callCtx); err != nil {
				return nil, eris.Wrap(err, "pipeline: rate limit wait")
			}
		}

		start := time.Now()
		hits, err := r.searcher.Search(callCtx, query, src.Category, src.Limit)
		zap.L().Debug("pipeline: source queried",
			zap.String("source", source),
			zap.String("query", query),
			zap.Int("hits", len(hits)),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: search %s", source)
		}
		for i := range hits {
			hits[i].SourceCategory = src.Category
		}
		return hits, nil
	})
}
