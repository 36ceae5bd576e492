// Package pipeline runs one person investigation: query fan-out, dedup and
// relevance filtering, entity extraction and AI enrichment.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/osint-investigator/internal/model"
	"github.com/sells-group/osint-investigator/internal/monitoring"
)

// Stage percentages reported through ProgressFunc.
const (
	PctDispatchStart = 0
	PctDispatchEnd   = 30
	PctFilterEnd     = 50
	PctExtractionEnd = 65
	PctEnrichmentEnd = 95
	PctFinalize      = 100
)

// Stage names used in logs and metrics.
const (
	stageDispatch   = "dispatch"
	stageFilter     = "filter"
	stageExtraction = "extraction"
	stageEnrichment = "enrichment"
	stageFinalize   = "finalize"
)

// ProgressFunc receives a human-readable stage and a completion percentage.
type ProgressFunc func(stage string, pct int)

// Pipeline wires the stages together. It holds no per-job state and is safe
// for concurrent use.
type Pipeline struct {
	router    *Router
	dedup     *Deduplicator
	filter    *RelevanceFilter
	extractor *EntityExtractor
	enricher  *Enricher
	priority  Priority
	metrics   *monitoring.Metrics
	now       func() time.Time
}

// New creates a Pipeline.
func New(
	router *Router,
	extractor *EntityExtractor,
	enricher *Enricher,
	match MatchSettings,
	priority Priority,
	metrics *monitoring.Metrics,
) *Pipeline {
	if priority == nil {
		priority = DefaultPriority()
	}
	return &Pipeline{
		router:    router,
		dedup:     NewDeduplicator(match.TitleSimilarity, priority),
		filter:    NewRelevanceFilter(match),
		extractor: extractor,
		enricher:  enricher,
		priority:  priority,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Run investigates req and assembles the profile. Only enrichment failures
// are returned as errors; failing sources and degraded extraction are
// logged and the run continues.
func (p *Pipeline) Run(ctx context.Context, req model.SearchRequest, progress ProgressFunc) (*model.PersonProfile, error) {
	if progress == nil {
		progress = func(string, int) {}
	}
	log := zap.L().With(zap.String("name", req.Name), zap.String("city", req.City))
	log.Info("pipeline: starting investigation")

	trackStage := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		d := time.Since(start)
		p.metrics.Stage(name, d)
		if err != nil {
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", d.Milliseconds()),
				zap.Error(err),
			)
			return err
		}
		log.Info("pipeline: stage complete",
			zap.String("stage", name),
			zap.Int64("duration_ms", d.Milliseconds()),
		)
		return nil
	}

	// Query dispatch: 0-30%, advancing as each source finishes.
	var dispatch DispatchResult
	_ = trackStage(stageDispatch, func() error {
		total := len(p.router.Sources())
		progress(fmt.Sprintf("Querying search sources (0/%d)...", total), PctDispatchStart)
		dispatch = p.router.Dispatch(ctx, req, func(done, total int) {
			pct := PctDispatchStart + done*(PctDispatchEnd-PctDispatchStart)/max(total, 1)
			progress(fmt.Sprintf("Querying search sources (%d/%d)...", done, total), pct)
		})
		return nil
	})

	// Dedup and relevance filtering: 30-50%.
	var deduped, relevant []model.RawHit
	_ = trackStage(stageFilter, func() error {
		progress("Filtering and deduplicating results...", PctDispatchEnd)
		deduped = p.dedup.Dedupe(dispatch.Hits)
		relevant = p.filter.Filter(deduped, req)
		log.Info("pipeline: hits filtered",
			zap.Int("raw", len(dispatch.Hits)),
			zap.Int("deduped", len(deduped)),
			zap.Int("relevant", len(relevant)),
		)
		return nil
	})

	// Entity extraction: 50-65%.
	var entities model.EntityAnalysis
	_ = trackStage(stageExtraction, func() error {
		progress("Extracting entities...", PctFilterEnd)
		entities = p.extractor.Extract(ctx, relevant, req.Name)
		return nil
	})

	// Enrichment: 65-95%.
	var enrichment *Enrichment
	if err := trackStage(stageEnrichment, func() error {
		progress("Generating AI analysis...", PctExtractionEnd)
		var err error
		enrichment, err = p.enricher.Enrich(ctx, req, relevant, entities)
		return err
	}); err != nil {
		return nil, err
	}

	progress("Finalizing profile...", PctEnrichmentEnd)
	var profile *model.PersonProfile
	_ = trackStage(stageFinalize, func() error {
		profile = p.assemble(req, dispatch, deduped, relevant, entities, enrichment)
		return nil
	})

	log.Info("pipeline: investigation complete",
		zap.Int("raw_data", len(profile.RawData)),
		zap.Int("sources_failed", dispatch.Failed),
		zap.Int("risk_score", profile.RiskAnalysis.RiskScore),
	)
	return profile, nil
}

func (p *Pipeline) assemble(
	req model.SearchRequest,
	dispatch DispatchResult,
	deduped, relevant []model.RawHit,
	entities model.EntityAnalysis,
	e *Enrichment,
) *model.PersonProfile {
	raw := relevant
	if raw == nil {
		raw = []model.RawHit{}
	}
	timeline := e.Timeline
	if timeline == nil {
		timeline = []model.TimelineEvent{}
	}
	findings := e.KeyFindings
	if findings == nil {
		findings = []string{}
	}
	associated := e.AssociatedEntities
	if associated == nil {
		associated = []model.AssociatedEntity{}
	}

	return &model.PersonProfile{
		Name:               req.Name,
		Location:           req.City,
		ShortSummary:       e.ShortSummary,
		DetailedSummary:    e.DetailedSummary,
		RiskAnalysis:       e.Risk,
		KeyFindings:        findings,
		AssociatedEntities: associated,
		EntityAnalysis:     entities,
		TimelineEvents:     timeline,
		SourceAnalysis:     SourceAnalysis(relevant, p.priority),
		SearchMeta: model.SearchMeta{
			TotalResultsScanned:  len(deduped),
			TotalResultsFiltered: len(relevant),
			SourcesQueried:       dispatch.Queried,
			SourcesFailed:        dispatch.Failed,
			SearchTimestamp:      p.now().UTC(),
		},
		RawData: raw,
	}
}
