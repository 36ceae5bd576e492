package pipeline

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/osint-investigator/internal/model"
	"github.com/sells-group/osint-investigator/internal/nlp"
	"github.com/sells-group/osint-investigator/internal/textmatch"
)

// ExtractorSettings tune entity extraction.
type ExtractorSettings struct {
	Similarity  float64
	Concurrency int
	MaxEntities int
	Timeout     time.Duration
}

// EntityExtractor runs a recognizer over each hit and aggregates the
// mentions into ranked, fuzzy-merged lists.
type EntityExtractor struct {
	recognizer nlp.Recognizer
	settings   ExtractorSettings
}

// NewEntityExtractor creates an extractor. A nil recognizer always yields a
// degraded, empty analysis.
func NewEntityExtractor(rec nlp.Recognizer, s ExtractorSettings) *EntityExtractor {
	if s.Similarity <= 0 {
		s.Similarity = 0.85
	}
	if s.Concurrency <= 0 {
		s.Concurrency = 4
	}
	if s.MaxEntities <= 0 {
		s.MaxEntities = 15
	}
	return &EntityExtractor{recognizer: rec, settings: s}
}

// Extract returns the persons, organizations and locations mentioned across
// hits, excluding the target person. Failures never propagate: a hit whose
// recognition fails is skipped, and when nothing could be recognized the
// result is empty and ErrExtractionDegraded is logged.
func (x *EntityExtractor) Extract(ctx context.Context, hits []model.RawHit, target string) model.EntityAnalysis {
	empty := model.EntityAnalysis{
		RelatedPersons:       []model.EntityMention{},
		RelatedOrganizations: []model.EntityMention{},
		RelatedLocations:     []model.EntityMention{},
	}
	if len(hits) == 0 {
		return empty
	}
	if x.recognizer == nil {
		logDegraded(nlp.ErrUnavailable, len(hits), len(hits))
		return empty
	}

	if x.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.settings.Timeout)
		defer cancel()
	}

	perHit := make([][]nlp.Entity, len(hits))
	errs := make([]error, len(hits))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(x.settings.Concurrency)
	for i, h := range hits {
		g.Go(func() error {
			if gCtx.Err() != nil {
				errs[i] = gCtx.Err()
				return nil
			}
			ents, err := x.recognizer.Recognize(gCtx, h.Text())
			if err != nil {
				errs[i] = err
				zap.L().Debug("pipeline: entity recognition failed for hit",
					zap.String("link", h.Link),
					zap.Error(err),
				)
				return nil
			}
			perHit[i] = ents
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		logDegraded(err, len(hits), countErrors(errs))
		return empty
	}
	if failed := countErrors(errs); failed == len(hits) {
		logDegraded(errors.Join(errs...), len(hits), failed)
		return empty
	}

	m := newMentionSet(x.settings.Similarity)
	for _, ents := range perHit {
		for _, e := range ents {
			if e.Type == model.EntityPerson && isTarget(e.Text, target, x.settings.Similarity) {
				continue
			}
			m.add(e)
		}
	}

	return model.EntityAnalysis{
		RelatedPersons:       m.ranked(model.EntityPerson, x.settings.MaxEntities),
		RelatedOrganizations: m.ranked(model.EntityOrganization, x.settings.MaxEntities),
		RelatedLocations:     m.ranked(model.EntityLocation, x.settings.MaxEntities),
	}
}

func logDegraded(cause error, hits, failed int) {
	zap.L().Warn("pipeline: entity extraction degraded",
		zap.Int("hits", hits),
		zap.Int("failed", failed),
		zap.Error(errors.Join(ErrExtractionDegraded, cause)),
	)
}

func countErrors(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}

func isTarget(name, target string, threshold float64) bool {
	if strings.TrimSpace(target) == "" {
		return false
	}
	return textmatch.Similarity(name, target) >= threshold ||
		textmatch.ContainsPhrase(target, name) ||
		textmatch.ContainsPhrase(name, target)
}

// mentionSet accumulates counts per type. The first spelling seen becomes
// the canonical name for a group of near-duplicates.
type mentionSet struct {
	threshold float64
	byType    map[model.EntityType][]*model.EntityMention
}

func newMentionSet(threshold float64) *mentionSet {
	return &mentionSet{threshold: threshold, byType: make(map[model.EntityType][]*model.EntityMention)}
}

func (s *mentionSet) add(e nlp.Entity) {
	name := strings.TrimSpace(e.Text)
	if textmatch.Normalize(name) == "" {
		return
	}
	list := s.byType[e.Type]

	var best *model.EntityMention
	bestSim := 0.0
	for _, m := range list {
		sim := textmatch.Similarity(m.Name, name)
		if sim >= s.threshold && sim > bestSim {
			best, bestSim = m, sim
		}
	}
	if best != nil {
		best.MentionCount++
		return
	}
	s.byType[e.Type] = append(list, &model.EntityMention{Name: name, Type: e.Type, MentionCount: 1})
}

func (s *mentionSet) ranked(t model.EntityType, limit int) []model.EntityMention {
	list := s.byType[t]
	out := make([]model.EntityMention, 0, len(list))
	for _, m := range list {
		out = append(out, *m)
	}
	slices.SortStableFunc(out, func(a, b model.EntityMention) int {
		if a.MentionCount != b.MentionCount {
			return b.MentionCount - a.MentionCount
		}
		return strings.Compare(a.Name, b.Name)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
