package pipeline

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/sells-group/osint-investigator/internal/llm"
	"github.com/sells-group/osint-investigator/internal/model"
)

//go:embed enrichment_schema.json
var enrichmentSchemaJSON []byte

var enrichmentSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(enrichmentSchemaJSON))
})

const enrichmentPrompt = `As an expert OSINT analyst, analyze the search results collected for %s.

Return ONLY a JSON object with the following structure:
{
  "short_summary": "Brief 1-2 sentence summary of the person",
  "detailed_summary": "Detailed analysis of the person based on the available information",
  "riskScore": integer from 0 to 10,
  "riskJustification": "Explanation of the risk score",
  "sentimentScore": integer from -5 to 5,
  "sentimentJustification": "Explanation of the sentiment score",
  "keyFindings": ["Short factual finding", ...],
  "associatedEntities": [{"name": "...", "type": "person|organization|location", "relationship": "..."}],
  "timelineEvents": [{"date": "YYYY-MM-DD", "title": "...", "source": "...", "link": "..."}]
}
Base every statement on the results below. Do not invent facts.

Recognized entities:
%s

Search results:
---
%s
`

// Enrichment is the AI-derived part of a profile.
type Enrichment struct {
	ShortSummary       string
	DetailedSummary    string
	Risk               model.RiskAnalysis
	KeyFindings        []string
	AssociatedEntities []model.AssociatedEntity
	Timeline           []model.TimelineEvent
}

// Enricher turns filtered hits and their entity summary into a narrative
// profile with a generative model.
type Enricher struct {
	gen     llm.Generator
	timeout time.Duration
}

// NewEnricher creates an Enricher. A zero timeout leaves the call bounded
// only by ctx.
func NewEnricher(gen llm.Generator, timeout time.Duration) *Enricher {
	return &Enricher{gen: gen, timeout: timeout}
}

// Enrich calls the generator once. With no hits the provider is not called
// and a minimal "no information" enrichment is returned. Any provider
// failure, timeout or response without a JSON object is ErrEnrichmentFailed.
func (e *Enricher) Enrich(ctx context.Context, req model.SearchRequest, hits []model.RawHit, entities model.EntityAnalysis) (*Enrichment, error) {
	if len(hits) == 0 {
		zap.L().Info("pipeline: no relevant hits, skipping enrichment", zap.String("name", req.Name))
		return noInformation(req), nil
	}
	if e.gen == nil {
		return nil, eris.Wrap(ErrEnrichmentFailed, "no generator configured")
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.gen.GenerateJSON(ctx, buildPrompt(req, hits, entities))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnrichmentFailed, err)
	}
	doc, err := llm.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnrichmentFailed, err)
	}

	out, err := parseEnrichment(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnrichmentFailed, err)
	}
	if out.empty() {
		return nil, eris.Wrap(ErrEnrichmentFailed, "reply has no usable fields")
	}
	out.Timeline = mergeTimeline(out.Timeline, hitEvents(hits))
	return out, nil
}

// empty reports whether nothing narrative survived validation. Scores alone
// do not make a profile.
func (e *Enrichment) empty() bool {
	return e.ShortSummary == "" && e.DetailedSummary == "" &&
		len(e.KeyFindings) == 0 && len(e.AssociatedEntities) == 0 && len(e.Timeline) == 0
}

func noInformation(req model.SearchRequest) *Enrichment {
	who := req.Name
	if req.City != "" {
		who += " in " + req.City
	}
	return &Enrichment{
		ShortSummary:       "No public information was found for " + who + ".",
		DetailedSummary:    "The search returned no results relevant to " + who + ", so no analysis could be performed.",
		Risk:               model.RiskAnalysis{RiskJustification: "No information available.", SentimentJustification: "No information available."},
		KeyFindings:        []string{},
		AssociatedEntities: []model.AssociatedEntity{},
		Timeline:           []model.TimelineEvent{},
	}
}

func buildPrompt(req model.SearchRequest, hits []model.RawHit, entities model.EntityAnalysis) string {
	subject := fmt.Sprintf("'%s'", req.Name)
	if req.City != "" {
		subject += fmt.Sprintf(" in '%s'", req.City)
	}
	if terms := req.Terms(); len(terms) > 0 {
		subject += " (context: " + strings.Join(terms, ", ") + ")"
	}

	var ents strings.Builder
	writeMentions(&ents, "Persons", entities.RelatedPersons)
	writeMentions(&ents, "Organizations", entities.RelatedOrganizations)
	writeMentions(&ents, "Locations", entities.RelatedLocations)

	blocks := make([]string, 0, len(hits))
	for i, h := range hits {
		var b strings.Builder
		fmt.Fprintf(&b, "[%d] (%s) %s\n%s\n%s", i+1, h.SourceCategory.Label(), h.Title, h.Snippet, h.Link)
		if h.PublishedAt != "" {
			fmt.Fprintf(&b, "\nPublished: %s", h.PublishedAt)
		}
		blocks = append(blocks, b.String())
	}

	return fmt.Sprintf(enrichmentPrompt, subject, ents.String(), strings.Join(blocks, "\n---\n"))
}

func writeMentions(b *strings.Builder, label string, mentions []model.EntityMention) {
	if len(mentions) == 0 {
		fmt.Fprintf(b, "%s: none\n", label)
		return
	}
	parts := make([]string, 0, len(mentions))
	for _, m := range mentions {
		parts = append(parts, fmt.Sprintf("%s (%d)", m.Name, m.MentionCount))
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(parts, ", "))
}

type enrichmentDoc struct {
	ShortSummary           string                   `json:"short_summary"`
	DetailedSummary        string                   `json:"detailed_summary"`
	RiskScore              float64                  `json:"riskScore"`
	RiskJustification      string                   `json:"riskJustification"`
	SentimentScore         float64                  `json:"sentimentScore"`
	SentimentJustification string                   `json:"sentimentJustification"`
	KeyFindings            []string                 `json:"keyFindings"`
	AssociatedEntities     []model.AssociatedEntity `json:"associatedEntities"`
	TimelineEvents         []model.TimelineEvent    `json:"timelineEvents"`
}

// parseEnrichment validates doc against the enrichment schema. Invalid
// fields and invalid list elements are dropped so they fall back to their
// zero values; scores are rounded and clamped to their ranges.
func parseEnrichment(doc string) (*Enrichment, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(doc), &fields); err != nil {
		return nil, eris.Wrap(err, "pipeline: decode enrichment")
	}

	schema, err := enrichmentSchema()
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load enrichment schema")
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(fields))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: validate enrichment")
	}
	if !result.Valid() {
		dropInvalid(fields, result.Errors())
	}

	cleaned, err := json.Marshal(fields)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: encode enrichment")
	}
	var d enrichmentDoc
	if err := json.Unmarshal(cleaned, &d); err != nil {
		return nil, eris.Wrap(err, "pipeline: decode enrichment")
	}

	out := &Enrichment{
		ShortSummary:    strings.TrimSpace(d.ShortSummary),
		DetailedSummary: strings.TrimSpace(d.DetailedSummary),
		Risk: model.RiskAnalysis{
			RiskScore:              clampScore(d.RiskScore, model.MinRiskScore, model.MaxRiskScore),
			RiskJustification:      d.RiskJustification,
			SentimentScore:         clampScore(d.SentimentScore, model.MinSentimentScore, model.MaxSentimentScore),
			SentimentJustification: d.SentimentJustification,
		},
		KeyFindings:        nonEmpty(d.KeyFindings),
		AssociatedEntities: d.AssociatedEntities,
		Timeline:           d.TimelineEvents,
	}
	if out.AssociatedEntities == nil {
		out.AssociatedEntities = []model.AssociatedEntity{}
	}
	return out, nil
}

// dropInvalid removes the fields and list elements named by schema errors.
// Error paths look like "riskScore", "keyFindings.2" or
// "timelineEvents.0.title".
func dropInvalid(fields map[string]any, errs []gojsonschema.ResultError) {
	dropIdx := make(map[string][]int)
	for _, re := range errs {
		path := strings.Split(re.Field(), ".")
		key := path[0]
		if key == "" || key == "(root)" {
			continue
		}
		if len(path) > 1 {
			if idx, err := strconv.Atoi(path[1]); err == nil {
				if _, isList := fields[key].([]any); isList {
					dropIdx[key] = append(dropIdx[key], idx)
					continue
				}
			}
		}
		zap.L().Debug("pipeline: dropping invalid enrichment field",
			zap.String("field", key),
			zap.String("reason", re.Description()),
		)
		delete(fields, key)
	}

	for key, idxs := range dropIdx {
		list, ok := fields[key].([]any)
		if !ok {
			continue
		}
		slices.Sort(idxs)
		idxs = slices.Compact(idxs)
		for i := len(idxs) - 1; i >= 0; i-- {
			if idx := idxs[i]; idx >= 0 && idx < len(list) {
				list = slices.Delete(list, idx, idx+1)
			}
		}
		fields[key] = list
	}
}

func clampScore(v float64, lo, hi int) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Max(float64(lo), math.Min(float64(hi), v))))
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
