package pipeline

import (
	"unicode/utf8"

	"github.com/sells-group/osint-investigator/internal/config"
	"github.com/sells-group/osint-investigator/internal/model"
	"github.com/sells-group/osint-investigator/internal/textmatch"
)

// cityThreshold is the partial ratio at which a hit is taken to mention the
// requested city.
const cityThreshold = 0.90

// MatchSettings holds the fuzzy thresholds used by filtering, dedup and
// entity merging.
type MatchSettings struct {
	TitleSimilarity  float64
	NameSimilarity   float64
	TokenSimilarity  float64
	EntitySimilarity float64
	MinTermLength    int
}

// DefaultMatchSettings returns the stock thresholds.
func DefaultMatchSettings() MatchSettings {
	return MatchSettings{
		TitleSimilarity:  DefaultTitleSimilarity,
		NameSimilarity:   0.90,
		TokenSimilarity:  0.85,
		EntitySimilarity: 0.85,
		MinTermLength:    3,
	}
}

// MatchSettingsFromConfig fills unset values from the defaults.
func MatchSettingsFromConfig(cfg config.MatchConfig) MatchSettings {
	s := DefaultMatchSettings()
	if cfg.TitleSimilarity > 0 {
		s.TitleSimilarity = cfg.TitleSimilarity
	}
	if cfg.NameSimilarity > 0 {
		s.NameSimilarity = cfg.NameSimilarity
	}
	if cfg.TokenSimilarity > 0 {
		s.TokenSimilarity = cfg.TokenSimilarity
	}
	if cfg.EntitySimilarity > 0 {
		s.EntitySimilarity = cfg.EntitySimilarity
	}
	if cfg.MinTermLength > 0 {
		s.MinTermLength = cfg.MinTermLength
	}
	return s
}

// RelevanceFilter keeps hits that plausibly concern the requested person.
type RelevanceFilter struct {
	settings MatchSettings
}

// NewRelevanceFilter creates a filter with the given thresholds.
func NewRelevanceFilter(s MatchSettings) *RelevanceFilter {
	return &RelevanceFilter{settings: s}
}

// Filter returns the hits, in order, whose title and snippet mention the
// name, the city or a significant extra term.
func (f *RelevanceFilter) Filter(hits []model.RawHit, req model.SearchRequest) []model.RawHit {
	terms := f.significantTerms(req)
	out := make([]model.RawHit, 0, len(hits))
	for _, h := range hits {
		if f.relevant(h.Text(), req, terms) {
			out = append(out, h)
		}
	}
	return out
}

func (f *RelevanceFilter) relevant(text string, req model.SearchRequest, terms []string) bool {
	if f.matchesName(text, req.Name) {
		return true
	}
	if req.City != "" && textmatch.Mentions(text, req.City, cityThreshold) {
		return true
	}
	for _, t := range terms {
		if textmatch.Mentions(text, t, f.settings.NameSimilarity) {
			return true
		}
	}
	return false
}

func (f *RelevanceFilter) matchesName(text, name string) bool {
	if name == "" {
		return false
	}
	return textmatch.ContainsPhrase(text, name) ||
		textmatch.PartialRatio(name, text) >= f.settings.NameSimilarity ||
		textmatch.AllTokens(text, name, f.settings.TokenSimilarity)
}

func (f *RelevanceFilter) significantTerms(req model.SearchRequest) []string {
	var out []string
	for _, t := range req.Terms() {
		if utf8.RuneCountInString(t) >= f.settings.MinTermLength {
			out = append(out, t)
		}
	}
	return out
}

// SourceAnalysis counts hits per source category, listed in priority order
// and omitting empty categories.
func SourceAnalysis(hits []model.RawHit, priority Priority) []model.SourceCount {
	counts := make(map[model.SourceCategory]int)
	var unknown []model.SourceCategory
	for _, h := range hits {
		if _, ok := priority[h.SourceCategory]; !ok && counts[h.SourceCategory] == 0 {
			unknown = append(unknown, h.SourceCategory)
		}
		counts[h.SourceCategory]++
	}

	out := make([]model.SourceCount, 0, len(counts))
	for _, c := range append(priority.Order(), unknown...) {
		if n := counts[c]; n > 0 {
			out = append(out, model.SourceCount{Name: c.Label(), Count: n})
		}
	}
	return out
}
