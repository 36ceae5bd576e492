package pipeline

import (
	"slices"
	"strings"

	"github.com/sells-group/osint-investigator/internal/config"
	"github.com/sells-group/osint-investigator/internal/model"
)

// Source is one query target: a category, the query template sent to the
// searcher and the number of results requested.
type Source struct {
	Category model.SourceCategory
	Template string
	Limit    int
}

// DefaultSources returns the built-in query sources in dispatch order.
func DefaultSources() []Source {
	return []Source{
		{Category: model.SourceProfessional, Template: "site:linkedin.com/in {name} {city} {terms}", Limit: 5},
		{Category: model.SourceNewsLegal, Template: "{name} {city} crime OR FIR OR arrested OR chargesheet OR court OR case site:ndtv.com OR site:thehindu.com OR site:indiatoday.in OR site:barandbench.com OR site:livelaw.in {terms}", Limit: 5},
		{Category: model.SourceGeneral, Template: "{name} {city} {terms}", Limit: 5},
		{Category: model.SourceReddit, Template: `site:reddit.com "{name}" "{city}"`, Limit: 2},
		{Category: model.SourceWikipedia, Template: "site:en.wikipedia.org {name} {city} {terms}", Limit: 1},
		{Category: model.SourceBusiness, Template: `"{name}" site:crunchbase.com OR site:zaubacorp.com`, Limit: 1},
		{Category: model.SourceAcademic, Template: `"{name}" site:scholar.google.com`, Limit: 1},
	}
}

// SourcesFromConfig overlays configured sources on the defaults and keeps
// only enabled categories. An empty enabled list enables everything.
func SourcesFromConfig(cfg config.SearchConfig) []Source {
	sources := DefaultSources()
	for _, sc := range cfg.Sources {
		cat := model.SourceCategory(strings.TrimSpace(sc.Category))
		if cat == "" {
			continue
		}
		idx := slices.IndexFunc(sources, func(s Source) bool { return s.Category == cat })
		if idx < 0 {
			sources = append(sources, Source{Category: cat, Limit: 1})
			idx = len(sources) - 1
		}
		if sc.Template != "" {
			sources[idx].Template = sc.Template
		}
		if sc.Limit > 0 {
			sources[idx].Limit = sc.Limit
		}
	}

	if len(cfg.EnabledSources) == 0 {
		return sources
	}
	enabled := make(map[model.SourceCategory]bool, len(cfg.EnabledSources))
	for _, c := range cfg.EnabledSources {
		enabled[model.SourceCategory(strings.TrimSpace(c))] = true
	}
	return slices.DeleteFunc(sources, func(s Source) bool { return !enabled[s.Category] })
}

// BuildQuery fills a template with the request fields. Extra terms are
// joined by spaces; placeholders whose value is empty leave no stray quotes
// or whitespace behind.
func BuildQuery(template string, req model.SearchRequest) string {
	q := strings.NewReplacer(
		"{name}", req.Name,
		"{city}", req.City,
		"{terms}", strings.Join(req.Terms(), " "),
	).Replace(template)
	q = strings.ReplaceAll(q, `""`, "")
	return strings.Join(strings.Fields(q), " ")
}

// Priority ranks source categories. Lower ranks win dedup ties.
type Priority map[model.SourceCategory]int

// DefaultPriority is professional > news_legal > wikipedia > business >
// academic > reddit > general.
func DefaultPriority() Priority {
	return NewPriority([]string{"professional", "news_legal", "wikipedia", "business", "academic", "reddit", "general"})
}

// NewPriority builds a ranking from an ordered category list.
func NewPriority(order []string) Priority {
	p := make(Priority, len(order))
	for i, c := range order {
		cat := model.SourceCategory(strings.TrimSpace(c))
		if _, ok := p[cat]; !ok {
			p[cat] = i
		}
	}
	return p
}

// Rank returns the position of c. Unknown categories rank last.
func (p Priority) Rank(c model.SourceCategory) int {
	if r, ok := p[c]; ok {
		return r
	}
	return len(p)
}

// Order returns the categories sorted by rank.
func (p Priority) Order() []model.SourceCategory {
	out := make([]model.SourceCategory, 0, len(p))
	for c := range p {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.SourceCategory) int { return p[a] - p[b] })
	return out
}
