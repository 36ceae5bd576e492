package pipeline

import (
	"net/url"
	"strings"

	"github.com/sells-group/osint-investigator/internal/model"
	"github.com/sells-group/osint-investigator/internal/textmatch"
)

// DefaultTitleSimilarity is the title ratio at which two hits are duplicates.
const DefaultTitleSimilarity = 0.90

// Deduplicator collapses hits that share a link or a near-identical title.
type Deduplicator struct {
	threshold float64
	priority  Priority
}

// NewDeduplicator creates a Deduplicator. A non-positive threshold uses
// DefaultTitleSimilarity; a nil priority uses DefaultPriority.
func NewDeduplicator(threshold float64, priority Priority) *Deduplicator {
	if threshold <= 0 {
		threshold = DefaultTitleSimilarity
	}
	if priority == nil {
		priority = DefaultPriority()
	}
	return &Deduplicator{threshold: threshold, priority: priority}
}

type cluster struct {
	survivor model.RawHit
	title    string
	method   model.MatchMethod
}

// Dedupe returns one survivor per duplicate group in discovery order. The
// survivor is the member from the highest priority source, the earliest on
// ties, and is tagged with how it absorbed its duplicates. A title scoring
// equally against two groups joins the one whose survivor has the higher
// priority source. Running Dedupe on
// its own output returns the same hits.
func (d *Deduplicator) Dedupe(hits []model.RawHit) []model.RawHit {
	out := hits
	for {
		next := d.pass(out)
		if len(next) == len(out) {
			return next
		}
		out = next
	}
}

func (d *Deduplicator) pass(hits []model.RawHit) []model.RawHit {
	clusters := make([]*cluster, 0, len(hits))
	byLink := make(map[string]*cluster, len(hits))

	for _, h := range hits {
		key := normalizeLink(h.Link)

		var target *cluster
		method := model.MatchNone
		if key != "" {
			if c, ok := byLink[key]; ok {
				target, method = c, model.MatchExactLink
			}
		}
		title := textmatch.Normalize(h.Title)
		if target == nil && title != "" {
			best := 0.0
			for _, c := range clusters {
				if c.title == "" {
					continue
				}
				sim := textmatch.Similarity(c.title, title)
				if sim < d.threshold {
					continue
				}
				// Equal scores go to the higher priority cluster, then the earlier one.
				if target == nil || sim > best ||
					(sim == best && d.priority.Rank(c.survivor.SourceCategory) < d.priority.Rank(target.survivor.SourceCategory)) {
					target, best = c, sim
				}
			}
			if target != nil {
				method = model.MatchFuzzyTitle
			}
		}

		if target == nil {
			c := &cluster{survivor: h, title: title, method: h.MatchMethod}
			clusters = append(clusters, c)
			if key != "" {
				byLink[key] = c
			}
			continue
		}

		target.method = strongerMatch(strongerMatch(target.method, h.MatchMethod), method)
		if d.priority.Rank(h.SourceCategory) < d.priority.Rank(target.survivor.SourceCategory) {
			target.survivor = h
			target.title = title
		}
		if key != "" {
			if _, ok := byLink[key]; !ok {
				byLink[key] = target
			}
		}
	}

	out := make([]model.RawHit, 0, len(clusters))
	for _, c := range clusters {
		h := c.survivor
		h.MatchMethod = c.method
		out = append(out, h)
	}
	return out
}

func strongerMatch(a, b model.MatchMethod) model.MatchMethod {
	if a == model.MatchExactLink || b == model.MatchExactLink {
		return model.MatchExactLink
	}
	if a == model.MatchFuzzyTitle || b == model.MatchFuzzyTitle {
		return model.MatchFuzzyTitle
	}
	return model.MatchNone
}

// normalizeLink reduces a URL to host, path and query so that scheme, case
// of the host, a leading www., fragments and trailing slashes do not matter.
func normalizeLink(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(strings.ToLower(link), "/")
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	key := host + strings.TrimSuffix(u.EscapedPath(), "/")
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}
