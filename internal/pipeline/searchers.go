package pipeline

import (
	"context"
	"net/url"
	"strings"

	"github.com/sells-group/osint-investigator/internal/model"
	"github.com/sells-group/osint-investigator/pkg/google"
	"github.com/sells-group/osint-investigator/pkg/jina"
)

// Searcher runs one query for one source category and returns hits in
// provider rank order.
type Searcher interface {
	Search(ctx context.Context, query string, category model.SourceCategory, limit int) ([]model.RawHit, error)
}

// GoogleSearcher adapts the Custom Search client.
type GoogleSearcher struct {
	Client google.Client
}

// Search implements Searcher.
func (s *GoogleSearcher) Search(ctx context.Context, query string, category model.SourceCategory, limit int) ([]model.RawHit, error) {
	results, err := s.Client.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]model.RawHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, model.RawHit{
			Title:          r.Title,
			Snippet:        r.Snippet,
			Link:           r.Link,
			DisplayLink:    r.DisplayLink,
			SourceCategory: category,
			PublishedAt:    r.PublishedAt,
		})
	}
	return hits, nil
}

// JinaSearcher adapts the Jina Search client.
type JinaSearcher struct {
	Client jina.Client
}

// Search implements Searcher.
func (s *JinaSearcher) Search(ctx context.Context, query string, category model.SourceCategory, limit int) ([]model.RawHit, error) {
	results, err := s.Client.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]model.RawHit, 0, len(results))
	for _, r := range results {
		snippet := r.Description
		if snippet == "" {
			snippet = r.Content
		}
		hits = append(hits, model.RawHit{
			Title:          r.Title,
			Snippet:        snippet,
			Link:           r.URL,
			DisplayLink:    hostOf(r.URL),
			SourceCategory: category,
			PublishedAt:    r.Date,
		})
	}
	return hits, nil
}

func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
