// Package google wraps the Google Custom Search JSON API with a pool of
// API key / search engine id pairs.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// MaxResultsPerQuery is the largest page the API returns.
const MaxResultsPerQuery = 10

// Client runs web searches.
type Client interface {
	Search(ctx context.Context, query string, num int) ([]Result, error)
}

// Result is a single search result.
type Result struct {
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	Link        string `json:"link"`
	DisplayLink string `json:"displayLink"`
	// PublishedAt is the raw published date from the page metadata, if any.
	PublishedAt string `json:"publishedAt,omitempty"`
}

// Credential is one API key and the search engine id it is paired with.
type Credential struct {
	APIKey string
	CX     string
}

// Pair zips keys and engine ids by index, trimming whitespace and dropping
// incomplete pairs.
func Pair(keys, cxs []string) []Credential {
	n := min(len(keys), len(cxs))
	out := make([]Credential, 0, n)
	for i := 0; i < n; i++ {
		k, cx := strings.TrimSpace(keys[i]), strings.TrimSpace(cxs[i])
		if k == "" || cx == "" {
			continue
		}
		out = append(out, Credential{APIKey: k, CX: cx})
	}
	return out
}

// Option configures the client.
type Option func(*cseClient)

// WithEndpoint overrides the API base URL.
func WithEndpoint(url string) Option {
	return func(c *cseClient) {
		c.endpoint = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *cseClient) {
		c.http = hc
	}
}

// WithLocale sets the country (gl) and interface language (hl) parameters.
func WithLocale(country, language string) Option {
	return func(c *cseClient) {
		c.country = country
		c.language = language
	}
}

type cseClient struct {
	svc      *customsearch.Service
	creds    []Credential
	endpoint string
	http     *http.Client
	country  string
	language string

	mu     sync.Mutex
	cursor int
}

// NewClient creates a Custom Search client over the given credential pool.
func NewClient(ctx context.Context, creds []Credential, opts ...Option) (Client, error) {
	if len(creds) == 0 {
		return nil, eris.New("google: no credentials configured")
	}
	c := &cseClient{
		creds: creds,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}

	// The key travels as a per-call parameter so one service can serve the
	// whole pool.
	svcOpts := []option.ClientOption{option.WithHTTPClient(c.http)}
	if c.endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(c.endpoint))
	}
	svc, err := customsearch.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "google: create customsearch service")
	}
	c.svc = svc
	return c, nil
}

// Search tries each credential in turn, starting from the last one that
// worked, and returns the first successful page. The credential that
// succeeds becomes the starting point for later calls.
func (c *cseClient) Search(ctx context.Context, query string, num int) ([]Result, error) {
	num = max(1, min(num, MaxResultsPerQuery))

	c.mu.Lock()
	start := c.cursor
	c.mu.Unlock()

	var lastErr error
	for i := range c.creds {
		idx := (start + i) % len(c.creds)
		cred := c.creds[idx]

		results, err := c.searchWith(ctx, cred, query, num)
		if err == nil {
			if idx != start {
				c.mu.Lock()
				c.cursor = idx
				c.mu.Unlock()
			}
			return results, nil
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "google: search")
		}

		lastErr = err
		zap.L().Warn("google: credential failed",
			zap.String("key_suffix", keySuffix(cred.APIKey)),
			zap.Bool("quota", isQuotaError(err)),
			zap.Error(err),
		)
	}
	return nil, eris.Wrapf(lastErr, "google: all %d credentials failed", len(c.creds))
}

func (c *cseClient) searchWith(ctx context.Context, cred Credential, query string, num int) ([]Result, error) {
	call := c.svc.Cse.List().Cx(cred.CX).Q(query).Num(int64(num)).Context(ctx)
	if c.country != "" {
		call = call.Gl(c.country)
	}
	if c.language != "" {
		call = call.Hl(c.language)
	}

	resp, err := call.Do(googleapi.QueryParameter("key", cred.APIKey))
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.Link == "" {
			continue
		}
		results = append(results, Result{
			Title:       item.Title,
			Snippet:     item.Snippet,
			Link:        item.Link,
			DisplayLink: item.DisplayLink,
			PublishedAt: publishedAt(item.Pagemap),
		})
	}
	return results, nil
}

// pagemap is the subset of structured data used for dating results.
type pagemap struct {
	Metatags    []map[string]any `json:"metatags"`
	NewsArticle []map[string]any `json:"newsarticle"`
}

// publishedAt pulls the article date from a result's pagemap.
func publishedAt(raw googleapi.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var pm pagemap
	if err := json.Unmarshal(raw, &pm); err != nil {
		return ""
	}
	for _, m := range pm.Metatags {
		if v, _ := m["article:published_time"].(string); v != "" {
			return v
		}
	}
	for _, m := range pm.NewsArticle {
		if v, _ := m["datepublished"].(string); v != "" {
			return v
		}
	}
	return ""
}

func isQuotaError(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	for _, item := range gerr.Errors {
		reason := strings.ToLower(item.Reason)
		if strings.Contains(reason, "limit") || strings.Contains(reason, "quota") {
			return true
		}
	}
	return false
}

func keySuffix(key string) string {
	if len(key) <= 5 {
		return "…"
	}
	return "…" + key[len(key)-5:]
}
