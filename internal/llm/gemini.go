package llm

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Gemini generates JSON with Google Gemini, trying each configured key in
// order until one succeeds.
type Gemini struct {
	clients []*genai.Client
	model   string

	// generate is swapped in tests.
	generate func(ctx context.Context, idx int, prompt string) (string, error)
}

// NewGemini creates one genai client per key.
func NewGemini(ctx context.Context, keys []string, model string) (*Gemini, error) {
	g := &Gemini{model: model}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(k))
		if err != nil {
			g.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "llm: create gemini client")
		}
		g.clients = append(g.clients, client)
	}
	if len(g.clients) == 0 {
		return nil, eris.New("llm: no gemini keys configured")
	}
	g.generate = g.callModel
	return g, nil
}

// GenerateJSON implements Generator.
func (g *Gemini) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for i := 0; i < g.keyCount(); i++ {
		text, err := g.generate(ctx, i, prompt)
		if err == nil {
			return CleanJSONBlock(text), nil
		}
		if ctx.Err() != nil {
			return "", eris.Wrap(err, "llm: gemini generate")
		}
		lastErr = err
		zap.L().Warn("llm: gemini key failed", zap.Int("key_index", i), zap.Error(err))
	}
	return "", eris.Wrap(lastErr, "llm: all gemini keys failed")
}

func (g *Gemini) keyCount() int {
	if len(g.clients) > 0 {
		return len(g.clients)
	}
	return 1
}

func (g *Gemini) callModel(ctx context.Context, idx int, prompt string) (string, error) {
	model := g.clients[idx].GenerativeModel(g.model)
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return textFromResponse(resp)
}

// Close releases the underlying clients.
func (g *Gemini) Close() error {
	var firstErr error
	for _, c := range g.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func textFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", eris.New("llm: no candidates in response")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", eris.New("llm: no content in response")
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", eris.New("llm: no text parts in response")
	}
	return b.String(), nil
}
