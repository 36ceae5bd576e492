package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/osint-investigator/pkg/perplexity"
)

// Sonar generates JSON with a Perplexity Sonar model. Answers are grounded
// in a live web search on the provider side.
type Sonar struct {
	client    perplexity.Client
	model     string
	maxTokens int
	recency   string
}

// SonarOption configures a Sonar generator.
type SonarOption func(*Sonar)

// WithSearchRecency restricts the provider's web grounding to recent pages.
func WithSearchRecency(recency string) SonarOption {
	return func(s *Sonar) { s.recency = recency }
}

// NewSonar creates a Perplexity generator. An empty model keeps the
// client's default.
func NewSonar(client perplexity.Client, model string, maxTokens int, opts ...SonarOption) *Sonar {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	s := &Sonar{client: client, model: model, maxTokens: maxTokens}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GenerateJSON implements Generator.
func (s *Sonar) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	temp := 0.1
	maxTokens := s.maxTokens
	resp, err := s.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: s.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: jsonSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:   &temp,
		MaxTokens:     &maxTokens,
		SearchRecency: s.recency,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: perplexity generate")
	}
	if len(resp.Choices) > 0 && resp.Choices[0].FinishReason == "length" {
		zap.L().Warn("llm: perplexity reply truncated at max tokens",
			zap.String("model", resp.Model),
			zap.Int("max_tokens", maxTokens),
		)
	}
	text := resp.Text()
	if text == "" {
		return "", eris.Wrap(ErrNoJSON, "llm: perplexity returned no content")
	}
	return text, nil
}
