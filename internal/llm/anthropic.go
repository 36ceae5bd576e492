package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/osint-investigator/pkg/anthropic"
)

const jsonSystemPrompt = "You are an OSINT analyst. Respond with a single JSON object and nothing else."

// Claude generates JSON through the Anthropic Messages API.
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaude creates a Claude generator.
func NewClaude(client anthropic.Client, model string, maxTokens int64) *Claude {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Claude{client: client, model: model, maxTokens: maxTokens}
}

// GenerateJSON implements Generator.
func (c *Claude) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	temp := 0.1
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      jsonSystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: claude generate")
	}
	text := resp.Text()
	if text == "" {
		return "", eris.Wrapf(ErrNoJSON, "llm: claude stop_reason=%s", resp.StopReason)
	}
	return text, nil
}
