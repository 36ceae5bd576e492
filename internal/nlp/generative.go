package nlp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/osint-investigator/internal/llm"
	"github.com/sells-group/osint-investigator/internal/model"
)

const nerPrompt = `Extract the named entities from the text below.
Return ONLY a JSON object of the form
{"persons": [string], "organizations": [string], "locations": [string]}
Use the names exactly as written. Use empty lists when none are present.

Text:
"""
%s
"""`

type nerResponse struct {
	Persons       []string `json:"persons"`
	Organizations []string `json:"organizations"`
	Locations     []string `json:"locations"`
}

// Generative recognizes entities by prompting a generative model.
type Generative struct {
	gen llm.Generator
}

// NewGenerative creates a recognizer backed by gen.
func NewGenerative(gen llm.Generator) *Generative {
	return &Generative{gen: gen}
}

// Recognize implements Recognizer.
func (g *Generative) Recognize(ctx context.Context, text string) ([]Entity, error) {
	if g.gen == nil {
		return nil, ErrUnavailable
	}
	raw, err := g.gen.GenerateJSON(ctx, fmt.Sprintf(nerPrompt, text))
	if err != nil {
		return nil, eris.Wrap(err, "nlp: generate entities")
	}
	doc, err := llm.ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var resp nerResponse
	if err := json.Unmarshal([]byte(doc), &resp); err != nil {
		return nil, eris.Wrap(err, "nlp: decode entities")
	}

	out := make([]Entity, 0, len(resp.Persons)+len(resp.Organizations)+len(resp.Locations))
	add := func(names []string, typ model.EntityType) {
		for _, n := range names {
			out = append(out, Entity{Text: cleanName(n), Type: typ})
		}
	}
	add(resp.Persons, model.EntityPerson)
	add(resp.Organizations, model.EntityOrganization)
	add(resp.Locations, model.EntityLocation)
	return dedupe(out), nil
}
