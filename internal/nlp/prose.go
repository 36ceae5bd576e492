package nlp

import (
	"context"
	"regexp"

	"github.com/jdkato/prose/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/osint-investigator/internal/model"
)

// orgPattern catches capitalized names ending in a corporate or institutional
// suffix, which the statistical tagger does not label.
var orgPattern = regexp.MustCompile(`\b(?:[A-Z][\w&'-]*\s+){1,5}(?:Ltd|Limited|Pvt|Inc|Corp|Corporation|LLP|LLC|Group|Bank|University|Institute|College|Technologies|Solutions|Foundation|Ministry|Court|Police|Company)\b`)

// Prose recognizes entities with the prose tagger plus an organization
// suffix pass.
type Prose struct{}

// NewProse creates a prose-backed recognizer.
func NewProse() *Prose { return &Prose{} }

// Recognize implements Recognizer.
func (p *Prose) Recognize(ctx context.Context, text string) (out []Entity, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, eris.Wrapf(ErrUnavailable, "prose panic: %v", r)
		}
	}()

	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, eris.Wrap(err, "nlp: prose document")
	}

	for _, ent := range doc.Entities() {
		name := cleanName(ent.Text)
		switch ent.Label {
		case "PERSON":
			out = append(out, Entity{Text: name, Type: model.EntityPerson})
		case "GPE", "LOC":
			out = append(out, Entity{Text: name, Type: model.EntityLocation})
		case "ORG":
			out = append(out, Entity{Text: name, Type: model.EntityOrganization})
		}
	}
	for _, m := range orgPattern.FindAllString(text, -1) {
		out = append(out, Entity{Text: cleanName(m), Type: model.EntityOrganization})
	}
	return dedupe(out), nil
}
