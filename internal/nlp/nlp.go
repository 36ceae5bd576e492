// Package nlp recognizes named entities (people, organizations, places) in
// short search-result texts.
package nlp

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/osint-investigator/internal/model"
)

// Entity is one recognized mention.
type Entity struct {
	Text string
	Type model.EntityType
}

// Recognizer extracts entities from text.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
}

// ErrUnavailable is returned when a recognizer cannot run at all.
var ErrUnavailable = eris.New("nlp: recognizer unavailable")

// cleanName trims punctuation and possessives left around an entity span.
func cleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "'s")
	s = strings.TrimSuffix(s, "’s")
	s = strings.Trim(s, " \t\n.,;:!?\"'()[]|-–—")
	return strings.Join(strings.Fields(s), " ")
}

// dedupe drops exact repeats of the same (type, name) within one text so a
// single snippet counts each entity once.
func dedupe(in []Entity) []Entity {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, e := range in {
		if len(e.Text) < 2 {
			continue
		}
		key := string(e.Type) + "\x00" + strings.ToLower(e.Text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}
