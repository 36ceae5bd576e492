package model

// SourceCategory names a logical group of query targets.
type SourceCategory string

const (
	SourceProfessional SourceCategory = "professional"
	SourceNewsLegal    SourceCategory = "news_legal"
	SourceGeneral      SourceCategory = "general"
	SourceReddit       SourceCategory = "reddit"
	SourceWikipedia    SourceCategory = "wikipedia"
	SourceBusiness     SourceCategory = "business"
	SourceAcademic     SourceCategory = "academic"
)

// Label returns the display name used in source breakdowns.
func (c SourceCategory) Label() string {
	switch c {
	case SourceProfessional:
		return "LinkedIn"
	case SourceNewsLegal:
		return "Case/News"
	case SourceGeneral:
		return "General"
	case SourceReddit:
		return "Reddit"
	case SourceWikipedia:
		return "Wikipedia"
	case SourceBusiness:
		return "Business"
	case SourceAcademic:
		return "Academic"
	default:
		return string(c)
	}
}

// MatchMethod records how the deduplicator merged a hit with its duplicates.
type MatchMethod string

const (
	MatchNone       MatchMethod = ""
	MatchExactLink  MatchMethod = "exact-link"
	MatchFuzzyTitle MatchMethod = "fuzzy-title"
)

// RawHit is a single search result.
type RawHit struct {
	Title          string         `json:"title"`
	Snippet        string         `json:"snippet"`
	Link           string         `json:"link"`
	DisplayLink    string         `json:"displayLink,omitempty"`
	SourceCategory SourceCategory `json:"source"`
	MatchMethod    MatchMethod    `json:"matchMethod,omitempty"`
	PublishedAt    string         `json:"publishedAt,omitempty"`
}

// Text returns the title and snippet joined for matching and NER.
func (h RawHit) Text() string {
	if h.Snippet == "" {
		return h.Title
	}
	if h.Title == "" {
		return h.Snippet
	}
	return h.Title + ". " + h.Snippet
}
