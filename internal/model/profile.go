package model

import "time"

// EntityType classifies a recognized named entity.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
)

// EntityMention is one normalized, counted entity across all evidence.
type EntityMention struct {
	Name         string     `json:"name"`
	Type         EntityType `json:"type"`
	MentionCount int        `json:"mentionCount"`
}

// EntityAnalysis groups extracted mentions by type.
type EntityAnalysis struct {
	RelatedPersons       []EntityMention `json:"relatedPersons"`
	RelatedOrganizations []EntityMention `json:"relatedOrganizations"`
	RelatedLocations     []EntityMention `json:"relatedLocations"`
}

// Empty reports whether no entity was extracted.
func (a EntityAnalysis) Empty() bool {
	return len(a.RelatedPersons) == 0 && len(a.RelatedOrganizations) == 0 && len(a.RelatedLocations) == 0
}

// RiskAnalysis holds the AI-derived risk and sentiment assessment.
type RiskAnalysis struct {
	RiskScore              int    `json:"riskScore"`
	RiskJustification      string `json:"riskJustification"`
	SentimentScore         int    `json:"sentimentScore"`
	SentimentJustification string `json:"sentimentJustification"`
}

// Score bounds.
const (
	MinRiskScore      = 0
	MaxRiskScore      = 10
	MinSentimentScore = -5
	MaxSentimentScore = 5
)

// AssociatedEntity is an entity the enrichment step related to the subject.
type AssociatedEntity struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Relationship string `json:"relationship"`
}

// TimelineEvent is a dated event attributed to a source.
type TimelineEvent struct {
	Date   string `json:"date"`
	Title  string `json:"title"`
	Source string `json:"source"`
	Link   string `json:"link,omitempty"`
}

// SourceCount is the number of surviving hits from one source category.
type SourceCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SearchMeta describes the search that produced a profile.
type SearchMeta struct {
	TotalResultsScanned  int       `json:"totalResultsScanned"`
	TotalResultsFiltered int       `json:"totalResultsFiltered"`
	SourcesQueried       int       `json:"sourcesQueried"`
	SourcesFailed        int       `json:"sourcesFailed"`
	SearchTimestamp      time.Time `json:"searchTimestamp"`
}

// PersonProfile is the final artifact of a completed job.
type PersonProfile struct {
	Name               string             `json:"name"`
	Location           string             `json:"location"`
	ShortSummary       string             `json:"short_summary"`
	DetailedSummary    string             `json:"detailed_summary"`
	RiskAnalysis       RiskAnalysis       `json:"riskAnalysis"`
	KeyFindings        []string           `json:"keyFindings"`
	AssociatedEntities []AssociatedEntity `json:"associatedEntities"`
	EntityAnalysis     EntityAnalysis     `json:"entityAnalysis"`
	TimelineEvents     []TimelineEvent    `json:"timelineEvents"`
	SourceAnalysis     []SourceCount      `json:"sourceAnalysis"`
	SearchMeta         SearchMeta         `json:"searchMeta"`
	RawData            []RawHit           `json:"raw_data"`
}
