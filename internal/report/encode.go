package report

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/osint-investigator/internal/model"
)

// encodeYAML goes through the JSON encoding so both formats share field
// names and key order.
func encodeYAML(doc Document) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, eris.Wrap(err, "report: reparse as yaml")
	}
	blockStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// blockStyle drops the flow and quoting styles inherited from JSON.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// sheet is one tab of the workbook.
type sheet struct {
	name   string
	header []string
	rows   [][]string
}

func encodeXLSX(doc Document) ([]byte, error) {
	f := xlsx.NewFile()
	for _, s := range workbook(doc) {
		xs, err := f.AddSheet(s.name)
		if err != nil {
			return nil, eris.Wrapf(err, "report: add sheet %s", s.name)
		}
		addRow(xs, s.header)
		for _, r := range s.rows {
			addRow(xs, r)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func addRow(s *xlsx.Sheet, values []string) {
	row := s.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func workbook(doc Document) []sheet {
	itoa := strconv.Itoa
	risk := doc.RiskAssessment
	stats := doc.SearchStatistics

	summary := sheet{name: "Summary", header: []string{"Field", "Value"}, rows: [][]string{
		{"Subject", doc.Meta.Subject},
		{"Location", doc.Meta.Location},
		{"Generated At", doc.Meta.GeneratedAt.Format(time.RFC3339)},
		{"Tool Version", doc.Meta.ToolVersion},
		{"Executive Summary", doc.ExecutiveSummary},
		{"Detailed Analysis", doc.DetailedAnalysis},
		{"Risk Score", itoa(risk.RiskScore)},
		{"Risk Justification", risk.RiskJustification},
		{"Sentiment Score", itoa(risk.SentimentScore)},
		{"Sentiment Justification", risk.SentimentJustification},
	}}

	findings := sheet{name: "Key Findings", header: []string{"#", "Finding"}}
	for i, f := range doc.KeyFindings {
		findings.rows = append(findings.rows, []string{itoa(i + 1), f})
	}

	associated := sheet{name: "Associated Entities", header: []string{"Name", "Type", "Relationship"}}
	for _, e := range doc.AssociatedEntities {
		associated.rows = append(associated.rows, []string{e.Name, e.Type, e.Relationship})
	}

	entities := sheet{name: "Entities", header: []string{"Type", "Name", "Mentions"}}
	ea := doc.EntityRelationships
	for _, group := range [][]model.EntityMention{ea.RelatedPersons, ea.RelatedOrganizations, ea.RelatedLocations} {
		for _, m := range group {
			entities.rows = append(entities.rows, []string{string(m.Type), m.Name, itoa(m.MentionCount)})
		}
	}

	sources := sheet{name: "Sources", header: []string{"Source", "Count"}}
	for _, s := range doc.SourceBreakdown {
		sources.rows = append(sources.rows, []string{s.Name, itoa(s.Count)})
	}

	timeline := sheet{name: "Timeline", header: []string{"Date", "Title", "Source", "Link"}}
	for _, e := range doc.Timeline {
		timeline.rows = append(timeline.rows, []string{e.Date, e.Title, e.Source, e.Link})
	}

	raw := sheet{name: "Raw Intelligence", header: []string{"Source", "Title", "Snippet", "Link", "Match"}}
	for _, h := range doc.RawIntelligence {
		raw.rows = append(raw.rows, []string{
			h.SourceCategory.Label(), h.Title, h.Snippet, h.Link, string(h.MatchMethod),
		})
	}

	statistics := sheet{name: "Statistics", header: []string{"Metric", "Value"}, rows: [][]string{
		{"Results Scanned", itoa(stats.TotalResultsScanned)},
		{"Results Filtered", itoa(stats.TotalResultsFiltered)},
		{"Sources Queried", itoa(stats.SourcesQueried)},
		{"Sources Failed", itoa(stats.SourcesFailed)},
		{"Search Timestamp", stats.SearchTimestamp.Format(time.RFC3339)},
	}}

	return []sheet{summary, findings, associated, entities, sources, timeline, raw, statistics}
}
