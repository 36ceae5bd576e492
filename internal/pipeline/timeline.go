package pipeline

import (
	"slices"
	"strings"
	"time"

	"github.com/sells-group/osint-investigator/internal/model"
	"github.com/sells-group/osint-investigator/internal/textmatch"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"02-01-2006",
}

// normalizeDate formats s as YYYY-MM-DD when it parses with a known layout.
// Otherwise the trimmed input is returned with ok false.
func normalizeDate(s string) (string, time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly), t, true
		}
	}
	return s, time.Time{}, false
}

// hitEvents derives timeline events from hits that carry a published date.
func hitEvents(hits []model.RawHit) []model.TimelineEvent {
	var out []model.TimelineEvent
	for _, h := range hits {
		if strings.TrimSpace(h.PublishedAt) == "" || strings.TrimSpace(h.Title) == "" {
			continue
		}
		out = append(out, model.TimelineEvent{
			Date:   h.PublishedAt,
			Title:  h.Title,
			Source: h.SourceCategory.Label(),
			Link:   h.Link,
		})
	}
	return out
}

// mergeTimeline combines event lists, dropping repeats of the same date and
// title, newest first. Events with unparseable dates keep their relative
// order after all dated events.
func mergeTimeline(lists ...[]model.TimelineEvent) []model.TimelineEvent {
	type dated struct {
		ev model.TimelineEvent
		at time.Time
		ok bool
	}

	seen := make(map[string]struct{})
	var events []dated
	for _, list := range lists {
		for _, ev := range list {
			title := strings.TrimSpace(ev.Title)
			if title == "" {
				continue
			}
			date, at, ok := normalizeDate(ev.Date)
			key := date + "|" + textmatch.Normalize(title)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			ev.Date, ev.Title = date, title
			events = append(events, dated{ev: ev, at: at, ok: ok})
		}
	}

	slices.SortStableFunc(events, func(a, b dated) int {
		switch {
		case a.ok && b.ok:
			return b.at.Compare(a.at)
		case a.ok:
			return -1
		case b.ok:
			return 1
		}
		return 0
	})

	out := make([]model.TimelineEvent, 0, len(events))
	for _, d := range events {
		out = append(out, d.ev)
	}
	return out
}
