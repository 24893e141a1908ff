package project

import (
	"fmt"
	"sort"
)

// StatusNone is the label used for projects without any dated status.
const StatusNone = "None"

// DefaultStatuses is the status table ordered from lowest to highest rank.
var DefaultStatuses = []string{
	StatusNone,
	"Samples Received",
	"Reception Control finished",
	"Library QC finished",
	"All Samples Sequenced",
	"All Raw data Delivered",
}

// Priority is a fixed total order over status labels. A higher rank means a
// later stage in the project lifecycle.
type Priority struct {
	labels []string
	ranks  map[string]int
}

// NewPriority builds a Priority from labels ordered lowest to highest.
func NewPriority(labels []string) (*Priority, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("project: priority table is empty")
	}
	p := &Priority{
		labels: append([]string(nil), labels...),
		ranks:  make(map[string]int, len(labels)),
	}
	for i, l := range labels {
		if _, dup := p.ranks[l]; dup {
			return nil, fmt.Errorf("project: duplicate status %q in priority table", l)
		}
		p.ranks[l] = i
	}
	return p, nil
}

// DefaultPriority returns the Priority for DefaultStatuses.
func DefaultPriority() *Priority {
	p, _ := NewPriority(DefaultStatuses)
	return p
}

// Rank returns the ordinal rank of status, or -1 for labels not in the table.
func (p *Priority) Rank(status string) int {
	if r, ok := p.ranks[status]; ok {
		return r
	}
	return -1
}

// Known reports whether status is part of the table.
func (p *Priority) Known(status string) bool {
	_, ok := p.ranks[status]
	return ok
}

// Labels returns the table from lowest to highest rank.
func (p *Priority) Labels() []string {
	return append([]string(nil), p.labels...)
}

// Highest returns the highest ranked label in statuses. Equal ranks (only
// possible for unknown labels) fall back to lexical order.
func (p *Priority) Highest(statuses []string) string {
	best := ""
	bestRank := -2
	for _, s := range statuses {
		r := p.Rank(s)
		if r > bestRank || (r == bestRank && s < best) {
			best, bestRank = s, r
		}
	}
	return best
}

// Resolve computes the current status and the flattened event history of a
// project from its date to statuses map. The status comes from the latest
// date with at least one status; it is empty only when no date has any.
// Events are sorted newest first, see SortEvents.
func (p *Priority) Resolve(projectID, name string, dates map[string][]string) (string, []Event) {
	if len(dates) == 0 {
		return "", nil
	}

	latest := ""
	for d, statuses := range dates {
		if len(statuses) > 0 && d > latest {
			latest = d
		}
	}
	status := p.Highest(dates[latest])

	var events []Event
	for d, statuses := range dates {
		for _, s := range statuses {
			events = append(events, Event{Date: d, Status: s, ProjectID: projectID, ProjectName: name})
		}
	}
	p.SortEvents(events)
	return status, events
}

// SortEvents orders events by date descending, then rank descending, so that
// same-day statuses break ties the same way Resolve picks a status. Project id
// and label keep the order total.
func (p *Priority) SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		if ra, rb := p.Rank(a.Status), p.Rank(b.Status); ra != rb {
			return ra > rb
		}
		if a.ProjectID != b.ProjectID {
			return a.ProjectID < b.ProjectID
		}
		return a.Status < b.Status
	})
}
