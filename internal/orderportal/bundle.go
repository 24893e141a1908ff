package orderportal

import (
	"sort"

	"github.com/zulandar/dailyread/internal/project"
)

// MaxRecents bounds Bundle.Recents.
const MaxRecents = 5

// Bundle collects everything one orderer's report needs. It is built fresh
// by every reconciliation and has no persisted form.
type Bundle struct {
	Orderer         string                       `json:"orderer"`
	PullDate        string                       `json:"pull_date"`
	ActiveProjects  int                          `json:"active_projects"`
	Recents         []project.Event              `json:"recents"`
	Projects        map[string][]*project.Record `json:"projects"`
	DeleteReportFor map[string][]*project.Record `json:"delete_report_for"`

	events []project.Event
}

func newBundle(orderer, pullDate string) *Bundle {
	return &Bundle{
		Orderer:         orderer,
		PullDate:        pullDate,
		Recents:         []project.Event{},
		Projects:        map[string][]*project.Record{},
		DeleteReportFor: map[string][]*project.Record{},
	}
}

func (b *Bundle) addActive(rec *project.Record, prio *project.Priority) {
	b.events = append(b.events, rec.Events()...)
	prio.SortEvents(b.events)
	n := len(b.events)
	if n > MaxRecents {
		n = MaxRecents
	}
	b.Recents = append(b.Recents[:0], b.events[:n]...)
	b.Projects[rec.StatusKey()] = append(b.Projects[rec.StatusKey()], rec)
	b.ActiveProjects++
}

func (b *Bundle) addClosing(rec *project.Record) {
	b.DeleteReportFor[rec.StatusKey()] = append(b.DeleteReportFor[rec.StatusKey()], rec)
}

// Statuses returns the keys of Projects, highest rank first. Statuses not in
// prio sort last, alphabetically.
func (b *Bundle) Statuses(prio *project.Priority) []string {
	return byRank(b.Projects, prio)
}

// ActiveRecords returns the records of Projects in Statuses order.
func (b *Bundle) ActiveRecords(prio *project.Priority) []*project.Record {
	var out []*project.Record
	for _, s := range b.Statuses(prio) {
		out = append(out, b.Projects[s]...)
	}
	return out
}

// ClosingRecords returns the records of DeleteReportFor, highest rank first.
func (b *Bundle) ClosingRecords(prio *project.Priority) []*project.Record {
	var out []*project.Record
	for _, s := range byRank(b.DeleteReportFor, prio) {
		out = append(out, b.DeleteReportFor[s]...)
	}
	return out
}

func byRank(m map[string][]*project.Record, prio *project.Priority) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := prio.Rank(keys[i]), prio.Rank(keys[j])
		if ri != rj {
			return ri > rj
		}
		return keys[i] < keys[j]
	})
	return keys
}
