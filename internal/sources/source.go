// Package sources pulls per-project status events from the lab systems and
// converts them into project records.
package sources

import (
	"context"
	"log/slog"
	"net/http"
	"path"

	"github.com/zulandar/dailyread/internal/project"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Query narrows a fetch. The zero value fetches everything closed after the
// default close date.
type Query struct {
	ProjectID string // single portal id, empty for all
	CloseDate string // YYYY-MM-DD lower bound on close dates
	Source    string // restrict Master.Fetch to one source name
}

// Source is one lab data system.
type Source interface {
	// Name is the human readable name, e.g. "NGI Stockholm".
	Name() string
	// Dir is the node directory records are stored under, e.g. "NGIS".
	Dir() string
	// Fetch returns the source's records keyed by portal id.
	Fetch(ctx context.Context, q Query) (map[string]*project.Record, error)
}

// Row is the per-project document every source delivers.
type Row struct {
	PortalID    string              `json:"portal_id"`
	Orderer     string              `json:"orderer"`
	OrderYear   string              `json:"order_year"`
	ProjectID   string              `json:"project_id"`
	ProjectName string              `json:"project_name"`
	ProjDates   map[string][]string `json:"proj_dates"`
	Status      string              `json:"status,omitempty"`
}

// convertRows builds records below dir from rows. Rows without an order year
// are skipped; a row without an orderer fails the whole batch.
func convertRows(dir string, rows []Row, q Query, prio *project.Priority, logger *slog.Logger) (map[string]*project.Record, error) {
	out := make(map[string]*project.Record, len(rows))
	for _, row := range rows {
		if q.ProjectID != "" && row.PortalID != q.ProjectID {
			continue
		}
		if row.OrderYear == "" {
			logger.Info("no order year found, skipping order", "order", row.PortalID, "source", dir)
			continue
		}
		rel := path.Join(dir, row.OrderYear, row.PortalID+".json")
		rec, err := project.NewRecord(rel, row.Orderer, row.ProjDates, row.ProjectID, row.ProjectName, prio)
		if err != nil {
			return nil, err
		}
		if rec.Status() == "" {
			logger.Info("no project dates found", "project", rec.ProjectID, "source", dir)
		}
		out[rec.ProjectID] = rec
	}
	return out, nil
}

func discardLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
