package sources

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zulandar/dailyread/internal/config"
	"github.com/zulandar/dailyread/internal/project"
)

// Master fans a fetch out over the enabled sources and merges the results.
// Sources are queried in order; a later source wins on a duplicate portal id.
type Master struct {
	sources    []Source
	monthsBack int
	now        func() time.Time
	logger     *slog.Logger
}

// NewMaster builds the enabled sources from cfg. At least one source must be
// enabled.
func NewMaster(cfg *config.Config, client Doer, prio *project.Priority, logger *slog.Logger) (*Master, error) {
	var list []Source
	if sc := cfg.Sources.Stockholm; sc.Enabled {
		s, err := NewStockholm(StockholmOptions{
			URL:      sc.URL,
			Database: sc.Database,
			Username: sc.Username,
			Password: sc.Password,
			Client:   client,
			Priority: prio,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	if cfg.Sources.SNPSeq.Enabled {
		list = append(list, NewSNPSeq(cfg.Sources.SNPSeq.URL, client, prio, logger))
	}
	if cfg.Sources.UGC.Enabled {
		list = append(list, NewUGC(cfg.Sources.UGC.URL, client, prio, logger))
	}
	return NewMasterFromSources(list, cfg.Fetch.MonthsBack, logger)
}

// NewMasterFromSources wraps an explicit source list.
func NewMasterFromSources(list []Source, monthsBack int, logger *slog.Logger) (*Master, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("sources: there are no sources specified to fetch data from: %w", project.ErrConfig)
	}
	if monthsBack <= 0 {
		monthsBack = 6
	}
	return &Master{sources: list, monthsBack: monthsBack, now: time.Now, logger: discardLogger(logger)}, nil
}

// Names lists the configured source names in query order.
func (m *Master) Names() []string {
	names := make([]string, 0, len(m.sources))
	for _, s := range m.sources {
		names = append(names, s.Name())
	}
	return names
}

// DefaultCloseDate is the configured number of months before now.
func (m *Master) DefaultCloseDate() string {
	return m.now().AddDate(0, -m.monthsBack, 0).Format("2006-01-02")
}

// Fetch queries every source matching q and merges their records. A failing
// source aborts the fetch with a *project.SourceFetchError.
func (m *Master) Fetch(ctx context.Context, q Query) (map[string]*project.Record, error) {
	if q.CloseDate == "" {
		q.CloseDate = m.DefaultCloseDate()
	}
	out := make(map[string]*project.Record)
	for _, s := range m.sources {
		if q.Source != "" && s.Name() != q.Source && s.Dir() != q.Source {
			continue
		}
		recs, err := s.Fetch(ctx, q)
		if err != nil {
			m.logger.Error("failed to fetch data", "source", s.Name(), "error", err)
			return nil, &project.SourceFetchError{Source: s.Name(), Err: err}
		}
		m.logger.Info("fetched project data", "source", s.Name(), "projects", len(recs))
		for id, r := range recs {
			out[id] = r
		}
	}
	if q.ProjectID != "" && len(out) == 0 {
		return nil, fmt.Errorf("sources: project %s not found in %s: %w", q.ProjectID, strings.Join(m.Names(), ", "), project.ErrSourceFetch)
	}
	return out, nil
}
