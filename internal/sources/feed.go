package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/zulandar/dailyread/internal/project"
)

// Feed reads records from a JSON endpoint answering {"items": [row, ...]}.
// A feed without URL yields no records.
type Feed struct {
	name   string
	dir    string
	url    string
	client Doer
	prio   *project.Priority
	logger *slog.Logger
}

// NewSNPSeq returns the SNP&SEQ feed source.
func NewSNPSeq(feedURL string, client Doer, prio *project.Priority, logger *slog.Logger) *Feed {
	return newFeed("SNP&SEQ", "SNPSEQ", feedURL, client, prio, logger)
}

// NewUGC returns the Uppsala Genome Center feed source.
func NewUGC(feedURL string, client Doer, prio *project.Priority, logger *slog.Logger) *Feed {
	return newFeed("Uppsala Genome Center", "UGC", feedURL, client, prio, logger)
}

func newFeed(name, dir, feedURL string, client Doer, prio *project.Priority, logger *slog.Logger) *Feed {
	if client == nil {
		client = http.DefaultClient
	}
	if prio == nil {
		prio = project.DefaultPriority()
	}
	return &Feed{name: name, dir: dir, url: feedURL, client: client, prio: prio, logger: discardLogger(logger)}
}

func (f *Feed) Name() string { return f.name }
func (f *Feed) Dir() string  { return f.dir }

// Fetch downloads the feed. The close date and project id are sent as query
// parameters; the project id filter is applied locally as well.
func (f *Feed) Fetch(ctx context.Context, q Query) (map[string]*project.Record, error) {
	if f.url == "" {
		f.logger.Debug("no feed url configured", "source", f.name)
		return map[string]*project.Record{}, nil
	}
	u, err := url.Parse(f.url)
	if err != nil {
		return nil, fmt.Errorf("feed: parse url: %w", err)
	}
	params := u.Query()
	if q.CloseDate != "" {
		params.Set("close_date", q.CloseDate)
	}
	if q.ProjectID != "" {
		params.Set("portal_id", q.ProjectID)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("feed: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: get %s: %w", f.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed: get %s: status %d: %s", f.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Items []Row `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("feed: decode %s: %w", f.name, err)
	}
	return convertRows(f.dir, payload.Items, q, f.prio, f.logger)
}
