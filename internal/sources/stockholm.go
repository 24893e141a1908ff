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

const datesView = "_design/project/_view/dailyread_dates"

// Stockholm reads NGI Stockholm projects from the dailyread_dates view of
// StatusDB, a CouchDB server.
type Stockholm struct {
	baseURL  string
	database string
	username string
	password string
	client   Doer
	prio     *project.Priority
	logger   *slog.Logger
}

// StockholmOptions configures NewStockholm.
type StockholmOptions struct {
	URL      string // host[:port][/prefix] or full http(s) URL
	Database string
	Username string
	Password string
	Client   Doer
	Priority *project.Priority
	Logger   *slog.Logger
}

// NewStockholm returns the Stockholm source.
func NewStockholm(opts StockholmOptions) (*Stockholm, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("sources: statusdb url is required: %w", project.ErrConfig)
	}
	base := opts.URL
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("sources: statusdb url: %v: %w", err, project.ErrConfig)
	}
	if opts.Database == "" {
		opts.Database = "projects"
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Priority == nil {
		opts.Priority = project.DefaultPriority()
	}
	return &Stockholm{
		baseURL:  strings.TrimSuffix(base, "/"),
		database: opts.Database,
		username: opts.Username,
		password: opts.Password,
		client:   opts.Client,
		prio:     opts.Priority,
		logger:   discardLogger(opts.Logger),
	}, nil
}

func (s *Stockholm) Name() string { return "NGI Stockholm" }
func (s *Stockholm) Dir() string  { return "NGIS" }

type viewResponse struct {
	Rows []struct {
		ID    string `json:"id"`
		Value Row    `json:"value"`
	} `json:"rows"`
}

// Fetch queries the view in descending order down to q.CloseDate.
func (s *Stockholm) Fetch(ctx context.Context, q Query) (map[string]*project.Record, error) {
	rows, err := s.rows(ctx, q.CloseDate)
	if err != nil {
		return nil, err
	}
	return convertRows(s.Dir(), rows, q, s.prio, s.logger)
}

func (s *Stockholm) rows(ctx context.Context, closeDate string) ([]Row, error) {
	endkey, err := json.Marshal([]string{closeDate, "ZZZZ"})
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("descending", "true")
	params.Set("endkey", string(endkey))
	u := fmt.Sprintf("%s/%s/%s?%s", s.baseURL, url.PathEscape(s.database), datesView, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("statusdb: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("statusdb: query %s: %w", datesView, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("statusdb: query %s: status %d: %s", datesView, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var view viewResponse
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("statusdb: decode view: %w", err)
	}
	rows := make([]Row, 0, len(view.Rows))
	for _, r := range view.Rows {
		rows = append(rows, r.Value)
	}
	return rows, nil
}
