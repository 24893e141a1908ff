package orderportal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zulandar/dailyread/internal/project"
)

const apiKeyHeader = "X-OrderPortal-API-key"

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	URL        string
	APIKey     string
	Timeout    time.Duration // used when HTTPClient is nil; default 60s
	HTTPClient Doer
	Logger     *slog.Logger
}

// Client is an order portal API client.
type Client struct {
	base   *url.URL
	apiKey string
	http   Doer
	logger *slog.Logger
}

// NewClient validates opts and returns a client. The base URL always gets a
// trailing slash so relative API paths resolve below it.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("orderportal: order portal url not set: %w", project.ErrConfig)
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("orderportal: order portal api key not set: %w", project.ErrConfig)
	}
	raw := opts.URL
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("orderportal: parse url: %v: %w", err, project.ErrConfig)
	}
	if opts.HTTPClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		opts.HTTPClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{base: base, apiKey: opts.APIKey, http: opts.HTTPClient, logger: logger}, nil
}

func (c *Client) endpoint(p string) string {
	return c.base.ResolveReference(&url.URL{Path: p}).String()
}

// OrderQuery filters ListOrders. Recent=false asks for orders of all years.
type OrderQuery struct {
	Node    string
	Status  string
	Orderer string
	Recent  bool
}

// ListOrders fetches orders matching q. A response that cannot be decoded
// as an order list is returned as an error and must abort the caller.
func (c *Client) ListOrders(ctx context.Context, q OrderQuery) ([]Order, error) {
	params := url.Values{}
	if q.Node != "" {
		params.Set("assigned_node", q.Node)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if !q.Recent {
		params.Set("year", "all")
	}
	if q.Orderer != "" {
		params.Set("owner", q.Orderer)
	}
	u := c.endpoint("api/v1/orders")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("orderportal: build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	c.logger.Info("fetching orders", "node", q.Node, "status", q.Status, "orderer", q.Orderer, "recent", q.Recent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orderportal: list orders: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Items *[]Order `json:"items"`
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("could not fetch orders", "orderer", q.Orderer, "status_code", resp.StatusCode)
		return nil, fmt.Errorf("orderportal: list orders for %q: status %d", q.Orderer, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Error("could not fetch orders", "orderer", q.Orderer, "error", err)
		return nil, fmt.Errorf("orderportal: decode orders for %q: %w", q.Orderer, err)
	}
	if payload.Items == nil {
		return nil, fmt.Errorf("orderportal: decode orders for %q: response has no items", q.Orderer)
	}
	c.logger.Info("fetched orders from the order portal", "orderer", q.Orderer, "count", len(*payload.Items))
	return *payload.Items, nil
}

// UploadResult is the outcome of one report upload that reached the portal.
type UploadResult struct {
	ProjectID  string
	ReportRef  string
	Status     string
	OK         bool
	StatusCode int
	Reason     string
	Err        error // wraps project.ErrRemoteServiceUpload when !OK
}

type uploadFile struct {
	Data        string `json:"data"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

type uploadBody struct {
	Order  string      `json:"order"`
	Name   string      `json:"name"`
	Status string      `json:"status"`
	File   *uploadFile `json:"file,omitempty"`
}

// UploadReport creates or replaces the Project Progress report of rec's
// order. An empty content sends no file, which only changes the report's
// status. A non-2xx answer is reported in the result; only transport
// failures are returned as errors.
func (c *Client) UploadReport(ctx context.Context, content string, rec *project.Record, status string) (UploadResult, error) {
	res := UploadResult{ProjectID: rec.ProjectID, ReportRef: rec.ReportRef, Status: status}

	p := "api/v1/report"
	if rec.ReportRef != "" {
		p += "/" + url.PathEscape(rec.ReportRef)
	}
	body := uploadBody{Order: rec.ProjectID, Name: ReportName, Status: status}
	if content != "" {
		body.File = &uploadFile{
			Data:        base64.StdEncoding.EncodeToString([]byte(content)),
			Filename:    "project_progress.html",
			ContentType: "text/html",
		}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return res, fmt.Errorf("orderportal: encode upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(p), bytes.NewReader(data))
	if err != nil {
		return res, fmt.Errorf("orderportal: build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return res, fmt.Errorf("orderportal: upload report for %s: %w", rec.ProjectID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	res.StatusCode = resp.StatusCode
	res.Reason = http.StatusText(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Err = fmt.Errorf("orderportal: upload report for %s: status %d: %w", rec.ProjectID, resp.StatusCode, project.ErrRemoteServiceUpload)
		c.logger.Error("report not uploaded", "project", rec.ProjectID, "status_code", resp.StatusCode, "reason", res.Reason)
		return res, nil
	}
	res.OK = true
	c.logger.Info("updated report", "project", rec.ProjectID, "status", status)
	return res, nil
}
